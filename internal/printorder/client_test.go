package printorder

import (
	"errors"
	"fmt"
	"testing"
)

func TestRetryableClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "transport error", err: errors.New("dial tcp: connection refused"), want: true},
		{name: "500", err: &StatusError{Status: 500}, want: true},
		{name: "503", err: &StatusError{Status: 503}, want: true},
		{name: "400", err: &StatusError{Status: 400}, want: false},
		{name: "404", err: &StatusError{Status: 404}, want: false},
		{name: "422", err: &StatusError{Status: 422}, want: false},
		{name: "wrapped 502", err: fmt.Errorf("confirm order: %w", &StatusError{Status: 502}), want: true},
		{name: "wrapped 409", err: fmt.Errorf("add item: %w", &StatusError{Status: 409}), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestStatusErrorMessage(t *testing.T) {
	err := &StatusError{Status: 422, Body: `{"error":"variant not found"}`}
	want := `provider status 422: {"error":"variant not found"}`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
