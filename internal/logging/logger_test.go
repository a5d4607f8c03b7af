package logging

import (
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	logger := New("fulfillment-consumer")
	if logger == nil {
		t.Fatal("New() returned nil")
	}
	if logger.service != "fulfillment-consumer" {
		t.Errorf("service = %q, want %q", logger.service, "fulfillment-consumer")
	}
}

func TestPlainEntry(t *testing.T) {
	logger := New("test-service")
	entry := logger.Plain()

	if entry.Service != "test-service" {
		t.Errorf("Service = %q, want %q", entry.Service, "test-service")
	}
	if entry.Fields == nil {
		t.Error("Fields should be initialized")
	}
	if time.Since(entry.Time) > time.Second {
		t.Error("entry time should be recent")
	}
}

func TestFluentSetters(t *testing.T) {
	entry := New("svc").Plain().
		WithQueue("token-fulfillment").
		WithMessage("0a1b2c3d4e5f6071").
		WithGrant("grant-abc").
		WithPayment("pi_123")

	if entry.Queue != "token-fulfillment" {
		t.Errorf("Queue = %q, want %q", entry.Queue, "token-fulfillment")
	}
	if entry.MessageID != "0a1b2c3d4e5f6071" {
		t.Errorf("MessageID = %q, want %q", entry.MessageID, "0a1b2c3d4e5f6071")
	}
	if entry.GrantID != "grant-abc" {
		t.Errorf("GrantID = %q, want %q", entry.GrantID, "grant-abc")
	}
	if entry.PaymentID != "pi_123" {
		t.Errorf("PaymentID = %q, want %q", entry.PaymentID, "pi_123")
	}
}

func TestWithField(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
	}{
		{name: "string field", key: "bundle", value: "tokens_10"},
		{name: "int field", key: "attempt", value: 2},
		{name: "bool field", key: "retryable", value: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := (&LogEntry{}).WithField(tt.key, tt.value)
			got, ok := entry.Fields[tt.key]
			if !ok {
				t.Fatalf("field %q not set", tt.key)
			}
			if got != tt.value {
				t.Errorf("Fields[%q] = %v, want %v", tt.key, got, tt.value)
			}
		})
	}
}

func TestWithFieldsMerges(t *testing.T) {
	entry := (&LogEntry{}).
		WithField("a", 1).
		WithFields(map[string]any{"b": 2, "c": 3})

	for k, want := range map[string]any{"a": 1, "b": 2, "c": 3} {
		if got := entry.Fields[k]; got != want {
			t.Errorf("Fields[%q] = %v, want %v", k, got, want)
		}
	}
}

func TestWithError(t *testing.T) {
	entry := (&LogEntry{}).WithError(nil)
	if _, ok := entry.Fields["error"]; ok {
		t.Error("nil error should not set an error field")
	}

	entry = (&LogEntry{}).WithError(errTest)
	if got := entry.Fields["error"]; got != "boom" {
		t.Errorf(`Fields["error"] = %v, want "boom"`, got)
	}
}

var errTest = &testError{}

type testError struct{}

func (*testError) Error() string { return "boom" }
