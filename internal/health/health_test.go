package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/printdeck/fulfillment/internal/kv"
)

// failingStore wraps the memory store and injects a ping failure.
type failingStore struct {
	*kv.Memory
	pingErr error
}

func (s *failingStore) Ping(context.Context) error { return s.pingErr }

func TestHTTPHandler(t *testing.T) {
	tests := []struct {
		name       string
		store      kv.Store
		wantCode   int
		wantStatus Status
	}{
		{
			name:       "healthy with nil store",
			store:      nil,
			wantCode:   http.StatusOK,
			wantStatus: Status{OK: true, Message: "ok", KV: true},
		},
		{
			name:       "healthy with working store",
			store:      kv.NewMemory(),
			wantCode:   http.StatusOK,
			wantStatus: Status{OK: true, Message: "ok", KV: true},
		},
		{
			name:       "unhealthy with failing store",
			store:      &failingStore{Memory: kv.NewMemory(), pingErr: errors.New("connection refused")},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: Status{OK: false, Message: "kv ping failed", KV: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/healthz", nil)
			w := httptest.NewRecorder()

			HTTPHandler(tt.store)(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}
			var got Status
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if got != tt.wantStatus {
				t.Errorf("status = %+v, want %+v", got, tt.wantStatus)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("content type = %q, want application/json", ct)
			}
		})
	}
}

func TestHTTPHandlerRespectsRequestContext(t *testing.T) {
	store := &failingStore{Memory: kv.NewMemory(), pingErr: context.DeadlineExceeded}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	req := httptest.NewRequest("GET", "/healthz", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	HTTPHandler(store)(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want 503", w.Code)
	}
}
