package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/jeninmail/hermes-system/internal/model"
	"github.com/jeninmail/hermes-system/internal/repository"
)

type stubEventSource struct {
	apiKey string
	event  *model.Event
}

func (s *stubEventSource) GetEventByAPIKey(_ context.Context, apiKey string) (*model.Event, error) {
	if apiKey != s.apiKey {
		return nil, repository.ErrEventNotFound
	}
	return s.event, nil
}

func TestEventAuthMiddleware(t *testing.T) {
	source := &stubEventSource{
		apiKey: "valid-key",
		event:  &model.Event{ID: 7, Name: "Test Event"},
	}
	auth := NewEventAuth(source, zap.NewNop())

	var gotEvent *model.Event
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEvent, _ = GetEventFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{name: "valid key", authHeader: "Bearer valid-key", wantStatus: http.StatusOK},
		{name: "unknown key", authHeader: "Bearer wrong-key", wantStatus: http.StatusUnauthorized},
		{name: "missing header", authHeader: "", wantStatus: http.StatusUnauthorized},
		{name: "malformed header", authHeader: "valid-key", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotEvent = nil

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK {
				if gotEvent == nil || gotEvent.ID != 7 {
					t.Errorf("event in context = %+v, want ID 7", gotEvent)
				}
			} else if gotEvent != nil {
				t.Error("event must not reach handler on auth failure")
			}
		})
	}
}

func TestAdminAuthMiddleware(t *testing.T) {
	auth := NewAdminAuth("admin-secret")
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{name: "valid key", authHeader: "Bearer admin-secret", wantStatus: http.StatusOK},
		{name: "wrong key", authHeader: "Bearer guess", wantStatus: http.StatusUnauthorized},
		{name: "missing header", authHeader: "", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin/events", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestAdminAuthEmptyKeyRejectsAll(t *testing.T) {
	auth := NewAdminAuth("")
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/admin/events", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 when no admin key is configured", rec.Code)
	}
}
