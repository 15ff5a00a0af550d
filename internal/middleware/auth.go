// Package middleware содержит HTTP middleware сервиса гермес.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/jeninmail/hermes-system/internal/model"
	"github.com/jeninmail/hermes-system/internal/repository"
	"github.com/jeninmail/hermes-system/internal/security"
)

type contextKey string

const eventKey contextKey = "event"

// EventSource описывает поиск события по API-ключу.
type EventSource interface {
	GetEventByAPIKey(ctx context.Context, apiKey string) (*model.Event, error)
}

// EventAuth выполняет аутентификацию событий по API-ключу в заголовке Authorization.
type EventAuth struct {
	events EventSource
	logger *zap.Logger
}

// NewEventAuth создаёт новый экземпляр EventAuth.
func NewEventAuth(events EventSource, logger *zap.Logger) *EventAuth {
	return &EventAuth{events: events, logger: logger}
}

// Middleware проверяет API-ключ и добавляет событие в контекст запроса.
func (a *EventAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey, ok := bearerToken(r)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		event, err := a.events.GetEventByAPIKey(r.Context(), apiKey)
		if err != nil {
			if errors.Is(err, repository.ErrEventNotFound) {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			a.logger.Error("event lookup failed", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		ctx := context.WithValue(r.Context(), eventKey, event)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetEventFromContext извлекает аутентифицированное событие из контекста запроса.
func GetEventFromContext(ctx context.Context) (*model.Event, bool) {
	event, ok := ctx.Value(eventKey).(*model.Event)
	return event, ok
}

// AdminAuth выполняет проверку административного API-ключа.
type AdminAuth struct {
	key string
}

// NewAdminAuth создаёт новый экземпляр AdminAuth. Пустой ключ означает,
// что административные эндпоинты полностью закрыты.
func NewAdminAuth(key string) *AdminAuth {
	return &AdminAuth{key: key}
}

// Middleware проверяет административный ключ в заголовке Authorization.
func (a *AdminAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey, ok := bearerToken(r)
		if !ok || a.key == "" || !security.VerifyKey(apiKey, a.key) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}
