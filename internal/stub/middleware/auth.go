// Package middleware содержит HTTP middleware тестового сервера витрины.
package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/mmeshcher/storefront/internal/model"
)

type contextKey string

const userKey contextKey = "user"

// TokenParser проверяет токен и возвращает пользователя.
type TokenParser interface {
	ParseToken(token string) (model.User, error)
}

// ErrorWriter пишет ответ с ошибкой в формате сервера.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, status int, message string)

// AuthMiddleware проверяет bearer-токен запроса.
type AuthMiddleware struct {
	parser  TokenParser
	onError ErrorWriter
}

// NewAuthMiddleware создаёт middleware аутентификации.
func NewAuthMiddleware(parser TokenParser, onError ErrorWriter) *AuthMiddleware {
	if onError == nil {
		onError = func(w http.ResponseWriter, _ *http.Request, status int, _ string) {
			http.Error(w, http.StatusText(status), status)
		}
	}
	return &AuthMiddleware{parser: parser, onError: onError}
}

// Middleware проверяет заголовок Authorization и добавляет пользователя в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			a.onError(w, r, http.StatusUnauthorized, "missing bearer token")
			return
		}

		user, err := a.parser.ParseToken(strings.TrimSpace(token))
		if err != nil {
			a.onError(w, r, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRoles пропускает запрос, только если роль пользователя входит в набор.
// Пустой набор пропускает любого аутентифицированного пользователя.
func (a *AuthMiddleware) RequireRoles(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUserFromContext(r.Context())
			if !ok {
				a.onError(w, r, http.StatusUnauthorized, "missing bearer token")
				return
			}
			if len(roles) > 0 && !slices.Contains(roles, user.Role) {
				a.onError(w, r, http.StatusForbidden, "access denied for role "+string(user.Role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetUserFromContext извлекает пользователя из контекста запроса.
func GetUserFromContext(ctx context.Context) (model.User, bool) {
	u, ok := ctx.Value(userKey).(model.User)
	return u, ok
}
