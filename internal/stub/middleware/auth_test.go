package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mmeshcher/storefront/internal/model"
)

type stubParser map[string]model.User

func (p stubParser) ParseToken(token string) (model.User, error) {
	u, ok := p[token]
	if !ok {
		return model.User{}, errors.New("bad token")
	}
	return u, nil
}

var parser = stubParser{
	"customer-token": {ID: 42, Email: "c@store.local", Role: model.RoleCustomer},
	"admin-token":    {ID: 1, Email: "a@store.local", Role: model.RoleAdmin},
}

func TestAuthMiddleware_WithValidToken(t *testing.T) {
	m := NewAuthMiddleware(parser, nil)

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		u, ok := GetUserFromContext(r.Context())
		if !ok {
			t.Fatalf("user not in context")
		}
		if u.ID != 42 {
			t.Fatalf("user id from context = %d, want 42", u.ID)
		}
	})

	r := httptest.NewRequest(http.MethodGet, "/cart/customer/getMyCart", nil)
	r.Header.Set("Authorization", "Bearer customer-token")

	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{name: "no header", header: ""},
		{name: "not bearer", header: "Basic abc"},
		{name: "empty bearer", header: "Bearer "},
		{name: "unknown token", header: "Bearer forged"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotStatus int
			m := NewAuthMiddleware(parser, func(w http.ResponseWriter, _ *http.Request, status int, _ string) {
				gotStatus = status
				w.WriteHeader(status)
			})

			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("next handler should not be called")
			})

			r := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			m.Middleware(next).ServeHTTP(w, r)

			if w.Code != http.StatusUnauthorized || gotStatus != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestRequireRoles(t *testing.T) {
	m := NewAuthMiddleware(parser, nil)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name  string
		token string
		roles []model.Role
		want  int
	}{
		{name: "role allowed", token: "admin-token", roles: []model.Role{model.RoleAdmin}, want: http.StatusOK},
		{name: "role denied", token: "customer-token", roles: []model.Role{model.RoleAdmin, model.RoleBiller}, want: http.StatusForbidden},
		{name: "any role", token: "customer-token", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/invent/admin/getAllCategory", nil)
			r.Header.Set("Authorization", "Bearer "+tt.token)
			w := httptest.NewRecorder()

			m.Middleware(m.RequireRoles(tt.roles...)(ok)).ServeHTTP(w, r)

			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}
