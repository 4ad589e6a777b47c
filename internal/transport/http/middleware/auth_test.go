package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"paycalc/internal/domain/auth"
)

func TestAuthMiddlewareSetsUser(t *testing.T) {
	secret := "test-secret"
	token, err := auth.GenerateToken(secret, auth.Claims{UserID: "u1", TenantID: "t1", RoleName: auth.RolePayrollAdmin}, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	called := false
	handler := Auth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		user, ok := GetUser(r.Context())
		if !ok {
			t.Fatal("expected user in context")
		}
		if user.UserID != "u1" || user.TenantID != "t1" || user.RoleName != auth.RolePayrollAdmin {
			t.Fatalf("unexpected user: %+v", user)
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if !called {
		t.Fatal("expected next handler to run")
	}
}

func TestAuthMiddlewareMissingToken(t *testing.T) {
	handler := Auth("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetUser(r.Context()); ok {
			t.Fatal("did not expect user in context")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
}

func TestAuthMiddlewareIgnoresForeignSignature(t *testing.T) {
	token, err := auth.GenerateToken("other-secret", auth.Claims{UserID: "u1", TenantID: "t1"}, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	handler := Auth("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetUser(r.Context()); ok {
			t.Fatal("did not expect user for foreign token")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)
}

func TestGuardRequire(t *testing.T) {
	protected := NewGuard(auth.RoleStore{}, nil).Require(auth.PermPayrollFinalize)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		user   *auth.UserContext
		status int
	}{
		{name: "anonymous", status: http.StatusUnauthorized},
		{name: "viewer", user: &auth.UserContext{UserID: "v", TenantID: "t1", RoleName: auth.RolePayrollViewer}, status: http.StatusForbidden},
		{name: "operator", user: &auth.UserContext{UserID: "o", TenantID: "t1", RoleName: auth.RolePayrollOperator}, status: http.StatusForbidden},
		{name: "admin", user: &auth.UserContext{UserID: "a", TenantID: "t1", RoleName: auth.RolePayrollAdmin}, status: http.StatusNoContent},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tc.user != nil {
				req = req.WithContext(WithUser(req.Context(), *tc.user))
			}
			rec := httptest.NewRecorder()
			protected.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
		})
	}
}

func TestGuardNamesMissingPermission(t *testing.T) {
	var logs bytes.Buffer
	guard := NewGuard(auth.RoleStore{}, slog.New(slog.NewJSONHandler(&logs, nil)))
	protected := guard.Require(auth.PermPayrollRun)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("viewer must not reach the handler")
	}))

	req := httptest.NewRequest(http.MethodPost, "/payroll/periods/p1/run", nil)
	user := auth.UserContext{UserID: "viewer-1", TenantID: "tenant-a", RoleName: auth.RolePayrollViewer}
	req = req.WithContext(WithUser(req.Context(), user))
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"permission":"`+auth.PermPayrollRun+`"`) {
		t.Fatalf("expected permission in body, got %s", rec.Body.String())
	}
	for _, want := range []string{`"msg":"permission denied"`, `"tenantId":"tenant-a"`, `"userId":"viewer-1"`} {
		if !strings.Contains(logs.String(), want) {
			t.Fatalf("expected %s in log, got %s", want, logs.String())
		}
	}
}
