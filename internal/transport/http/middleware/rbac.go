package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"paycalc/internal/requestctx"
	"paycalc/internal/transport/http/api"
)

type PermissionStore interface {
	HasPermission(ctx context.Context, roleName, permission string) (bool, error)
}

// Guard gates routes on the caller's role permissions and logs every denial
// with the tenant and user attached to the request.
type Guard struct {
	store  PermissionStore
	logger *slog.Logger
}

func NewGuard(store PermissionStore, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{store: store, logger: logger}
}

// Require rejects anonymous callers with 401 and callers whose role lacks
// permission with 403. The 403 body names the missing permission.
func (g *Guard) Require(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestID(ctx)
			user, ok := GetUser(ctx)
			if !ok {
				api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
				return
			}

			allowed, err := g.store.HasPermission(ctx, user.RoleName, permission)
			if err != nil {
				g.logger.Error("permission lookup failed", append(requestctx.LogAttrs(ctx), "permission", permission, "err", err)...)
				api.Fail(w, http.StatusInternalServerError, "permission_error", "permission check failed", requestID)
				return
			}
			if !allowed {
				g.logger.Warn("permission denied", append(requestctx.LogAttrs(ctx), "permission", permission, "role", user.RoleName, "path", r.URL.Path)...)
				api.FailWithDetails(w, http.StatusForbidden, "forbidden", "insufficient permissions", map[string]string{"permission": permission}, requestID)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
