package middleware

import (
	"context"
	"net/http"
	"strings"

	"paycalc/internal/domain/auth"
	"paycalc/internal/requestctx"
)

type ctxKey string

const ctxKeyUser ctxKey = "user"

// Auth attaches the bearer token's caller to the request context. Requests
// without a valid token pass through anonymous; Guard.Require rejects them.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}
			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := auth.ParseToken(secret, token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims.User())))
		})
	}
}

// WithUser attaches the caller and mirrors its tenant and user ids into the
// request's correlation values.
func WithUser(ctx context.Context, user auth.UserContext) context.Context {
	ctx = requestctx.WithActor(ctx, user.TenantID, user.UserID)
	return context.WithValue(ctx, ctxKeyUser, user)
}

func GetUser(ctx context.Context) (auth.UserContext, bool) {
	user, ok := ctx.Value(ctxKeyUser).(auth.UserContext)
	return user, ok
}
