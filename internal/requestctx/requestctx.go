// Package requestctx carries the correlation values of one API call: the
// request id and, once authenticated, the tenant and user acting. Queued
// payroll runs and audit rows read them after the HTTP layer has returned.
package requestctx

import (
	"context"
	"log/slog"
)

type valuesKey struct{}

// Values identifies the caller of a request.
type Values struct {
	RequestID string
	TenantID  string
	UserID    string
}

func From(ctx context.Context) Values {
	values, _ := ctx.Value(valuesKey{}).(Values)
	return values
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	values := From(ctx)
	values.RequestID = requestID
	return context.WithValue(ctx, valuesKey{}, values)
}

// WithActor records the authenticated tenant and user without dropping the
// request id already attached.
func WithActor(ctx context.Context, tenantID, userID string) context.Context {
	values := From(ctx)
	values.TenantID = tenantID
	values.UserID = userID
	return context.WithValue(ctx, valuesKey{}, values)
}

func GetRequestID(ctx context.Context) string {
	return From(ctx).RequestID
}

// LogAttrs returns the non-empty values as slog key/value pairs.
func LogAttrs(ctx context.Context) []any {
	values := From(ctx)
	attrs := make([]any, 0, 3)
	if values.RequestID != "" {
		attrs = append(attrs, slog.String("requestId", values.RequestID))
	}
	if values.TenantID != "" {
		attrs = append(attrs, slog.String("tenantId", values.TenantID))
	}
	if values.UserID != "" {
		attrs = append(attrs, slog.String("userId", values.UserID))
	}
	return attrs
}
