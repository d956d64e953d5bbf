// Package context carries request-scoped identity through the service. Every
// repository call resolves the tenant from the context, so callers must put
// it there before touching storage.
package context

import "context"

type contextKey string

const (
	tenantIDKey  = contextKey("tenant_id")
	userIDKey    = contextKey("user_id")
	requestIDKey = contextKey("request_id")
)

// SetTenantID returns a context scoped to the given tenant. All storage
// operations require this.
func SetTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// GetTenantID returns the tenant on the context, or "" when absent.
func GetTenantID(ctx context.Context) string {
	value, _ := ctx.Value(tenantIDKey).(string)
	return value
}

// SetUserID records the acting user on the context.
func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func GetUserID(ctx context.Context) string {
	value, _ := ctx.Value(userIDKey).(string)
	return value
}

// SetRequestID records the caller's request id for log correlation.
func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	value, _ := ctx.Value(requestIDKey).(string)
	return value
}
