package interceptors

import "context"

type contextKey string

const (
	UserIDKey      contextKey = "user_id"
	UserEmailKey   contextKey = "user_email"
	AccessTokenKey contextKey = "access_token"
	requestIDKey   contextKey = "request_id"
)

// GetUserIDFromContext returns the authenticated user id set by the auth interceptor.
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(UserIDKey).(string)
	return v, ok && v != ""
}

func GetUserEmailFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(UserEmailKey).(string)
	return v, ok && v != ""
}

// GetAccessTokenFromContext returns the raw bearer token of the request.
func GetAccessTokenFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(AccessTokenKey).(string)
	return v, ok && v != ""
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	return v, ok
}

// WithClaims stores the verified identity on ctx.
func WithClaims(ctx context.Context, claims *Claims, token string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, claims.Subject)
	if claims.Email != "" {
		ctx = context.WithValue(ctx, UserEmailKey, claims.Email)
	}
	return context.WithValue(ctx, AccessTokenKey, token)
}
