package httpapi

import "context"

type contextKey int

const userIDKey contextKey = iota

func withUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the authenticated user's internal id, or
// the empty string if the request was not authenticated.
func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}


