package auth

import "context"

// SetUserIDForTest injects an authenticated user ID into the context so
// handler tests can skip the JWT middleware.
func SetUserIDForTest(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}
