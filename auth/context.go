package auth

import "context"

type contextKey string

// UserKey is the context key for the verified UserRecord
const UserKey contextKey = "auth_user"

// WithUser adds the verified user to the context
func WithUser(ctx context.Context, user *UserRecord) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// UserFromContext retrieves the verified user from context
func UserFromContext(ctx context.Context) *UserRecord {
	if val := ctx.Value(UserKey); val != nil {
		if user, ok := val.(*UserRecord); ok {
			return user
		}
	}
	return nil
}
