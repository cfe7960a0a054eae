package shared

import "context"

// Identity describes the authenticated actor attached to a request after the
// authorization guard has verified its token and resolved its permissions.
type Identity struct {
	UserID      int64
	Email       string
	Role        string
	IsAdmin     bool
	Permissions []string
	TokenID     string
}

type identityContextKey struct{}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey{}).(*Identity)
	return id
}
