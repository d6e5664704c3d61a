package domain

import "context"

type identityKey struct{}

// Identity is the execution identity a request runs under.
// Tenant is the owning principal; Elevated marks an administrative execution mode.
type Identity struct {
	Tenant   string
	User     string
	Elevated bool
}

// ContextWithIdentity stores the execution identity in the context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext extracts the execution identity. Returns the zero Identity if not set.
func IdentityFromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}
