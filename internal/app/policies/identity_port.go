package policies

import (
	"context"
	"strings"
)

const RoleAdmin = "admin"

// Identity is what the scheduling core knows about a requester. Authentication
// happens elsewhere; this is opaque input.
type Identity struct {
	ID            string
	PriorityClass string
	Roles         []string
}

func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// IdentityProvider resolves the priority class and roles of a requester.
type IdentityProvider interface {
	Identify(ctx context.Context, requesterID string) (Identity, error)
}

type identityKey struct{}

func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// ContextIdentityProvider answers from the identity attached to the request
// context, falling back to DefaultClass for unknown requesters.
type ContextIdentityProvider struct {
	DefaultClass string
}

func (p ContextIdentityProvider) Identify(ctx context.Context, requesterID string) (Identity, error) {
	if id, ok := IdentityFromContext(ctx); ok && (id.ID == requesterID || requesterID == "") {
		if id.PriorityClass == "" {
			id.PriorityClass = p.DefaultClass
		}
		return id, nil
	}
	return Identity{ID: requesterID, PriorityClass: p.DefaultClass}, nil
}
