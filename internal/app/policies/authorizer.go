package policies

import (
	"context"
	"errors"
	"strings"
)

var ErrForbidden = errors.New("policies: forbidden")

// RoleRestricted is implemented by messages that only some roles may send.
type RoleRestricted interface {
	RequiredRole() string
}

// RequesterScoped is implemented by messages filed on behalf of a requester.
type RequesterScoped interface {
	ActingRequester() string
}

// RoleAuthorizer gates resource administration on the admin role and keeps
// non-admin callers from filing requests on someone else's behalf. Messages
// sent without an identity come from inside the process and are only
// checked for a required role.
type RoleAuthorizer struct{}

func (RoleAuthorizer) Authorize(ctx context.Context, message any) error {
	id, known := IdentityFromContext(ctx)
	if restricted, ok := message.(RoleRestricted); ok && restricted.RequiredRole() != "" {
		if !known || !id.HasRole(restricted.RequiredRole()) {
			return ErrForbidden
		}
		return nil
	}
	scoped, ok := message.(RequesterScoped)
	if !ok || !known || id.HasRole(RoleAdmin) {
		return nil
	}
	if owner := strings.TrimSpace(scoped.ActingRequester()); owner != "" && owner != id.ID {
		return ErrForbidden
	}
	return nil
}
