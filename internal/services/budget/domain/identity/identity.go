// Package identity models the acting principal and resolves user and group
// identities through the organization directory.
package identity

import (
	"context"
	"slices"
)

// Root is the built-in super-user. It bypasses every permission check and is
// not a member of any group.
const Root = "root"

// ServiceUser is the acting principal of a request. Groups is the list the
// user claimed at authentication time.
type ServiceUser struct {
	ID      string
	Groups  []string
	Address string
}

// IsRoot reports whether the user is the super-user.
func (u ServiceUser) IsRoot() bool {
	return u.ID == Root
}

// CanAssume reports whether user may act as identity based on its own
// claimed groups.
func CanAssume(user ServiceUser, identity string) bool {
	if identity == "" {
		return false
	}
	return identity == user.ID || slices.Contains(user.Groups, identity)
}

// Resolver expands an identity into the users it stands for: a user id
// resolves to itself and a group id to its current members. Unknown
// identities are an error, never an empty list.
type Resolver interface {
	UsersForIdentity(ctx context.Context, identity string) ([]string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, identity string) ([]string, error)

// UsersForIdentity calls f.
func (f ResolverFunc) UsersForIdentity(ctx context.Context, identity string) ([]string, error) {
	return f(ctx, identity)
}

// Resolves reports whether userID is among the users identity resolves to.
func Resolves(ctx context.Context, resolver Resolver, userID, identity string) (bool, error) {
	if identity == userID {
		return true, nil
	}
	members, err := resolver.UsersForIdentity(ctx, identity)
	if err != nil {
		return false, err
	}
	return slices.Contains(members, userID), nil
}
