package permission

import (
	"context"
	"slices"

	"github.com/openkfw/trubudget/internal/services/budget/domain/identity"
)

// Permissions maps an intent to the identities allowed to perform it. A
// missing key means nobody but root holds the intent.
type Permissions map[Intent][]string

// Clone returns a deep copy.
func (p Permissions) Clone() Permissions {
	if p == nil {
		return Permissions{}
	}
	out := make(Permissions, len(p))
	for intent, ids := range p {
		out[intent] = slices.Clone(ids)
	}
	return out
}

// Holds reports whether identity is listed for intent.
func (p Permissions) Holds(intent Intent, id string) bool {
	return slices.Contains(p[intent], id)
}

// Grant returns a copy with id added to intent and whether anything changed.
func (p Permissions) Grant(intent Intent, id string) (Permissions, bool) {
	if p.Holds(intent, id) {
		return p, false
	}
	out := p.Clone()
	out[intent] = append(out[intent], id)
	return out, true
}

// Revoke returns a copy with id removed from intent and whether anything changed.
func (p Permissions) Revoke(intent Intent, id string) (Permissions, bool) {
	if !p.Holds(intent, id) {
		return p, false
	}
	out := p.Clone()
	out[intent] = slices.DeleteFunc(out[intent], func(v string) bool { return v == id })
	if len(out[intent]) == 0 {
		delete(out, intent)
	}
	return out, true
}

// Permits reports whether user may perform any of intents. Root always may;
// everyone else needs an identity listed for one of the intents that it can
// assume through its claimed groups.
func Permits(p Permissions, user identity.ServiceUser, intents ...Intent) bool {
	if user.IsRoot() {
		return true
	}
	for _, intent := range intents {
		for _, id := range p[intent] {
			if identity.CanAssume(user, id) {
				return true
			}
		}
	}
	return false
}

// PermitsResolved is Permits with group membership taken from resolver
// instead of the user's claimed groups.
func PermitsResolved(ctx context.Context, resolver identity.Resolver, p Permissions, user identity.ServiceUser, intents ...Intent) (bool, error) {
	if user.IsRoot() {
		return true, nil
	}
	for _, intent := range intents {
		for _, id := range p[intent] {
			ok, err := identity.Resolves(ctx, resolver, user.ID, id)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
	}
	return false, nil
}

// Exposable returns a copy of p without the hidden intents.
func Exposable(p Permissions, hide ...Intent) Permissions {
	out := p.Clone()
	for _, intent := range hide {
		delete(out, intent)
	}
	return out
}

// Creator returns the permission map granting every intent of scope to owner.
func Creator(scope Scope, owner string) Permissions {
	out := Permissions{}
	for _, intent := range IntentsFor(scope) {
		out[intent] = []string{owner}
	}
	return out
}

// Strings returns the map keyed by plain strings for transports.
func (p Permissions) Strings() map[string][]string {
	out := make(map[string][]string, len(p))
	for intent, ids := range p {
		out[string(intent)] = slices.Clone(ids)
	}
	return out
}
