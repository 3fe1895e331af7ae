package permission

import (
	"context"
	"strings"

	apperrors "github.com/openkfw/trubudget/internal/platform/errors"
	"github.com/openkfw/trubudget/internal/services/budget/domain/identity"
)

// Change is a validated grant or revoke on one aggregate.
type Change struct {
	Intent   Intent
	Identity string
	Grant    bool
}

// RequiredFor returns the intent that gates granting or revoking within scope.
func RequiredFor(scope Scope, grant bool) Intent {
	if grant {
		return Intent(string(scope) + ".intent.grantPermission")
	}
	return Intent(string(scope) + ".intent.revokePermission")
}

// Decide checks that actor may change p and that the change is well formed.
// It reports false when the change would not alter the map.
func Decide(p Permissions, actor identity.ServiceUser, scope Scope, change Change) (Change, bool, error) {
	required := RequiredFor(scope, change.Grant)
	if !Permits(p, actor, required) {
		return change, false, apperrors.NotAuthorized(actor.ID, string(required))
	}
	if !change.Intent.Valid(scope) {
		return change, false, apperrors.InvalidInput(apperrors.CodeIntentUnknown, "unknown "+string(scope)+" intent "+string(change.Intent))
	}
	change.Identity = strings.TrimSpace(change.Identity)
	if change.Identity == "" {
		return change, false, apperrors.InvalidInput(apperrors.CodeInvalidInput, "identity is required")
	}
	return change, p.Holds(change.Intent, change.Identity) != change.Grant, nil
}

// DecideResolved is Decide that also requires a newly granted identity to
// resolve through resolver. Revokes are not checked so entries naming an
// unknown identity can still be removed.
func DecideResolved(ctx context.Context, resolver identity.Resolver, p Permissions, actor identity.ServiceUser, scope Scope, change Change) (Change, bool, error) {
	change, changed, err := Decide(p, actor, scope, change)
	if err != nil || !changed || !change.Grant {
		return change, changed, err
	}
	if err := RequireResolvable(ctx, resolver, change.Identity); err != nil {
		return change, false, err
	}
	return change, true, nil
}

// RequireResolvable fails unless id resolves through resolver. Identities
// written into a permission map must stay resolvable for trace redaction.
func RequireResolvable(ctx context.Context, resolver identity.Resolver, id string) error {
	if _, err := resolver.UsersForIdentity(ctx, id); err != nil {
		return err
	}
	return nil
}

// Apply returns p with the change applied.
func (p Permissions) Apply(change Change) Permissions {
	if change.Grant {
		out, _ := p.Grant(change.Intent, change.Identity)
		return out
	}
	out, _ := p.Revoke(change.Intent, change.Identity)
	return out
}
