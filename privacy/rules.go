package privacy

import (
	"context"
	"slices"

	"github.com/syssam/stageview/scope"
)

// Viewer represents the admin user making a request.
type Viewer interface {
	// GetID returns the viewer's unique identifier.
	GetID() string
	// GetRoles returns the viewer's roles.
	GetRoles() []string
	// Scope returns the stores and websites the viewer may see.
	Scope() scope.AccessScope
}

type viewerCtxKey struct{}

// WithViewer returns a new context with the viewer attached.
func WithViewer(ctx context.Context, viewer Viewer) context.Context {
	return context.WithValue(ctx, viewerCtxKey{}, viewer)
}

// ViewerFromContext retrieves the viewer from the context.
// Returns nil if no viewer is present.
func ViewerFromContext(ctx context.Context) Viewer {
	v, _ := ctx.Value(viewerCtxKey{}).(Viewer)
	return v
}

// SimpleViewer is a basic implementation of the Viewer interface.
// The zero Access sees no store.
type SimpleViewer struct {
	UserID string
	Roles  []string
	Access scope.AccessScope
}

// GetID returns the user ID.
func (v *SimpleViewer) GetID() string {
	return v.UserID
}

// GetRoles returns the user's roles.
func (v *SimpleViewer) GetRoles() []string {
	return v.Roles
}

// Scope returns the viewer's access scope.
func (v *SimpleViewer) Scope() scope.AccessScope {
	return v.Access
}

// DenyIfNoViewer returns a rule that denies access if no viewer is present in the context.
//
//	privacy.QueryPolicy{
//	    privacy.DenyIfNoViewer(),
//	    privacy.TenantScopeRule(filter),
//	}
func DenyIfNoViewer() QueryRule {
	return ContextQueryRule(func(ctx context.Context) error {
		if ViewerFromContext(ctx) == nil {
			return Denyf("stageview/privacy: viewer required")
		}
		return Skip
	})
}

// HasRole returns a rule that allows access if the viewer has the specified role.
func HasRole(role string) QueryRule {
	return HasAnyRole(role)
}

// HasAnyRole returns a rule that allows access if the viewer has any of the specified roles.
// It skips otherwise.
func HasAnyRole(roles ...string) QueryRule {
	return ContextQueryRule(func(ctx context.Context) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		viewerRoles := viewer.GetRoles()
		for _, role := range roles {
			if slices.Contains(viewerRoles, role) {
				return Allow
			}
		}
		return Skip
	})
}

// TenantScopeRule returns a rule restricting the collection to the viewer's
// access scope through f. It never allows on its own: it skips so that the
// rules after it still run. Collections read without a viewer are skipped
// too, pair it with DenyIfNoViewer to reject them.
func TenantScopeRule(f *scope.Filter) QueryRule {
	return QueryRuleFunc(func(ctx context.Context, q scope.Collection) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		if err := f.Apply(ctx, q, viewer.Scope()); err != nil {
			return err
		}
		return Skip
	})
}
