// internal/authz/authz.go
package authz

import (
	"context"
)

// Permissions consulted by the billing core. The decision itself belongs to
// the platform's authorization service; this package only names what is asked.
const (
	PermBillingManage  = "billing:manage"
	PermBillingRead    = "billing:read"
	PermDiscountAdmin  = "discount:admin"
	PermRenewalTrigger = "billing:run_renewals"
)

// Context identifies the actor behind an operation. It is built once at the
// request edge and passed explicitly into every lifecycle operation, keeping
// the operations free of ambient request state.
type Context struct {
	UserID      int64
	BusinessID  int64
	Roles       []string
	Permissions []string
}

func (c Context) hasPermission(permission string) bool {
	for _, p := range c.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

func (c Context) hasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Authorizer answers whether an actor may perform an operation on a business.
// The production implementation lives in the platform's permission service;
// the claims-based implementation below decides from the actor's own token.
type Authorizer interface {
	Can(ctx context.Context, actor Context, permission string, businessID int64) (bool, error)
}

// ClaimsAuthorizer decides from the roles and permissions carried in the
// actor's verified claims. Owners and admins of a business manage its billing.
type ClaimsAuthorizer struct{}

func NewClaimsAuthorizer() *ClaimsAuthorizer {
	return &ClaimsAuthorizer{}
}

func (a *ClaimsAuthorizer) Can(_ context.Context, actor Context, permission string, businessID int64) (bool, error) {
	if actor.hasRole("super_admin") {
		return true, nil
	}
	if actor.hasPermission(permission) {
		// Business-scoped permissions only apply to the actor's own business.
		if businessID != 0 && actor.BusinessID != businessID {
			return false, nil
		}
		return true, nil
	}
	if businessID != 0 && actor.BusinessID == businessID && (actor.hasRole("owner") || actor.hasRole("admin")) {
		return true, nil
	}
	return false, nil
}
