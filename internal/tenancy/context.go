// Package tenancy defines the tenant security context threaded through every
// data operation.
//
// The context is an immutable value constructed once per request from a
// verified tenant identifier and passed explicitly into every store call.
// There is deliberately no ambient (context.Context, global, or thread-local)
// way to recover the active tenant: a call site that forgets the argument
// fails to compile instead of silently querying without isolation.
package tenancy

import (
	"audittrail/pkg/domain"
	dErrors "audittrail/pkg/domain-errors"
)

// Context carries the authenticated tenant for one request or transaction.
// The zero value is unusable: every store operation rejects it.
type Context struct {
	tenantID domain.TenantID
}

// NewContext builds a tenant context from a verified tenant identifier.
// Fails with an unauthorized error when the identifier is absent, before any
// store access can happen.
func NewContext(tenantID domain.TenantID) (Context, error) {
	if tenantID.IsZero() {
		return Context{}, dErrors.New(dErrors.CodeUnauthorized, "no verified tenant identity")
	}
	return Context{tenantID: tenantID}, nil
}

// TenantID returns the authenticated tenant identifier.
func (c Context) TenantID() domain.TenantID { return c.tenantID }

// IsZero reports whether the context carries no tenant. Stores use this as a
// last-resort guard; handlers should never let a zero context through.
func (c Context) IsZero() bool { return c.tenantID.IsZero() }
