package testutil

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"audittrail/internal/platform/middleware"
	"audittrail/internal/tenancy"
	"audittrail/pkg/domain"
)

// TenantContext builds an authenticated tenant scope, failing the test on an
// invalid tenant ID.
func TenantContext(t *testing.T, tenantID string) tenancy.Context {
	t.Helper()
	tc, err := tenancy.NewContext(domain.TenantID(tenantID))
	require.NoError(t, err)
	return tc
}

// WithTenant stamps the request context with an authenticated tenant scope.
// This simulates what RequireTenant would do for authenticated requests.
func WithTenant(t *testing.T, req *http.Request, tenantID string) *http.Request {
	t.Helper()
	ctx := middleware.WithTenantContext(req.Context(), TenantContext(t, tenantID))
	return req.WithContext(ctx)
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
