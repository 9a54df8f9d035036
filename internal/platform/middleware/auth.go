package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"audittrail/internal/identity"
	"audittrail/internal/tenancy"
	"audittrail/pkg/requestcontext"
)

type contextKeyTenant struct{}

// ContextKeyTenant is exported for tests that build contexts directly.
var ContextKeyTenant = contextKeyTenant{}

// TenantContext retrieves the authenticated tenant scope from the context.
// The boolean is false when RequireTenant did not run, which is a routing
// bug; handlers must treat it as an internal error, never as anonymous
// access.
func TenantContext(ctx context.Context) (tenancy.Context, bool) {
	tc, ok := ctx.Value(ContextKeyTenant).(tenancy.Context)
	return tc, ok
}

// WithTenantContext injects a tenant scope into the context. Test helper.
func WithTenantContext(ctx context.Context, tc tenancy.Context) context.Context {
	return context.WithValue(ctx, ContextKeyTenant, tc)
}

// RequireTenant authenticates the bearer credential and stashes the
// resulting tenant scope. Requests without a valid tenant never reach the
// handler.
func RequireTenant(verifier identity.TenantVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			tenantID, err := verifier.VerifyToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			tc, err := tenancy.NewContext(tenantID)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - token without tenant",
					"error", err,
					"request_id", requestID,
				)
				writeUnauthorized(w, "Credential is not bound to a tenant")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithTenantContext(ctx, tc)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
