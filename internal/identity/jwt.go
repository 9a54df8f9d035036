// Package identity resolves the calling tenant from request credentials.
package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"audittrail/pkg/domain"
	dErrors "audittrail/pkg/domain-errors"
)

//go:generate mockgen -source=jwt.go -destination=mocks/identity-mocks.go -package=mocks TenantVerifier

// TenantVerifier authenticates a bearer credential and returns the tenant it
// belongs to. Implementations must never return a zero tenant on success.
type TenantVerifier interface {
	VerifyToken(tokenString string) (domain.TenantID, error)
}

// Claims are the JWT claims for service credentials issued to tenants.
type Claims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 service tokens carrying a tenant_id claim.
type JWTVerifier struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewJWTVerifier(signingKey string, issuer string, audience string) *JWTVerifier {
	return &JWTVerifier{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// GenerateToken issues a tenant-scoped service token. Used by provisioning
// tooling and tests; the server itself only verifies.
func (v *JWTVerifier) GenerateToken(tenantID domain.TenantID, expiresIn time.Duration) (string, error) {
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		TenantID: tenantID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    v.issuer,
			Audience:  []string{v.audience},
		},
	})
	return newToken.SignedString(v.signingKey)
}

func (v *JWTVerifier) VerifyToken(tokenString string) (domain.TenantID, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.signingKey, nil
	}, jwt.WithIssuer(v.issuer), jwt.WithAudience(v.audience))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	tenantID, err := domain.ParseTenantID(claims.TenantID)
	if err != nil {
		return "", dErrors.New(dErrors.CodeUnauthorized, "token carries no valid tenant")
	}
	return tenantID, nil
}
