package auth

import "github.com/golang-jwt/jwt/v5"

// RoleAdmin is the only role accepted on administrative routes.
const RoleAdmin = "admin"

// AdminTokenClaims represents the typed JWT presented to admin routes.
type AdminTokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the claims grant administrative access.
func (c *AdminTokenClaims) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}
