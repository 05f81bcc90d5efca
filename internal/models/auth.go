package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims represents the JWT payload for access tokens issued by the identity service.
type JWTClaims struct {
	UserID   int64    `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// Identifier returns the best human-readable identity for audit and creator fields.
func (c *JWTClaims) Identifier() string {
	if c == nil {
		return ""
	}
	if c.Email != "" {
		return c.Email
	}
	return c.Subject
}

// CanReview reports whether the caller may decide an appointment's status.
func (c *JWTClaims) CanReview() bool {
	if c == nil {
		return false
	}
	switch c.Role {
	case RoleStaff, RoleAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}
