package auth

import (
	"errors"
	"strings"
	"time"
)

// Role enumerates the privilege levels of a user.
type Role string

const (
	// RoleAdmin manages catalogue, users, refunds and reports.
	RoleAdmin Role = "admin"
	// RoleUser is a cashier.
	RoleUser Role = "user"
)

// ErrInvalidRole is returned when parsing an unknown role.
var ErrInvalidRole = errors.New("auth: invalid role")

// ParseRole converts a raw string into a Role.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleUser:
		return RoleUser, nil
	}
	return "", ErrInvalidRole
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// User represents an authenticated user account.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Principal is the authenticated caller attached to a request.
type Principal struct {
	UserID int64
	Role   Role
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
