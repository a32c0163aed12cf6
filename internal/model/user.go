package model

import (
	"fmt"
	"time"
)

// User is an authentication record (credentials only).
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is a user as seen by the rest of the application: who they are
// and what role their profile grants.
type Identity struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  Role   `json:"role"`
}

// IsAdmin reports whether the identity holds the privileged role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// CanModify reports whether the identity may change or delete an item it
// did not necessarily report.
func (i Identity) CanModify(item *Item) bool {
	if item == nil {
		return false
	}
	return i.IsAdmin() || (i.ID != 0 && i.ID == item.OwnerID)
}

// Role is a closed set of profile roles.
type Role string

// Roles.
const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
	RoleUser     Role = "user"
)

// ParseRole converts a stored or external role value. Unknown values map to
// RoleUser and ok is false so callers can log them.
func ParseRole(s string) (role Role, ok bool) {
	switch Role(s) {
	case RoleAdmin, RoleEmployee, RoleUser:
		return Role(s), true
	}
	return RoleUser, false
}

// RoleAtLeast checks if role meets or exceeds the minimum required role.
// Employees and users share the non-privileged level.
func RoleAtLeast(role, minimum Role) bool {
	levels := map[Role]int{
		RoleAdmin:    2,
		RoleEmployee: 1,
		RoleUser:     1,
	}
	return levels[role] >= levels[minimum] && levels[minimum] > 0
}

// Invite is a single-use token that grants the admin role on registration.
type Invite struct {
	Token     string     `json:"token"`
	CreatedBy int64      `json:"created_by"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	UsedBy    *int64     `json:"used_by,omitempty"`
}

// Invite states reported to admins.
const (
	InvitePending = "pending"
	InviteUsed    = "used"
	InviteExpired = "expired"
)

// Status reports whether the invite can still be redeemed at now.
func (i *Invite) Status(now time.Time) string {
	switch {
	case i.UsedAt != nil:
		return InviteUsed
	case !now.Before(i.ExpiresAt):
		return InviteExpired
	default:
		return InvitePending
	}
}

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// ValidatePassword checks password policy.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return &ValidationError{
			Field:   "password",
			Message: fmt.Sprintf("password must be at least %d characters", MinPasswordLength),
		}
	}
	return nil
}
