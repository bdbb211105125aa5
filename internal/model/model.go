package model

import (
	"strings"
	"time"
)

// Role is the closed set of user roles. Adding a role means touching every
// gate that switches on it, which is intentional.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleDirector Role = "director"
	RoleTeacher  Role = "teacher"
	RoleParent   Role = "parent"
)

func ParseRole(value string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleDirector:
		return RoleDirector, true
	case RoleTeacher:
		return RoleTeacher, true
	case RoleParent:
		return RoleParent, true
	default:
		return "", false
	}
}

func (r Role) String() string {
	return string(r)
}

// RequiresSchool reports whether users of this role must belong to a school.
// Only platform admins operate without a school scope.
func (r Role) RequiresSchool() bool {
	return r != RoleAdmin
}

type User struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         Role
	SchoolID     *string
	Phone        *string
	Address      *string
	CreatedAt    time.Time
	Deleted      bool
}

type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	Revoked   bool
}

type Class struct {
	ID       string
	SchoolID string
	Name     string
	Capacity int
}

type Student struct {
	ID        string
	SchoolID  string
	FirstName string
	LastName  string
}
