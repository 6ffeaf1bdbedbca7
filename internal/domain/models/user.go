// internal/domain/models/user.go
package models

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - Username: the handle chosen at registration, shown when no display name is set

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is a member profile. DisplayName is the canonical name shown on
// recipes and comments; comments keep a denormalized copy of it.
type User struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	DisplayName string             `bson:"display_name,omitempty" json:"display_name,omitempty"`
	Username    string             `bson:"username,omitempty" json:"username,omitempty"`
	UsernameCI  string             `bson:"username_ci,omitempty" json:"-"` // folded for case/diacritic-insensitive matching
	Email       *string            `bson:"email,omitempty" json:"email,omitempty"`

	Role   string `bson:"role" json:"role"`                         // admin, member
	Status string `bson:"status,omitempty" json:"status,omitempty"` // active, disabled

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// User roles
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// User statuses
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// AllRoles returns all valid user roles.
func AllRoles() []string {
	return []string{
		RoleAdmin,
		RoleMember,
	}
}

// IsValidRole checks if a role is valid.
func IsValidRole(role string) bool {
	for _, r := range AllRoles() {
		if r == role {
			return true
		}
	}
	return false
}

// IsValidStatus checks if a status is valid.
func IsValidStatus(status string) bool {
	return status == StatusActive || status == StatusDisabled
}
