package model

import (
	"strings"
	"time"

	"github.com/sahilchouksey/cohort-lms/utils/ids"
	"gorm.io/gorm"
)

// Role is the access role of a user
type Role string

const (
	RoleStudent    Role = "student"
	RoleTeacher    Role = "teacher"
	RoleInstructor Role = "instructor"
	RoleMentor     Role = "mentor"
	RoleAdmin      Role = "admin"
)

// Roles lists every accepted role
var Roles = []Role{RoleStudent, RoleTeacher, RoleInstructor, RoleMentor, RoleAdmin}

// UserStatus marks whether an account can sign in
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
)

// User represents a registered user in the system
type User struct {
	ID              string         `gorm:"type:varchar(64);primaryKey" json:"id"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
	Name            string         `gorm:"not null" json:"name"`
	Email           string         `gorm:"uniqueIndex;not null" json:"email"` // Stored lower-cased
	PasswordHash    string         `gorm:"not null" json:"-"`                 // Never expose password in JSON
	Role            Role           `gorm:"type:varchar(20);default:'student';index" json:"role"`
	Status          UserStatus     `gorm:"type:varchar(20);default:'active'" json:"status"`
	Course          *string        `gorm:"type:varchar(255)" json:"course"`
	BatchID         *string        `gorm:"type:varchar(64);index" json:"batch_id"`            // Regular batch pointer (source of truth)
	OneToOneBatchID *string        `gorm:"type:varchar(64);index" json:"one_to_one_batch_id"` // Tutoring batch, outside the roster invariant
	LegacyID        *string        `gorm:"type:varchar(128);index" json:"legacy_id,omitempty"`
}

// BeforeCreate assigns an id and normalizes the email
func (u *User) BeforeCreate(tx *gorm.DB) error {
	u.Prepare()
	return nil
}

// Prepare fills defaults the store relies on
func (u *User) Prepare() {
	if u.ID == "" {
		u.ID = ids.New()
	}
	u.Email = NormalizeEmail(u.Email)
	if u.Role == "" {
		u.Role = RoleStudent
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
}

// IsStudent reports whether the user takes part in batch rosters
func (u *User) IsStudent() bool {
	return u.Role == RoleStudent
}

// IsAdmin reports whether the user may run maintenance operations
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// NormalizeEmail lower-cases and trims an email for case-insensitive comparison
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidRole reports whether r is a known role
func ValidRole(r string) bool {
	for _, role := range Roles {
		if string(role) == r {
			return true
		}
	}
	return false
}
