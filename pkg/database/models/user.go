package models

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// User represents a user account that can submit or approve orders
type User struct {
	ID           uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	Username     string         `gorm:"uniqueIndex;not null" json:"username"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string         `gorm:"not null" json:"-"`
	FullName     string         `json:"full_name"`
	IsActive     bool           `gorm:"default:true" json:"is_active"`
	IsSuperAdmin bool           `gorm:"default:false" json:"is_super_admin"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`

	Memberships []GroupMembership `gorm:"foreignKey:UserID" json:"memberships,omitempty"`
}

// BeforeCreate is a GORM hook that sets a UUID for the user before creation
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// SetPassword hashes the provided password and stores it in the PasswordHash field
func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashedPassword)
	return nil
}

// CheckPassword verifies if the provided password matches the stored hash
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	return err == nil
}

// HasRole reports whether the user holds role in the named group. Memberships must be
// preloaded together with their Group.
func (u *User) HasRole(groupName string, role Role) bool {
	for _, m := range u.Memberships {
		if m.Role == role && m.Group != nil && m.Group.Name == groupName {
			return true
		}
	}
	return false
}

// GroupNames returns the names of the groups in which the user holds role.
func (u *User) GroupNames(role Role) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range u.Memberships {
		if m.Role != role || m.Group == nil || seen[m.Group.Name] {
			continue
		}
		seen[m.Group.Name] = true
		names = append(names, m.Group.Name)
	}
	return names
}
