package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mhrivnak/orderflow/pkg/quota"
)

// Group owns orders and quota, and is the unit approvals are routed to
type Group struct {
	ID          uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	Name        string         `gorm:"uniqueIndex;not null;size:255" json:"name"`
	Description string         `json:"description"`
	ParentID    *uuid.UUID     `gorm:"type:uuid;index" json:"parent_id,omitempty"`
	AutoApprove bool           `gorm:"default:false;not null" json:"auto_approve"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	Parent      *Group            `gorm:"foreignKey:ParentID" json:"parent,omitempty"`
	Memberships []GroupMembership `gorm:"foreignKey:GroupID" json:"memberships,omitempty"`
	Quotas      []Quota           `gorm:"foreignKey:GroupID" json:"quotas,omitempty"`
}

func (g *Group) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}

// QuotaSet converts the preloaded quota rows into a quota.Set.
func (g *Group) QuotaSet() quota.Set {
	set := make(quota.Set, len(g.Quotas))
	for _, q := range g.Quotas {
		set[quota.Attribute(q.Attribute)] = quota.Limit{Limit: q.Limit, Used: q.Used}
	}
	return set
}

// GroupMembership grants a user one role in a group
type GroupMembership struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_membership" json:"user_id"`
	GroupID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_membership" json:"group_id"`
	Role      Role      `gorm:"size:32;not null;uniqueIndex:idx_membership" json:"role"`
	CreatedAt time.Time `json:"created_at"`

	User  *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Group *Group `gorm:"foreignKey:GroupID" json:"group,omitempty"`
}

func (m *GroupMembership) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// Quota is the limit and current usage of one attribute for a group
type Quota struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	GroupID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_group_attribute" json:"group_id"`
	Attribute string    `gorm:"size:32;not null;uniqueIndex:idx_group_attribute" json:"attribute"`
	Limit     float64   `gorm:"column:quota_limit;not null;default:0" json:"limit"`
	Used      float64   `gorm:"not null;default:0" json:"used"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (q *Quota) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}
