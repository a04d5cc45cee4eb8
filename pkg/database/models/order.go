package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mhrivnak/orderflow/pkg/quota"
)

// Order is a request for resources submitted on behalf of a group
type Order struct {
	ID          uuid.UUID   `gorm:"type:uuid;primary_key" json:"id"`
	Name        string      `gorm:"size:255" json:"name"`
	Status      OrderStatus `gorm:"size:32;not null;index" json:"status"`
	OwnerID     uuid.UUID   `gorm:"type:uuid;not null;index" json:"owner_id"`
	GroupID     uuid.UUID   `gorm:"type:uuid;not null;index" json:"group_id"`
	Rate        float64     `gorm:"not null;default:0" json:"rate"`
	CPUCount    float64     `gorm:"not null;default:0" json:"cpu_cnt"`
	MemSize     float64     `gorm:"not null;default:0" json:"mem_size"`
	DiskSize    float64     `gorm:"not null;default:0" json:"disk_size"`
	VMCount     float64     `gorm:"not null;default:0" json:"vm_cnt"`
	Comment     string      `json:"comment"`
	DenyReason  string      `json:"deny_reason,omitempty"`
	ApprovedBy  *uuid.UUID  `gorm:"type:uuid" json:"approved_by,omitempty"`
	ApproveDate *time.Time  `json:"approve_date,omitempty"`
	DenyDate    *time.Time  `json:"deny_date,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`

	Owner          *User           `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Group          *Group          `gorm:"foreignKey:GroupID" json:"group,omitempty"`
	ApprovalGroups []Group         `gorm:"many2many:order_approval_groups" json:"approval_groups"`
	Approvals      []OrderApproval `gorm:"foreignKey:OrderID" json:"approvals,omitempty"`
	Events         []OrderEvent    `gorm:"foreignKey:OrderID" json:"events,omitempty"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Status == "" {
		o.Status = OrderPending
	}
	return nil
}

// NetUsage is what the order would add to its group's quota.
func (o *Order) NetUsage() quota.Usage {
	return quota.Usage{
		quota.Rate:     o.Rate,
		quota.CPUCount: o.CPUCount,
		quota.MemSize:  o.MemSize,
		quota.DiskSize: o.DiskSize,
		quota.VMCount:  o.VMCount,
	}
}

// Approvers returns the users who approved the order, oldest approval first. Approvals must
// be preloaded with their User.
func (o *Order) Approvers() []User {
	approvals := make([]OrderApproval, len(o.Approvals))
	copy(approvals, o.Approvals)
	sort.SliceStable(approvals, func(i, j int) bool {
		return approvals[i].CreatedAt.Before(approvals[j].CreatedAt)
	})

	users := make([]User, 0, len(approvals))
	for _, a := range approvals {
		if a.User != nil {
			users = append(users, *a.User)
		}
	}
	return users
}

// ApprovalGroupNames returns the names of the groups currently responsible for approving.
func (o *Order) ApprovalGroupNames() []string {
	names := make([]string, 0, len(o.ApprovalGroups))
	for _, g := range o.ApprovalGroups {
		names = append(names, g.Name)
	}
	return names
}

// OrderApproval records that a user approved an order
type OrderApproval struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	OrderID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_order_approver" json:"order_id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_order_approver" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (a *OrderApproval) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// OrderEvent is an entry in an order's history
type OrderEvent struct {
	ID        uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	OrderID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"order_id"`
	Type      EventType  `gorm:"size:32;not null" json:"type"`
	Message   string     `json:"message"`
	UserID    *uuid.UUID `gorm:"type:uuid" json:"user_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func (e *OrderEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
