package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ResourceHandler is a connection to a provider whose servers are discovered and synced
type ResourceHandler struct {
	ID         uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	Name       string     `gorm:"uniqueIndex;not null;size:255" json:"name"`
	Type       string     `gorm:"size:64;not null" json:"type"`
	Endpoint   string     `json:"endpoint"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (h *ResourceHandler) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}

// Server is a resource known through a resource handler. Servers that disappear from the
// handler are kept with status HISTORICAL.
type Server struct {
	ID                uuid.UUID    `gorm:"type:uuid;primary_key" json:"id"`
	ResourceHandlerID uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_handler_identifier" json:"resource_handler_id"`
	Identifier        string       `gorm:"size:512;not null;uniqueIndex:idx_handler_identifier" json:"identifier"`
	Hostname          string       `gorm:"size:255" json:"hostname"`
	Status            ServerStatus `gorm:"size:32;not null;index" json:"status"`
	GroupID           *uuid.UUID   `gorm:"type:uuid" json:"group_id,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`

	CustomFieldValues []CustomFieldValue `gorm:"foreignKey:ServerID" json:"custom_field_values,omitempty"`
}

func (s *Server) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = ServerActive
	}
	return nil
}

// CustomFieldValue is a named attribute recorded for a server
type CustomFieldValue struct {
	ID       uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	ServerID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_server_field" json:"server_id"`
	Name     string    `gorm:"size:255;not null;uniqueIndex:idx_server_field" json:"name"`
	Value    string    `json:"value"`
}

func (v *CustomFieldValue) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// All lists every model for migration.
func All() []any {
	return []any{
		&User{},
		&Group{},
		&GroupMembership{},
		&Quota{},
		&Order{},
		&OrderApproval{},
		&OrderEvent{},
		&ResourceHandler{},
		&Server{},
		&CustomFieldValue{},
	}
}
