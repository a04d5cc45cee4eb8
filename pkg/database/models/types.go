package models

// OrderStatus represents the lifecycle state of an order
type OrderStatus string

const (
	OrderPending OrderStatus = "PENDING"
	OrderActive  OrderStatus = "ACTIVE"
	OrderDenied  OrderStatus = "DENIED"
	OrderFailed  OrderStatus = "FAILED"
)

// Valid checks if the order status is valid
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderActive, OrderDenied, OrderFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation
func (s OrderStatus) String() string {
	return string(s)
}

// CanTransitionTo reports whether an order in status s may move to next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderPending:
		return next == OrderPending || next == OrderActive || next == OrderDenied
	case OrderActive:
		return next == OrderFailed
	default:
		return false
	}
}

// Role is a group membership role. A user may hold several roles in the same group.
type Role string

const (
	RoleRequestor     Role = "requestor"
	RoleApprover      Role = "approver"
	RoleUserAdmin     Role = "user_admin"
	RoleResourceAdmin Role = "resource_admin"
	RoleViewer        Role = "viewer"
)

// Valid checks if the role is valid
func (r Role) Valid() bool {
	switch r {
	case RoleRequestor, RoleApprover, RoleUserAdmin, RoleResourceAdmin, RoleViewer:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}

// EventType names an entry in an order's history
type EventType string

const (
	EventSubmitted         EventType = "SUBMITTED"
	EventPartiallyApproved EventType = "PARTIALLY_APPROVED"
	EventRouted            EventType = "ROUTED"
	EventApproved          EventType = "APPROVED"
	EventDenied            EventType = "DENIED"
	EventFailed            EventType = "FAILED"
	EventComment           EventType = "COMMENT"
)

// ServerStatus represents the state of a discovered or provisioned server
type ServerStatus string

const (
	ServerActive ServerStatus = "ACTIVE"
	// ServerHistorical marks servers that no longer exist in the resource handler.
	ServerHistorical ServerStatus = "HISTORICAL"
)

// EntityRef represents a reference to another entity
type EntityRef struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}
