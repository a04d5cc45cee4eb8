package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mhrivnak/orderflow/pkg/api/types"
	"github.com/mhrivnak/orderflow/pkg/approval"
	"github.com/mhrivnak/orderflow/pkg/database/models"
	"github.com/mhrivnak/orderflow/pkg/database/repositories"
	"github.com/mhrivnak/orderflow/pkg/errdef"
	"github.com/mhrivnak/orderflow/pkg/quota"
)

type OrderHandlers struct {
	approvals *approval.Service
	orderRepo *repositories.OrderRepository
	userRepo  *repositories.UserRepository
}

func NewOrderHandlers(approvals *approval.Service, orderRepo *repositories.OrderRepository, userRepo *repositories.UserRepository) *OrderHandlers {
	return &OrderHandlers{approvals: approvals, orderRepo: orderRepo, userRepo: userRepo}
}

type CreateOrderRequest struct {
	GroupID  uuid.UUID `json:"group_id" binding:"required"`
	Name     string    `json:"name"`
	Comment  string    `json:"comment"`
	Rate     float64   `json:"rate"`
	CPUCount float64   `json:"cpu_cnt"`
	MemSize  float64   `json:"mem_size"`
	DiskSize float64   `json:"disk_size"`
	VMCount  float64   `json:"vm_cnt"`
}

type DenyOrderRequest struct {
	Reason string `json:"reason"`
}

type ListOrdersQuery struct {
	types.PageParams
	Status  string `form:"status"`
	GroupID string `form:"group_id"`
	// Awaiting lists the pending orders the user can approve.
	Awaiting bool `form:"awaiting"`
}

// QuotaResponse shows what approving an order would do to its group's quota.
type QuotaResponse struct {
	Group   string                     `json:"group"`
	Usage   quota.Usage                `json:"usage"`
	Current map[quota.Attribute]string `json:"current"`
	After   map[quota.Attribute]string `json:"after"`
	Exceeds bool                       `json:"exceeds"`
	Fits    bool                       `json:"fits"`
}

// ListOrders handles GET /api/v1/orders. Users see their own orders, the orders of a group they
// belong to with group_id, or the orders awaiting their approval with awaiting=true. Super
// admins see everything.
func (h *OrderHandlers) ListOrders(c *gin.Context) {
	user, ok := currentUser(c, h.userRepo)
	if !ok {
		return
	}
	var q ListOrdersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(errdef.NewBadRequest("invalid query: %v", err))
		return
	}
	p := q.PageParams.Normalize()

	filter := repositories.OrderFilter{Status: models.OrderStatus(q.Status)}
	if filter.Status != "" && !filter.Status.Valid() {
		_ = c.Error(errdef.NewBadRequest("unknown order status %q", q.Status))
		return
	}
	if q.GroupID != "" {
		id, err := uuid.Parse(q.GroupID)
		if err != nil {
			_ = c.Error(errdef.NewBadRequest("invalid group_id %q", q.GroupID))
			return
		}
		if !user.IsSuperAdmin && !memberOf(user, id) {
			_ = c.Error(errdef.NewForbidden("not a member of group %s", id))
			return
		}
		filter.GroupID = id
	}

	switch {
	case q.Awaiting:
		filter.Status = models.OrderPending
		for _, m := range user.Memberships {
			if m.Role == models.RoleApprover {
				filter.ApprovalGroupIDs = append(filter.ApprovalGroupIDs, m.GroupID)
			}
		}
		if len(filter.ApprovalGroupIDs) == 0 && !user.IsSuperAdmin {
			c.JSON(http.StatusOK, types.NewPage([]models.Order{}, p.Page, p.PageSize, 0))
			return
		}
	case filter.GroupID == uuid.Nil && !user.IsSuperAdmin:
		filter.OwnerID = user.ID
	}

	orders, total, err := h.orderRepo.List(c.Request.Context(), filter, p.PageSize, p.Offset(), p.Sort)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, types.NewPage(orders, p.Page, p.PageSize, total))
}

// CreateOrder handles POST /api/v1/orders
func (h *OrderHandlers) CreateOrder(c *gin.Context) {
	user, ok := currentUser(c, h.userRepo)
	if !ok {
		return
	}
	var req CreateOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	order, err := h.approvals.Submit(c.Request.Context(), approval.SubmitRequest{
		OwnerID:  user.ID,
		GroupID:  req.GroupID,
		Name:     req.Name,
		Comment:  req.Comment,
		Rate:     req.Rate,
		CPUCount: req.CPUCount,
		MemSize:  req.MemSize,
		DiskSize: req.DiskSize,
		VMCount:  req.VMCount,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

// GetOrder handles GET /api/v1/orders/:id
func (h *OrderHandlers) GetOrder(c *gin.Context) {
	order, ok := h.visibleOrder(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, order)
}

// ApproveOrder handles POST /api/v1/orders/:id/approve
func (h *OrderHandlers) ApproveOrder(c *gin.Context) {
	user, ok := currentUser(c, h.userRepo)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	order, err := h.approvals.Approve(c.Request.Context(), id, user.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// DenyOrder handles POST /api/v1/orders/:id/deny
func (h *OrderHandlers) DenyOrder(c *gin.Context) {
	user, ok := currentUser(c, h.userRepo)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req DenyOrderRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	order, err := h.approvals.Deny(c.Request.Context(), id, user.ID, req.Reason)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// OrderQuota handles GET /api/v1/orders/:id/quota?threshold=0.9
func (h *OrderHandlers) OrderQuota(c *gin.Context) {
	order, ok := h.visibleOrder(c)
	if !ok {
		return
	}
	var q struct {
		Threshold *float64 `form:"threshold"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(errdef.NewBadRequest("invalid query: %v", err))
		return
	}
	threshold := 1.0
	if q.Threshold != nil {
		threshold = *q.Threshold
	}

	set := order.Group.QuotaSet()
	usage := order.NetUsage()
	exceeds, err := quota.Evaluate(set, usage, threshold)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, QuotaResponse{
		Group:   order.Group.Name,
		Usage:   usage,
		Current: set.Report(),
		After:   quota.Combine(set, usage).Report(),
		Exceeds: exceeds,
		Fits:    set.CanUse(usage) == nil,
	})
}

func (h *OrderHandlers) visibleOrder(c *gin.Context) (*models.Order, bool) {
	user, ok := currentUser(c, h.userRepo)
	if !ok {
		return nil, false
	}
	id, ok := paramID(c, "id")
	if !ok {
		return nil, false
	}
	order, err := h.orderRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return nil, false
	}
	if !canView(user, order) {
		_ = c.Error(errdef.NewNotFound("order %s not found", id))
		return nil, false
	}
	return order, true
}

func canView(user *models.User, order *models.Order) bool {
	if user.IsSuperAdmin || order.OwnerID == user.ID || memberOf(user, order.GroupID) {
		return true
	}
	for _, group := range order.ApprovalGroups {
		if user.HasRole(group.Name, models.RoleApprover) {
			return true
		}
	}
	return false
}

func memberOf(user *models.User, groupID uuid.UUID) bool {
	for _, m := range user.Memberships {
		if m.GroupID == groupID {
			return true
		}
	}
	return false
}
