package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mhrivnak/orderflow/pkg/api/types"
	"github.com/mhrivnak/orderflow/pkg/auth"
	"github.com/mhrivnak/orderflow/pkg/database/models"
	"github.com/mhrivnak/orderflow/pkg/database/repositories"
	"github.com/mhrivnak/orderflow/pkg/errdef"
	"github.com/mhrivnak/orderflow/pkg/quota"
)

type GroupHandlers struct {
	groupRepo *repositories.GroupRepository
	userRepo  *repositories.UserRepository
}

func NewGroupHandlers(groupRepo *repositories.GroupRepository, userRepo *repositories.UserRepository) *GroupHandlers {
	return &GroupHandlers{groupRepo: groupRepo, userRepo: userRepo}
}

type CreateGroupRequest struct {
	Name        string     `json:"name" binding:"required"`
	Description string     `json:"description"`
	ParentID    *uuid.UUID `json:"parent_id"`
	AutoApprove bool       `json:"auto_approve"`
}

type SetParentRequest struct {
	ParentID *uuid.UUID `json:"parent_id"`
}

type MemberRequest struct {
	UserID uuid.UUID   `json:"user_id" binding:"required"`
	Role   models.Role `json:"role" binding:"required"`
}

type SetQuotaRequest struct {
	Limit float64 `json:"limit"`
}

// GroupResponse is a group with its quota usage
type GroupResponse struct {
	*models.Group
	Usage map[quota.Attribute]string `json:"usage"`
}

// ListGroups handles GET /api/v1/groups
func (h *GroupHandlers) ListGroups(c *gin.Context) {
	p, ok := pageParams(c)
	if !ok {
		return
	}
	groups, total, err := h.groupRepo.List(c.Request.Context(), p.PageSize, p.Offset(), p.Sort)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, types.NewPage(groups, p.Page, p.PageSize, total))
}

// GetGroup handles GET /api/v1/groups/:id
func (h *GroupHandlers) GetGroup(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	group, err := h.groupRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, GroupResponse{Group: group, Usage: group.QuotaSet().Report()})
}

// Lineage handles GET /api/v1/groups/:id/lineage, the group followed by its ancestors.
func (h *GroupHandlers) Lineage(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	group, err := h.groupRepo.GetByID(ctx, id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	hierarchy, err := h.groupRepo.Hierarchy(ctx)
	if err != nil {
		_ = c.Error(err)
		return
	}
	lineage, err := hierarchy.Lineage(group.Name)
	if err != nil {
		_ = c.Error(err)
		return
	}
	descendants, err := hierarchy.Descendants(group.Name)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lineage": lineage, "descendants": descendants})
}

// ListMembers handles GET /api/v1/groups/:id/members?role=approver
func (h *GroupHandlers) ListMembers(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	role := models.Role(c.DefaultQuery("role", string(models.RoleApprover)))
	if !role.Valid() {
		_ = c.Error(errdef.NewBadRequest("unknown role %q", role))
		return
	}
	members, err := h.groupRepo.Members(c.Request.Context(), id, role)
	if err != nil {
		_ = c.Error(err)
		return
	}
	infos := make([]auth.UserInfo, 0, len(members))
	for i := range members {
		infos = append(infos, auth.NewUserInfo(&members[i]))
	}
	c.JSON(http.StatusOK, infos)
}

// CreateGroup handles POST /api/v1/groups
func (h *GroupHandlers) CreateGroup(c *gin.Context) {
	var req CreateGroupRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.groupRepo.GetByName(ctx, req.Name); err == nil {
		_ = c.Error(errdef.NewDuplicated("group %q already exists", req.Name))
		return
	}
	group := &models.Group{
		Name:        req.Name,
		Description: req.Description,
		ParentID:    req.ParentID,
		AutoApprove: req.AutoApprove,
	}
	if err := h.groupRepo.Create(ctx, group); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, group)
}

// SetParent handles PUT /api/v1/groups/:id/parent
func (h *GroupHandlers) SetParent(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req SetParentRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.groupRepo.SetParent(c.Request.Context(), id, req.ParentID); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddMember handles POST /api/v1/groups/:id/members
func (h *GroupHandlers) AddMember(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req MemberRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.groupRepo.GetByID(ctx, id); err != nil {
		_ = c.Error(err)
		return
	}
	if _, err := h.userRepo.GetByID(ctx, req.UserID); err != nil {
		_ = c.Error(err)
		return
	}
	if err := h.groupRepo.AddMember(ctx, id, req.UserID, req.Role); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveMember handles DELETE /api/v1/groups/:id/members/:user_id?role=approver
func (h *GroupHandlers) RemoveMember(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	userID, ok := paramID(c, "user_id")
	if !ok {
		return
	}
	role := models.Role(c.Query("role"))
	if !role.Valid() {
		_ = c.Error(errdef.NewBadRequest("unknown role %q", role))
		return
	}
	if err := h.groupRepo.RemoveMember(c.Request.Context(), id, userID, role); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetQuota handles PUT /api/v1/groups/:id/quotas/:attribute. A limit of 0 or less is unlimited.
func (h *GroupHandlers) SetQuota(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req SetQuotaRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.groupRepo.GetByID(ctx, id); err != nil {
		_ = c.Error(err)
		return
	}
	if err := h.groupRepo.SetQuota(ctx, id, quota.Attribute(c.Param("attribute")), req.Limit); err != nil {
		_ = c.Error(err)
		return
	}
	group, err := h.groupRepo.GetByID(ctx, id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, GroupResponse{Group: group, Usage: group.QuotaSet().Report()})
}
