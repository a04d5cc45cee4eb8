package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mhrivnak/orderflow/pkg/database/repositories"
	"github.com/mhrivnak/orderflow/pkg/errdef"
	"github.com/mhrivnak/orderflow/pkg/hooks"
)

type OptionHandlers struct {
	registry  *hooks.OptionRegistry
	userRepo  *repositories.UserRepository
	groupRepo *repositories.GroupRepository
}

func NewOptionHandlers(registry *hooks.OptionRegistry, userRepo *repositories.UserRepository, groupRepo *repositories.GroupRepository) *OptionHandlers {
	return &OptionHandlers{registry: registry, userRepo: userRepo, groupRepo: groupRepo}
}

// ListFields handles GET /api/v1/options
func (h *OptionHandlers) ListFields(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"fields": h.registry.Fields()})
}

// Generate handles GET /api/v1/options/:field?group_id=. Other query parameters are passed to
// the generator.
func (h *OptionHandlers) Generate(c *gin.Context) {
	user, ok := currentUser(c, h.userRepo)
	if !ok {
		return
	}
	req := hooks.OptionRequest{Field: c.Param("field"), User: user, Params: map[string]string{}}
	for key, values := range c.Request.URL.Query() {
		if key != "group_id" && len(values) > 0 {
			req.Params[key] = values[0]
		}
	}

	if raw := c.Query("group_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			_ = c.Error(errdef.NewBadRequest("invalid group_id %q", raw))
			return
		}
		group, err := h.groupRepo.GetByID(c.Request.Context(), id)
		if err != nil {
			_ = c.Error(err)
			return
		}
		if !user.IsSuperAdmin && !memberOf(user, group.ID) {
			_ = c.Error(errdef.NewForbidden("not a member of group %s", group.Name))
			return
		}
		req.Group = group
	}

	opts, err := h.registry.Generate(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, opts)
}
