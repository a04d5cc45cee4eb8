package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mhrivnak/orderflow/pkg/database/models"
	"github.com/mhrivnak/orderflow/pkg/database/repositories"
	"github.com/mhrivnak/orderflow/pkg/discovery"
	"github.com/mhrivnak/orderflow/pkg/errdef"
)

type ResourceHandlers struct {
	serverRepo *repositories.ServerRepository
	syncer     *discovery.Syncer
}

func NewResourceHandlers(serverRepo *repositories.ServerRepository, syncer *discovery.Syncer) *ResourceHandlers {
	return &ResourceHandlers{serverRepo: serverRepo, syncer: syncer}
}

type CreateResourceHandlerRequest struct {
	Name     string `json:"name" binding:"required"`
	Type     string `json:"type" binding:"required"`
	Endpoint string `json:"endpoint"`
}

// SyncRequest carries the servers a handler currently reports. Identifier names the record
// fields that identify a server.
type SyncRequest struct {
	Identifier []string           `json:"identifier" binding:"required,min=1"`
	Records    []discovery.Record `json:"records"`
}

// CreateHandler handles POST /api/v1/resource-handlers
func (h *ResourceHandlers) CreateHandler(c *gin.Context) {
	var req CreateResourceHandlerRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	existing, err := h.serverRepo.ListHandlers(ctx)
	if err != nil {
		_ = c.Error(err)
		return
	}
	for _, handler := range existing {
		if handler.Name == req.Name {
			_ = c.Error(errdef.NewDuplicated("resource handler %q already exists", req.Name))
			return
		}
	}

	handler := &models.ResourceHandler{Name: req.Name, Type: req.Type, Endpoint: req.Endpoint}
	if err := h.serverRepo.CreateHandler(ctx, handler); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, handler)
}

// ListHandlers handles GET /api/v1/resource-handlers
func (h *ResourceHandlers) ListHandlers(c *gin.Context) {
	handlers, err := h.serverRepo.ListHandlers(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	if handlers == nil {
		handlers = []models.ResourceHandler{}
	}
	c.JSON(http.StatusOK, handlers)
}

// Sync handles POST /api/v1/resource-handlers/:id/sync
func (h *ResourceHandlers) Sync(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req SyncRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.syncer.Sync(c.Request.Context(), id, discovery.Identifier(req.Identifier), req.Records)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListServers handles GET /api/v1/resource-handlers/:id/servers
func (h *ResourceHandlers) ListServers(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.serverRepo.GetHandler(ctx, id); err != nil {
		_ = c.Error(err)
		return
	}
	servers, err := h.serverRepo.ListByHandler(ctx, id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if servers == nil {
		servers = []models.Server{}
	}
	c.JSON(http.StatusOK, servers)
}
