package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mhrivnak/orderflow/pkg/auth"
)

type SessionHandlers struct {
	authSvc *auth.Service
}

func NewSessionHandlers(authSvc *auth.Service) *SessionHandlers {
	return &SessionHandlers{authSvc: authSvc}
}

// CreateSession handles POST /api/v1/sessions
func (h *SessionHandlers) CreateSession(c *gin.Context) {
	var req auth.LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	resp, err := h.authSvc.Login(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
