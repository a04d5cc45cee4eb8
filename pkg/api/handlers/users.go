package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mhrivnak/orderflow/pkg/api/types"
	"github.com/mhrivnak/orderflow/pkg/auth"
	"github.com/mhrivnak/orderflow/pkg/database/models"
	"github.com/mhrivnak/orderflow/pkg/database/repositories"
)

type UserHandlers struct {
	authSvc  *auth.Service
	userRepo *repositories.UserRepository
}

func NewUserHandlers(authSvc *auth.Service, userRepo *repositories.UserRepository) *UserHandlers {
	return &UserHandlers{authSvc: authSvc, userRepo: userRepo}
}

// Membership is one role a user holds in a group
type Membership struct {
	Group string      `json:"group"`
	Role  models.Role `json:"role"`
}

type ProfileResponse struct {
	auth.UserInfo
	Memberships []Membership `json:"memberships"`
}

// Profile handles GET /api/v1/user/profile
func (h *UserHandlers) Profile(c *gin.Context) {
	user, ok := currentUser(c, h.userRepo)
	if !ok {
		return
	}
	resp := ProfileResponse{UserInfo: auth.NewUserInfo(user), Memberships: []Membership{}}
	for _, m := range user.Memberships {
		if m.Group != nil {
			resp.Memberships = append(resp.Memberships, Membership{Group: m.Group.Name, Role: m.Role})
		}
	}
	c.JSON(http.StatusOK, resp)
}

// ListUsers handles GET /api/v1/users
func (h *UserHandlers) ListUsers(c *gin.Context) {
	p, ok := pageParams(c)
	if !ok {
		return
	}
	users, total, err := h.userRepo.List(c.Request.Context(), p.PageSize, p.Offset())
	if err != nil {
		_ = c.Error(err)
		return
	}
	infos := make([]auth.UserInfo, 0, len(users))
	for i := range users {
		infos = append(infos, auth.NewUserInfo(&users[i]))
	}
	c.JSON(http.StatusOK, types.NewPage(infos, p.Page, p.PageSize, total))
}

// CreateUser handles POST /api/v1/users
func (h *UserHandlers) CreateUser(c *gin.Context) {
	var req auth.CreateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.authSvc.CreateUser(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, auth.NewUserInfo(user))
}
