// Package handlers implements the orderflow REST endpoints. Handlers report failures with
// c.Error and leave the status code to the error middleware.
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mhrivnak/orderflow/pkg/api/types"
	"github.com/mhrivnak/orderflow/pkg/auth"
	"github.com/mhrivnak/orderflow/pkg/database/models"
	"github.com/mhrivnak/orderflow/pkg/database/repositories"
	"github.com/mhrivnak/orderflow/pkg/errdef"
)

func paramID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		_ = c.Error(errdef.NewBadRequest("invalid %s %q", name, c.Param(name)))
		return uuid.Nil, false
	}
	return id, true
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		_ = c.Error(errdef.NewBadRequest("invalid request body: %v", err))
		return false
	}
	return true
}

func pageParams(c *gin.Context) (types.PageParams, bool) {
	var p types.PageParams
	if err := c.ShouldBindQuery(&p); err != nil {
		_ = c.Error(errdef.NewBadRequest("invalid query: %v", err))
		return p, false
	}
	return p.Normalize(), true
}

// currentUser loads the authenticated user with memberships.
func currentUser(c *gin.Context, users *repositories.UserRepository) (*models.User, bool) {
	id, ok := auth.GetUserID(c)
	if !ok {
		_ = c.Error(errdef.NewUnauthorized("authentication required"))
		return nil, false
	}
	user, err := users.GetByID(c.Request.Context(), id)
	if err != nil {
		if errdef.IsNotFound(err) {
			err = errdef.NewUnauthorized("user no longer exists")
		}
		_ = c.Error(err)
		return nil, false
	}
	if !user.IsActive {
		_ = c.Error(errdef.NewUnauthorized("user account is inactive"))
		return nil, false
	}
	return user, true
}
