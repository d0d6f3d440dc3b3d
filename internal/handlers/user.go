package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetCurrentUser returns the profile of the authenticated user
// @Summary      Get Current User
// @Id           GetCurrentUser
// @Tags         Users
// @Produce      json
// @Success      200  {object} models.User
// @Failure      401  {object} models.BaseError
// @Failure      404  {object} models.BaseError
// @Router       /api/users/me [get]
func (api *API) GetCurrentUser(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "GetCurrentUser")
	defer span.End()

	user, err := api.service.Me(ctx, api.GetCaller(c))
	if err != nil {
		api.SendError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// ListNotifications lists the current user's notifications
// @Summary      List Notifications
// @Id           ListNotifications
// @Tags         Users
// @Produce      json
// @Success      200  {object} []models.Notification
// @Failure      401  {object} models.BaseError
// @Router       /api/notifications [get]
func (api *API) ListNotifications(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "ListNotifications")
	defer span.End()

	list, err := api.service.ListNotifications(ctx, api.GetCaller(c))
	if err != nil {
		api.SendError(c, err)
		return
	}
	c.JSON(http.StatusOK, emptyIfNil(list))
}
