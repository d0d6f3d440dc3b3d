package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// JoinNetwork asks for the current user to become an upper of a network
// @Summary      Join Network
// @Id           JoinNetwork
// @Tags         Membership
// @Produce      json
// @Param        id   path     string true "Network ID"
// @Success      200  {object} models.MembershipResult
// @Failure      401  {object} models.BaseError
// @Failure      404  {object} models.BaseError
// @Failure      409  {object} models.BaseError
// @Router       /api/networks/{id}/join [post]
func (api *API) JoinNetwork(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "JoinNetwork")
	defer span.End()

	result, err := api.service.Join(ctx, api.GetCaller(c), c.Param("id"))
	if err != nil {
		api.SendError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// LeaveNetwork removes the current user from a network
// @Summary      Leave Network
// @Id           LeaveNetwork
// @Tags         Membership
// @Produce      json
// @Param        id   path     string true "Network ID"
// @Success      200  {object} models.MembershipResult
// @Failure      400  {object} models.BaseError
// @Failure      403  {object} models.BaseError
// @Router       /api/networks/{id}/leave [post]
func (api *API) LeaveNetwork(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "LeaveNetwork")
	defer span.End()

	result, err := api.service.Leave(ctx, api.GetCaller(c), c.Param("id"))
	if err != nil {
		api.SendError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// AcceptPendingUpper admits a pending upper
// @Summary      Accept Pending Upper
// @Id           AcceptPendingUpper
// @Tags         Membership
// @Produce      json
// @Param        id   path     string true "Network ID"
// @Param        uid  path     string true "Upper ID"
// @Success      200  {object} models.MembershipResult
// @Router       /api/networks/{id}/pending/{uid}/accept [post]
func (api *API) AcceptPendingUpper(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "AcceptPendingUpper")
	defer span.End()

	result, err := api.service.Accept(ctx, api.GetCaller(c), c.Param("id"), c.Param("uid"))
	if err != nil {
		api.SendError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RejectPendingUpper declines a pending upper
// @Summary      Reject Pending Upper
// @Id           RejectPendingUpper
// @Tags         Membership
// @Produce      json
// @Param        id   path     string true "Network ID"
// @Param        uid  path     string true "Upper ID"
// @Success      200  {object} models.MembershipResult
// @Router       /api/networks/{id}/pending/{uid}/reject [post]
func (api *API) RejectPendingUpper(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "RejectPendingUpper")
	defer span.End()

	result, err := api.service.Reject(ctx, api.GetCaller(c), c.Param("id"), c.Param("uid"))
	if err != nil {
		api.SendError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RemoveUpper lets the network admin remove an upper
// @Summary      Remove Upper
// @Id           RemoveUpper
// @Tags         Membership
// @Produce      json
// @Param        id   path     string true "Network ID"
// @Param        uid  path     string true "Upper ID"
// @Success      200  {object} models.MembershipResult
// @Router       /api/networks/{id}/uppers/{uid} [delete]
func (api *API) RemoveUpper(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "RemoveUpper")
	defer span.End()

	result, err := api.service.RemoveUpper(ctx, api.GetCaller(c), c.Param("id"), c.Param("uid"))
	if err != nil {
		api.SendError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
