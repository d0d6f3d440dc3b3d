package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/partup/partup/internal/fflags"
	"github.com/partup/partup/internal/models"
)

// ListInvitations lists the outstanding invites of a network
// @Summary      List Invitations
// @Id           ListInvitations
// @Tags         Invitations
// @Produce      json
// @Param        id   path     string true "Network ID"
// @Success      200  {object} []models.Invite
// @Failure      401  {object} models.BaseError
// @Failure      404  {object} models.BaseError
// @Router       /api/networks/{id}/invitations [get]
func (api *API) ListInvitations(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "ListInvitations")
	defer span.End()

	invites, err := api.service.ListInvites(ctx, api.GetCaller(c), c.Param("id"))
	if err != nil {
		api.SendError(c, err)
		return
	}
	c.JSON(http.StatusOK, emptyIfNil(invites))
}

// CreateUpperInvitation invites an existing upper to a network
// @Summary      Invite Upper
// @Id           CreateUpperInvitation
// @Tags         Invitations
// @Accept       json
// @Produce      json
// @Param        id         path     string                true "Network ID"
// @Param        invitation body     models.AddUpperInvite true "Upper Invite"
// @Success      201        {object} models.Invite
// @Failure      400        {object} models.ValidationError
// @Failure      404        {object} models.BaseError
// @Failure      409        {object} models.BaseError
// @Router       /api/networks/{id}/invitations [post]
func (api *API) CreateUpperInvitation(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "CreateUpperInvitation")
	defer span.End()

	var request models.AddUpperInvite
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPayloadError())
		return
	}
	invite, err := api.service.InviteExistingUpper(ctx, api.GetCaller(c), c.Param("id"), request.InviteeID)
	if err != nil {
		api.SendError(c, err)
		return
	}
	c.JSON(http.StatusCreated, invite)
}

// CreateEmailInvitation invites someone to a network by email address
// @Summary      Invite By Email
// @Id           CreateEmailInvitation
// @Tags         Invitations
// @Accept       json
// @Produce      json
// @Param        id         path     string                true "Network ID"
// @Param        invitation body     models.AddEmailInvite true "Email Invite"
// @Success      201        {object} models.Invite
// @Failure      400        {object} models.ValidationError
// @Failure      405        {object} models.NotAllowedError
// @Failure      409        {object} models.BaseError
// @Router       /api/networks/{id}/invitations/email [post]
func (api *API) CreateEmailInvitation(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "CreateEmailInvitation")
	defer span.End()

	if !api.FlagCheck(c, fflags.EmailInvites) {
		return
	}
	var request models.AddEmailInvite
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, models.NewFieldValidationError("email", "a valid email address is required"))
		return
	}
	invite, err := api.service.InviteByEmail(ctx, api.GetCaller(c), c.Param("id"), request.Email, request.Name)
	if err != nil {
		api.SendError(c, err)
		return
	}
	c.JSON(http.StatusCreated, invite)
}
