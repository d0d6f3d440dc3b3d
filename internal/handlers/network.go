package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/partup/partup/internal/models"
)

// CreateNetwork creates a network
// @Summary      Create a Network
// @Description  Creates a network administered by the current user
// @Id           CreateNetwork
// @Tags         Networks
// @Accept       json
// @Produce      json
// @Param        network  body     models.AddNetwork  true "Add Network"
// @Success      201      {object} models.Network
// @Failure      400      {object} models.ValidationError
// @Failure      401      {object} models.BaseError
// @Failure      500      {object} models.InternalServerError
// @Router       /api/networks [post]
func (api *API) CreateNetwork(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "CreateNetwork")
	defer span.End()

	var request models.AddNetwork
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPayloadError())
		return
	}
	network, err := api.service.Create(ctx, api.GetCaller(c), request)
	if err != nil {
		api.SendError(c, err)
		return
	}
	c.JSON(http.StatusCreated, network)
}

// ListNetworks lists the networks of the current user, or autocompletes
// network names when q is given.
// @Summary      List Networks
// @Id           ListNetworks
// @Tags         Networks
// @Produce      json
// @Param        q    query    string false "name fragment"
// @Success      200  {object} []models.Network
// @Failure      401  {object} models.BaseError
// @Failure      500  {object} models.InternalServerError
// @Router       /api/networks [get]
func (api *API) ListNetworks(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "ListNetworks")
	defer span.End()

	var (
		list []models.Network
		err  error
	)
	if q, ok := c.GetQuery("q"); ok {
		list, err = api.service.Autocomplete(ctx, api.GetCaller(c), q)
	} else {
		list, err = api.service.List(ctx, api.GetCaller(c))
	}
	if err != nil {
		api.SendError(c, err)
		return
	}
	c.JSON(http.StatusOK, emptyIfNil(list))
}

// GetNetwork gets a network by ID
// @Summary      Get Network
// @Id           GetNetwork
// @Tags         Networks
// @Produce      json
// @Param        id   path     string true "Network ID"
// @Success      200  {object} models.Network
// @Failure      401  {object} models.BaseError
// @Failure      404  {object} models.BaseError
// @Router       /api/networks/{id} [get]
func (api *API) GetNetwork(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "GetNetwork")
	defer span.End()

	network, err := api.service.Get(ctx, api.GetCaller(c), c.Param("id"))
	if err != nil {
		api.SendError(c, err)
		return
	}
	c.JSON(http.StatusOK, network)
}

// UpdateNetwork updates the name and description of a network
// @Summary      Update Network
// @Id           UpdateNetwork
// @Tags         Networks
// @Accept       json
// @Produce      json
// @Param        id       path     string               true "Network ID"
// @Param        update   body     models.UpdateNetwork true "Network Update"
// @Success      200      {object} models.Network
// @Failure      400      {object} models.ValidationError
// @Failure      401      {object} models.BaseError
// @Failure      404      {object} models.BaseError
// @Router       /api/networks/{id} [patch]
func (api *API) UpdateNetwork(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "UpdateNetwork")
	defer span.End()

	var request models.UpdateNetwork
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPayloadError())
		return
	}
	network, err := api.service.Update(ctx, api.GetCaller(c), c.Param("id"), request)
	if err != nil {
		api.SendError(c, err)
		return
	}
	c.JSON(http.StatusOK, network)
}

// DeleteNetwork removes an empty network
// @Summary      Delete Network
// @Id           DeleteNetwork
// @Tags         Networks
// @Param        id   path     string true "Network ID"
// @Success      204
// @Failure      400  {object} models.BaseError
// @Failure      401  {object} models.BaseError
// @Failure      404  {object} models.BaseError
// @Failure      405  {object} models.NotAllowedError
// @Router       /api/networks/{id} [delete]
func (api *API) DeleteNetwork(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "DeleteNetwork")
	defer span.End()

	if err := api.service.Remove(ctx, api.GetCaller(c), c.Param("id")); err != nil {
		api.SendError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
