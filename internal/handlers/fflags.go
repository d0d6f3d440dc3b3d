package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/partup/partup/internal/fflags"
	"github.com/partup/partup/internal/models"
)

// ListFeatureFlags lists all feature flags
// @Summary      List Feature Flags
// @Description  Lists every feature flag of the server and whether it is enabled
// @Tags         FFlag
// @Produce      json
// @Success      200  {object} map[string]bool
// @Failure      401  {object}  models.BaseError
// @Router       /api/fflags [get]
func (api *API) ListFeatureFlags(c *gin.Context) {
	c.JSON(http.StatusOK, api.fflags.ListFlags())
}

// GetFeatureFlag gets a feature flag by name
// @Summary      Get Feature Flag
// @Tags         FFlag
// @Produce      json
// @Param		 name path      string true  "feature flag name"
// @Success      200  {object} map[string]bool
// @Failure      404  {object}  models.NotFoundError
// @Router       /api/fflags/{name} [get]
func (api *API) GetFeatureFlag(c *gin.Context) {
	name := c.Param("name")
	enabled, err := api.fflags.GetFlag(name)
	switch {
	case errors.Is(err, fflags.ErrUnknownFlag):
		c.JSON(http.StatusNotFound, models.NewNotFoundError("flag"))
	case err != nil:
		api.SendInternalServerError(c, err)
	default:
		c.JSON(http.StatusOK, map[string]bool{name: enabled})
	}
}
