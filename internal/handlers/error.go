package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/partup/partup/internal/membership"
	"github.com/partup/partup/internal/models"
	"github.com/partup/partup/internal/networks"
	"github.com/partup/partup/internal/util"
)

type ApiResponseError struct {
	Status int
	Body   any
}

func (e ApiResponseError) Error() string {
	data, err := json.Marshal(e.Body)
	if err != nil {
		return "ApiResponseError"
	}
	return string(data)
}

func NewApiResponseError(status int, body any) *ApiResponseError {
	return &ApiResponseError{
		Status: status,
		Body:   body,
	}
}

// StatusFor returns the HTTP status a membership error kind is reported with.
func StatusFor(kind membership.Kind) int {
	switch kind {
	case membership.KindUnauthorized:
		return http.StatusUnauthorized
	case membership.KindNotFound:
		return http.StatusNotFound
	case membership.KindAlreadyMember, membership.KindDuplicateInvite:
		return http.StatusConflict
	case membership.KindNotAMember, membership.KindPreconditionFailed:
		return http.StatusBadRequest
	case membership.KindCannotRemoveAdmin:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// SendError writes the response for an error returned by a networks command.
func (api *API) SendError(c *gin.Context, err error) {
	var apiErr *ApiResponseError
	if errors.As(err, &apiErr) {
		c.JSON(apiErr.Status, apiErr.Body)
		return
	}

	var domainErr *membership.Error
	if errors.As(err, &domainErr) {
		if domainErr.Code == membership.ErrFeatureDisabled.Code {
			c.JSON(http.StatusMethodNotAllowed, models.NewNotAllowedError("the feature is disabled"))
			return
		}
		status := StatusFor(domainErr.Kind)
		if status == http.StatusInternalServerError {
			sendInternalServerError(c, api.logger, domainErr.Code, err)
			return
		}
		c.JSON(status, models.NewApiError(domainErr.Code, domainErr.Kind.String()))
		return
	}

	var cmdErr *networks.CommandError
	if errors.As(err, &cmdErr) {
		// already logged by the service
		c.JSON(http.StatusInternalServerError, models.InternalServerError{
			BaseError: models.NewApiError(cmdErr.Code, "internal server error"),
			TraceId:   util.TraceID(c.Request.Context()),
		})
		return
	}
	api.SendInternalServerError(c, err)
}
