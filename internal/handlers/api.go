package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/partup/partup/internal/fflags"
	"github.com/partup/partup/internal/models"
	"github.com/partup/partup/internal/networks"
	"github.com/partup/partup/internal/store"
	"github.com/partup/partup/internal/util"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer trace.Tracer

func init() {
	tracer = otel.Tracer("github.com/partup/partup/internal/handlers")
}

// AuthCaller is the gin.Context key the auth middleware stores the
// *networks.Caller under.
const AuthCaller = "_partup.Caller"

type API struct {
	logger  *zap.SugaredLogger
	service *networks.Service
	store   store.Store
	fflags  *fflags.FFlags
	methods map[string]method
}

func NewAPI(
	parent context.Context,
	logger *zap.SugaredLogger,
	service *networks.Service,
	s store.Store,
	fflags *fflags.FFlags,
) (*API, error) {
	_, span := tracer.Start(parent, "NewAPI")
	defer span.End()

	if service == nil {
		return nil, fmt.Errorf("a networks service is required")
	}
	api := &API{
		logger:  logger,
		service: service,
		store:   s,
		fflags:  fflags,
	}
	api.methods = api.registerMethods()
	return api, nil
}

func (api *API) Logger(ctx context.Context) *zap.SugaredLogger {
	return util.WithTrace(ctx, api.logger)
}

func (api *API) SendInternalServerError(c *gin.Context, err error) {
	SendInternalServerError(c, api.logger, err)
}

func SendInternalServerError(c *gin.Context, logger *zap.SugaredLogger, err error) {
	sendInternalServerError(c, logger, "", err)
}

func sendInternalServerError(c *gin.Context, logger *zap.SugaredLogger, code string, err error) {
	ctx := c.Request.Context()
	util.WithTrace(ctx, logger).Errorw("internal server error", "code", code, "error", err)

	result := models.InternalServerError{
		BaseError: models.BaseError{
			Error: "internal server error",
			Code:  code,
		},
		TraceId: util.TraceID(ctx),
	}
	c.JSON(http.StatusInternalServerError, result)
}

// GetCaller returns the authenticated caller of the request, or nil.
func (api *API) GetCaller(c *gin.Context) *networks.Caller {
	v, found := c.Get(AuthCaller)
	if !found {
		return nil
	}
	caller, _ := v.(*networks.Caller)
	return caller
}

func (api *API) FlagCheck(c *gin.Context, name string) bool {
	enabled, err := api.fflags.GetFlag(name)
	if err != nil {
		api.SendInternalServerError(c, err)
		return false
	}
	if !enabled {
		c.JSON(http.StatusMethodNotAllowed, models.NewNotAllowedError(fmt.Sprintf("%s support is disabled", name)))
		return false
	}
	return enabled
}

// Ping reports whether the store can be reached.
func (api *API) Ping(ctx context.Context) error {
	if api.store == nil {
		return errors.New("no store configured")
	}
	_, err := api.store.ListNetworks(ctx, models.NetworkQuery{Limit: 1})
	return err
}

// emptyIfNil makes list endpoints answer [] rather than null.
func emptyIfNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
