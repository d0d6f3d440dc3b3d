package routers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/partup/partup/internal/handlers"
	"github.com/partup/partup/internal/networks"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const name = "github.com/partup/partup/internal/routers"

type APIRouterOptions struct {
	Logger      *zap.SugaredLogger
	Api         *handlers.API
	Service     *networks.Service
	Verifier    TokenVerifier
	CorsOrigins []string
}

func NewAPIRouter(ctx context.Context, o APIRouterOptions) (*gin.Engine, error) {
	if o.Verifier == nil {
		return nil, fmt.Errorf("a token verifier is required")
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	loggerMiddleware := ginzap.GinzapWithConfig(o.Logger.Desugar(), &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		Context: func(c *gin.Context) []zapcore.Field {
			return []zapcore.Field{
				zap.String("traceID", trace.SpanFromContext(c.Request.Context()).SpanContext().TraceID().String()),
			}
		},
	})

	r.Use(otelgin.Middleware(name, otelgin.WithPropagators(
		propagation.TraceContext{},
	)))
	r.Use(ginzap.RecoveryWithZap(o.Logger.Desugar(), true))
	if len(o.CorsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     o.CorsOrigins,
			AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type", "traceparent"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	newPrometheus().Use(r)

	private := r.Group("/api", loggerMiddleware)
	{
		api := o.Api
		private.Use(ValidateJWT(o.Logger, o.Verifier))
		private.Use(SyncUser(o.Logger, o.Service))

		// Feature Flags
		private.GET("/fflags", api.ListFeatureFlags)
		private.GET("/fflags/:name", api.GetFeatureFlag)

		// Users
		private.GET("/users/me", api.GetCurrentUser)
		private.GET("/notifications", api.ListNotifications)

		// Networks
		private.POST("/networks", api.CreateNetwork)
		private.GET("/networks", api.ListNetworks)
		private.GET("/networks/:id", api.GetNetwork)
		private.PATCH("/networks/:id", api.UpdateNetwork)
		private.DELETE("/networks/:id", api.DeleteNetwork)

		// Membership
		private.POST("/networks/:id/join", api.JoinNetwork)
		private.POST("/networks/:id/leave", api.LeaveNetwork)
		private.POST("/networks/:id/pending/:uid/accept", api.AcceptPendingUpper)
		private.POST("/networks/:id/pending/:uid/reject", api.RejectPendingUpper)
		private.DELETE("/networks/:id/uppers/:uid", api.RemoveUpper)

		// Invitations
		private.GET("/networks/:id/invitations", api.ListInvitations)
		private.POST("/networks/:id/invitations", api.CreateUpperInvitation)
		private.POST("/networks/:id/invitations/email", api.CreateEmailInvitation)

		// Named methods
		private.POST("/methods/:name", api.CallMethod)
	}

	// Don't log the health/readiness checks.
	r.GET("/ready", o.Api.Ready)
	r.GET("/live", o.Api.Live)

	return r, nil
}

func newPrometheus() *ginprometheus.Prometheus {
	p := ginprometheus.NewPrometheus("partup_api")
	p.ReqCntURLLabelMappingFn = func(c *gin.Context) string {
		url := c.Request.URL.Path
		for _, p := range c.Params {
			switch p.Key {
			case "id", "uid":
				url = strings.Replace(url, p.Value, ":"+p.Key, 1)
			}
		}
		return url
	}
	return p
}
