package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/soreniverson/shipped-backend/internal/http/handlers"
	httpMW "github.com/soreniverson/shipped-backend/internal/http/middleware"
	"github.com/soreniverson/shipped-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	AuthMiddleware *httpMW.AuthMiddleware

	WebhookHandler     *httpH.WebhookHandler
	ClusterHandler     *httpH.ClusterHandler
	FeedbackHandler    *httpH.FeedbackHandler
	IntegrationHandler *httpH.IntegrationHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("shipped-backend"))
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		// Webhooks (public; deliveries carry their own signatures)
		if cfg.WebhookHandler != nil {
			api.POST("/webhooks/:source_id", cfg.WebhookHandler.Receive)
		}
	}

	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Clusters
		if cfg.ClusterHandler != nil {
			protected.GET("/projects/:project_id/clusters", cfg.ClusterHandler.ListByProject)
			protected.GET("/clusters/:id", cfg.ClusterHandler.Get)
			protected.POST("/clusters/:id/merge", cfg.ClusterHandler.Merge)
			protected.POST("/clusters/:id/dismiss", cfg.ClusterHandler.Dismiss)
			protected.DELETE("/clusters/:id", cfg.ClusterHandler.Delete)
		}

		// Feedback review
		if cfg.FeedbackHandler != nil {
			protected.GET("/feedback/:id", cfg.FeedbackHandler.Get)
			protected.POST("/feedback/:id/approve", cfg.FeedbackHandler.Approve)
			protected.POST("/feedback/:id/reject", cfg.FeedbackHandler.Reject)
		}

		// Integrations
		if cfg.IntegrationHandler != nil {
			protected.POST("/integrations/:id/sync", cfg.IntegrationHandler.StartSync)
			protected.GET("/integrations/:id/status", cfg.IntegrationHandler.Status)
		}
	}

	return r
}
