package app

import (
	"github.com/gin-gonic/gin"

	apphttp "github.com/soreniverson/shipped-backend/internal/http"
	httpMW "github.com/soreniverson/shipped-backend/internal/http/middleware"
	"github.com/soreniverson/shipped-backend/internal/pkg/logger"
)

func wireRouter(log *logger.Logger, handlerset Handlers, auth *httpMW.AuthMiddleware) *gin.Engine {
	log.Info("Wiring router...")
	return apphttp.NewRouter(apphttp.RouterConfig{
		Log:                log,
		AuthMiddleware:     auth,
		WebhookHandler:     handlerset.Webhook,
		ClusterHandler:     handlerset.Cluster,
		FeedbackHandler:    handlerset.Feedback,
		IntegrationHandler: handlerset.Integration,
		HealthHandler:      handlerset.Health,
	})
}
