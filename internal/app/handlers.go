package app

import (
	httpH "github.com/soreniverson/shipped-backend/internal/http/handlers"
	"github.com/soreniverson/shipped-backend/internal/pkg/logger"
)

type Handlers struct {
	Webhook     *httpH.WebhookHandler
	Cluster     *httpH.ClusterHandler
	Feedback    *httpH.FeedbackHandler
	Integration *httpH.IntegrationHandler
	Health      *httpH.HealthHandler
}

func wireHandlers(log *logger.Logger, serviceset Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Webhook:     httpH.NewWebhookHandler(log, serviceset.Ingest),
		Cluster:     httpH.NewClusterHandler(log, serviceset.Clusters),
		Feedback:    httpH.NewFeedbackHandler(log, serviceset.Feedback),
		Integration: httpH.NewIntegrationHandler(log, serviceset.Ingest),
		Health:      httpH.NewHealthHandler(),
	}
}
