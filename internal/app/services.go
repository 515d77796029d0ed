package app

import (
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/soreniverson/shipped-backend/internal/cluster"
	"github.com/soreniverson/shipped-backend/internal/pipeline"
	"github.com/soreniverson/shipped-backend/internal/pkg/logger"
	"github.com/soreniverson/shipped-backend/internal/ratelimit"
	"github.com/soreniverson/shipped-backend/internal/services"
	"github.com/soreniverson/shipped-backend/internal/sources"
	"github.com/soreniverson/shipped-backend/internal/temporalx"
	"github.com/soreniverson/shipped-backend/internal/temporalx/flows"
	"github.com/soreniverson/shipped-backend/internal/temporalx/temporalworker"
)

type Services struct {
	Ingest   services.IngestService
	Clusters services.ClusterService
	Feedback services.FeedbackService

	Starter *temporalx.Starter
	Worker  *temporalworker.Runner
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, clients Clients, reposet Repos) (Services, error) {
	log.Info("Wiring services...")

	extractor := pipeline.NewExtractor(clients.OpenAI, reposet.AILog, log)
	embedder := pipeline.NewEmbedder(clients.OpenAI, reposet.AILog, log)
	engine := cluster.NewEngine(reposet.Cluster, log)
	limiter := ratelimit.NewLimiter(clients.Redis, map[string]int{
		ratelimit.ClassExtract: cfg.ExtractPerMinute,
		ratelimit.ClassEmbed:   cfg.EmbedPerMinute,
	}, log)
	registry := sources.DefaultRegistry(&http.Client{Timeout: 30 * time.Second})

	starter := temporalx.NewStarter(clients.Temporal, log)

	ingest := services.NewIngestService(reposet.IntegrationSource, reposet.RawMessage, registry, starter, log)
	clusterSvc := services.NewClusterService(reposet.Cluster, log)
	feedbackSvc := services.NewFeedbackService(db, reposet.Feedback, reposet.RoadmapItem, log)

	serviceset := Services{
		Ingest:   ingest,
		Clusters: clusterSvc,
		Feedback: feedbackSvc,
		Starter:  starter,
	}

	if clients.Temporal != nil {
		activities := &flows.Activities{
			Messages:  reposet.RawMessage,
			Feedback:  reposet.Feedback,
			Sources:   reposet.IntegrationSource,
			Extractor: extractor,
			Embedder:  embedder,
			Engine:    engine,
			Limiter:   limiter,
			Registry:  registry,
			Starter:   starter,
			Log:       log,
		}
		worker, err := temporalworker.NewRunner(log, clients.Temporal, activities)
		if err != nil {
			return Services{}, err
		}
		serviceset.Worker = worker
	}

	return serviceset, nil
}
