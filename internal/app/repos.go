package app

import (
	"gorm.io/gorm"

	"github.com/soreniverson/shipped-backend/internal/pkg/logger"
	"github.com/soreniverson/shipped-backend/internal/repos"
)

type Repos struct {
	Project           repos.ProjectRepo
	IntegrationSource repos.IntegrationSourceRepo
	RawMessage        repos.RawMessageRepo
	Feedback          repos.FeedbackRepo
	Cluster           repos.ClusterRepo
	RoadmapItem       repos.RoadmapItemRepo
	AILog             repos.AILogRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Project:           repos.NewProjectRepo(db, log),
		IntegrationSource: repos.NewIntegrationSourceRepo(db, log),
		RawMessage:        repos.NewRawMessageRepo(db, log),
		Feedback:          repos.NewFeedbackRepo(db, log),
		Cluster:           repos.NewClusterRepo(db, log),
		RoadmapItem:       repos.NewRoadmapItemRepo(db, log),
		AILog:             repos.NewAILogRepo(db, log),
	}
}
