// Package testutil provides the shared Postgres harness for repo-level
// integration tests. Tests are skipped unless TEST_POSTGRES_DSN points at a
// disposable database.
package testutil

import (
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/soreniverson/shipped-backend/internal/db"
	"github.com/soreniverson/shipped-backend/internal/pkg/logger"
	"github.com/soreniverson/shipped-backend/internal/types"
)

var (
	openOnce sync.Once
	shared   *gorm.DB
	openErr  error
)

func DB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres-backed test")
	}
	openOnce.Do(func() {
		gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
			DisableForeignKeyConstraintWhenMigrating: true,
		})
		if err != nil {
			openErr = fmt.Errorf("connect postgres: %w", err)
			return
		}
		if err := gdb.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
			openErr = fmt.Errorf("enable uuid-ossp: %w", err)
			return
		}
		if err := db.AutoMigrate(gdb); err != nil {
			openErr = fmt.Errorf("automigrate: %w", err)
			return
		}
		shared = gdb
	})
	if openErr != nil {
		t.Fatalf("test database: %v", openErr)
	}
	return shared
}

func Logger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

// Fixtures insert directly through gorm and register cleanup so each test
// leaves the shared database the way it found it. Rows cascade from the
// project where foreign keys allow it; the rest are removed explicitly.

func SeedProject(t *testing.T, gdb *gorm.DB) *types.Project {
	t.Helper()
	p := &types.Project{
		ID:   uuid.New(),
		Name: "Test Project",
		Slug: "test-" + uuid.NewString(),
	}
	if err := gdb.Create(p).Error; err != nil {
		t.Fatalf("seed project: %v", err)
	}
	t.Cleanup(func() {
		gdb.Delete(&types.AIProcessingLog{}, "project_id = ?", p.ID)
		gdb.Delete(&types.RoadmapItem{}, "project_id = ?", p.ID)
		gdb.Delete(&types.ExtractedFeedback{}, "project_id = ?", p.ID)
		gdb.Delete(&types.FeedbackCluster{}, "project_id = ?", p.ID)
		gdb.Delete(&types.RawMessage{}, "project_id = ?", p.ID)
		gdb.Delete(&types.IntegrationSource{}, "project_id = ?", p.ID)
		gdb.Delete(&types.Project{}, "id = ?", p.ID)
	})
	return p
}

func SeedSource(t *testing.T, gdb *gorm.DB, projectID uuid.UUID, sourceType string) *types.IntegrationSource {
	t.Helper()
	s := &types.IntegrationSource{
		ID:        uuid.New(),
		ProjectID: projectID,
		Type:      sourceType,
		Name:      "Test " + sourceType,
		Status:    types.SourceStatusActive,
	}
	if err := gdb.Create(s).Error; err != nil {
		t.Fatalf("seed source: %v", err)
	}
	return s
}

func SeedMessage(t *testing.T, gdb *gorm.DB, projectID, sourceID uuid.UUID, externalID string) *types.RawMessage {
	t.Helper()
	now := time.Now().UTC()
	m := &types.RawMessage{
		ID:         uuid.New(),
		ProjectID:  projectID,
		SourceID:   sourceID,
		ExternalID: externalID,
		Body:       "the export button crashes the app",
		Status:     types.RawMessageStatusPending,
		SentAt:     &now,
	}
	if err := gdb.Create(m).Error; err != nil {
		t.Fatalf("seed message: %v", err)
	}
	return m
}

func SeedFeedback(t *testing.T, gdb *gorm.DB, projectID, rawMessageID uuid.UUID, itemIndex int) *types.ExtractedFeedback {
	t.Helper()
	f := &types.ExtractedFeedback{
		ID:           uuid.New(),
		RawMessageID: rawMessageID,
		ProjectID:    projectID,
		ItemIndex:    itemIndex,
		Type:         types.FeedbackTypeBugReport,
		Title:        "Export crashes the app",
		Description:  "Crash when exporting a large report",
		Quote:        "the export button crashes the app",
		Confidence:   0.9,
		ReviewStatus: types.ReviewStatusPending,
	}
	if err := gdb.Create(f).Error; err != nil {
		t.Fatalf("seed feedback: %v", err)
	}
	return f
}
