package repos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/soreniverson/shipped-backend/internal/pkg/dbctx"
	"github.com/soreniverson/shipped-backend/internal/pkg/logger"
	"github.com/soreniverson/shipped-backend/internal/types"
)

type IntegrationSourceRepo interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.IntegrationSource, error)
	ListByType(dbc dbctx.Context, sourceType string) ([]*types.IntegrationSource, error)
	ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.IntegrationSource, error)
	UpdateSyncState(dbc dbctx.Context, id uuid.UUID, cursor string, syncedAt time.Time) error
	UpdateStatus(dbc dbctx.Context, id uuid.UUID, status string) error
}

type integrationSourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIntegrationSourceRepo(db *gorm.DB, baseLog *logger.Logger) IntegrationSourceRepo {
	return &integrationSourceRepo{db: db, log: baseLog.With("repo", "IntegrationSourceRepo")}
}

func (r *integrationSourceRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *integrationSourceRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.IntegrationSource, error) {
	var s types.IntegrationSource
	err := r.handle(dbc).Where("id = ?", id).Limit(1).Find(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == uuid.Nil {
		return nil, nil
	}
	return &s, nil
}

func (r *integrationSourceRepo) ListByType(dbc dbctx.Context, sourceType string) ([]*types.IntegrationSource, error) {
	var out []*types.IntegrationSource
	err := r.handle(dbc).
		Where("type = ? AND status = ?", sourceType, types.SourceStatusActive).
		Find(&out).Error
	return out, err
}

func (r *integrationSourceRepo) ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.IntegrationSource, error) {
	var out []*types.IntegrationSource
	err := r.handle(dbc).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (r *integrationSourceRepo) UpdateSyncState(dbc dbctx.Context, id uuid.UUID, cursor string, syncedAt time.Time) error {
	return r.handle(dbc).
		Model(&types.IntegrationSource{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"sync_cursor":    cursor,
			"last_synced_at": syncedAt,
			"updated_at":     time.Now().UTC(),
		}).Error
}

func (r *integrationSourceRepo) UpdateStatus(dbc dbctx.Context, id uuid.UUID, status string) error {
	return r.handle(dbc).
		Model(&types.IntegrationSource{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error
}
