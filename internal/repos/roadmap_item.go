package repos

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/soreniverson/shipped-backend/internal/pkg/dbctx"
	"github.com/soreniverson/shipped-backend/internal/pkg/logger"
	"github.com/soreniverson/shipped-backend/internal/types"
)

type RoadmapItemRepo interface {
	Create(dbc dbctx.Context, item *types.RoadmapItem) (*types.RoadmapItem, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.RoadmapItem, error)
}

type roadmapItemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRoadmapItemRepo(db *gorm.DB, baseLog *logger.Logger) RoadmapItemRepo {
	return &roadmapItemRepo{db: db, log: baseLog.With("repo", "RoadmapItemRepo")}
}

func (r *roadmapItemRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *roadmapItemRepo) Create(dbc dbctx.Context, item *types.RoadmapItem) (*types.RoadmapItem, error) {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if err := r.handle(dbc).Create(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

func (r *roadmapItemRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.RoadmapItem, error) {
	var item types.RoadmapItem
	err := r.handle(dbc).Where("id = ?", id).Limit(1).Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == uuid.Nil {
		return nil, nil
	}
	return &item, nil
}
