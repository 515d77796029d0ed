package repos

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/soreniverson/shipped-backend/internal/pkg/dbctx"
	"github.com/soreniverson/shipped-backend/internal/pkg/logger"
	"github.com/soreniverson/shipped-backend/internal/types"
)

// AILogRepo appends to the model-invocation ledger. There is deliberately no
// update or delete surface.
type AILogRepo interface {
	Create(dbc dbctx.Context, entries []*types.AIProcessingLog) error
	ListByMessage(dbc dbctx.Context, rawMessageID uuid.UUID) ([]*types.AIProcessingLog, error)
}

type aiLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAILogRepo(db *gorm.DB, baseLog *logger.Logger) AILogRepo {
	return &aiLogRepo{db: db, log: baseLog.With("repo", "AILogRepo")}
}

func (r *aiLogRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *aiLogRepo) Create(dbc dbctx.Context, entries []*types.AIProcessingLog) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
	}
	return r.handle(dbc).Create(&entries).Error
}

func (r *aiLogRepo) ListByMessage(dbc dbctx.Context, rawMessageID uuid.UUID) ([]*types.AIProcessingLog, error) {
	var out []*types.AIProcessingLog
	err := r.handle(dbc).
		Where("raw_message_id = ?", rawMessageID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}
