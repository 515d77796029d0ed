package repos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/soreniverson/shipped-backend/internal/pkg/dbctx"
	"github.com/soreniverson/shipped-backend/internal/pkg/logger"
	"github.com/soreniverson/shipped-backend/internal/types"
)

type FeedbackRepo interface {
	// InsertItem persists one extracted item keyed by
	// (raw_message_id, item_index). Replaying after a partial failure
	// short-circuits to the already-persisted row.
	InsertItem(dbc dbctx.Context, f *types.ExtractedFeedback) (*types.ExtractedFeedback, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ExtractedFeedback, error)
	SetEmbedding(dbc dbctx.Context, id uuid.UUID, vec []float64) error
	ListByCluster(dbc dbctx.Context, clusterID uuid.UUID) ([]*types.ExtractedFeedback, error)
	ListByMessage(dbc dbctx.Context, rawMessageID uuid.UUID) ([]*types.ExtractedFeedback, error)
	UpdateReviewStatus(dbc dbctx.Context, id uuid.UUID, status string) (bool, error)
}

type feedbackRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFeedbackRepo(db *gorm.DB, baseLog *logger.Logger) FeedbackRepo {
	return &feedbackRepo{db: db, log: baseLog.With("repo", "FeedbackRepo")}
}

func (r *feedbackRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *feedbackRepo) InsertItem(dbc dbctx.Context, f *types.ExtractedFeedback) (*types.ExtractedFeedback, error) {
	if f == nil {
		return nil, nil
	}
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	res := r.handle(dbc).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "raw_message_id"}, {Name: "item_index"}},
			DoNothing: true,
		}).
		Create(f)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected > 0 {
		return f, nil
	}

	var existing types.ExtractedFeedback
	err := r.handle(dbc).
		Where("raw_message_id = ? AND item_index = ?", f.RawMessageID, f.ItemIndex).
		First(&existing).Error
	if err != nil {
		return nil, err
	}
	return &existing, nil
}

func (r *feedbackRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ExtractedFeedback, error) {
	var f types.ExtractedFeedback
	err := r.handle(dbc).Where("id = ?", id).Limit(1).Find(&f).Error
	if err != nil {
		return nil, err
	}
	if f.ID == uuid.Nil {
		return nil, nil
	}
	return &f, nil
}

func (r *feedbackRepo) SetEmbedding(dbc dbctx.Context, id uuid.UUID, vec []float64) error {
	f := types.ExtractedFeedback{}
	f.SetEmbeddingVector(vec)
	return r.handle(dbc).
		Model(&types.ExtractedFeedback{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"embedding":  f.Embedding,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *feedbackRepo) ListByCluster(dbc dbctx.Context, clusterID uuid.UUID) ([]*types.ExtractedFeedback, error) {
	var out []*types.ExtractedFeedback
	err := r.handle(dbc).
		Where("cluster_id = ?", clusterID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (r *feedbackRepo) ListByMessage(dbc dbctx.Context, rawMessageID uuid.UUID) ([]*types.ExtractedFeedback, error) {
	var out []*types.ExtractedFeedback
	err := r.handle(dbc).
		Where("raw_message_id = ?", rawMessageID).
		Order("item_index ASC").
		Find(&out).Error
	return out, err
}

func (r *feedbackRepo) UpdateReviewStatus(dbc dbctx.Context, id uuid.UUID, status string) (bool, error) {
	res := r.handle(dbc).
		Model(&types.ExtractedFeedback{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"review_status": status,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
