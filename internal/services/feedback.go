package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/soreniverson/shipped-backend/internal/pkg/dbctx"
	errorsx "github.com/soreniverson/shipped-backend/internal/pkg/errors"
	"github.com/soreniverson/shipped-backend/internal/pkg/logger"
	"github.com/soreniverson/shipped-backend/internal/repos"
	"github.com/soreniverson/shipped-backend/internal/types"
)

type FeedbackService interface {
	Get(ctx context.Context, id uuid.UUID) (*types.ExtractedFeedback, error)
	// Approve promotes the feedback into a roadmap item. Idempotent: a
	// second call returns the item the first call created.
	Approve(ctx context.Context, id uuid.UUID) (*types.RoadmapItem, error)
	Reject(ctx context.Context, id uuid.UUID) error
}

type feedbackService struct {
	db       *gorm.DB
	feedback repos.FeedbackRepo
	roadmap  repos.RoadmapItemRepo
	log      *logger.Logger
}

func NewFeedbackService(db *gorm.DB, feedback repos.FeedbackRepo, roadmap repos.RoadmapItemRepo, baseLog *logger.Logger) FeedbackService {
	return &feedbackService{
		db:       db,
		feedback: feedback,
		roadmap:  roadmap,
		log:      baseLog.With("service", "FeedbackService"),
	}
}

func (s *feedbackService) Get(ctx context.Context, id uuid.UUID) (*types.ExtractedFeedback, error) {
	f, err := s.feedback.GetByID(dbctx.New(ctx), id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("feedback %s: %w", id, errorsx.ErrNotFound)
	}
	return f, nil
}

func (s *feedbackService) Approve(ctx context.Context, id uuid.UUID) (*types.RoadmapItem, error) {
	var out *types.RoadmapItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)

		// Lock the row so concurrent approvals serialize on it.
		var f types.ExtractedFeedback
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).Limit(1).Find(&f).Error; err != nil {
			return err
		}
		if f.ID == uuid.Nil {
			return fmt.Errorf("feedback %s: %w", id, errorsx.ErrNotFound)
		}

		if f.RoadmapItemID != nil {
			existing, err := s.roadmap.GetByID(dbc, *f.RoadmapItemID)
			if err != nil {
				return err
			}
			if existing == nil {
				return fmt.Errorf("linked roadmap item %s: %w", *f.RoadmapItemID, errorsx.ErrNotFound)
			}
			out = existing
			return nil
		}

		item, err := s.roadmap.Create(dbc, &types.RoadmapItem{
			ProjectID:      f.ProjectID,
			Title:          f.Title,
			Description:    f.Description,
			Status:         types.RoadmapStatusBacklog,
			SourceFeedback: &f.ID,
		})
		if err != nil {
			return err
		}
		if err := tx.Model(&types.ExtractedFeedback{}).
			Where("id = ?", f.ID).
			Updates(map[string]any{
				"review_status":   types.ReviewStatusApproved,
				"roadmap_item_id": item.ID,
				"updated_at":      time.Now().UTC(),
			}).Error; err != nil {
			return err
		}
		out = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *feedbackService) Reject(ctx context.Context, id uuid.UUID) error {
	ok, err := s.feedback.UpdateReviewStatus(dbctx.New(ctx), id, types.ReviewStatusRejected)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("feedback %s: %w", id, errorsx.ErrNotFound)
	}
	return nil
}
