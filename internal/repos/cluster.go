package repos

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/soreniverson/shipped-backend/internal/pkg/dbctx"
	errorsx "github.com/soreniverson/shipped-backend/internal/pkg/errors"
	"github.com/soreniverson/shipped-backend/internal/pkg/logger"
	"github.com/soreniverson/shipped-backend/internal/types"
	"github.com/soreniverson/shipped-backend/internal/vector"
)

// ClusterCandidate is one nearest-neighbor result annotated with its cosine
// similarity to the query vector.
type ClusterCandidate struct {
	Cluster    *types.FeedbackCluster
	Similarity float64
}

type ClusterRepo interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.FeedbackCluster, error)
	ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.FeedbackCluster, error)
	// NearestByCentroid returns the top-k clusters of the project by cosine
	// similarity to vec, ordered by similarity, then member_count, then age.
	NearestByCentroid(dbc dbctx.Context, projectID uuid.UUID, vec []float64, k int) ([]ClusterCandidate, error)
	// AssignMember attaches the feedback row to the cluster and folds its
	// embedding into the running centroid under a row lock. Returns the
	// cluster the row belongs to after the call: a row that already has a
	// cluster is left untouched and its existing cluster is reported.
	AssignMember(dbc dbctx.Context, feedbackID, clusterID uuid.UUID, vec []float64) (uuid.UUID, error)
	// CreateSeeded creates a new single-member cluster seeded from the
	// feedback row. If the row was clustered concurrently, the existing
	// cluster is returned instead.
	CreateSeeded(dbc dbctx.Context, f *types.ExtractedFeedback, vec []float64) (*types.FeedbackCluster, error)
	// MergeInto absorbs source into target: members reassigned, counts
	// summed, centroid recomputed from raw member vectors, source deleted.
	MergeInto(dbc dbctx.Context, targetID, sourceID uuid.UUID) (*types.FeedbackCluster, error)
	// DeleteWithUnlink nulls cluster_id on all members, then deletes the
	// cluster row. Members survive unclustered.
	DeleteWithUnlink(dbc dbctx.Context, id uuid.UUID) error
	UpdateReviewStatus(dbc dbctx.Context, id uuid.UUID, status string) (bool, error)
	SetLinkedItem(dbc dbctx.Context, id, itemID uuid.UUID) error
}

type clusterRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewClusterRepo(db *gorm.DB, baseLog *logger.Logger) ClusterRepo {
	return &clusterRepo{db: db, log: baseLog.With("repo", "ClusterRepo")}
}

func (r *clusterRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

// inTx runs fn inside the caller's transaction when one is supplied, or a
// fresh one otherwise.
func (r *clusterRepo) inTx(dbc dbctx.Context, fn func(tx *gorm.DB) error) error {
	if dbc.Tx != nil {
		return fn(dbc.Tx.WithContext(dbc.Ctx))
	}
	return r.db.WithContext(dbc.Ctx).Transaction(fn)
}

func (r *clusterRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.FeedbackCluster, error) {
	var c types.FeedbackCluster
	err := r.handle(dbc).Where("id = ?", id).Limit(1).Find(&c).Error
	if err != nil {
		return nil, err
	}
	if c.ID == uuid.Nil {
		return nil, nil
	}
	return &c, nil
}

func (r *clusterRepo) ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.FeedbackCluster, error) {
	var out []*types.FeedbackCluster
	err := r.handle(dbc).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (r *clusterRepo) NearestByCentroid(dbc dbctx.Context, projectID uuid.UUID, vec []float64, k int) ([]ClusterCandidate, error) {
	clusters, err := r.ListByProject(dbc, projectID)
	if err != nil {
		return nil, err
	}
	candidates := make([]ClusterCandidate, 0, len(clusters))
	for _, c := range clusters {
		centroid := c.CentroidVector()
		if centroid == nil {
			continue
		}
		candidates = append(candidates, ClusterCandidate{
			Cluster:    c,
			Similarity: vector.Cosine(vec, centroid),
		})
	}
	SortCandidates(candidates)
	if k > 0 && len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// SortCandidates orders by similarity descending; ties prefer the more
// established cluster (larger member_count), then the older cluster, then
// id, so the ranking is total and replay-stable.
func SortCandidates(candidates []ClusterCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.Cluster.MemberCount != b.Cluster.MemberCount {
			return a.Cluster.MemberCount > b.Cluster.MemberCount
		}
		if !a.Cluster.CreatedAt.Equal(b.Cluster.CreatedAt) {
			return a.Cluster.CreatedAt.Before(b.Cluster.CreatedAt)
		}
		return a.Cluster.ID.String() < b.Cluster.ID.String()
	})
}

func (r *clusterRepo) AssignMember(dbc dbctx.Context, feedbackID, clusterID uuid.UUID, vec []float64) (uuid.UUID, error) {
	attached := clusterID
	err := r.inTx(dbc, func(tx *gorm.DB) error {
		var c types.FeedbackCluster
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", clusterID).
			Limit(1).Find(&c).Error
		if err != nil {
			return err
		}
		if c.ID == uuid.Nil {
			return fmt.Errorf("cluster %s: %w", clusterID, errorsx.ErrNotFound)
		}

		res := tx.Model(&types.ExtractedFeedback{}).
			Where("id = ? AND cluster_id IS NULL", feedbackID).
			Updates(map[string]any{
				"cluster_id": clusterID,
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Already assigned by an earlier attempt or a concurrent
			// assignment; report where the row actually lives.
			var current types.ExtractedFeedback
			if err := tx.Where("id = ?", feedbackID).Limit(1).Find(&current).Error; err != nil {
				return err
			}
			if current.ID == uuid.Nil {
				return fmt.Errorf("feedback %s: %w", feedbackID, errorsx.ErrNotFound)
			}
			if current.ClusterID != nil {
				attached = *current.ClusterID
			}
			return nil
		}

		newCentroid := vector.IncrementalMean(c.CentroidVector(), c.MemberCount, vec)
		c.SetCentroidVector(newCentroid)
		return tx.Model(&types.FeedbackCluster{}).
			Where("id = ?", clusterID).
			Updates(map[string]any{
				"centroid":       c.Centroid,
				"member_count":   gorm.Expr("member_count + 1"),
				"total_mentions": gorm.Expr("total_mentions + 1"),
				"updated_at":     time.Now().UTC(),
			}).Error
	})
	if err != nil {
		return uuid.Nil, err
	}
	return attached, nil
}

func (r *clusterRepo) CreateSeeded(dbc dbctx.Context, f *types.ExtractedFeedback, vec []float64) (*types.FeedbackCluster, error) {
	var out *types.FeedbackCluster
	err := r.inTx(dbc, func(tx *gorm.DB) error {
		var current types.ExtractedFeedback
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", f.ID).
			Limit(1).Find(&current).Error
		if err != nil {
			return err
		}
		if current.ID == uuid.Nil {
			return fmt.Errorf("feedback %s: %w", f.ID, errorsx.ErrNotFound)
		}
		if current.ClusterID != nil {
			var existing types.FeedbackCluster
			if err := tx.Where("id = ?", *current.ClusterID).Limit(1).Find(&existing).Error; err != nil {
				return err
			}
			out = &existing
			return nil
		}

		c := &types.FeedbackCluster{
			ID:            uuid.New(),
			ProjectID:     f.ProjectID,
			Title:         f.Title,
			Description:   f.Description,
			MemberCount:   1,
			TotalMentions: 1,
			ReviewStatus:  types.ReviewStatusPending,
		}
		c.SetCentroidVector(vec)
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		if err := tx.Model(&types.ExtractedFeedback{}).
			Where("id = ?", f.ID).
			Updates(map[string]any{
				"cluster_id": c.ID,
				"updated_at": time.Now().UTC(),
			}).Error; err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

func (r *clusterRepo) MergeInto(dbc dbctx.Context, targetID, sourceID uuid.UUID) (*types.FeedbackCluster, error) {
	if targetID == sourceID {
		return nil, fmt.Errorf("cannot merge a cluster into itself: %w", errorsx.ErrInvalidArgument)
	}
	var out *types.FeedbackCluster
	err := r.inTx(dbc, func(tx *gorm.DB) error {
		// Lock both rows in a fixed order so concurrent merges cannot
		// deadlock. Locking the clusters also serializes against
		// AssignMember, so a racing assignment lands wholly before or
		// wholly after the merge.
		first, second := targetID, sourceID
		if second.String() < first.String() {
			first, second = second, first
		}
		var a, b types.FeedbackCluster
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", first).Limit(1).Find(&a).Error; err != nil {
			return err
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", second).Limit(1).Find(&b).Error; err != nil {
			return err
		}
		var target, source *types.FeedbackCluster
		for _, c := range []*types.FeedbackCluster{&a, &b} {
			switch c.ID {
			case targetID:
				target = c
			case sourceID:
				source = c
			}
		}
		if target == nil || target.ID == uuid.Nil {
			return fmt.Errorf("target cluster %s: %w", targetID, errorsx.ErrNotFound)
		}
		if source == nil || source.ID == uuid.Nil {
			return fmt.Errorf("source cluster %s: %w", sourceID, errorsx.ErrNotFound)
		}
		if target.ProjectID != source.ProjectID {
			return fmt.Errorf("clusters belong to different projects: %w", errorsx.ErrInvalidArgument)
		}

		if err := tx.Model(&types.ExtractedFeedback{}).
			Where("cluster_id = ?", sourceID).
			Updates(map[string]any{
				"cluster_id": targetID,
				"updated_at": time.Now().UTC(),
			}).Error; err != nil {
			return err
		}

		// Two independently-built means cannot be combined incrementally
		// without compounding error; recompute from the raw vectors.
		var members []*types.ExtractedFeedback
		if err := tx.Where("cluster_id = ? AND embedding IS NOT NULL", targetID).
			Find(&members).Error; err != nil {
			return err
		}
		vecs := make([][]float64, 0, len(members))
		for _, m := range members {
			if v := m.EmbeddingVector(); v != nil {
				vecs = append(vecs, v)
			}
		}
		target.SetCentroidVector(vector.Mean(vecs))

		if err := tx.Model(&types.FeedbackCluster{}).
			Where("id = ?", targetID).
			Updates(map[string]any{
				"centroid":       target.Centroid,
				"member_count":   target.MemberCount + source.MemberCount,
				"total_mentions": target.TotalMentions + source.TotalMentions,
				"updated_at":     time.Now().UTC(),
			}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&types.FeedbackCluster{}, "id = ?", sourceID).Error; err != nil {
			return err
		}

		var merged types.FeedbackCluster
		if err := tx.Where("id = ?", targetID).Limit(1).Find(&merged).Error; err != nil {
			return err
		}
		out = &merged
		return nil
	})
	return out, err
}

func (r *clusterRepo) DeleteWithUnlink(dbc dbctx.Context, id uuid.UUID) error {
	return r.inTx(dbc, func(tx *gorm.DB) error {
		var c types.FeedbackCluster
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).Limit(1).Find(&c).Error; err != nil {
			return err
		}
		if c.ID == uuid.Nil {
			return fmt.Errorf("cluster %s: %w", id, errorsx.ErrNotFound)
		}
		if err := tx.Model(&types.ExtractedFeedback{}).
			Where("cluster_id = ?", id).
			Updates(map[string]any{
				"cluster_id": nil,
				"updated_at": time.Now().UTC(),
			}).Error; err != nil {
			return err
		}
		return tx.Delete(&types.FeedbackCluster{}, "id = ?", id).Error
	})
}

func (r *clusterRepo) UpdateReviewStatus(dbc dbctx.Context, id uuid.UUID, status string) (bool, error) {
	res := r.handle(dbc).
		Model(&types.FeedbackCluster{}).
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

func (r *clusterRepo) SetLinkedItem(dbc dbctx.Context, id, itemID uuid.UUID) error {
	return r.handle(dbc).
		Model(&types.FeedbackCluster{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"linked_item_id": itemID,
			"updated_at":     time.Now().UTC(),
		}).Error
}
