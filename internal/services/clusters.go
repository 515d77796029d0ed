package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/soreniverson/shipped-backend/internal/pkg/dbctx"
	errorsx "github.com/soreniverson/shipped-backend/internal/pkg/errors"
	"github.com/soreniverson/shipped-backend/internal/pkg/logger"
	"github.com/soreniverson/shipped-backend/internal/repos"
	"github.com/soreniverson/shipped-backend/internal/types"
)

// ClusterService exposes the manual maintenance operations. All of them
// are synchronous success-or-error; nothing partial is ever visible to the
// caller.
type ClusterService interface {
	Get(ctx context.Context, id uuid.UUID) (*types.FeedbackCluster, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*types.FeedbackCluster, error)
	// Merge absorbs source into target and returns the merged target.
	Merge(ctx context.Context, targetID, sourceID uuid.UUID) (*types.FeedbackCluster, error)
	// Dismiss hides the cluster from review surfaces. Membership and
	// centroid are untouched; in-flight jobs may still add mentions.
	Dismiss(ctx context.Context, id uuid.UUID) error
	// Delete unlinks all members, then removes the cluster.
	Delete(ctx context.Context, id uuid.UUID) error
}

type clusterService struct {
	clusters repos.ClusterRepo
	log      *logger.Logger
}

func NewClusterService(clusters repos.ClusterRepo, baseLog *logger.Logger) ClusterService {
	return &clusterService{
		clusters: clusters,
		log:      baseLog.With("service", "ClusterService"),
	}
}

func (s *clusterService) Get(ctx context.Context, id uuid.UUID) (*types.FeedbackCluster, error) {
	c, err := s.clusters.GetByID(dbctx.New(ctx), id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("cluster %s: %w", id, errorsx.ErrNotFound)
	}
	return c, nil
}

func (s *clusterService) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*types.FeedbackCluster, error) {
	return s.clusters.ListByProject(dbctx.New(ctx), projectID)
}

func (s *clusterService) Merge(ctx context.Context, targetID, sourceID uuid.UUID) (*types.FeedbackCluster, error) {
	merged, err := s.clusters.MergeInto(dbctx.New(ctx), targetID, sourceID)
	if err != nil {
		return nil, err
	}
	s.log.Info("Clusters merged",
		"target_id", targetID.String(),
		"source_id", sourceID.String(),
		"member_count", merged.MemberCount,
	)
	return merged, nil
}

func (s *clusterService) Dismiss(ctx context.Context, id uuid.UUID) error {
	ok, err := s.clusters.UpdateReviewStatus(dbctx.New(ctx), id, types.ReviewStatusRejected)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("cluster %s: %w", id, errorsx.ErrNotFound)
	}
	return nil
}

func (s *clusterService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.clusters.DeleteWithUnlink(dbctx.New(ctx), id); err != nil {
		return err
	}
	s.log.Info("Cluster deleted, members unlinked", "cluster_id", id.String())
	return nil
}
