package cluster

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/soreniverson/shipped-backend/internal/pkg/dbctx"
	errorsx "github.com/soreniverson/shipped-backend/internal/pkg/errors"
	"github.com/soreniverson/shipped-backend/internal/pkg/logger"
	"github.com/soreniverson/shipped-backend/internal/repos"
	"github.com/soreniverson/shipped-backend/internal/types"
)

const (
	// SimilarityThreshold is the cosine similarity at or above which a
	// feedback item joins the nearest existing cluster.
	SimilarityThreshold = 0.85
	// MinSeedConfidence gates new-cluster creation: extractions below it
	// stay unclustered rather than seeding noisy clusters.
	MinSeedConfidence = 0.7
	// CandidateK bounds the nearest-neighbor candidate set.
	CandidateK = 5
	// assignReselects bounds how many times a candidate that vanished
	// between selection and attach triggers a fresh selection.
	assignReselects = 3
)

// Outcome says what the engine did with one feedback item.
type Outcome string

const (
	OutcomeAssigned    Outcome = "assigned"
	OutcomeCreated     Outcome = "created"
	OutcomeUnclustered Outcome = "unclustered"
)

// Result reports the terminal state of one assignment. ClusterID is nil
// only for OutcomeUnclustered.
type Result struct {
	Outcome    Outcome
	ClusterID  *uuid.UUID
	Similarity float64
}

// Store is the slice of persistence the engine needs. repos.ClusterRepo
// satisfies it; tests substitute an in-memory fake.
type Store interface {
	NearestByCentroid(dbc dbctx.Context, projectID uuid.UUID, vec []float64, k int) ([]repos.ClusterCandidate, error)
	AssignMember(dbc dbctx.Context, feedbackID, clusterID uuid.UUID, vec []float64) (uuid.UUID, error)
	CreateSeeded(dbc dbctx.Context, f *types.ExtractedFeedback, vec []float64) (*types.FeedbackCluster, error)
}

// Engine decides, for each embedded feedback item, whether it joins an
// existing cluster, seeds a new one, or stays unclustered.
type Engine struct {
	store Store
	log   *logger.Logger
}

func NewEngine(store Store, baseLog *logger.Logger) *Engine {
	return &Engine{store: store, log: baseLog.With("service", "ClusterEngine")}
}

// Assign runs the assignment algorithm for feedback f with embedding vec.
// Safe to replay: an item that already carries a cluster_id is left where
// it is by the store's conditional writes.
func (e *Engine) Assign(dbc dbctx.Context, f *types.ExtractedFeedback, vec []float64) (*Result, error) {
	for attempt := 1; ; attempt++ {
		candidates, err := e.store.NearestByCentroid(dbc, f.ProjectID, vec, CandidateK)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 || candidates[0].Similarity < SimilarityThreshold {
			break
		}

		best := candidates[0]
		attachedID, err := e.store.AssignMember(dbc, f.ID, best.Cluster.ID, vec)
		if err == nil {
			e.log.Debug("Feedback joined existing cluster",
				"feedback_id", f.ID.String(),
				"cluster_id", attachedID.String(),
				"similarity", best.Similarity,
			)
			id := attachedID
			return &Result{Outcome: OutcomeAssigned, ClusterID: &id, Similarity: best.Similarity}, nil
		}
		if !errors.Is(err, errorsx.ErrNotFound) {
			return nil, err
		}
		if attempt >= assignReselects {
			// %v, not %w: the race is retryable even though its
			// immediate cause is a missing row.
			return nil, fmt.Errorf("cluster assignment for feedback %s lost its candidate %d times: %v", f.ID, attempt, err)
		}
		// The candidate was merged or deleted after selection; pick
		// again from the surviving clusters.
		e.log.Warn("Assignment candidate vanished; reselecting",
			"feedback_id", f.ID.String(),
			"cluster_id", best.Cluster.ID.String(),
		)
	}

	if f.Confidence < MinSeedConfidence {
		// Valid terminal state: not similar enough to join, not confident
		// enough to seed.
		e.log.Debug("Feedback left unclustered",
			"feedback_id", f.ID.String(),
			"confidence", f.Confidence,
		)
		return &Result{Outcome: OutcomeUnclustered}, nil
	}

	created, err := e.store.CreateSeeded(dbc, f, vec)
	if err != nil {
		return nil, err
	}
	e.log.Debug("Feedback seeded new cluster",
		"feedback_id", f.ID.String(),
		"cluster_id", created.ID.String(),
	)
	id := created.ID
	return &Result{Outcome: OutcomeCreated, ClusterID: &id}, nil
}
