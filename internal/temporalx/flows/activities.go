package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"

	"github.com/soreniverson/shipped-backend/internal/cluster"
	"github.com/soreniverson/shipped-backend/internal/pkg/dbctx"
	errorsx "github.com/soreniverson/shipped-backend/internal/pkg/errors"
	"github.com/soreniverson/shipped-backend/internal/pkg/logger"
	"github.com/soreniverson/shipped-backend/internal/pipeline"
	"github.com/soreniverson/shipped-backend/internal/ratelimit"
	"github.com/soreniverson/shipped-backend/internal/repos"
	"github.com/soreniverson/shipped-backend/internal/services"
	"github.com/soreniverson/shipped-backend/internal/sources"
	"github.com/soreniverson/shipped-backend/internal/types"
)

// Error types the workflows key retry behavior on.
const (
	ErrTypeValidation  = "validation_error"
	ErrTypeNotFound    = "not_found"
	ErrTypeRateLimited = "rate_limited"
)

// Activities carries the injected pipeline dependencies. Every method is a
// Temporal activity; each one is idempotent so at-least-once execution and
// replay-from-checkpoint are safe.
type Activities struct {
	Messages  repos.RawMessageRepo
	Feedback  repos.FeedbackRepo
	Sources   repos.IntegrationSourceRepo
	Extractor *pipeline.Extractor
	Embedder  *pipeline.Embedder
	Engine    *cluster.Engine
	Limiter   *ratelimit.Limiter
	Registry  *sources.Registry
	Starter   services.WorkflowStarter
	Log       *logger.Logger
}

// translateErr maps the domain taxonomy onto Temporal retry semantics:
// validation and not-found never retry, rate limits retry after the window,
// everything else follows the activity retry policy.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	var le *errorsx.LimitError
	if errors.As(err, &le) {
		return temporal.NewApplicationErrorWithOptions(err.Error(), ErrTypeRateLimited,
			temporal.ApplicationErrorOptions{NextRetryDelay: le.RetryAfter})
	}
	if errorsx.IsValidation(err) {
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeValidation, err)
	}
	if errors.Is(err, errorsx.ErrNotFound) {
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeNotFound, err)
	}
	return err
}

// MarkProcessing transitions pending → processing before any external call,
// so a crash mid-processing leaves visible evidence. Returns false when the
// message is already terminal or gone.
func (a *Activities) MarkProcessing(ctx context.Context, rawMessageID uuid.UUID) (bool, error) {
	ok, err := a.Messages.TransitionStatus(dbctx.New(ctx), rawMessageID,
		[]string{types.RawMessageStatusPending, types.RawMessageStatusProcessing},
		types.RawMessageStatusProcessing, "")
	if err != nil {
		return false, translateErr(err)
	}
	return ok, nil
}

// EvaluatePrefilter decides whether the message is worth a model call.
func (a *Activities) EvaluatePrefilter(ctx context.Context, rawMessageID uuid.UUID) (bool, error) {
	msg, err := a.Messages.GetByID(dbctx.New(ctx), rawMessageID)
	if err != nil {
		return false, translateErr(err)
	}
	if msg == nil {
		return false, translateErr(fmt.Errorf("raw message %s: %w", rawMessageID, errorsx.ErrNotFound))
	}
	return pipeline.ShouldProcess(msg.Body), nil
}

func (a *Activities) MarkSkipped(ctx context.Context, rawMessageID uuid.UUID) error {
	_, err := a.Messages.TransitionStatus(dbctx.New(ctx), rawMessageID,
		[]string{types.RawMessageStatusProcessing},
		types.RawMessageStatusSkipped, "")
	return translateErr(err)
}

func (a *Activities) MarkProcessed(ctx context.Context, rawMessageID uuid.UUID) error {
	_, err := a.Messages.TransitionStatus(dbctx.New(ctx), rawMessageID,
		[]string{types.RawMessageStatusProcessing},
		types.RawMessageStatusProcessed, "")
	return translateErr(err)
}

func (a *Activities) MarkError(ctx context.Context, rawMessageID uuid.UUID, errMsg string) error {
	_, err := a.Messages.TransitionStatus(dbctx.New(ctx), rawMessageID,
		[]string{types.RawMessageStatusProcessing},
		types.RawMessageStatusError, errMsg)
	return translateErr(err)
}

// AcquireQuota consumes one slot of the per-minute budget for a call
// class. It runs as its own activity, separate from the call it gates, so
// waiting out a rate-limit window never spends the bounded retry budget
// of the model call itself.
func (a *Activities) AcquireQuota(ctx context.Context, class string) error {
	return translateErr(a.Limiter.Allow(ctx, class))
}

// ExtractFeedback runs the model extraction for one message. The caller
// acquires extract-class quota first.
func (a *Activities) ExtractFeedback(ctx context.Context, rawMessageID uuid.UUID) (*ExtractOutput, error) {
	dbc := dbctx.New(ctx)
	msg, err := a.Messages.GetByID(dbc, rawMessageID)
	if err != nil {
		return nil, translateErr(err)
	}
	if msg == nil {
		return nil, translateErr(fmt.Errorf("raw message %s: %w", rawMessageID, errorsx.ErrNotFound))
	}

	mctx := pipeline.MessageContext{
		Channel: msg.Channel,
		Author:  msg.AuthorName,
	}
	if src, err := a.Sources.GetByID(dbc, msg.SourceID); err == nil && src != nil {
		mctx.SourceName = src.Name
	}

	res, err := a.Extractor.Extract(dbc, msg, mctx)
	if err != nil {
		return nil, translateErr(err)
	}
	return &ExtractOutput{
		HasFeedback: res.HasFeedback,
		SkipReason:  res.SkipReason,
		Items:       res.Items,
	}, nil
}

// PersistItem inserts one extracted item keyed by (raw_message_id,
// item_index); replays return the already-persisted row's id.
func (a *Activities) PersistItem(ctx context.Context, in PersistItemInput) (uuid.UUID, error) {
	row, err := a.Feedback.InsertItem(dbctx.New(ctx), &types.ExtractedFeedback{
		RawMessageID: in.RawMessageID,
		ProjectID:    in.ProjectID,
		ItemIndex:    in.ItemIndex,
		Type:         in.Item.Type,
		Title:        in.Item.Title,
		Description:  in.Item.Description,
		Quote:        in.Item.Quote,
		Confidence:   in.Item.Confidence,
		Sentiment:    in.Item.Sentiment,
		Urgency:      in.Item.Urgency,
		ReviewStatus: types.ReviewStatusPending,
	})
	if err != nil {
		return uuid.Nil, translateErr(err)
	}
	return row.ID, nil
}

// EmbedItem computes and stores the embedding for one feedback row. A row
// that already has one is left alone.
func (a *Activities) EmbedItem(ctx context.Context, feedbackID uuid.UUID) error {
	dbc := dbctx.New(ctx)
	f, err := a.Feedback.GetByID(dbc, feedbackID)
	if err != nil {
		return translateErr(err)
	}
	if f == nil {
		return translateErr(fmt.Errorf("feedback %s: %w", feedbackID, errorsx.ErrNotFound))
	}
	if f.EmbeddingVector() != nil {
		return nil
	}

	text := strings.TrimSpace(f.Title + "\n" + f.Description + "\n" + f.Quote)
	msgID := f.RawMessageID
	vec, err := a.Embedder.EmbedText(dbc, f.ProjectID, &msgID, text)
	if err != nil {
		return translateErr(err)
	}
	return translateErr(a.Feedback.SetEmbedding(dbc, feedbackID, vec))
}

// AssignCluster runs the assignment engine for one embedded feedback row.
// Rows without an embedding stay unclustered; that is terminal, not an
// error.
func (a *Activities) AssignCluster(ctx context.Context, feedbackID uuid.UUID) (*AssignOutput, error) {
	dbc := dbctx.New(ctx)
	f, err := a.Feedback.GetByID(dbc, feedbackID)
	if err != nil {
		return nil, translateErr(err)
	}
	if f == nil {
		return nil, translateErr(fmt.Errorf("feedback %s: %w", feedbackID, errorsx.ErrNotFound))
	}
	if f.ClusterID != nil {
		return &AssignOutput{Outcome: string(cluster.OutcomeAssigned), ClusterID: f.ClusterID}, nil
	}
	vec := f.EmbeddingVector()
	if vec == nil {
		return &AssignOutput{Outcome: string(cluster.OutcomeUnclustered)}, nil
	}

	res, err := a.Engine.Assign(dbc, f, vec)
	if err != nil {
		return nil, translateErr(err)
	}
	return &AssignOutput{Outcome: string(res.Outcome), ClusterID: res.ClusterID}, nil
}

// FetchSourcePage pulls one page for a pull-based source, upserts the
// messages, and schedules processing for the new ones. Duplicate reviews
// are silently skipped by the upsert key.
func (a *Activities) FetchSourcePage(ctx context.Context, in FetchPageInput) (*FetchPageOutput, error) {
	dbc := dbctx.New(ctx)
	src, err := a.Sources.GetByID(dbc, in.SourceID)
	if err != nil {
		return nil, translateErr(err)
	}
	if src == nil {
		return nil, translateErr(fmt.Errorf("integration source %s: %w", in.SourceID, errorsx.ErrNotFound))
	}

	adapter, err := a.Registry.For(src.Type)
	if err != nil {
		return nil, translateErr(err)
	}

	cursor := in.PageToken
	if cursor == "" && !in.FullSync {
		cursor = src.SyncCursor
	}

	page, err := adapter.FetchPage(ctx, src, cursor)
	if err != nil {
		return nil, translateErr(err)
	}

	out := &FetchPageOutput{Fetched: len(page.Messages), NextCursor: page.NextCursor}
	for _, cm := range page.Messages {
		if cm.ExternalID == "" || cm.Body == "" {
			continue
		}
		row, inserted, err := a.Messages.Upsert(dbc, services.ToRawMessage(src, cm))
		if err != nil {
			return nil, translateErr(err)
		}
		if !inserted {
			continue
		}
		out.Inserted++
		if a.Starter != nil {
			if err := a.Starter.StartProcessMessage(ctx, row.ID, row.ProjectID); err != nil {
				a.Log.Error("Failed to schedule message processing during sync",
					"raw_message_id", row.ID.String(),
					"error", err.Error(),
				)
			}
		}
	}

	if page.NextCursor == "" {
		if err := a.Sources.UpdateSyncState(dbc, src.ID, "", time.Now().UTC()); err != nil {
			return nil, translateErr(err)
		}
	} else if err := a.Sources.UpdateSyncState(dbc, src.ID, page.NextCursor, time.Now().UTC()); err != nil {
		return nil, translateErr(err)
	}
	return out, nil
}

// ListAppStoreSources returns the active pull-based sources for the hourly
// poll fan-out.
func (a *Activities) ListAppStoreSources(ctx context.Context) ([]SourceRef, error) {
	list, err := a.Sources.ListByType(dbctx.New(ctx), types.SourceTypeAppStore)
	if err != nil {
		return nil, translateErr(err)
	}
	out := make([]SourceRef, 0, len(list))
	for _, src := range list {
		out = append(out, SourceRef{SourceID: src.ID, ProjectID: src.ProjectID})
	}
	return out, nil
}

// StartSourceSyncs fans the poll tick out to one sync workflow per source.
// A source whose previous sync is still running is skipped by workflow ID
// dedup, so a failure to start one source never blocks the others.
func (a *Activities) StartSourceSyncs(ctx context.Context, refs []SourceRef) (int, error) {
	if a.Starter == nil {
		return 0, nil
	}
	started := 0
	for _, ref := range refs {
		if err := a.Starter.StartSourceSync(ctx, ref.SourceID, ref.ProjectID, false); err != nil {
			a.Log.Error("Failed to start source sync",
				"source_id", ref.SourceID.String(),
				"error", err.Error(),
			)
			continue
		}
		started++
	}
	return started, nil
}
