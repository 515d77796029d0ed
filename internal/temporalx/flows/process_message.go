package flows

import (
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/soreniverson/shipped-backend/internal/ratelimit"
)

// ProcessMessageWorkflow drives one raw message through the pipeline:
// mark-processing → prefilter → extract → per item persist/embed/assign →
// terminal status. Every activity result is a durable checkpoint, so a
// worker crash resumes after the last completed step instead of redoing it.
func ProcessMessageWorkflow(ctx workflow.Context, in ProcessMessageInput) error {
	log := workflow.GetLogger(ctx)

	baseCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        5,
			NonRetryableErrorTypes: []string{ErrTypeValidation, ErrTypeNotFound},
		},
	})

	var a *Activities

	var eligible bool
	if err := workflow.ExecuteActivity(baseCtx, a.MarkProcessing, in.RawMessageID).Get(baseCtx, &eligible); err != nil {
		return err
	}
	if !eligible {
		// Already terminal; a duplicate start or stale replay.
		return nil
	}

	var pass bool
	if err := workflow.ExecuteActivity(baseCtx, a.EvaluatePrefilter, in.RawMessageID).Get(baseCtx, &pass); err != nil {
		return err
	}
	if !pass {
		return workflow.ExecuteActivity(baseCtx, a.MarkSkipped, in.RawMessageID).Get(baseCtx, nil)
	}

	// Quota acquisition retries without an attempt bound: a rate-limit
	// hit requeues the step with the window's delay, it never spends the
	// bounded retry budgets below.
	quotaCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        0,
			NonRetryableErrorTypes: []string{ErrTypeValidation, ErrTypeNotFound},
		},
	})

	// Extraction gets the fixed retry bound; exhausting it parks the
	// message in error for manual inspection, with no further automatic
	// retries. The bound counts extraction failures only; rate-limit
	// waits happen in the quota activity above it.
	extractCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 3 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        2 * time.Second,
			BackoffCoefficient:     2,
			MaximumInterval:        2 * time.Minute,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{ErrTypeValidation, ErrTypeNotFound},
		},
	})

	if err := workflow.ExecuteActivity(quotaCtx, a.AcquireQuota, ratelimit.ClassExtract).Get(quotaCtx, nil); err != nil {
		return err
	}

	var extracted ExtractOutput
	if err := workflow.ExecuteActivity(extractCtx, a.ExtractFeedback, in.RawMessageID).Get(extractCtx, &extracted); err != nil {
		log.Error("Extraction failed after retries", "raw_message_id", in.RawMessageID, "error", err)
		if markErr := workflow.ExecuteActivity(baseCtx, a.MarkError, in.RawMessageID, err.Error()).Get(baseCtx, nil); markErr != nil {
			return markErr
		}
		return err
	}

	for idx, item := range extracted.Items {
		var feedbackID uuid.UUID
		err := workflow.ExecuteActivity(baseCtx, a.PersistItem, PersistItemInput{
			RawMessageID: in.RawMessageID,
			ProjectID:    in.ProjectID,
			ItemIndex:    idx,
			Item:         item,
		}).Get(baseCtx, &feedbackID)
		if err != nil {
			if markErr := workflow.ExecuteActivity(baseCtx, a.MarkError, in.RawMessageID, err.Error()).Get(baseCtx, nil); markErr != nil {
				return markErr
			}
			return err
		}

		if err := workflow.ExecuteActivity(quotaCtx, a.AcquireQuota, ratelimit.ClassEmbed).Get(quotaCtx, nil); err != nil {
			log.Warn("Embedding quota unavailable; item stays unclustered",
				"raw_message_id", in.RawMessageID,
				"item_index", idx,
				"error", err,
			)
			continue
		}

		// A failed embedding leaves the item persisted and unclustered;
		// it never blocks the rest of the message.
		if err := workflow.ExecuteActivity(baseCtx, a.EmbedItem, feedbackID).Get(baseCtx, nil); err != nil {
			log.Warn("Embedding failed; item stays unclustered",
				"raw_message_id", in.RawMessageID,
				"item_index", idx,
				"error", err,
			)
			continue
		}

		var assigned AssignOutput
		if err := workflow.ExecuteActivity(baseCtx, a.AssignCluster, feedbackID).Get(baseCtx, &assigned); err != nil {
			log.Warn("Cluster assignment failed; item stays unclustered",
				"raw_message_id", in.RawMessageID,
				"item_index", idx,
				"error", err,
			)
			continue
		}
	}

	return workflow.ExecuteActivity(baseCtx, a.MarkProcessed, in.RawMessageID).Get(baseCtx, nil)
}
