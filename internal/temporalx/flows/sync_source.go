package flows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// One page per iteration keeps per-invocation runtime bounded; the
// continuation cursor survives process restarts via ContinueAsNew.
const syncPagesPerRun = 20

// SyncSourceWorkflow walks a pull-based source page by page. Each page
// fetch upserts messages keyed on (source_id, external_id), so overlapping
// syncs and re-runs are harmless.
func SyncSourceWorkflow(ctx workflow.Context, in SyncSourceInput) error {
	log := workflow.GetLogger(ctx)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        2 * time.Second,
			BackoffCoefficient:     2,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        4,
			NonRetryableErrorTypes: []string{ErrTypeValidation, ErrTypeNotFound},
		},
	})

	var a *Activities
	cursor := in.PageToken

	for pages := 0; pages < syncPagesPerRun; pages++ {
		var out FetchPageOutput
		err := workflow.ExecuteActivity(ctx, a.FetchSourcePage, FetchPageInput{
			SourceID:  in.SourceID,
			ProjectID: in.ProjectID,
			FullSync:  in.FullSync,
			PageToken: cursor,
		}).Get(ctx, &out)
		if err != nil {
			return err
		}

		if out.NextCursor == "" {
			log.Info("Source sync complete",
				"source_id", in.SourceID,
				"pages", in.PagesDone+pages+1,
			)
			return nil
		}
		cursor = out.NextCursor
		// After the first page the continuation cursor takes over.
		in.FullSync = false
	}

	return workflow.NewContinueAsNewError(ctx, SyncSourceWorkflow, SyncSourceInput{
		SourceID:  in.SourceID,
		ProjectID: in.ProjectID,
		FullSync:  false,
		PageToken: cursor,
		PagesDone: in.PagesDone + syncPagesPerRun,
	})
}
