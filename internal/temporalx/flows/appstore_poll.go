package flows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// AppStorePollWorkflow is the hourly tick for pull-based sources: list the
// active App Store integrations and fan out one sync workflow per source.
func AppStorePollWorkflow(ctx workflow.Context) error {
	log := workflow.GetLogger(ctx)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	})

	var a *Activities

	var refs []SourceRef
	if err := workflow.ExecuteActivity(ctx, a.ListAppStoreSources).Get(ctx, &refs); err != nil {
		return err
	}
	if len(refs) == 0 {
		return nil
	}

	var started int
	if err := workflow.ExecuteActivity(ctx, a.StartSourceSyncs, refs).Get(ctx, &started); err != nil {
		return err
	}
	log.Info("App Store poll tick fanned out", "sources", len(refs), "started", started)
	return nil
}
