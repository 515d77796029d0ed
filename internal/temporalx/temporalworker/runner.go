package temporalworker

import (
	"context"
	"fmt"
	"time"

	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/soreniverson/shipped-backend/internal/pkg/logger"
	"github.com/soreniverson/shipped-backend/internal/temporalx"
	"github.com/soreniverson/shipped-backend/internal/temporalx/flows"
	"github.com/soreniverson/shipped-backend/internal/utils"
)

// Runner owns the Temporal worker: it registers the pipeline workflows and
// activities on the task queue and keeps retrying startup until the server
// is reachable or the deadline passes.
type Runner struct {
	log        *logger.Logger
	tc         temporalsdkclient.Client
	activities *flows.Activities
}

func NewRunner(log *logger.Logger, tc temporalsdkclient.Client, activities *flows.Activities) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if activities == nil {
		return nil, fmt.Errorf("temporal worker missing activities")
	}
	return &Runner{log: log, tc: tc, activities: activities}, nil
}

func (r *Runner) newWorker() worker.Worker {
	cfg := temporalx.LoadConfig()
	w := worker.New(r.tc, cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: utils.GetEnvAsInt("TEMPORAL_MAX_CONCURRENT_ACTIVITIES", 10, r.log),
	})
	w.RegisterWorkflow(flows.ProcessMessageWorkflow)
	w.RegisterWorkflow(flows.SyncSourceWorkflow)
	w.RegisterWorkflow(flows.AppStorePollWorkflow)
	w.RegisterActivity(r.activities)
	return w
}

func (r *Runner) Start(ctx context.Context) error {
	cfg := temporalx.LoadConfig()
	r.log.Info("Starting Temporal worker",
		"address", cfg.Address,
		"namespace", cfg.Namespace,
		"task_queue", cfg.TaskQueue,
	)

	maxWait := time.Duration(utils.GetEnvAsInt("TEMPORAL_WORKER_START_MAX_WAIT_SECONDS", 60, r.log)) * time.Second
	backoff := time.Duration(utils.GetEnvAsInt("TEMPORAL_WORKER_START_BACKOFF_MS", 250, r.log)) * time.Millisecond
	backoffMax := time.Duration(utils.GetEnvAsInt("TEMPORAL_WORKER_START_BACKOFF_MAX_MS", 5000, r.log)) * time.Millisecond

	deadline := time.Now().Add(maxWait)
	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		w := r.newWorker()
		startErr := w.Start()
		if startErr == nil {
			go func() {
				<-ctx.Done()
				w.Stop()
			}()
			r.log.Info("Temporal worker started", "task_queue", cfg.TaskQueue, "attempts", attempt)
			return nil
		}
		w.Stop()

		if time.Now().After(deadline) {
			return fmt.Errorf("temporal worker failed to start: %w", startErr)
		}
		r.log.Warn("Temporal worker start failed; retrying",
			"attempt", attempt,
			"error", startErr.Error(),
		)

		sleep := backoff
		for i := 1; i < attempt && sleep < backoffMax; i++ {
			sleep *= 2
		}
		if sleep > backoffMax {
			sleep = backoffMax
		}
		time.Sleep(sleep)
	}
}
