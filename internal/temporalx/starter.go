package temporalx

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/soreniverson/shipped-backend/internal/pkg/logger"
	"github.com/soreniverson/shipped-backend/internal/services"
	"github.com/soreniverson/shipped-backend/internal/temporalx/flows"
)

// Starter hands work to Temporal. Workflow IDs are derived from row ids,
// so duplicate deliveries and overlapping syncs collapse onto the running
// execution instead of spawning twins.
type Starter struct {
	tc        temporalsdkclient.Client
	taskQueue string
	log       *logger.Logger
}

var _ services.WorkflowStarter = (*Starter)(nil)

func NewStarter(tc temporalsdkclient.Client, baseLog *logger.Logger) *Starter {
	cfg := LoadConfig()
	return &Starter{
		tc:        tc,
		taskQueue: cfg.TaskQueue,
		log:       baseLog.With("service", "WorkflowStarter"),
	}
}

func alreadyStarted(err error) bool {
	var already *serviceerror.WorkflowExecutionAlreadyStarted
	return errors.As(err, &already)
}

var errTemporalDisabled = errors.New("temporal is not configured")

func (s *Starter) StartProcessMessage(ctx context.Context, rawMessageID, projectID uuid.UUID) error {
	if s.tc == nil {
		return errTemporalDisabled
	}
	_, err := s.tc.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:        flows.ProcessMessageIDPrefix + rawMessageID.String(),
		TaskQueue: s.taskQueue,
	}, flows.ProcessMessageWorkflow, flows.ProcessMessageInput{
		RawMessageID: rawMessageID,
		ProjectID:    projectID,
	})
	if alreadyStarted(err) {
		return nil
	}
	return err
}

func (s *Starter) StartSourceSync(ctx context.Context, sourceID, projectID uuid.UUID, fullSync bool) error {
	if s.tc == nil {
		return errTemporalDisabled
	}
	_, err := s.tc.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:        flows.SyncSourceIDPrefix + sourceID.String(),
		TaskQueue: s.taskQueue,
	}, flows.SyncSourceWorkflow, flows.SyncSourceInput{
		SourceID:  sourceID,
		ProjectID: projectID,
		FullSync:  fullSync,
	})
	if alreadyStarted(err) {
		s.log.Info("Source sync already running", "source_id", sourceID.String())
		return nil
	}
	return err
}

// EnsureAppStorePoll registers the hourly poll tick. Idempotent across
// process restarts: the fixed workflow ID makes a second registration a
// no-op.
func (s *Starter) EnsureAppStorePoll(ctx context.Context) error {
	if s.tc == nil {
		return errTemporalDisabled
	}
	_, err := s.tc.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:           flows.AppStorePollScheduleID,
		TaskQueue:    s.taskQueue,
		CronSchedule: "@hourly",
	}, flows.AppStorePollWorkflow)
	if alreadyStarted(err) {
		return nil
	}
	return err
}
