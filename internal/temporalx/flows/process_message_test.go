package flows

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"go.temporal.io/sdk/testsuite"

	errorsx "github.com/soreniverson/shipped-backend/internal/pkg/errors"
	"github.com/soreniverson/shipped-backend/internal/pipeline"
	"github.com/soreniverson/shipped-backend/internal/ratelimit"
	"github.com/soreniverson/shipped-backend/internal/types"
)

func newEnv(t *testing.T) (*testsuite.TestWorkflowEnvironment, *Activities) {
	t.Helper()
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	a := &Activities{}
	env.RegisterWorkflow(ProcessMessageWorkflow)
	env.RegisterActivity(a)
	return env, a
}

func TestProcessMessageWorkflowHappyPath(t *testing.T) {
	env, a := newEnv(t)

	in := ProcessMessageInput{RawMessageID: uuid.New(), ProjectID: uuid.New()}
	items := []pipeline.ExtractedItem{
		{Type: types.FeedbackTypeBugReport, Title: "Export crashes", Confidence: 0.9},
		{Type: types.FeedbackTypeFeatureRequest, Title: "CSV export", Confidence: 0.8},
	}
	feedbackIDs := []uuid.UUID{uuid.New(), uuid.New()}

	env.OnActivity(a.MarkProcessing, mock.Anything, in.RawMessageID).Return(true, nil).Once()
	env.OnActivity(a.EvaluatePrefilter, mock.Anything, in.RawMessageID).Return(true, nil).Once()
	env.OnActivity(a.AcquireQuota, mock.Anything, ratelimit.ClassExtract).Return(nil).Once()
	env.OnActivity(a.ExtractFeedback, mock.Anything, in.RawMessageID).
		Return(&ExtractOutput{HasFeedback: true, Items: items}, nil).Once()
	env.OnActivity(a.AcquireQuota, mock.Anything, ratelimit.ClassEmbed).Return(nil).Times(2)

	for i := range items {
		env.OnActivity(a.PersistItem, mock.Anything, PersistItemInput{
			RawMessageID: in.RawMessageID,
			ProjectID:    in.ProjectID,
			ItemIndex:    i,
			Item:         items[i],
		}).Return(feedbackIDs[i], nil).Once()
		env.OnActivity(a.EmbedItem, mock.Anything, feedbackIDs[i]).Return(nil).Once()
		env.OnActivity(a.AssignCluster, mock.Anything, feedbackIDs[i]).
			Return(&AssignOutput{Outcome: "assigned"}, nil).Once()
	}
	env.OnActivity(a.MarkProcessed, mock.Anything, in.RawMessageID).Return(nil).Once()

	env.ExecuteWorkflow(ProcessMessageWorkflow, in)

	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}
	env.AssertExpectations(t)
}

func TestProcessMessageWorkflowPrefilterSkips(t *testing.T) {
	env, a := newEnv(t)
	in := ProcessMessageInput{RawMessageID: uuid.New(), ProjectID: uuid.New()}

	env.OnActivity(a.MarkProcessing, mock.Anything, in.RawMessageID).Return(true, nil).Once()
	env.OnActivity(a.EvaluatePrefilter, mock.Anything, in.RawMessageID).Return(false, nil).Once()
	env.OnActivity(a.MarkSkipped, mock.Anything, in.RawMessageID).Return(nil).Once()

	env.ExecuteWorkflow(ProcessMessageWorkflow, in)

	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}
	// No extraction, no model spend.
	env.AssertNotCalled(t, "ExtractFeedback", mock.Anything, mock.Anything)
	env.AssertExpectations(t)
}

func TestProcessMessageWorkflowExtractionExhaustsRetries(t *testing.T) {
	env, a := newEnv(t)
	in := ProcessMessageInput{RawMessageID: uuid.New(), ProjectID: uuid.New()}

	env.OnActivity(a.MarkProcessing, mock.Anything, in.RawMessageID).Return(true, nil).Once()
	env.OnActivity(a.EvaluatePrefilter, mock.Anything, in.RawMessageID).Return(true, nil).Once()
	env.OnActivity(a.AcquireQuota, mock.Anything, ratelimit.ClassExtract).Return(nil).Once()
	// Fails every attempt; the activity retry policy caps at 3.
	env.OnActivity(a.ExtractFeedback, mock.Anything, in.RawMessageID).
		Return(nil, errors.New("upstream 503")).Times(3)
	env.OnActivity(a.MarkError, mock.Anything, in.RawMessageID, mock.Anything).Return(nil).Once()

	env.ExecuteWorkflow(ProcessMessageWorkflow, in)

	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err == nil {
		t.Fatal("expected workflow failure after exhausted retries")
	}
	env.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything)
	env.AssertExpectations(t)
}

func TestProcessMessageWorkflowEmbedFailureDoesNotBlock(t *testing.T) {
	env, a := newEnv(t)
	in := ProcessMessageInput{RawMessageID: uuid.New(), ProjectID: uuid.New()}
	item := pipeline.ExtractedItem{Type: types.FeedbackTypePraise, Title: "Love it", Confidence: 0.9}
	feedbackID := uuid.New()

	env.OnActivity(a.MarkProcessing, mock.Anything, in.RawMessageID).Return(true, nil).Once()
	env.OnActivity(a.EvaluatePrefilter, mock.Anything, in.RawMessageID).Return(true, nil).Once()
	env.OnActivity(a.AcquireQuota, mock.Anything, ratelimit.ClassExtract).Return(nil).Once()
	env.OnActivity(a.ExtractFeedback, mock.Anything, in.RawMessageID).
		Return(&ExtractOutput{HasFeedback: true, Items: []pipeline.ExtractedItem{item}}, nil).Once()
	env.OnActivity(a.PersistItem, mock.Anything, mock.Anything).Return(feedbackID, nil).Once()
	env.OnActivity(a.AcquireQuota, mock.Anything, ratelimit.ClassEmbed).Return(nil).Once()
	// Embedding keeps failing; the item must stay persisted and the
	// message still finishes as processed.
	env.OnActivity(a.EmbedItem, mock.Anything, feedbackID).Return(errors.New("embed down")).Times(5)
	env.OnActivity(a.MarkProcessed, mock.Anything, in.RawMessageID).Return(nil).Once()

	env.ExecuteWorkflow(ProcessMessageWorkflow, in)

	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}
	env.AssertNotCalled(t, "AssignCluster", mock.Anything, mock.Anything)
	env.AssertExpectations(t)
}

func TestProcessMessageWorkflowDuplicateStartIsNoop(t *testing.T) {
	env, a := newEnv(t)
	in := ProcessMessageInput{RawMessageID: uuid.New(), ProjectID: uuid.New()}

	// Message already terminal: nothing else may run.
	env.OnActivity(a.MarkProcessing, mock.Anything, in.RawMessageID).Return(false, nil).Once()

	env.ExecuteWorkflow(ProcessMessageWorkflow, in)

	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}
	env.AssertNotCalled(t, "EvaluatePrefilter", mock.Anything, mock.Anything)
	env.AssertExpectations(t)
}

func TestProcessMessageWorkflowRateLimitWaitsWithoutFailing(t *testing.T) {
	env, a := newEnv(t)
	in := ProcessMessageInput{RawMessageID: uuid.New(), ProjectID: uuid.New()}

	// A sustained burst keeps the quota gate rate-limited well past the
	// extraction retry cap. The message must wait the windows out and
	// finish, never landing in error.
	limited := translateErr(&errorsx.LimitError{Class: ratelimit.ClassExtract, RetryAfter: time.Second})
	env.OnActivity(a.MarkProcessing, mock.Anything, in.RawMessageID).Return(true, nil).Once()
	env.OnActivity(a.EvaluatePrefilter, mock.Anything, in.RawMessageID).Return(true, nil).Once()
	env.OnActivity(a.AcquireQuota, mock.Anything, ratelimit.ClassExtract).Return(limited).Times(5)
	env.OnActivity(a.AcquireQuota, mock.Anything, ratelimit.ClassExtract).Return(nil).Once()
	env.OnActivity(a.ExtractFeedback, mock.Anything, in.RawMessageID).
		Return(&ExtractOutput{HasFeedback: false, SkipReason: "no feedback"}, nil).Once()
	env.OnActivity(a.MarkProcessed, mock.Anything, in.RawMessageID).Return(nil).Once()

	env.ExecuteWorkflow(ProcessMessageWorkflow, in)

	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}
	env.AssertNotCalled(t, "MarkError", mock.Anything, mock.Anything, mock.Anything)
	env.AssertExpectations(t)
}

func TestProcessMessageWorkflowExtractionRecoversOnRetry(t *testing.T) {
	env, a := newEnv(t)
	in := ProcessMessageInput{RawMessageID: uuid.New(), ProjectID: uuid.New()}
	item := pipeline.ExtractedItem{Type: types.FeedbackTypeBugReport, Title: "Export crashes", Confidence: 0.9}
	feedbackID := uuid.New()

	env.OnActivity(a.MarkProcessing, mock.Anything, in.RawMessageID).Return(true, nil).Once()
	env.OnActivity(a.EvaluatePrefilter, mock.Anything, in.RawMessageID).Return(true, nil).Once()
	env.OnActivity(a.AcquireQuota, mock.Anything, ratelimit.ClassExtract).Return(nil).Once()
	// Two transient failures, then success on the final allowed attempt.
	env.OnActivity(a.ExtractFeedback, mock.Anything, in.RawMessageID).
		Return(nil, errors.New("upstream 503")).Times(2)
	env.OnActivity(a.ExtractFeedback, mock.Anything, in.RawMessageID).
		Return(&ExtractOutput{HasFeedback: true, Items: []pipeline.ExtractedItem{item}}, nil).Once()
	// Exactly one persist per item index; the earlier failed attempts
	// must not produce extra rows.
	env.OnActivity(a.PersistItem, mock.Anything, PersistItemInput{
		RawMessageID: in.RawMessageID,
		ProjectID:    in.ProjectID,
		ItemIndex:    0,
		Item:         item,
	}).Return(feedbackID, nil).Once()
	env.OnActivity(a.AcquireQuota, mock.Anything, ratelimit.ClassEmbed).Return(nil).Once()
	env.OnActivity(a.EmbedItem, mock.Anything, feedbackID).Return(nil).Once()
	env.OnActivity(a.AssignCluster, mock.Anything, feedbackID).
		Return(&AssignOutput{Outcome: "assigned"}, nil).Once()
	env.OnActivity(a.MarkProcessed, mock.Anything, in.RawMessageID).Return(nil).Once()

	env.ExecuteWorkflow(ProcessMessageWorkflow, in)

	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}
	env.AssertNotCalled(t, "MarkError", mock.Anything, mock.Anything, mock.Anything)
	env.AssertExpectations(t)
}
