package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/soreniverson/shipped-backend/internal/pkg/dbctx"
	errorsx "github.com/soreniverson/shipped-backend/internal/pkg/errors"
	"github.com/soreniverson/shipped-backend/internal/pkg/logger"
	"github.com/soreniverson/shipped-backend/internal/platform/openai"
	"github.com/soreniverson/shipped-backend/internal/types"
)

type fakeModel struct {
	generateOut string
	generateErr error
	embedOut    [][]float64
	embedErr    error

	lastSystem string
	lastUser   string
	embedIn    []string
}

func (f *fakeModel) GenerateJSON(_ context.Context, system, user, _ string, _ map[string]any) (string, openai.Usage, error) {
	f.lastSystem = system
	f.lastUser = user
	if f.generateErr != nil {
		return "", openai.Usage{}, f.generateErr
	}
	return f.generateOut, openai.Usage{InputTokens: 120, OutputTokens: 40}, nil
}

func (f *fakeModel) Embed(_ context.Context, inputs []string) ([][]float64, openai.Usage, error) {
	f.embedIn = inputs
	if f.embedErr != nil {
		return nil, openai.Usage{}, f.embedErr
	}
	return f.embedOut, openai.Usage{InputTokens: 30}, nil
}

func (f *fakeModel) Model() string      { return "gpt-4o-mini" }
func (f *fakeModel) EmbedModel() string { return "text-embedding-3-small" }

type fakeAILog struct {
	entries []*types.AIProcessingLog
}

func (f *fakeAILog) Create(_ dbctx.Context, entries []*types.AIProcessingLog) error {
	f.entries = append(f.entries, entries...)
	return nil
}

func (f *fakeAILog) ListByMessage(_ dbctx.Context, _ uuid.UUID) ([]*types.AIProcessingLog, error) {
	return f.entries, nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func testMessage() *types.RawMessage {
	return &types.RawMessage{
		ID:        uuid.New(),
		ProjectID: uuid.New(),
		Body:      "The export button crashes, and please add CSV export while you're at it",
	}
}

func TestExtractParsesStrictContract(t *testing.T) {
	model := &fakeModel{generateOut: `{
		"has_feedback": true,
		"skip_reason": "",
		"feedback_items": [
			{"type": "bug_report", "title": "Export button crashes", "description": "Crash on export click", "quote": "The export button crashes", "confidence": 0.92, "sentiment": "negative", "urgency": "high"},
			{"type": "feature_request", "title": "CSV export", "description": "Wants CSV output", "quote": "please add CSV export", "confidence": 0.85, "sentiment": "neutral", "urgency": "medium"}
		]
	}`}
	logs := &fakeAILog{}
	ex := NewExtractor(model, logs, testLogger(t))

	res, err := ex.Extract(dbctx.New(context.Background()), testMessage(), MessageContext{SourceName: "slack", Channel: "#support", Author: "dana"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !res.HasFeedback || len(res.Items) != 2 {
		t.Fatalf("got HasFeedback=%v items=%d, want true/2", res.HasFeedback, len(res.Items))
	}
	if res.Items[0].Type != types.FeedbackTypeBugReport || res.Items[1].Type != types.FeedbackTypeFeatureRequest {
		t.Fatalf("unexpected item types: %q, %q", res.Items[0].Type, res.Items[1].Type)
	}
	if res.Usage.InputTokens != 120 || res.Usage.OutputTokens != 40 {
		t.Fatalf("usage not propagated: %+v", res.Usage)
	}

	if !strings.Contains(model.lastUser, "#support") || !strings.Contains(model.lastUser, "dana") {
		t.Fatal("message context not folded into the prompt")
	}

	if len(logs.entries) != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", len(logs.entries))
	}
	entry := logs.entries[0]
	if !entry.Success || entry.Operation != types.AIOperationExtract {
		t.Fatalf("unexpected ledger entry: %+v", entry)
	}
	if entry.CostUSD <= 0 {
		t.Fatalf("expected non-zero cost for known model, got %v", entry.CostUSD)
	}
}

func TestExtractUnwrapsProseWrappedJSON(t *testing.T) {
	model := &fakeModel{generateOut: `Sure! Here is the analysis you asked for:
{"has_feedback": false, "skip_reason": "status update, no feedback", "feedback_items": []}
Let me know if you need anything else.`}
	ex := NewExtractor(model, &fakeAILog{}, testLogger(t))

	res, err := ex.Extract(dbctx.New(context.Background()), testMessage(), MessageContext{})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.HasFeedback || len(res.Items) != 0 {
		t.Fatalf("expected no-feedback result, got %+v", res)
	}
	if res.SkipReason == "" {
		t.Fatal("skip_reason lost")
	}
}

func TestExtractParseFailures(t *testing.T) {
	cases := []struct {
		name string
		out  string
	}{
		{"no json at all", "I could not find any feedback in that message."},
		{"unbalanced braces", `{"has_feedback": true, "feedback_items": [`},
		{"unknown type", `{"has_feedback": true, "skip_reason": "", "feedback_items": [{"type": "rant", "title": "x y z", "description": "", "quote": "", "confidence": 0.9, "sentiment": "negative", "urgency": "low"}]}`},
		{"confidence out of range", `{"has_feedback": true, "skip_reason": "", "feedback_items": [{"type": "bug_report", "title": "x y z", "description": "", "quote": "", "confidence": 1.5, "sentiment": "negative", "urgency": "low"}]}`},
		{"empty title", `{"has_feedback": true, "skip_reason": "", "feedback_items": [{"type": "bug_report", "title": "  ", "description": "", "quote": "", "confidence": 0.9, "sentiment": "negative", "urgency": "low"}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			logs := &fakeAILog{}
			ex := NewExtractor(&fakeModel{generateOut: tc.out}, logs, testLogger(t))

			_, err := ex.Extract(dbctx.New(context.Background()), testMessage(), MessageContext{})
			if !errorsx.IsParse(err) {
				t.Fatalf("expected ParseError, got %v", err)
			}
			if len(logs.entries) != 1 || logs.entries[0].Success {
				t.Fatal("failed call must still land in the ledger with success=false")
			}
		})
	}
}

func TestExtractTransportFailure(t *testing.T) {
	logs := &fakeAILog{}
	ex := NewExtractor(&fakeModel{generateErr: errors.New("connection reset")}, logs, testLogger(t))

	res, err := ex.Extract(dbctx.New(context.Background()), testMessage(), MessageContext{})
	if !errorsx.IsTransport(err) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if res != nil {
		t.Fatal("no partial result on transport failure")
	}
	if len(logs.entries) != 1 || logs.entries[0].Success {
		t.Fatal("transport failure must still be logged")
	}
}

func TestExtractClampsLongTitle(t *testing.T) {
	long := strings.Repeat("a", 200)
	model := &fakeModel{generateOut: `{"has_feedback": true, "skip_reason": "", "feedback_items": [{"type": "praise", "title": "` + long + `", "description": "", "quote": "", "confidence": 0.8, "sentiment": "positive", "urgency": "low"}]}`}
	ex := NewExtractor(model, &fakeAILog{}, testLogger(t))

	res, err := ex.Extract(dbctx.New(context.Background()), testMessage(), MessageContext{})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got := len([]rune(res.Items[0].Title)); got != 80 {
		t.Fatalf("title length = %d, want 80", got)
	}
}

func TestFirstJSONObjectIgnoresBracesInStrings(t *testing.T) {
	raw := `note {"a": "brace } inside", "b": {"c": 1}} trailing`
	obj, ok := firstJSONObject(raw)
	if !ok {
		t.Fatal("expected to find object")
	}
	if obj != `{"a": "brace } inside", "b": {"c": 1}}` {
		t.Fatalf("got %q", obj)
	}
}

func TestEmbedTruncatesAndLogs(t *testing.T) {
	model := &fakeModel{embedOut: [][]float64{{0.1, 0.2, 0.3}}}
	logs := &fakeAILog{}
	em := NewEmbedder(model, logs, testLogger(t))

	projectID := uuid.New()
	msgID := uuid.New()
	long := strings.Repeat("y", embedCharBudget+500)

	vec, err := em.EmbedText(dbctx.New(context.Background()), projectID, &msgID, long)
	if err != nil {
		t.Fatalf("EmbedText: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("vector length = %d", len(vec))
	}
	if len(model.embedIn) != 1 || len(model.embedIn[0]) != embedCharBudget {
		t.Fatalf("input not truncated to budget: %d", len(model.embedIn[0]))
	}
	if len(logs.entries) != 1 || !logs.entries[0].Success || logs.entries[0].Operation != types.AIOperationEmbed {
		t.Fatalf("unexpected ledger state: %+v", logs.entries)
	}
}

func TestEmbedFailureIsTransport(t *testing.T) {
	logs := &fakeAILog{}
	em := NewEmbedder(&fakeModel{embedErr: errors.New("tls handshake timeout")}, logs, testLogger(t))

	_, err := em.EmbedText(dbctx.New(context.Background()), uuid.New(), nil, "some feedback text")
	if !errorsx.IsTransport(err) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if len(logs.entries) != 1 || logs.entries[0].Success {
		t.Fatal("embed failure must still be logged")
	}
}
