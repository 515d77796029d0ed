package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soreniverson/shipped-backend/internal/pkg/dbctx"
	errorsx "github.com/soreniverson/shipped-backend/internal/pkg/errors"
	"github.com/soreniverson/shipped-backend/internal/pkg/logger"
	"github.com/soreniverson/shipped-backend/internal/platform/openai"
	"github.com/soreniverson/shipped-backend/internal/repos"
	"github.com/soreniverson/shipped-backend/internal/types"
)

const (
	maxTitleChars        = 80
	extractionSchemaName = "feedback_extraction"
)

// MessageContext is optional surrounding context folded into the prompt.
type MessageContext struct {
	SourceName string
	Channel    string
	Author     string
	Prior      []string
}

// ExtractedItem is one structured feedback signal returned by the model.
type ExtractedItem struct {
	Type        string  `json:"type"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Quote       string  `json:"quote"`
	Confidence  float64 `json:"confidence"`
	Sentiment   string  `json:"sentiment"`
	Urgency     string  `json:"urgency"`
}

type extractionPayload struct {
	HasFeedback   bool            `json:"has_feedback"`
	FeedbackItems []ExtractedItem `json:"feedback_items"`
	SkipReason    string          `json:"skip_reason"`
}

// ExtractionResult carries the validated items plus the accounting data the
// caller logs. Zero items with HasFeedback=false is a normal outcome.
type ExtractionResult struct {
	HasFeedback bool
	Items       []ExtractedItem
	SkipReason  string
	Usage       openai.Usage
	LatencyMS   int64
}

var extractionSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"has_feedback", "feedback_items", "skip_reason"},
	"properties": map[string]any{
		"has_feedback": map[string]any{"type": "boolean"},
		"skip_reason":  map[string]any{"type": "string"},
		"feedback_items": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"type", "title", "description", "quote", "confidence", "sentiment", "urgency"},
				"properties": map[string]any{
					"type":        map[string]any{"type": "string", "enum": []string{types.FeedbackTypeFeatureRequest, types.FeedbackTypeBugReport, types.FeedbackTypeComplaint, types.FeedbackTypePraise, types.FeedbackTypeQuestion}},
					"title":       map[string]any{"type": "string"},
					"description": map[string]any{"type": "string"},
					"quote":       map[string]any{"type": "string"},
					"confidence":  map[string]any{"type": "number"},
					"sentiment":   map[string]any{"type": "string", "enum": []string{"positive", "neutral", "negative"}},
					"urgency":     map[string]any{"type": "string", "enum": []string{"low", "medium", "high"}},
				},
			},
		},
	},
}

const extractionSystemPrompt = `You are a product feedback analyst. You read one message from a customer channel and extract every distinct piece of product feedback it contains.

Rules:
- A message may contain zero, one, or several independent feedback items (e.g. a bug report and a feature request in the same message). Emit one item per distinct signal.
- type is one of: feature_request, bug_report, complaint, praise, question.
- title is a short product-team-facing summary, at most 80 characters.
- quote is the exact supporting excerpt from the message, verbatim.
- confidence is your 0..1 estimate that this item is genuine product feedback.
- If the message contains no product feedback, set has_feedback to false, leave feedback_items empty and explain in skip_reason.
Respond with JSON only.`

// Extractor runs the model extraction step and records every invocation,
// success or failure, in the processing ledger.
type Extractor struct {
	model  openai.Client
	aiLogs repos.AILogRepo
	log    *logger.Logger
}

func NewExtractor(model openai.Client, aiLogs repos.AILogRepo, baseLog *logger.Logger) *Extractor {
	return &Extractor{
		model:  model,
		aiLogs: aiLogs,
		log:    baseLog.With("service", "Extractor"),
	}
}

func buildExtractionPrompt(body string, mctx MessageContext) string {
	var b strings.Builder
	if mctx.SourceName != "" {
		fmt.Fprintf(&b, "Source: %s\n", mctx.SourceName)
	}
	if mctx.Channel != "" {
		fmt.Fprintf(&b, "Channel: %s\n", mctx.Channel)
	}
	if mctx.Author != "" {
		fmt.Fprintf(&b, "Author: %s\n", mctx.Author)
	}
	if len(mctx.Prior) > 0 {
		b.WriteString("Earlier messages in this thread:\n")
		for _, p := range mctx.Prior {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}
	b.WriteString("\nMessage:\n")
	b.WriteString(body)
	return b.String()
}

// firstJSONObject returns the first balanced top-level JSON object in s.
// The model is asked for JSON only but may still wrap it in prose.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func validFeedbackType(t string) bool {
	switch t {
	case types.FeedbackTypeFeatureRequest, types.FeedbackTypeBugReport,
		types.FeedbackTypeComplaint, types.FeedbackTypePraise,
		types.FeedbackTypeQuestion:
		return true
	}
	return false
}

func clampTitle(title string) string {
	title = strings.TrimSpace(title)
	runes := []rune(title)
	if len(runes) <= maxTitleChars {
		return title
	}
	return string(runes[:maxTitleChars])
}

// parseExtraction validates the raw model output against the contract. On
// any violation the whole call fails; no partial data is synthesized.
func parseExtraction(raw string) (*extractionPayload, error) {
	obj, ok := firstJSONObject(raw)
	if !ok {
		return nil, &errorsx.ParseError{Op: "extract", Msg: "no JSON object found in model output"}
	}
	var payload extractionPayload
	if err := json.Unmarshal([]byte(obj), &payload); err != nil {
		return nil, &errorsx.ParseError{Op: "extract", Msg: "malformed JSON: " + err.Error()}
	}
	for i := range payload.FeedbackItems {
		item := &payload.FeedbackItems[i]
		if !validFeedbackType(item.Type) {
			return nil, &errorsx.ParseError{Op: "extract", Msg: fmt.Sprintf("item %d: unknown feedback type %q", i, item.Type)}
		}
		item.Title = clampTitle(item.Title)
		if item.Title == "" {
			return nil, &errorsx.ParseError{Op: "extract", Msg: fmt.Sprintf("item %d: empty title", i)}
		}
		if item.Confidence < 0 || item.Confidence > 1 {
			return nil, &errorsx.ParseError{Op: "extract", Msg: fmt.Sprintf("item %d: confidence %v out of [0,1]", i, item.Confidence)}
		}
		item.Sentiment = strings.ToLower(strings.TrimSpace(item.Sentiment))
		item.Urgency = strings.ToLower(strings.TrimSpace(item.Urgency))
	}
	if payload.HasFeedback && len(payload.FeedbackItems) == 0 {
		payload.HasFeedback = false
	}
	return &payload, nil
}

// Extract runs one model call for msg. The processing-log write is
// best-effort on the failure path so the original error is what surfaces.
func (e *Extractor) Extract(dbc dbctx.Context, msg *types.RawMessage, mctx MessageContext) (*ExtractionResult, error) {
	user := buildExtractionPrompt(msg.Body, mctx)

	start := time.Now()
	raw, usage, err := e.model.GenerateJSON(dbc.Ctx, extractionSystemPrompt, user, extractionSchemaName, extractionSchema)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		terr := &errorsx.TransportError{Op: "openai.responses", Err: err}
		e.recordCall(dbc, msg, types.AIOperationExtract, e.model.Model(), usage, latency, false, terr.Error())
		return nil, terr
	}

	payload, perr := parseExtraction(raw)
	if perr != nil {
		e.recordCall(dbc, msg, types.AIOperationExtract, e.model.Model(), usage, latency, false, perr.Error())
		return nil, perr
	}

	e.recordCall(dbc, msg, types.AIOperationExtract, e.model.Model(), usage, latency, true, "")

	return &ExtractionResult{
		HasFeedback: payload.HasFeedback,
		Items:       payload.FeedbackItems,
		SkipReason:  payload.SkipReason,
		Usage:       usage,
		LatencyMS:   latency,
	}, nil
}

func (e *Extractor) recordCall(dbc dbctx.Context, msg *types.RawMessage, op, model string, usage openai.Usage, latencyMS int64, success bool, errMsg string) {
	msgID := msg.ID
	entry := &types.AIProcessingLog{
		ID:           uuid.New(),
		ProjectID:    msg.ProjectID,
		RawMessageID: &msgID,
		Operation:    op,
		Model:        model,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CostUSD:      EstimateCostUSD(model, usage.InputTokens, usage.OutputTokens),
		LatencyMS:    latencyMS,
		Success:      success,
		Error:        errMsg,
	}
	if logErr := e.aiLogs.Create(dbc, []*types.AIProcessingLog{entry}); logErr != nil {
		e.log.Error("Failed to record model invocation",
			"raw_message_id", msg.ID.String(),
			"operation", op,
			"error", logErr.Error(),
		)
	}
}
