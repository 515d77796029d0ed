package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/soreniverson/shipped-backend/internal/pkg/dbctx"
	errorsx "github.com/soreniverson/shipped-backend/internal/pkg/errors"
	"github.com/soreniverson/shipped-backend/internal/pkg/logger"
	"github.com/soreniverson/shipped-backend/internal/platform/openai"
	"github.com/soreniverson/shipped-backend/internal/repos"
	"github.com/soreniverson/shipped-backend/internal/types"
)

// The embedding model has a token ceiling; inputs are truncated to a
// character budget first, keeping the prefix.
const embedCharBudget = 8000

// Embedder converts feedback text into a fixed-dimension vector, logging
// every call to the processing ledger the same way extraction does.
type Embedder struct {
	model  openai.Client
	aiLogs repos.AILogRepo
	log    *logger.Logger
}

func NewEmbedder(model openai.Client, aiLogs repos.AILogRepo, baseLog *logger.Logger) *Embedder {
	return &Embedder{
		model:  model,
		aiLogs: aiLogs,
		log:    baseLog.With("service", "Embedder"),
	}
}

func truncateForEmbedding(text string) string {
	runes := []rune(text)
	if len(runes) <= embedCharBudget {
		return text
	}
	return string(runes[:embedCharBudget])
}

// EmbedText returns the embedding for one piece of feedback text. A failure
// here never blocks feedback persistence; callers leave the row unclustered.
func (e *Embedder) EmbedText(dbc dbctx.Context, projectID uuid.UUID, rawMessageID *uuid.UUID, text string) ([]float64, error) {
	input := truncateForEmbedding(text)

	start := time.Now()
	vectors, usage, err := e.model.Embed(dbc.Ctx, []string{input})
	latency := time.Since(start).Milliseconds()

	if err != nil {
		terr := &errorsx.TransportError{Op: "openai.embeddings", Err: err}
		e.recordCall(dbc, projectID, rawMessageID, usage, latency, false, terr.Error())
		return nil, terr
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		perr := &errorsx.ParseError{Op: "embed", Msg: "provider returned no embedding vector"}
		e.recordCall(dbc, projectID, rawMessageID, usage, latency, false, perr.Error())
		return nil, perr
	}

	e.recordCall(dbc, projectID, rawMessageID, usage, latency, true, "")
	return vectors[0], nil
}

func (e *Embedder) recordCall(dbc dbctx.Context, projectID uuid.UUID, rawMessageID *uuid.UUID, usage openai.Usage, latencyMS int64, success bool, errMsg string) {
	entry := &types.AIProcessingLog{
		ID:           uuid.New(),
		ProjectID:    projectID,
		RawMessageID: rawMessageID,
		Operation:    types.AIOperationEmbed,
		Model:        e.model.EmbedModel(),
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CostUSD:      EstimateCostUSD(e.model.EmbedModel(), usage.InputTokens, usage.OutputTokens),
		LatencyMS:    latencyMS,
		Success:      success,
		Error:        errMsg,
	}
	if logErr := e.aiLogs.Create(dbc, []*types.AIProcessingLog{entry}); logErr != nil {
		e.log.Error("Failed to record model invocation",
			"operation", types.AIOperationEmbed,
			"error", logErr.Error(),
		)
	}
}
