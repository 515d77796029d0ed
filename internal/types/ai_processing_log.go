package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	AIOperationExtract = "extract"
	AIOperationEmbed   = "embed"
)

// AIProcessingLog is the append-only ledger of every model invocation,
// success or failure. Never mutated after insert.
type AIProcessingLog struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ProjectID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"project_id"`
	RawMessageID *uuid.UUID `gorm:"type:uuid;column:raw_message_id;index" json:"raw_message_id,omitempty"`
	Operation    string     `gorm:"column:operation;not null" json:"operation"`
	Model        string     `gorm:"column:model;not null" json:"model"`
	InputTokens  int        `gorm:"column:input_tokens;not null;default:0" json:"input_tokens"`
	OutputTokens int        `gorm:"column:output_tokens;not null;default:0" json:"output_tokens"`
	CostUSD      float64    `gorm:"column:cost_usd;not null;default:0" json:"cost_usd"`
	LatencyMS    int64      `gorm:"column:latency_ms;not null;default:0" json:"latency_ms"`
	Success      bool       `gorm:"column:success;not null" json:"success"`
	Error        string     `gorm:"column:error" json:"error,omitempty"`
	CreatedAt    time.Time  `gorm:"not null;default:now()" json:"created_at"`
}

func (AIProcessingLog) TableName() string {
	return "ai_processing_log"
}
