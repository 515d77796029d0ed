package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RawMessageStatusPending    = "pending"
	RawMessageStatusProcessing = "processing"
	RawMessageStatusProcessed  = "processed"
	RawMessageStatusSkipped    = "skipped"
	RawMessageStatusError      = "error"
)

// RawMessage is one inbound customer message as normalized by an ingestion
// adapter. Rows are upserted keyed on (source_id, external_id); no two rows
// ever share that pair. The pipeline only advances Status and never deletes.
type RawMessage struct {
	ID               uuid.UUID          `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ProjectID        uuid.UUID          `gorm:"type:uuid;not null;index" json:"project_id"`
	SourceID         uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex:idx_raw_message_source_external" json:"source_id"`
	Source           *IntegrationSource `gorm:"constraint:OnDelete:CASCADE;foreignKey:SourceID;references:ID" json:"source,omitempty"`
	ExternalID       string             `gorm:"column:external_id;not null;uniqueIndex:idx_raw_message_source_external" json:"external_id"`
	ThreadID         string             `gorm:"column:thread_id;index" json:"thread_id,omitempty"`
	AuthorName       string             `gorm:"column:author_name" json:"author_name,omitempty"`
	AuthorExternalID string             `gorm:"column:author_external_id" json:"author_external_id,omitempty"`
	Channel          string             `gorm:"column:channel" json:"channel,omitempty"`
	Body             string             `gorm:"column:body;not null" json:"body"`
	Metadata         datatypes.JSON     `gorm:"type:jsonb;column:metadata" json:"metadata,omitempty"`
	Status           string             `gorm:"column:status;not null;default:pending;index" json:"status"`
	Error            string             `gorm:"column:error" json:"error,omitempty"`
	ProcessedAt      *time.Time         `gorm:"column:processed_at" json:"processed_at,omitempty"`
	SentAt           *time.Time         `gorm:"column:sent_at" json:"sent_at,omitempty"`
	CreatedAt        time.Time          `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt        time.Time          `gorm:"not null;default:now()" json:"updated_at"`
}

func (RawMessage) TableName() string {
	return "raw_message"
}
