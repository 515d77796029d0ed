package flows

import (
	"github.com/google/uuid"

	"github.com/soreniverson/shipped-backend/internal/pipeline"
)

// Workflow ID prefixes double as dedup keys: starting a workflow for a
// message or source that already has one running is a no-op.
const (
	ProcessMessageIDPrefix = "process-message-"
	SyncSourceIDPrefix     = "sync-source-"
	AppStorePollScheduleID = "appstore-poll"
)

type ProcessMessageInput struct {
	RawMessageID uuid.UUID `json:"raw_message_id"`
	ProjectID    uuid.UUID `json:"project_id"`
}

type SyncSourceInput struct {
	SourceID  uuid.UUID `json:"source_id"`
	ProjectID uuid.UUID `json:"project_id"`
	FullSync  bool      `json:"full_sync"`
	PageToken string    `json:"page_token"`
	// Pages already walked in this sync, carried across ContinueAsNew.
	PagesDone int `json:"pages_done"`
}

type ExtractOutput struct {
	HasFeedback bool                     `json:"has_feedback"`
	SkipReason  string                   `json:"skip_reason"`
	Items       []pipeline.ExtractedItem `json:"items"`
}

type PersistItemInput struct {
	RawMessageID uuid.UUID              `json:"raw_message_id"`
	ProjectID    uuid.UUID              `json:"project_id"`
	ItemIndex    int                    `json:"item_index"`
	Item         pipeline.ExtractedItem `json:"item"`
}

type AssignOutput struct {
	Outcome   string     `json:"outcome"`
	ClusterID *uuid.UUID `json:"cluster_id,omitempty"`
}

type FetchPageInput struct {
	SourceID  uuid.UUID `json:"source_id"`
	ProjectID uuid.UUID `json:"project_id"`
	FullSync  bool      `json:"full_sync"`
	PageToken string    `json:"page_token"`
}

type FetchPageOutput struct {
	Fetched    int    `json:"fetched"`
	Inserted   int    `json:"inserted"`
	NextCursor string `json:"next_cursor"`
}

type SourceRef struct {
	SourceID  uuid.UUID `json:"source_id"`
	ProjectID uuid.UUID `json:"project_id"`
}
