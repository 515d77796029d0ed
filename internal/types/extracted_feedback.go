package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	FeedbackTypeFeatureRequest = "feature_request"
	FeedbackTypeBugReport      = "bug_report"
	FeedbackTypeComplaint      = "complaint"
	FeedbackTypePraise         = "praise"
	FeedbackTypeQuestion       = "question"
)

const (
	ReviewStatusPending  = "pending"
	ReviewStatusApproved = "approved"
	ReviewStatusRejected = "rejected"
	ReviewStatusMerged   = "merged"
)

// ExtractedFeedback is one structured signal extracted from a RawMessage.
// The (raw_message_id, item_index) unique index is the idempotency key for
// the persist step: replaying "insert item i of message m" short-circuits.
// Type/Title/Quote are immutable after creation; only review/link/cluster
// fields change afterward.
type ExtractedFeedback struct {
	ID               uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	RawMessageID     uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_feedback_message_item" json:"raw_message_id"`
	RawMessage       *RawMessage    `gorm:"constraint:OnDelete:CASCADE;foreignKey:RawMessageID;references:ID" json:"raw_message,omitempty"`
	ProjectID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"project_id"`
	ItemIndex        int            `gorm:"column:item_index;not null;uniqueIndex:idx_feedback_message_item" json:"item_index"`
	Type             string         `gorm:"column:type;not null" json:"type"`
	Title            string         `gorm:"column:title;not null" json:"title"`
	Description      string         `gorm:"column:description" json:"description"`
	Quote            string         `gorm:"column:quote" json:"quote"`
	Confidence       float64        `gorm:"column:confidence;not null" json:"confidence"`
	Sentiment        string         `gorm:"column:sentiment" json:"sentiment"`
	Urgency          string         `gorm:"column:urgency" json:"urgency"`
	Embedding        datatypes.JSON `gorm:"type:jsonb;column:embedding" json:"-"`
	ReviewStatus     string         `gorm:"column:review_status;not null;default:pending;index" json:"review_status"`
	ClusterID        *uuid.UUID     `gorm:"type:uuid;column:cluster_id;index" json:"cluster_id,omitempty"`
	RoadmapItemID    *uuid.UUID     `gorm:"type:uuid;column:roadmap_item_id" json:"roadmap_item_id,omitempty"`
	MergedIntoItemID *uuid.UUID     `gorm:"type:uuid;column:merged_into_item_id" json:"merged_into_item_id,omitempty"`
	CreatedAt        time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (ExtractedFeedback) TableName() string {
	return "extracted_feedback"
}

// EmbeddingVector decodes the stored jsonb embedding. Returns nil when no
// embedding has been computed yet.
func (f *ExtractedFeedback) EmbeddingVector() []float64 {
	return decodeVector(f.Embedding)
}

func (f *ExtractedFeedback) SetEmbeddingVector(v []float64) {
	f.Embedding = encodeVector(v)
}

func decodeVector(raw datatypes.JSON) []float64 {
	if len(raw) == 0 {
		return nil
	}
	var v []float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	if len(v) == 0 {
		return nil
	}
	return v
}

func encodeVector(v []float64) datatypes.JSON {
	if len(v) == 0 {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
