package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// FeedbackCluster is a durable semantic grouping of feedback within one
// project. Centroid is always the arithmetic mean of the embeddings of all
// currently-assigned members, maintained incrementally on assignment and
// recomputed from raw vectors on merge. Clusters are destroyed only by an
// explicit human merge or delete, never automatically.
type FeedbackCluster struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ProjectID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"project_id"`
	Project       *Project       `gorm:"constraint:OnDelete:CASCADE;foreignKey:ProjectID;references:ID" json:"project,omitempty"`
	Title         string         `gorm:"column:title;not null" json:"title"`
	Description   string         `gorm:"column:description" json:"description"`
	Centroid      datatypes.JSON `gorm:"type:jsonb;column:centroid" json:"-"`
	MemberCount   int            `gorm:"column:member_count;not null;default:0" json:"member_count"`
	TotalMentions int            `gorm:"column:total_mentions;not null;default:0" json:"total_mentions"`
	ReviewStatus  string         `gorm:"column:review_status;not null;default:pending" json:"review_status"`
	LinkedItemID  *uuid.UUID     `gorm:"type:uuid;column:linked_item_id" json:"linked_item_id,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (FeedbackCluster) TableName() string {
	return "feedback_cluster"
}

func (c *FeedbackCluster) CentroidVector() []float64 {
	return decodeVector(c.Centroid)
}

func (c *FeedbackCluster) SetCentroidVector(v []float64) {
	c.Centroid = encodeVector(v)
}
