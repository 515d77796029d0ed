package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoadmapStatusBacklog    = "backlog"
	RoadmapStatusPlanned    = "planned"
	RoadmapStatusInProgress = "in_progress"
	RoadmapStatusShipped    = "shipped"
)

type RoadmapItem struct {
	ID             uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ProjectID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"project_id"`
	Title          string     `gorm:"column:title;not null" json:"title"`
	Description    string     `gorm:"column:description" json:"description"`
	Status         string     `gorm:"column:status;not null;default:backlog" json:"status"`
	SourceFeedback *uuid.UUID `gorm:"type:uuid;column:source_feedback_id" json:"source_feedback_id,omitempty"`
	CreatedAt      time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (RoadmapItem) TableName() string {
	return "roadmap_item"
}
