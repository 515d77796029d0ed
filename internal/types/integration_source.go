package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	SourceTypeSlack    = "slack"
	SourceTypeIntercom = "intercom"
	SourceTypeAppStore = "appstore"
)

const (
	SourceStatusActive  = "active"
	SourceStatusPaused  = "paused"
	SourceStatusErrored = "errored"
	SourceStatusPending = "pending"
)

// IntegrationSource is one connected inbound channel for a project. Settings
// holds per-source options (watched channels, keyword filters, app id).
type IntegrationSource struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ProjectID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"project_id"`
	Project       *Project       `gorm:"constraint:OnDelete:CASCADE;foreignKey:ProjectID;references:ID" json:"project,omitempty"`
	Type          string         `gorm:"column:type;not null;index" json:"type"`
	Name          string         `gorm:"column:name;not null" json:"name"`
	Status        string         `gorm:"column:status;not null;default:active" json:"status"`
	SigningSecret string         `gorm:"column:signing_secret" json:"-"`
	Settings      datatypes.JSON `gorm:"type:jsonb;column:settings" json:"settings"`
	SyncCursor    string         `gorm:"column:sync_cursor" json:"sync_cursor,omitempty"`
	LastSyncedAt  *time.Time     `gorm:"column:last_synced_at" json:"last_synced_at,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (IntegrationSource) TableName() string {
	return "integration_source"
}
