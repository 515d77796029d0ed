package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/soreniverson/shipped-backend/internal/pkg/dbctx"
	errorsx "github.com/soreniverson/shipped-backend/internal/pkg/errors"
	"github.com/soreniverson/shipped-backend/internal/pkg/logger"
	"github.com/soreniverson/shipped-backend/internal/repos"
	"github.com/soreniverson/shipped-backend/internal/sources"
	"github.com/soreniverson/shipped-backend/internal/types"
)

// WorkflowStarter is how the ingest path hands work to the orchestrator.
// Implemented by the Temporal client wrapper; faked in tests.
type WorkflowStarter interface {
	StartProcessMessage(ctx context.Context, rawMessageID, projectID uuid.UUID) error
	StartSourceSync(ctx context.Context, sourceID, projectID uuid.UUID, fullSync bool) error
}

// SourceStatus is the operator-facing view of one integration, including
// how many messages are stuck in error after exhausting retries.
type SourceStatus struct {
	Source        *types.IntegrationSource `json:"source"`
	MessageCounts map[string]int64         `json:"message_counts"`
	ErrorCount    int64                    `json:"error_count"`
}

type IngestService interface {
	// HandleInbound validates, parses, and persists one webhook delivery,
	// then schedules processing for each newly inserted message. Returns
	// how many messages were accepted (duplicates are not errors).
	HandleInbound(ctx context.Context, sourceID uuid.UUID, headers http.Header, body []byte) (int, error)
	// StartSync kicks off a paged history sync for a pull-based source.
	StartSync(ctx context.Context, sourceID uuid.UUID, fullSync bool) error
	Status(ctx context.Context, sourceID uuid.UUID) (*SourceStatus, error)
}

type ingestService struct {
	sources  repos.IntegrationSourceRepo
	messages repos.RawMessageRepo
	registry *sources.Registry
	starter  WorkflowStarter
	log      *logger.Logger
}

func NewIngestService(
	sourceRepo repos.IntegrationSourceRepo,
	messages repos.RawMessageRepo,
	registry *sources.Registry,
	starter WorkflowStarter,
	baseLog *logger.Logger,
) IngestService {
	return &ingestService{
		sources:  sourceRepo,
		messages: messages,
		registry: registry,
		starter:  starter,
		log:      baseLog.With("service", "IngestService"),
	}
}

func (s *ingestService) loadActiveSource(ctx context.Context, sourceID uuid.UUID) (*types.IntegrationSource, error) {
	src, err := s.sources.GetByID(dbctx.New(ctx), sourceID)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("integration source %s: %w", sourceID, errorsx.ErrNotFound)
	}
	if src.Status != types.SourceStatusActive {
		return nil, &errorsx.ValidationError{Msg: "integration source is not active"}
	}
	return src, nil
}

// ToRawMessage converts a canonical adapter message into the persisted row
// shape for src.
func ToRawMessage(src *types.IntegrationSource, cm sources.CanonicalMessage) *types.RawMessage {
	m := &types.RawMessage{
		ProjectID:        src.ProjectID,
		SourceID:         src.ID,
		ExternalID:       cm.ExternalID,
		ThreadID:         cm.ThreadID,
		AuthorName:       cm.AuthorName,
		AuthorExternalID: cm.AuthorExternalID,
		Channel:          cm.Channel,
		Body:             cm.Body,
		Status:           types.RawMessageStatusPending,
		SentAt:           cm.SentAt,
	}
	if len(cm.Metadata) > 0 {
		if raw, err := json.Marshal(cm.Metadata); err == nil {
			m.Metadata = datatypes.JSON(raw)
		}
	}
	return m
}

func (s *ingestService) HandleInbound(ctx context.Context, sourceID uuid.UUID, headers http.Header, body []byte) (int, error) {
	src, err := s.loadActiveSource(ctx, sourceID)
	if err != nil {
		return 0, err
	}
	adapter, err := s.registry.For(src.Type)
	if err != nil {
		return 0, err
	}

	if err := adapter.ValidateInbound(src, headers, body); err != nil {
		s.log.Warn("Inbound delivery rejected",
			"source_id", sourceID.String(),
			"error", err.Error(),
		)
		return 0, err
	}
	msgs, err := adapter.ParseInbound(src, body)
	if err != nil {
		return 0, err
	}

	accepted := 0
	for _, cm := range msgs {
		if cm.ExternalID == "" || cm.Body == "" {
			continue
		}
		row, inserted, err := s.messages.Upsert(dbctx.New(ctx), ToRawMessage(src, cm))
		if err != nil {
			return accepted, err
		}
		if !inserted {
			// Duplicate delivery; the original is already in flight.
			continue
		}
		accepted++
		if err := s.starter.StartProcessMessage(ctx, row.ID, row.ProjectID); err != nil {
			// The row stays pending; a later sync or retry picks it up.
			s.log.Error("Failed to schedule message processing",
				"raw_message_id", row.ID.String(),
				"error", err.Error(),
			)
		}
	}
	return accepted, nil
}

func (s *ingestService) StartSync(ctx context.Context, sourceID uuid.UUID, fullSync bool) error {
	src, err := s.loadActiveSource(ctx, sourceID)
	if err != nil {
		return err
	}
	return s.starter.StartSourceSync(ctx, src.ID, src.ProjectID, fullSync)
}

func (s *ingestService) Status(ctx context.Context, sourceID uuid.UUID) (*SourceStatus, error) {
	src, err := s.sources.GetByID(dbctx.New(ctx), sourceID)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("integration source %s: %w", sourceID, errorsx.ErrNotFound)
	}
	counts, err := s.messages.CountByStatus(dbctx.New(ctx), sourceID)
	if err != nil {
		return nil, err
	}
	return &SourceStatus{
		Source:        src,
		MessageCounts: counts,
		ErrorCount:    counts[types.RawMessageStatusError],
	}, nil
}
