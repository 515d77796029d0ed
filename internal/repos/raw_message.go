package repos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/soreniverson/shipped-backend/internal/pkg/dbctx"
	"github.com/soreniverson/shipped-backend/internal/pkg/logger"
	"github.com/soreniverson/shipped-backend/internal/types"
)

type RawMessageRepo interface {
	// Upsert inserts the message unless a row with the same
	// (source_id, external_id) already exists. Returns the persisted row and
	// whether this call inserted it.
	Upsert(dbc dbctx.Context, m *types.RawMessage) (*types.RawMessage, bool, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.RawMessage, error)
	// TransitionStatus moves the row from one of fromStatuses to toStatus.
	// Returns false when the row was not in an eligible state, which callers
	// treat as "another worker got here first".
	TransitionStatus(dbc dbctx.Context, id uuid.UUID, fromStatuses []string, toStatus string, errMsg string) (bool, error)
	CountByStatus(dbc dbctx.Context, sourceID uuid.UUID) (map[string]int64, error)
}

type rawMessageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRawMessageRepo(db *gorm.DB, baseLog *logger.Logger) RawMessageRepo {
	return &rawMessageRepo{db: db, log: baseLog.With("repo", "RawMessageRepo")}
}

func (r *rawMessageRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *rawMessageRepo) Upsert(dbc dbctx.Context, m *types.RawMessage) (*types.RawMessage, bool, error) {
	if m == nil {
		return nil, false, nil
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	res := r.handle(dbc).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_id"}, {Name: "external_id"}},
			DoNothing: true,
		}).
		Create(m)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return m, true, nil
	}

	// Duplicate delivery: return the row the earlier delivery created.
	var existing types.RawMessage
	err := r.handle(dbc).
		Where("source_id = ? AND external_id = ?", m.SourceID, m.ExternalID).
		First(&existing).Error
	if err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

func (r *rawMessageRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.RawMessage, error) {
	var m types.RawMessage
	err := r.handle(dbc).Where("id = ?", id).Limit(1).Find(&m).Error
	if err != nil {
		return nil, err
	}
	if m.ID == uuid.Nil {
		return nil, nil
	}
	return &m, nil
}

func (r *rawMessageRepo) TransitionStatus(dbc dbctx.Context, id uuid.UUID, fromStatuses []string, toStatus string, errMsg string) (bool, error) {
	now := time.Now().UTC()
	updates := map[string]any{
		"status":     toStatus,
		"error":      errMsg,
		"updated_at": now,
	}
	if toStatus == types.RawMessageStatusProcessed || toStatus == types.RawMessageStatusSkipped {
		updates["processed_at"] = now
	}
	q := r.handle(dbc).Model(&types.RawMessage{}).Where("id = ?", id)
	if len(fromStatuses) > 0 {
		q = q.Where("status IN ?", fromStatuses)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *rawMessageRepo) CountByStatus(dbc dbctx.Context, sourceID uuid.UUID) (map[string]int64, error) {
	type row struct {
		Status string
		N      int64
	}
	var rows []row
	err := r.handle(dbc).
		Model(&types.RawMessage{}).
		Select("status, count(*) as n").
		Where("source_id = ?", sourceID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, x := range rows {
		out[x.Status] = x.N
	}
	return out, nil
}
