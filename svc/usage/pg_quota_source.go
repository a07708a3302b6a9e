package usage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kanbanhq/demandkit/pkg/limits"
	"github.com/kanbanhq/demandkit/pkg/pg"
)

// PGQuotaSource reads board_service_quotas and demands.
type PGQuotaSource struct {
	db pg.DBTX
}

// NewPGQuotaSource returns a source backed by db. Panics on nil db.
func NewPGQuotaSource(db pg.DBTX) *PGQuotaSource {
	if db == nil {
		panic("usage: db is required")
	}
	return &PGQuotaSource{db: db}
}

// SetQuota creates or replaces a quota.
func (s *PGQuotaSource) SetQuota(ctx context.Context, q limits.ServiceQuota) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO board_service_quotas (board_id, service_id, monthly_limit)
		VALUES ($1, $2, $3)
		ON CONFLICT (board_id, service_id) DO UPDATE SET monthly_limit = EXCLUDED.monthly_limit`,
		q.BoardID, q.ServiceID, q.MonthlyLimit)
	if pg.IsCheckViolationError(err) {
		return limits.ErrInvalidQuotaConfiguration
	}
	if err != nil {
		return errors.Join(ErrFailedToLoadQuotas, err)
	}
	return nil
}

// AddDemand inserts a demand row.
func (s *PGQuotaSource) AddDemand(ctx context.Context, d Demand) error {
	var serviceID *uuid.UUID
	if d.ServiceID != uuid.Nil {
		serviceID = &d.ServiceID
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO demands (id, team_id, board_id, service_id, created_at, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.TeamID, d.BoardID, serviceID, d.CreatedAt, d.ArchivedAt)
	return err
}

// ArchiveDemand marks a demand archived so it stops counting.
func (s *PGQuotaSource) ArchiveDemand(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.db.Exec(ctx, `UPDATE demands SET archived_at = $2 WHERE id = $1 AND archived_at IS NULL`, id, at)
	return err
}

func (s *PGQuotaSource) ListQuotas(ctx context.Context, boardID uuid.UUID) ([]limits.ServiceQuota, error) {
	rows, err := s.db.Query(ctx, `
		SELECT board_id, service_id, monthly_limit
		FROM board_service_quotas
		WHERE board_id = $1
		ORDER BY service_id::text`,
		boardID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (limits.ServiceQuota, error) {
		var q limits.ServiceQuota
		err := row.Scan(&q.BoardID, &q.ServiceID, &q.MonthlyLimit)
		return q, err
	})
}

func (s *PGQuotaSource) CountDemands(ctx context.Context, boardID, serviceID uuid.UUID, period limits.Period) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `
		SELECT count(*)
		FROM demands
		WHERE board_id = $1 AND service_id = $2 AND archived_at IS NULL
			AND created_at >= $3 AND created_at < $4`,
		boardID, serviceID, period.Start, period.Start.AddDate(0, 1, 0)).Scan(&n)
	return n, err
}
