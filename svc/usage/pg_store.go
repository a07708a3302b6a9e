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

const recordColumns = `team_id, period_start, demands_created, members_count,
	boards_count, notes_count, services_count, storage_bytes`

// ensureRecordSQL creates the month's row if missing, carrying running totals
// over from the latest earlier month. Concurrent callers race harmlessly on
// the primary key.
const ensureRecordSQL = `
	INSERT INTO usage_records (` + recordColumns + `)
	SELECT $1::uuid, $2::date, 0,
		COALESCE(prev.members_count, 0),
		COALESCE(prev.boards_count, 0),
		COALESCE(prev.notes_count, 0),
		COALESCE(prev.services_count, 0),
		COALESCE(prev.storage_bytes, 0)
	FROM (SELECT 1) AS seed
	LEFT JOIN LATERAL (
		SELECT members_count, boards_count, notes_count, services_count, storage_bytes
		FROM usage_records
		WHERE team_id = $1::uuid AND period_start < $2::date
		ORDER BY period_start DESC
		LIMIT 1
	) AS prev ON TRUE
	ON CONFLICT (team_id, period_start) DO NOTHING`

// PGStore keeps records in the usage_records table.
type PGStore struct {
	db pg.DBTX
}

// NewPGStore returns a store backed by db. Panics on nil db.
func NewPGStore(db pg.DBTX) *PGStore {
	if db == nil {
		panic("usage: db is required")
	}
	return &PGStore{db: db}
}

func (s *PGStore) Get(ctx context.Context, teamID uuid.UUID, period time.Time) (Record, error) {
	period = PeriodStart(period)
	row := s.db.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM usage_records WHERE team_id = $1 AND period_start = $2`,
		teamID, period)
	return scanOrZero(row, teamID, period)
}

func (s *PGStore) Latest(ctx context.Context, teamID uuid.UUID, at time.Time) (Record, error) {
	period := PeriodStart(at)
	row := s.db.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM usage_records
		WHERE team_id = $1 AND period_start <= $2
		ORDER BY period_start DESC LIMIT 1`,
		teamID, period)
	return scanOrZero(row, teamID, period)
}

func (s *PGStore) Increment(ctx context.Context, teamID uuid.UUID, period time.Time, res limits.Resource, delta int64) (Record, error) {
	col, ok := column(res)
	if !ok {
		return Record{}, ErrUnknownResource
	}
	if teamID == uuid.Nil {
		return Record{}, ErrMissingTeamID
	}
	period = PeriodStart(period)

	if _, err := s.db.Exec(ctx, ensureRecordSQL, teamID, period); err != nil {
		return Record{}, errors.Join(ErrFailedToUpdateUsage, err)
	}

	row := s.db.QueryRow(ctx, `
		UPDATE usage_records
		SET `+col+` = GREATEST(0, `+col+` + $3), updated_at = now()
		WHERE team_id = $1 AND period_start = $2
		RETURNING `+recordColumns,
		teamID, period, delta)
	rec, err := scanRecord(row)
	if err != nil {
		return Record{}, errors.Join(ErrFailedToUpdateUsage, err)
	}
	return rec, nil
}

func (s *PGStore) Reserve(ctx context.Context, teamID uuid.UUID, period time.Time, res limits.Resource, limit int64) (Record, error) {
	if limit == limits.Unlimited {
		return s.Increment(ctx, teamID, period, res, 1)
	}
	col, ok := column(res)
	if !ok {
		return Record{}, ErrUnknownResource
	}
	if teamID == uuid.Nil {
		return Record{}, ErrMissingTeamID
	}
	period = PeriodStart(period)

	if _, err := s.db.Exec(ctx, ensureRecordSQL, teamID, period); err != nil {
		return Record{}, errors.Join(ErrFailedToUpdateUsage, err)
	}

	// The row lock taken by UPDATE serializes concurrent reservations
	row := s.db.QueryRow(ctx, `
		UPDATE usage_records
		SET `+col+` = `+col+` + 1, updated_at = now()
		WHERE team_id = $1 AND period_start = $2 AND `+col+` + 1 <= $3
		RETURNING `+recordColumns,
		teamID, period, limit)
	rec, err := scanRecord(row)
	if pg.IsNotFoundError(err) {
		current, getErr := s.Get(ctx, teamID, period)
		if getErr != nil {
			return Record{}, errors.Join(ErrQuotaExhausted, getErr)
		}
		return current, ErrQuotaExhausted
	}
	if err != nil {
		return Record{}, errors.Join(ErrFailedToUpdateUsage, err)
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.TeamID, &rec.PeriodStart, &rec.DemandsCreated, &rec.MembersCount,
		&rec.BoardsCount, &rec.NotesCount, &rec.ServicesCount, &rec.StorageBytes,
	)
	if err != nil {
		return Record{}, err
	}
	rec.PeriodStart = rec.PeriodStart.UTC()
	return rec, nil
}

func scanOrZero(row pgx.Row, teamID uuid.UUID, period time.Time) (Record, error) {
	rec, err := scanRecord(row)
	if pg.IsNotFoundError(err) {
		return Record{TeamID: teamID, PeriodStart: period}, nil
	}
	if err != nil {
		return Record{}, errors.Join(ErrFailedToLoadUsage, err)
	}
	return rec, nil
}
