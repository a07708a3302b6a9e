package timetrack

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kanbanhq/demandkit/pkg/pg"
)

const entryColumns = `id, team_id, demand_id, user_id, base_seconds, active,
	last_started_at, created_at, updated_at`

// PGStore keeps entries in the time_entries table. The partial unique index
// on running entries enforces one active timer per user and demand.
type PGStore struct {
	db pg.DBTX
}

// NewPGStore returns a store backed by db. Panics on nil db.
func NewPGStore(db pg.DBTX) *PGStore {
	if db == nil {
		panic("timetrack: db is required")
	}
	return &PGStore{db: db}
}

func (s *PGStore) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return scanEntry(s.db.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM time_entries WHERE id = $1`, id))
}

func (s *PGStore) FindRunning(ctx context.Context, userID, demandID uuid.UUID) (*Entry, error) {
	return scanEntry(s.db.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM time_entries
		WHERE user_id = $1 AND demand_id = $2 AND active`, userID, demandID))
}

func (s *PGStore) ListActive(ctx context.Context, teamID uuid.UUID) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+entryColumns+` FROM time_entries
		WHERE team_id = $1 AND active
		ORDER BY last_started_at NULLS FIRST, id`, teamID)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadEntry, err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		e, err := scanEntry(row)
		if err != nil {
			return Entry{}, err
		}
		return *e, nil
	})
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadEntry, err)
	}
	return entries, nil
}

func (s *PGStore) Save(ctx context.Context, e *Entry) error {
	if e.TeamID == uuid.Nil {
		return ErrMissingTeamID
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO time_entries (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			base_seconds = EXCLUDED.base_seconds,
			active = EXCLUDED.active,
			last_started_at = EXCLUDED.last_started_at,
			updated_at = EXCLUDED.updated_at`,
		e.ID, e.TeamID, e.DemandID, e.UserID, e.BaseSeconds, e.Active,
		nullTime(e.LastStartedAt), e.CreatedAt, e.UpdatedAt,
	)
	if pg.IsDuplicateKeyError(err) {
		return ErrAlreadyRunning
	}
	if err != nil {
		return errors.Join(ErrFailedToSaveEntry, err)
	}
	return nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var (
		e       Entry
		started *time.Time
	)
	err := row.Scan(
		&e.ID, &e.TeamID, &e.DemandID, &e.UserID, &e.BaseSeconds, &e.Active,
		&started, &e.CreatedAt, &e.UpdatedAt,
	)
	if pg.IsNotFoundError(err) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadEntry, err)
	}
	if started != nil {
		e.LastStartedAt = *started
	}
	return &e, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
