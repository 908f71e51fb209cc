package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/swiss-engine/models"
	"github.com/lib/pq"
)

var (
	ErrRoundNotFound = errors.New("round not found")
	// ErrRoundAlreadyExists maps the unique (phase_id, round_number)
	// constraint: the second of two racing pairing generations lands here
	// and returns the winner's pairings instead of creating a second set.
	ErrRoundAlreadyExists = errors.New("round already exists for this phase and number")
	ErrRoundStateConflict = errors.New("round state changed concurrently")
)

type RoundRepository interface {
	Create(ctx context.Context, exec SQLExecutor, round *models.Round) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Round, error)
	GetByPhaseAndNumber(ctx context.Context, exec SQLExecutor, phaseID, roundNumber int) (*models.Round, error)
	ListByPhase(ctx context.Context, exec SQLExecutor, phaseID int) ([]*models.Round, error)
	// Start and Complete are compare-and-swaps on the status column.
	Start(ctx context.Context, exec SQLExecutor, id int, startedAt, endsAt time.Time) error
	Complete(ctx context.Context, exec SQLExecutor, id int) error
	AddExtension(ctx context.Context, exec SQLExecutor, id, minutes int) error
}

type postgresRoundRepository struct {
	db *sql.DB
}

func NewPostgresRoundRepository(db *sql.DB) RoundRepository {
	return &postgresRoundRepository{db: db}
}

func (r *postgresRoundRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresRoundRepository) Create(ctx context.Context, exec SQLExecutor, round *models.Round) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO rounds (phase_id, round_number, status, extension_minutes)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		round.PhaseID, round.RoundNumber, round.Status, round.ExtensionMinutes,
	).Scan(&round.ID, &round.CreatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Constraint == "rounds_phase_id_round_number_key" {
		return ErrRoundAlreadyExists
	}
	return err
}

func (r *postgresRoundRepository) scanRound(rowScanner interface{ Scan(...interface{}) error }) (*models.Round, error) {
	rd := &models.Round{}
	err := rowScanner.Scan(
		&rd.ID, &rd.PhaseID, &rd.RoundNumber, &rd.Status,
		&rd.StartedAt, &rd.EndsAt, &rd.ExtensionMinutes, &rd.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoundNotFound
		}
		return nil, fmt.Errorf("failed to scan round: %w", err)
	}
	return rd, nil
}

const roundColumns = `id, phase_id, round_number, status, started_at, ends_at, extension_minutes, created_at`

func (r *postgresRoundRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Round, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE id = $1`
	return r.scanRound(executor.QueryRowContext(ctx, query, id))
}

func (r *postgresRoundRepository) GetByPhaseAndNumber(ctx context.Context, exec SQLExecutor, phaseID, roundNumber int) (*models.Round, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE phase_id = $1 AND round_number = $2`
	return r.scanRound(executor.QueryRowContext(ctx, query, phaseID, roundNumber))
}

func (r *postgresRoundRepository) ListByPhase(ctx context.Context, exec SQLExecutor, phaseID int) ([]*models.Round, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE phase_id = $1 ORDER BY round_number ASC`

	rows, err := executor.QueryContext(ctx, query, phaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds for phase %d: %w", phaseID, err)
	}
	defer rows.Close()

	rounds := make([]*models.Round, 0)
	for rows.Next() {
		rd, scanErr := r.scanRound(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		rounds = append(rounds, rd)
	}
	return rounds, rows.Err()
}

func (r *postgresRoundRepository) Start(ctx context.Context, exec SQLExecutor, id int, startedAt, endsAt time.Time) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE rounds SET status = $1, started_at = $2, ends_at = $3
		WHERE id = $4 AND status = $5`
	result, err := executor.ExecContext(ctx, query,
		models.RoundActive, startedAt, endsAt, id, models.RoundPending)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrRoundStateConflict)
}

func (r *postgresRoundRepository) Complete(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	query := `UPDATE rounds SET status = $1 WHERE id = $2 AND status = $3`
	result, err := executor.ExecContext(ctx, query, models.RoundCompleted, id, models.RoundActive)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrRoundStateConflict)
}

func (r *postgresRoundRepository) AddExtension(ctx context.Context, exec SQLExecutor, id, minutes int) error {
	executor := r.getExecutor(exec)
	query := `UPDATE rounds SET extension_minutes = extension_minutes + $1 WHERE id = $2 AND status = $3`
	result, err := executor.ExecContext(ctx, query, minutes, id, models.RoundActive)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrRoundStateConflict)
}
