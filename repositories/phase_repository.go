package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/swiss-engine/models"
)

var (
	ErrPhaseNotFound      = errors.New("phase not found")
	ErrPhaseStateConflict = errors.New("phase state changed concurrently")
)

type PhaseRepository interface {
	Create(ctx context.Context, exec SQLExecutor, phase *models.Phase) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Phase, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Phase, error)
	// UpdateStatus is a compare-and-swap on the status column.
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, from, to models.PhaseStatus) error
}

type postgresPhaseRepository struct {
	db *sql.DB
}

func NewPostgresPhaseRepository(db *sql.DB) PhaseRepository {
	return &postgresPhaseRepository{db: db}
}

func (r *postgresPhaseRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresPhaseRepository) Create(ctx context.Context, exec SQLExecutor, phase *models.Phase) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO phases (tournament_id, phase_order, phase_type, status, planned_rounds, cut_size)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	return executor.QueryRowContext(ctx, query,
		phase.TournamentID, phase.PhaseOrder, phase.Type, phase.Status,
		phase.PlannedRounds, phase.CutSize,
	).Scan(&phase.ID, &phase.CreatedAt)
}

func (r *postgresPhaseRepository) scanPhase(rowScanner interface{ Scan(...interface{}) error }) (*models.Phase, error) {
	p := &models.Phase{}
	err := rowScanner.Scan(
		&p.ID, &p.TournamentID, &p.PhaseOrder, &p.Type, &p.Status,
		&p.PlannedRounds, &p.CutSize, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPhaseNotFound
		}
		return nil, fmt.Errorf("failed to scan phase: %w", err)
	}
	return p, nil
}

func (r *postgresPhaseRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Phase, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, tournament_id, phase_order, phase_type, status, planned_rounds, cut_size, created_at
		FROM phases
		WHERE id = $1`
	return r.scanPhase(executor.QueryRowContext(ctx, query, id))
}

func (r *postgresPhaseRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Phase, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, tournament_id, phase_order, phase_type, status, planned_rounds, cut_size, created_at
		FROM phases
		WHERE tournament_id = $1
		ORDER BY phase_order ASC`

	rows, err := executor.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query phases for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	phases := make([]*models.Phase, 0)
	for rows.Next() {
		p, scanErr := r.scanPhase(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		phases = append(phases, p)
	}
	return phases, rows.Err()
}

func (r *postgresPhaseRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, from, to models.PhaseStatus) error {
	executor := r.getExecutor(exec)
	query := `UPDATE phases SET status = $1 WHERE id = $2 AND status = $3`
	result, err := executor.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrPhaseStateConflict)
}
