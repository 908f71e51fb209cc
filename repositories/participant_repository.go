package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/swiss-engine/models"
	"github.com/lib/pq"
)

var (
	ErrParticipantNotFound       = errors.New("participant registration not found")
	ErrRegistrationConflict      = errors.New("user is already registered for this tournament")
	ErrParticipantAlreadyDropped = errors.New("participant is already dropped")
)

type ParticipantRepository interface {
	Create(ctx context.Context, participant *models.Participant) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Participant, error)
	GetByTournamentAndUser(ctx context.Context, tournamentID, userID int) (*models.Participant, error)
	// ListByTournament returns registrations in registration order;
	// activeOnly excludes dropped participants.
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, activeOnly bool) ([]*models.Participant, error)
	CountActive(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error)
	SetCheckedIn(ctx context.Context, id int) error
	// MarkDropped is guarded on dropped = false; dropping twice is a no-op
	// surfaced as ErrParticipantAlreadyDropped.
	MarkDropped(ctx context.Context, exec SQLExecutor, id int) error
}

type postgresParticipantRepository struct {
	db *sql.DB
}

func NewPostgresParticipantRepository(db *sql.DB) ParticipantRepository {
	return &postgresParticipantRepository{db: db}
}

func (r *postgresParticipantRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresParticipantRepository) Create(ctx context.Context, p *models.Participant) error {
	query := `
		INSERT INTO participants (tournament_id, user_id, tiebreak_seed)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query, p.TournamentID, p.UserID, p.TiebreakSeed).
		Scan(&p.ID, &p.CreatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Constraint == "participants_tournament_id_user_id_key" {
		return ErrRegistrationConflict
	}
	return err
}

const participantColumns = `id, tournament_id, user_id, checked_in, dropped, tiebreak_seed, created_at`

func (r *postgresParticipantRepository) scanParticipant(rowScanner interface{ Scan(...interface{}) error }) (*models.Participant, error) {
	p := &models.Participant{}
	err := rowScanner.Scan(
		&p.ID, &p.TournamentID, &p.UserID, &p.CheckedIn, &p.Dropped, &p.TiebreakSeed, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to scan participant: %w", err)
	}
	return p, nil
}

func (r *postgresParticipantRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Participant, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + participantColumns + ` FROM participants WHERE id = $1`
	return r.scanParticipant(executor.QueryRowContext(ctx, query, id))
}

func (r *postgresParticipantRepository) GetByTournamentAndUser(ctx context.Context, tournamentID, userID int) (*models.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE tournament_id = $1 AND user_id = $2`
	return r.scanParticipant(r.db.QueryRowContext(ctx, query, tournamentID, userID))
}

func (r *postgresParticipantRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, activeOnly bool) ([]*models.Participant, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + participantColumns + ` FROM participants WHERE tournament_id = $1`
	if activeOnly {
		query += ` AND dropped = FALSE`
	}
	query += ` ORDER BY id ASC`

	rows, err := executor.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	participants := make([]*models.Participant, 0)
	for rows.Next() {
		p, scanErr := r.scanParticipant(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (r *postgresParticipantRepository) CountActive(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error) {
	executor := r.getExecutor(exec)
	var count int
	err := executor.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM participants WHERE tournament_id = $1 AND dropped = FALSE`,
		tournamentID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active participants for tournament %d: %w", tournamentID, err)
	}
	return count, nil
}

func (r *postgresParticipantRepository) SetCheckedIn(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE participants SET checked_in = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresParticipantRepository) MarkDropped(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE participants SET dropped = TRUE WHERE id = $1 AND dropped = FALSE`, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrParticipantAlreadyDropped)
}
