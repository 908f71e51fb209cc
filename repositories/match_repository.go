package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/swiss-engine/models"
)

var (
	ErrMatchNotFound = errors.New("match not found")
	// ErrMatchStateConflict means a status-guarded update matched nothing.
	// The caller re-reads: if the state it wanted is already in place the
	// race was lost harmlessly and the operation is a no-op.
	ErrMatchStateConflict = errors.New("match state changed concurrently")
)

// CompletedMatch couples a completed match with its position in the
// tournament, which is what the standings calculator folds over.
type CompletedMatch struct {
	Match       models.Match
	RoundNumber int
	PhaseID     int
	PhaseType   models.PhaseType
}

type MatchRepository interface {
	CreateBatch(ctx context.Context, exec SQLExecutor, matches []*models.Match) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error)
	ListByRound(ctx context.Context, exec SQLExecutor, roundID int) ([]*models.Match, error)
	// ListCompletedByTournament walks matches -> rounds -> phases and
	// returns every completed match of the tournament in round order.
	ListCompletedByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*CompletedMatch, error)

	// The following are conditional updates guarded on the current status
	// (and, where relevant, the confirmation flags), so concurrent callers
	// can never push a match through an illegal transition.
	CheckIn(ctx context.Context, exec SQLExecutor, id, side int) error
	ActivateIfBothCheckedIn(ctx context.Context, exec SQLExecutor, id int) (bool, error)
	ReportResult(ctx context.Context, exec SQLExecutor, id int, winnerID *int, p1GameWins, p2GameWins, reporterSide int) error
	Confirm(ctx context.Context, exec SQLExecutor, id, side int) error
	CompleteIfConfirmed(ctx context.Context, exec SQLExecutor, id int) (bool, error)
	SetDisputed(ctx context.Context, exec SQLExecutor, id int, disputed bool, resolvedByUserID *int) error
	ForceComplete(ctx context.Context, exec SQLExecutor, id int, winnerID *int, p1GameWins, p2GameWins, resolvedByUserID int) error
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const matchColumns = `
	id, round_id, table_number, p1_participant_id, p2_participant_id, is_bye,
	p1_game_wins, p2_game_wins, winner_participant_id,
	p1_checked_in, p2_checked_in, p1_confirmed, p2_confirmed,
	disputed, resolved_by_user_id, status, created_at`

func (r *postgresMatchRepository) CreateBatch(ctx context.Context, exec SQLExecutor, matches []*models.Match) error {
	if len(matches) == 0 {
		return nil
	}
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO matches (
			round_id, table_number, p1_participant_id, p2_participant_id, is_bye,
			p1_game_wins, p2_game_wins, winner_participant_id,
			p1_checked_in, p2_checked_in, p1_confirmed, p2_confirmed, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at`

	for _, m := range matches {
		err := executor.QueryRowContext(ctx, query,
			m.RoundID, m.TableNumber, m.P1ParticipantID, m.P2ParticipantID, m.IsBye,
			m.P1GameWins, m.P2GameWins, m.WinnerParticipantID,
			m.P1CheckedIn, m.P2CheckedIn, m.P1Confirmed, m.P2Confirmed, m.Status,
		).Scan(&m.ID, &m.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert match at table %d: %w", m.TableNumber, err)
		}
	}
	return nil
}

func (r *postgresMatchRepository) scanMatch(rowScanner interface{ Scan(...interface{}) error }) (*models.Match, error) {
	m := &models.Match{}
	err := rowScanner.Scan(
		&m.ID, &m.RoundID, &m.TableNumber, &m.P1ParticipantID, &m.P2ParticipantID, &m.IsBye,
		&m.P1GameWins, &m.P2GameWins, &m.WinnerParticipantID,
		&m.P1CheckedIn, &m.P2CheckedIn, &m.P1Confirmed, &m.P2Confirmed,
		&m.Disputed, &m.ResolvedByUserID, &m.Status, &m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match: %w", err)
	}
	return m, nil
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`
	return r.scanMatch(executor.QueryRowContext(ctx, query, id))
}

func (r *postgresMatchRepository) ListByRound(ctx context.Context, exec SQLExecutor, roundID int) ([]*models.Match, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + matchColumns + ` FROM matches WHERE round_id = $1 ORDER BY table_number ASC`

	rows, err := executor.QueryContext(ctx, query, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches for round %d: %w", roundID, err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		m, scanErr := r.scanMatch(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (r *postgresMatchRepository) ListCompletedByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*CompletedMatch, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT
			m.id, m.round_id, m.table_number, m.p1_participant_id, m.p2_participant_id, m.is_bye,
			m.p1_game_wins, m.p2_game_wins, m.winner_participant_id,
			m.p1_checked_in, m.p2_checked_in, m.p1_confirmed, m.p2_confirmed,
			m.disputed, m.resolved_by_user_id, m.status, m.created_at,
			r.round_number, p.id, p.phase_type
		FROM matches m
		JOIN rounds r ON m.round_id = r.id
		JOIN phases p ON r.phase_id = p.id
		WHERE p.tournament_id = $1 AND m.status = $2
		ORDER BY p.phase_order ASC, r.round_number ASC, m.table_number ASC`

	rows, err := executor.QueryContext(ctx, query, tournamentID, models.MatchCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to query completed matches for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	out := make([]*CompletedMatch, 0)
	for rows.Next() {
		cm := &CompletedMatch{}
		m := &cm.Match
		if err := rows.Scan(
			&m.ID, &m.RoundID, &m.TableNumber, &m.P1ParticipantID, &m.P2ParticipantID, &m.IsBye,
			&m.P1GameWins, &m.P2GameWins, &m.WinnerParticipantID,
			&m.P1CheckedIn, &m.P2CheckedIn, &m.P1Confirmed, &m.P2Confirmed,
			&m.Disputed, &m.ResolvedByUserID, &m.Status, &m.CreatedAt,
			&cm.RoundNumber, &cm.PhaseID, &cm.PhaseType,
		); err != nil {
			return nil, fmt.Errorf("failed to scan completed match row: %w", err)
		}
		out = append(out, cm)
	}
	return out, rows.Err()
}

func (r *postgresMatchRepository) CheckIn(ctx context.Context, exec SQLExecutor, id, side int) error {
	executor := r.getExecutor(exec)
	column, err := checkInColumn(side)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE matches SET %s = TRUE WHERE id = $1 AND status = $2`, column)
	result, execErr := executor.ExecContext(ctx, query, id, models.MatchPending)
	if execErr != nil {
		return execErr
	}
	return checkAffectedRows(result, ErrMatchStateConflict)
}

// ActivateIfBothCheckedIn flips pending -> active once both check-in
// flags are set. Returns false without error when the guard matched
// nothing, which covers both "not ready yet" and "someone else won".
func (r *postgresMatchRepository) ActivateIfBothCheckedIn(ctx context.Context, exec SQLExecutor, id int) (bool, error) {
	executor := r.getExecutor(exec)
	query := `
		UPDATE matches SET status = $1
		WHERE id = $2 AND status = $3 AND p1_checked_in AND p2_checked_in`
	result, err := executor.ExecContext(ctx, query, models.MatchActive, id, models.MatchPending)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *postgresMatchRepository) ReportResult(ctx context.Context, exec SQLExecutor, id int, winnerID *int, p1GameWins, p2GameWins, reporterSide int) error {
	executor := r.getExecutor(exec)
	column, err := confirmColumn(reporterSide)
	if err != nil {
		return err
	}
	// Reporting overwrites any prior unconfirmed report and resets the
	// other side's confirmation, so a changed score needs re-agreement.
	other := "p2_confirmed"
	if reporterSide == 2 {
		other = "p1_confirmed"
	}
	query := fmt.Sprintf(`
		UPDATE matches
		SET winner_participant_id = $1, p1_game_wins = $2, p2_game_wins = $3,
		    %s = TRUE, %s = FALSE
		WHERE id = $4 AND status = $5`, column, other)
	result, execErr := executor.ExecContext(ctx, query,
		winnerID, p1GameWins, p2GameWins, id, models.MatchActive)
	if execErr != nil {
		return execErr
	}
	return checkAffectedRows(result, ErrMatchStateConflict)
}

func (r *postgresMatchRepository) Confirm(ctx context.Context, exec SQLExecutor, id, side int) error {
	executor := r.getExecutor(exec)
	column, err := confirmColumn(side)
	if err != nil {
		return err
	}
	// Confirming requires a report on file (winner set).
	query := fmt.Sprintf(`
		UPDATE matches SET %s = TRUE
		WHERE id = $1 AND status = $2 AND winner_participant_id IS NOT NULL`, column)
	result, execErr := executor.ExecContext(ctx, query, id, models.MatchActive)
	if execErr != nil {
		return execErr
	}
	return checkAffectedRows(result, ErrMatchStateConflict)
}

// CompleteIfConfirmed flips active -> completed only when a winner is on
// file and both sides have independently confirmed. At most one of any
// number of concurrent callers observes true.
func (r *postgresMatchRepository) CompleteIfConfirmed(ctx context.Context, exec SQLExecutor, id int) (bool, error) {
	executor := r.getExecutor(exec)
	query := `
		UPDATE matches SET status = $1
		WHERE id = $2 AND status = $3
		  AND winner_participant_id IS NOT NULL
		  AND p1_confirmed AND p2_confirmed`
	result, err := executor.ExecContext(ctx, query, models.MatchCompleted, id, models.MatchActive)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *postgresMatchRepository) SetDisputed(ctx context.Context, exec SQLExecutor, id int, disputed bool, resolvedByUserID *int) error {
	executor := r.getExecutor(exec)
	// Disputes can be raised on active or completed matches only.
	query := `
		UPDATE matches SET disputed = $1, resolved_by_user_id = $2
		WHERE id = $3 AND status IN ($4, $5)`
	result, err := executor.ExecContext(ctx, query,
		disputed, resolvedByUserID, id, models.MatchActive, models.MatchCompleted)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMatchStateConflict)
}

// ForceComplete is the staff override: it completes the match from any
// state, clears the dispute flag and records who resolved it.
func (r *postgresMatchRepository) ForceComplete(ctx context.Context, exec SQLExecutor, id int, winnerID *int, p1GameWins, p2GameWins, resolvedByUserID int) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE matches
		SET status = $1, winner_participant_id = $2, p1_game_wins = $3, p2_game_wins = $4,
		    p1_confirmed = TRUE, p2_confirmed = TRUE, disputed = FALSE, resolved_by_user_id = $5
		WHERE id = $6`
	result, err := executor.ExecContext(ctx, query,
		models.MatchCompleted, winnerID, p1GameWins, p2GameWins, resolvedByUserID, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func checkInColumn(side int) (string, error) {
	switch side {
	case 1:
		return "p1_checked_in", nil
	case 2:
		return "p2_checked_in", nil
	}
	return "", fmt.Errorf("invalid match side %d", side)
}

func confirmColumn(side int) (string, error) {
	switch side {
	case 1:
		return "p1_confirmed", nil
	case 2:
		return "p2_confirmed", nil
	}
	return "", fmt.Errorf("invalid match side %d", side)
}
