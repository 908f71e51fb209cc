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

var ErrPlayerStatsNotFound = errors.New("player stats not found")

// PlayerStatsRepository persists the materialized standings view.
// The table is always replaced wholesale inside the caller's transaction,
// never patched row by row, so it can never drift from the match log.
type PlayerStatsRepository interface {
	ReplaceForTournament(ctx context.Context, exec SQLExecutor, tournamentID int, stats []*models.PlayerStats) error
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.PlayerStats, error)
	// FreezeFinalRankings copies current_standing into final_ranking for
	// every row of the tournament; called once at tournament completion.
	FreezeFinalRankings(ctx context.Context, exec SQLExecutor, tournamentID int) error
}

type postgresPlayerStatsRepository struct {
	db *sql.DB
}

func NewPostgresPlayerStatsRepository(db *sql.DB) PlayerStatsRepository {
	return &postgresPlayerStatsRepository{db: db}
}

func (r *postgresPlayerStatsRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresPlayerStatsRepository) ReplaceForTournament(ctx context.Context, exec SQLExecutor, tournamentID int, stats []*models.PlayerStats) error {
	executor := r.getExecutor(exec)

	// final_ranking survives the replace: it is written once at tournament
	// completion and must not be lost to a later recomputation.
	frozen := make(map[int]*int)
	rows, err := executor.QueryContext(ctx,
		`SELECT participant_id, final_ranking FROM player_stats WHERE tournament_id = $1 AND final_ranking IS NOT NULL`,
		tournamentID)
	if err != nil {
		return fmt.Errorf("failed to read frozen rankings for tournament %d: %w", tournamentID, err)
	}
	for rows.Next() {
		var participantID int
		var ranking *int
		if err := rows.Scan(&participantID, &ranking); err != nil {
			rows.Close()
			return err
		}
		frozen[participantID] = ranking
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if _, err := executor.ExecContext(ctx,
		`DELETE FROM player_stats WHERE tournament_id = $1`, tournamentID); err != nil {
		return fmt.Errorf("failed to clear player stats for tournament %d: %w", tournamentID, err)
	}

	query := `
		INSERT INTO player_stats (
			tournament_id, participant_id, match_points, matches_played, match_wins, match_losses,
			match_win_percentage, game_wins, game_losses, game_win_percentage,
			opponent_match_win_percentage, opponent_opponent_match_win_percentage,
			strength_of_schedule, buchholz_score, modified_buchholz_score,
			current_standing, final_ranking, has_received_bye, opponent_history, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING id`

	for _, s := range stats {
		if s.UpdatedAt.IsZero() {
			s.UpdatedAt = time.Now().UTC()
		}
		if ranking, ok := frozen[s.ParticipantID]; ok && s.FinalRanking == nil {
			s.FinalRanking = ranking
		}
		history := make([]int64, len(s.OpponentHistory))
		for i, id := range s.OpponentHistory {
			history[i] = int64(id)
		}
		err := executor.QueryRowContext(ctx, query,
			s.TournamentID, s.ParticipantID, s.MatchPoints, s.MatchesPlayed, s.MatchWins, s.MatchLosses,
			s.MatchWinPercentage, s.GameWins, s.GameLosses, s.GameWinPercentage,
			s.OpponentMatchWinPercentage, s.OpponentOpponentMatchWinPercentage,
			s.StrengthOfSchedule, s.BuchholzScore, s.ModifiedBuchholzScore,
			s.CurrentStanding, s.FinalRanking, s.HasReceivedBye, pq.Array(history), s.UpdatedAt,
		).Scan(&s.ID)
		if err != nil {
			return fmt.Errorf("failed to insert stats for participant %d: %w", s.ParticipantID, err)
		}
	}
	return nil
}

func (r *postgresPlayerStatsRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.PlayerStats, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT
			id, tournament_id, participant_id, match_points, matches_played, match_wins, match_losses,
			match_win_percentage, game_wins, game_losses, game_win_percentage,
			opponent_match_win_percentage, opponent_opponent_match_win_percentage,
			strength_of_schedule, buchholz_score, modified_buchholz_score,
			current_standing, final_ranking, has_received_bye, opponent_history, updated_at
		FROM player_stats
		WHERE tournament_id = $1
		ORDER BY current_standing ASC`

	rows, err := executor.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query player stats for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	stats := make([]*models.PlayerStats, 0)
	for rows.Next() {
		s := &models.PlayerStats{}
		var history []int64
		if err := rows.Scan(
			&s.ID, &s.TournamentID, &s.ParticipantID, &s.MatchPoints, &s.MatchesPlayed, &s.MatchWins, &s.MatchLosses,
			&s.MatchWinPercentage, &s.GameWins, &s.GameLosses, &s.GameWinPercentage,
			&s.OpponentMatchWinPercentage, &s.OpponentOpponentMatchWinPercentage,
			&s.StrengthOfSchedule, &s.BuchholzScore, &s.ModifiedBuchholzScore,
			&s.CurrentStanding, &s.FinalRanking, &s.HasReceivedBye, pq.Array(&history), &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan player stats row: %w", err)
		}
		s.OpponentHistory = make([]int, len(history))
		for i, id := range history {
			s.OpponentHistory[i] = int(id)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func (r *postgresPlayerStatsRepository) FreezeFinalRankings(ctx context.Context, exec SQLExecutor, tournamentID int) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE player_stats SET final_ranking = current_standing
		WHERE tournament_id = $1 AND final_ranking IS NULL`
	_, err := executor.ExecContext(ctx, query, tournamentID)
	return err
}
