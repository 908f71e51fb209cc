package models

import "time"

// PlayerStats is a materialized view over the completed-match log.
// It is recomputed wholesale by the standings calculator after every
// round completion and is never patched incrementally, so it can always
// be rebuilt from matches. FinalRanking is written exactly once, when
// the tournament transitions to completed.
//
// Tie-break conventions used throughout:
//   - match_points = 3 * match_wins, byes included as wins;
//   - win percentages are floored at 0.25 for players with no matches,
//     and opponent averages use each opponent's own floored value;
//   - buchholz_score sums opponents' match points;
//   - modified_buchholz_score drops the single highest and single lowest
//     opponent total (it equals buchholz_score with fewer than three
//     opponents);
//   - strength_of_schedule is the average opponent match-point total.
type PlayerStats struct {
	ID            int `json:"id" db:"id"`
	TournamentID  int `json:"tournament_id" db:"tournament_id"`
	ParticipantID int `json:"participant_id" db:"participant_id"`

	MatchPoints        int     `json:"match_points" db:"match_points"`
	MatchesPlayed      int     `json:"matches_played" db:"matches_played"`
	MatchWins          int     `json:"match_wins" db:"match_wins"`
	MatchLosses        int     `json:"match_losses" db:"match_losses"`
	MatchWinPercentage float64 `json:"match_win_percentage" db:"match_win_percentage"`

	GameWins          int     `json:"game_wins" db:"game_wins"`
	GameLosses        int     `json:"game_losses" db:"game_losses"`
	GameWinPercentage float64 `json:"game_win_percentage" db:"game_win_percentage"`

	OpponentMatchWinPercentage         float64 `json:"opponent_match_win_percentage" db:"opponent_match_win_percentage"`
	OpponentOpponentMatchWinPercentage float64 `json:"opponent_opponent_match_win_percentage" db:"opponent_opponent_match_win_percentage"`
	StrengthOfSchedule                 float64 `json:"strength_of_schedule" db:"strength_of_schedule"`
	BuchholzScore                      int     `json:"buchholz_score" db:"buchholz_score"`
	ModifiedBuchholzScore              int     `json:"modified_buchholz_score" db:"modified_buchholz_score"`

	CurrentStanding int  `json:"current_standing" db:"current_standing"`
	FinalRanking    *int `json:"final_ranking,omitempty" db:"final_ranking"`

	HasReceivedBye  bool  `json:"has_received_bye" db:"has_received_bye"`
	OpponentHistory []int `json:"opponent_history" db:"opponent_history"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	Participant *Participant `json:"participant,omitempty" db:"-"`
}
