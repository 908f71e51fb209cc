package models

import "time"

type MatchStatus string

const (
	MatchPending   MatchStatus = "pending"
	MatchActive    MatchStatus = "active"
	MatchCompleted MatchStatus = "completed"
)

// Match is a pairing inside a round. A bye match has no second
// participant, is created already completed and grants P1 the win.
//
// Completion of a normal match requires a reported score plus both
// per-side confirmations, or a staff override (ResolvedByUserID set).
type Match struct {
	ID              int  `json:"id" db:"id"`
	RoundID         int  `json:"round_id" db:"round_id"`
	TableNumber     int  `json:"table_number" db:"table_number"`
	P1ParticipantID int  `json:"p1_participant_id" db:"p1_participant_id"`
	P2ParticipantID *int `json:"p2_participant_id,omitempty" db:"p2_participant_id"`
	IsBye           bool `json:"is_bye" db:"is_bye"`

	P1GameWins          int  `json:"p1_game_wins" db:"p1_game_wins"`
	P2GameWins          int  `json:"p2_game_wins" db:"p2_game_wins"`
	WinnerParticipantID *int `json:"winner_participant_id,omitempty" db:"winner_participant_id"`

	P1CheckedIn bool `json:"p1_checked_in" db:"p1_checked_in"`
	P2CheckedIn bool `json:"p2_checked_in" db:"p2_checked_in"`
	P1Confirmed bool `json:"p1_confirmed" db:"p1_confirmed"`
	P2Confirmed bool `json:"p2_confirmed" db:"p2_confirmed"`

	Disputed         bool `json:"disputed" db:"disputed"`
	ResolvedByUserID *int `json:"resolved_by_user_id,omitempty" db:"resolved_by_user_id"`

	Status    MatchStatus `json:"status" db:"status"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

// Side reports which seat a participant occupies: 1, 2, or 0 when the
// participant is not in this match.
func (m *Match) Side(participantID int) int {
	if m.P1ParticipantID == participantID {
		return 1
	}
	if m.P2ParticipantID != nil && *m.P2ParticipantID == participantID {
		return 2
	}
	return 0
}
