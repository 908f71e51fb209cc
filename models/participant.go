package models

import "time"

// Participant is a tournament-scoped registration of a user.
//
// TiebreakSeed is assigned randomly once at registration and is the last
// rung of the standings tie-break ladder, so sorting stays deterministic
// without ever falling back to insertion order.
//
// Dropped is terminal: a dropped participant gets no further pairings,
// but their match history keeps counting for opponents' tie-breaks.
type Participant struct {
	ID           int       `json:"id" db:"id"`
	TournamentID int       `json:"tournament_id" db:"tournament_id"`
	UserID       int       `json:"user_id" db:"user_id"`
	CheckedIn    bool      `json:"checked_in" db:"checked_in"`
	Dropped      bool      `json:"dropped" db:"dropped"`
	TiebreakSeed int       `json:"-" db:"tiebreak_seed"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`

	User *User `json:"user,omitempty" db:"-"`
}
