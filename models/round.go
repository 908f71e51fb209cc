package models

import "time"

type RoundStatus string

const (
	RoundPending   RoundStatus = "pending"
	RoundActive    RoundStatus = "active"
	RoundCompleted RoundStatus = "completed"
)

// Round exists only after pairings have been generated for it.
// (phase_id, round_number) is unique, which is what makes pairing
// generation at-most-once under concurrent calls.
type Round struct {
	ID               int         `json:"id" db:"id"`
	PhaseID          int         `json:"phase_id" db:"phase_id"`
	RoundNumber      int         `json:"round_number" db:"round_number"`
	Status           RoundStatus `json:"status" db:"status"`
	StartedAt        *time.Time  `json:"started_at,omitempty" db:"started_at"`
	EndsAt           *time.Time  `json:"ends_at,omitempty" db:"ends_at"`
	ExtensionMinutes int         `json:"extension_minutes" db:"extension_minutes"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`

	Matches []Match `json:"matches,omitempty" db:"-"`
}

// Deadline returns the wall-clock end of the round including any staff
// extension. Evaluated lazily by readers; there is no background timer.
func (r *Round) Deadline() (time.Time, bool) {
	if r.EndsAt == nil {
		return time.Time{}, false
	}
	return r.EndsAt.Add(time.Duration(r.ExtensionMinutes) * time.Minute), true
}
