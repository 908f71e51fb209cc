package models

import "time"

// TournamentStatus соответствует ENUM tournament_status в БД.
type TournamentStatus string

const (
	StatusDraft     TournamentStatus = "draft"
	StatusUpcoming  TournamentStatus = "upcoming"
	StatusActive    TournamentStatus = "active"
	StatusPaused    TournamentStatus = "paused"
	StatusCompleted TournamentStatus = "completed"
	StatusCancelled TournamentStatus = "cancelled"
	// StatusNeedsReview is set when standings recomputation hits a
	// data-integrity problem and staff has to look at the match log.
	StatusNeedsReview TournamentStatus = "needs_review"
)

type Tournament struct {
	ID                   int              `json:"id" db:"id"`
	Name                 string           `json:"name" db:"name"`
	Description          *string          `json:"description,omitempty" db:"description"`
	OrganizerID          int              `json:"organizer_id" db:"organizer_id"`
	Status               TournamentStatus `json:"status" db:"status"`
	MaxParticipants      int              `json:"max_participants" db:"max_participants"`
	RoundDurationMinutes int              `json:"round_duration_minutes" db:"round_duration_minutes"`
	CheckInWindowMinutes int              `json:"check_in_window_minutes" db:"check_in_window_minutes"`
	CurrentPhaseID       *int             `json:"current_phase_id,omitempty" db:"current_phase_id"`
	WinnerParticipantID  *int             `json:"winner_participant_id,omitempty" db:"winner_participant_id"`
	CreatedAt            time.Time        `json:"created_at" db:"created_at"`
	LogoKey              *string          `json:"-" db:"logo_key"`
	LogoURL              *string          `json:"logo_url,omitempty" db:"-"`

	// Опциональные связанные сущности (не мапятся напрямую)
	Organizer    *User         `json:"organizer,omitempty" db:"-"`
	Phases       []Phase       `json:"phases,omitempty" db:"-"`
	Participants []Participant `json:"participants,omitempty" db:"-"`
}
