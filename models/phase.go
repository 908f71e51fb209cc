package models

import "time"

type PhaseType string

const (
	PhaseSwiss             PhaseType = "swiss"
	PhaseSingleElimination PhaseType = "single_elimination"
)

type PhaseStatus string

const (
	PhasePending   PhaseStatus = "pending"
	PhaseActive    PhaseStatus = "active"
	PhaseCompleted PhaseStatus = "completed"
)

// Phase is one stage of a tournament. Phases activate strictly in
// PhaseOrder; exactly one phase is current at a time.
type Phase struct {
	ID           int         `json:"id" db:"id"`
	TournamentID int         `json:"tournament_id" db:"tournament_id"`
	PhaseOrder   int         `json:"phase_order" db:"phase_order"`
	Type         PhaseType   `json:"phase_type" db:"phase_type"`
	Status       PhaseStatus `json:"status" db:"status"`

	// PlannedRounds is set for swiss phases, CutSize for elimination phases.
	PlannedRounds *int `json:"planned_rounds,omitempty" db:"planned_rounds"`
	CutSize       *int `json:"cut_size,omitempty" db:"cut_size"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`

	Rounds []Round `json:"rounds,omitempty" db:"-"`
}
