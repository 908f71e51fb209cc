package services

import (
	"errors"
	"fmt"
	"strings"
)

// Ошибки сервисного слоя, сгруппированные по таксономии:
// валидация входа, нарушенные предусловия состояния, авторизация,
// проигранные гонки и целостность данных. Маппинг в HTTP-статусы
// живёт в handlers.
var (
	// Ресурс не найден (универсальная)
	ErrNotFound = errors.New("requested resource not found")

	// Input validation: rejected before any state change.
	ErrValidationFailed   = errors.New("validation failed")
	ErrPasswordTooShort   = errors.New("password is too short")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidScore       = errors.New("reported score is invalid")
	ErrInvalidWinner      = errors.New("winner is not a participant of this match")
	ErrInvalidCutSize     = errors.New("cut size must be at least 2")
	ErrCutSizeTooLarge    = errors.New("cut size exceeds the number of active participants")
	ErrRegistrationClosed = errors.New("tournament registration is closed")
	ErrTournamentFull     = errors.New("tournament registration is full")

	// State preconditions: the operation is legal, just not yet.
	ErrTournamentNotActive               = errors.New("tournament is not active")
	ErrTournamentInvalidStatusTransition = errors.New("invalid tournament status transition")
	ErrPhaseNotActive                    = errors.New("phase is not active")
	ErrPhaseRoundsExhausted              = errors.New("all planned rounds of this phase have been paired")
	ErrPhaseNotComplete                  = errors.New("current phase still has unfinished rounds")
	ErrPhasesNotComplete                 = errors.New("tournament still has unfinished phases")
	ErrNoNextPhase                       = errors.New("tournament has no next phase to advance into")
	ErrPriorRoundNotCompleted            = errors.New("previous round is not completed yet")
	ErrRoundNotPending                   = errors.New("round is not awaiting confirmation")
	ErrRoundNotActive                    = errors.New("round is not active")
	ErrMatchNotActive                    = errors.New("match is not active")
	ErrMatchNotPending                   = errors.New("match is not awaiting check-in")
	ErrNoReportedResult                  = errors.New("no reported result on file to confirm")
	ErrConfirmationMismatch              = errors.New("confirmation does not match the reported result")
	ErrPhaseCompletedEarly               = errors.New("phase completed early: a single active participant remains")

	// Authorization: not allowed for this caller.
	ErrForbiddenOperation     = errors.New("operation not allowed for the current user")
	ErrNotTournamentOrganizer = errors.New("only the tournament organizer can perform this action")
	ErrNotMatchParticipant    = errors.New("caller is not a participant of this match")

	// Concurrency: the optimistic guard lost a race against a conflicting
	// change. Retryable: the caller re-reads and may re-issue.
	ErrConcurrentUpdate = errors.New("state changed concurrently, re-read and retry")

	// Data integrity: the match log is inconsistent; standings cannot be
	// produced and the tournament is flagged for manual review.
	ErrDataIntegrity = errors.New("tournament data integrity error, manual review required")

	// Конфликты
	ErrUserEmailConflict    = errors.New("email address is already in use")
	ErrRegistrationConflict = errors.New("user is already registered for this tournament")
)

// RoundBlockedError names exactly which matches keep a round from
// completing, so the UI can show actionable detail instead of a flat no.
type RoundBlockedError struct {
	RoundID          int
	UnfinishedMatches []int
	DisputedMatches  []int
}

func (e *RoundBlockedError) Error() string {
	parts := make([]string, 0, 2)
	if n := len(e.UnfinishedMatches); n > 0 {
		parts = append(parts, fmt.Sprintf("%d matches still open", n))
	}
	if n := len(e.DisputedMatches); n > 0 {
		parts = append(parts, fmt.Sprintf("%d matches disputed", n))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("round %d cannot complete", e.RoundID)
	}
	return fmt.Sprintf("round %d cannot complete: %s", e.RoundID, strings.Join(parts, ", "))
}
