package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Dosada05/swiss-engine/events"
	"github.com/Dosada05/swiss-engine/models"
	"github.com/Dosada05/swiss-engine/repositories"
)

// Caller identifies the authenticated user behind a service call.
// Handlers fill it from the JWT claims.
type Caller struct {
	UserID int
	Role   models.UserRole
}

// Broadcaster is what the services need from the websocket hub.
type Broadcaster interface {
	BroadcastToTournament(tournamentID int, msgType string, payload interface{})
}

// EventEmitter is what the services need from the Kafka producer.
type EventEmitter interface {
	Emit(eventType events.EventType, tournamentID int, data any)
}

// TxBeginner is satisfied by *sql.DB.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// withTx runs fn inside a transaction. A nil TxBeginner runs fn without
// one, which is what the in-memory repositories in tests rely on.
func withTx(ctx context.Context, db TxBeginner, fn func(exec repositories.SQLExecutor) error) error {
	if db == nil {
		return fn(nil)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// canManage reports whether the caller may run organizer operations on
// the tournament. Admins can manage any tournament.
func canManage(t *models.Tournament, caller Caller) bool {
	return caller.Role == models.RoleAdmin || t.OrganizerID == caller.UserID
}

// isValidTournamentTransition encodes the tournament status machine.
// needs_review is entered automatically on integrity failures and left
// by staff after review.
func isValidTournamentTransition(from, to models.TournamentStatus) bool {
	allowed := map[models.TournamentStatus][]models.TournamentStatus{
		models.StatusDraft:       {models.StatusUpcoming, models.StatusActive, models.StatusCancelled},
		models.StatusUpcoming:    {models.StatusActive, models.StatusCancelled},
		models.StatusActive:      {models.StatusPaused, models.StatusCompleted, models.StatusCancelled, models.StatusNeedsReview},
		models.StatusPaused:      {models.StatusActive, models.StatusCancelled},
		models.StatusNeedsReview: {models.StatusActive, models.StatusCancelled},
	}
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}
