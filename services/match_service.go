package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Dosada05/swiss-engine/events"
	"github.com/Dosada05/swiss-engine/live"
	"github.com/Dosada05/swiss-engine/models"
	"github.com/Dosada05/swiss-engine/repositories"
)

type ReportResultInput struct {
	WinnerParticipantID int `json:"winner_participant_id"`
	P1GameWins          int `json:"p1_game_wins"`
	P2GameWins          int `json:"p2_game_wins"`
}

// MatchService drives the per-match state machine: check-in, result
// reporting, double confirmation, disputes and staff resolution.
//
// Every transition is a conditional update in the repository; a lost
// race is resolved by re-reading, and races that land on the state the
// caller wanted anyway are silent no-ops.
type MatchService interface {
	GetMatch(ctx context.Context, id int) (*models.Match, error)
	ListByRound(ctx context.Context, roundID int) ([]*models.Match, error)

	CheckIn(ctx context.Context, caller Caller, matchID int) (*models.Match, error)
	ReportResult(ctx context.Context, caller Caller, matchID int, input ReportResultInput) (*models.Match, error)
	// ConfirmResult endorses the result on file. A non-nil expectedWinnerID
	// guards against confirming a result that changed under the caller.
	ConfirmResult(ctx context.Context, caller Caller, matchID int, expectedWinnerID *int) (*models.Match, error)
	Dispute(ctx context.Context, caller Caller, matchID int) (*models.Match, error)
	// Resolve is the staff override: it settles the match from any state,
	// clears the dispute and records the resolver.
	Resolve(ctx context.Context, caller Caller, matchID int, input ReportResultInput) (*models.Match, error)
}

// matchContext is the ownership chain of a match, loaded once per call.
type matchContext struct {
	match      *models.Match
	round      *models.Round
	phase      *models.Phase
	tournament *models.Tournament
}

type matchService struct {
	matchRepo       repositories.MatchRepository
	roundRepo       repositories.RoundRepository
	phaseRepo       repositories.PhaseRepository
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	hub             Broadcaster
	producer        EventEmitter
	logger          *slog.Logger
}

func NewMatchService(
	matchRepo repositories.MatchRepository,
	roundRepo repositories.RoundRepository,
	phaseRepo repositories.PhaseRepository,
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	hub Broadcaster,
	producer EventEmitter,
	logger *slog.Logger,
) MatchService {
	return &matchService{
		matchRepo:       matchRepo,
		roundRepo:       roundRepo,
		phaseRepo:       phaseRepo,
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		hub:             hub,
		producer:        producer,
		logger:          logger,
	}
}

func (s *matchService) GetMatch(ctx context.Context, id int) (*models.Match, error) {
	match, err := s.matchRepo.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return match, nil
}

func (s *matchService) ListByRound(ctx context.Context, roundID int) ([]*models.Match, error) {
	return s.matchRepo.ListByRound(ctx, nil, roundID)
}

func (s *matchService) loadContext(ctx context.Context, matchID int) (*matchContext, error) {
	match, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	round, err := s.roundRepo.GetByID(ctx, nil, match.RoundID)
	if err != nil {
		return nil, err
	}
	phase, err := s.phaseRepo.GetByID(ctx, nil, round.PhaseID)
	if err != nil {
		return nil, err
	}
	tournament, err := s.tournamentRepo.GetByID(ctx, nil, phase.TournamentID)
	if err != nil {
		return nil, err
	}
	return &matchContext{match: match, round: round, phase: phase, tournament: tournament}, nil
}

// callerSide maps the caller to seat 1 or 2 of the match, or 0 when the
// caller plays no part in it.
func (s *matchService) callerSide(ctx context.Context, mc *matchContext, caller Caller) (int, error) {
	p, err := s.participantRepo.GetByTournamentAndUser(ctx, mc.tournament.ID, caller.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrParticipantNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return mc.match.Side(p.ID), nil
}

func (s *matchService) CheckIn(ctx context.Context, caller Caller, matchID int) (*models.Match, error) {
	mc, err := s.loadContext(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if mc.round.Status != models.RoundActive {
		return nil, ErrRoundNotActive
	}
	side, err := s.callerSide(ctx, mc, caller)
	if err != nil {
		return nil, err
	}
	if side == 0 {
		return nil, ErrNotMatchParticipant
	}

	// Already past check-in, or this side already in: nothing to do.
	if mc.match.Status != models.MatchPending || sideCheckedIn(mc.match, side) {
		return mc.match, nil
	}

	if err := s.matchRepo.CheckIn(ctx, nil, matchID, side); err != nil {
		if !errors.Is(err, repositories.ErrMatchStateConflict) {
			return nil, err
		}
		// The match left pending while we looked at it; the check-in is moot.
		return s.GetMatch(ctx, matchID)
	}

	activated, err := s.matchRepo.ActivateIfBothCheckedIn(ctx, nil, matchID)
	if err != nil {
		return nil, err
	}
	match, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if activated {
		s.hub.BroadcastToTournament(mc.tournament.ID, live.MessageMatchUpdated, match)
	}
	return match, nil
}

func (s *matchService) ReportResult(ctx context.Context, caller Caller, matchID int, input ReportResultInput) (*models.Match, error) {
	mc, err := s.loadContext(ctx, matchID)
	if err != nil {
		return nil, err
	}
	side, err := s.callerSide(ctx, mc, caller)
	if err != nil {
		return nil, err
	}
	if side == 0 {
		return nil, ErrNotMatchParticipant
	}
	if err := validateResult(mc.match, input, false); err != nil {
		return nil, err
	}
	if mc.match.Status != models.MatchActive {
		return nil, ErrMatchNotActive
	}

	winnerID := input.WinnerParticipantID
	err = s.matchRepo.ReportResult(ctx, nil, matchID, &winnerID, input.P1GameWins, input.P2GameWins, side)
	if err != nil {
		if !errors.Is(err, repositories.ErrMatchStateConflict) {
			return nil, err
		}
		current, getErr := s.GetMatch(ctx, matchID)
		if getErr != nil {
			return nil, getErr
		}
		// Completed with the very result we were reporting: a harmless
		// lost race. Anything else needs the caller to re-read.
		if current.Status == models.MatchCompleted &&
			current.WinnerParticipantID != nil && *current.WinnerParticipantID == winnerID {
			return current, nil
		}
		return nil, ErrConcurrentUpdate
	}

	match, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	s.hub.BroadcastToTournament(mc.tournament.ID, live.MessageMatchUpdated, match)
	return match, nil
}

func (s *matchService) ConfirmResult(ctx context.Context, caller Caller, matchID int, expectedWinnerID *int) (*models.Match, error) {
	mc, err := s.loadContext(ctx, matchID)
	if err != nil {
		return nil, err
	}
	side, err := s.callerSide(ctx, mc, caller)
	if err != nil {
		return nil, err
	}
	if side == 0 {
		return nil, ErrNotMatchParticipant
	}

	switch mc.match.Status {
	case models.MatchCompleted:
		// Late confirmation of a settled match is a no-op as long as it
		// agrees with the outcome.
		if expectedWinnerID != nil && !winnerMatches(mc.match, *expectedWinnerID) {
			return nil, ErrConfirmationMismatch
		}
		return mc.match, nil
	case models.MatchPending:
		return nil, ErrMatchNotActive
	}
	if mc.match.WinnerParticipantID == nil {
		return nil, ErrNoReportedResult
	}
	if expectedWinnerID != nil && !winnerMatches(mc.match, *expectedWinnerID) {
		return nil, ErrConfirmationMismatch
	}

	if err := s.matchRepo.Confirm(ctx, nil, matchID, side); err != nil {
		if !errors.Is(err, repositories.ErrMatchStateConflict) {
			return nil, err
		}
		current, getErr := s.GetMatch(ctx, matchID)
		if getErr != nil {
			return nil, getErr
		}
		if current.Status == models.MatchCompleted {
			return current, nil
		}
		return nil, ErrConcurrentUpdate
	}

	completed, err := s.matchRepo.CompleteIfConfirmed(ctx, nil, matchID)
	if err != nil {
		return nil, err
	}
	match, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if completed {
		// Exactly one of any number of racing confirmers lands here, so
		// the completion side effects fire once.
		s.hub.BroadcastToTournament(mc.tournament.ID, live.MessageMatchUpdated, match)
		s.producer.Emit(events.EventMatchCompleted, mc.tournament.ID, match)
	}
	return match, nil
}

func (s *matchService) Dispute(ctx context.Context, caller Caller, matchID int) (*models.Match, error) {
	mc, err := s.loadContext(ctx, matchID)
	if err != nil {
		return nil, err
	}
	side, err := s.callerSide(ctx, mc, caller)
	if err != nil {
		return nil, err
	}
	if side == 0 && !canManage(mc.tournament, caller) {
		return nil, ErrForbiddenOperation
	}
	if mc.match.Status == models.MatchPending {
		return nil, ErrMatchNotActive
	}

	if err := s.matchRepo.SetDisputed(ctx, nil, matchID, true, nil); err != nil {
		if !errors.Is(err, repositories.ErrMatchStateConflict) {
			return nil, err
		}
	}
	match, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	s.hub.BroadcastToTournament(mc.tournament.ID, live.MessageMatchUpdated, match)
	return match, nil
}

func (s *matchService) Resolve(ctx context.Context, caller Caller, matchID int, input ReportResultInput) (*models.Match, error) {
	mc, err := s.loadContext(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !canManage(mc.tournament, caller) {
		return nil, ErrNotTournamentOrganizer
	}
	if err := validateResult(mc.match, input, true); err != nil {
		return nil, err
	}

	winnerID := input.WinnerParticipantID
	err = s.matchRepo.ForceComplete(ctx, nil, matchID, &winnerID,
		input.P1GameWins, input.P2GameWins, caller.UserID)
	if err != nil {
		return nil, err
	}
	match, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("match resolved by staff",
		slog.Int("match_id", matchID),
		slog.Int("resolved_by", caller.UserID),
		slog.Int("winner_participant_id", winnerID))
	s.hub.BroadcastToTournament(mc.tournament.ID, live.MessageMatchUpdated, match)
	s.producer.Emit(events.EventMatchCompleted, mc.tournament.ID, match)
	return match, nil
}

// validateResult checks the reported outcome against the pairing. Staff
// resolutions may carry a scoreless 0-0 (a forfeit settled on paper);
// player reports must show the winner actually ahead on games.
func validateResult(m *models.Match, input ReportResultInput, scorelessOK bool) error {
	if m.IsBye {
		return ErrMatchNotActive
	}
	if m.Side(input.WinnerParticipantID) == 0 {
		return ErrInvalidWinner
	}
	if input.P1GameWins < 0 || input.P2GameWins < 0 {
		return ErrInvalidScore
	}
	if scorelessOK && input.P1GameWins == 0 && input.P2GameWins == 0 {
		return nil
	}
	winnerGames, loserGames := input.P1GameWins, input.P2GameWins
	if m.Side(input.WinnerParticipantID) == 2 {
		winnerGames, loserGames = loserGames, winnerGames
	}
	if winnerGames <= loserGames {
		return ErrInvalidScore
	}
	return nil
}

func sideCheckedIn(m *models.Match, side int) bool {
	if side == 1 {
		return m.P1CheckedIn
	}
	return m.P2CheckedIn
}

func winnerMatches(m *models.Match, winnerID int) bool {
	return m.WinnerParticipantID != nil && *m.WinnerParticipantID == winnerID
}
