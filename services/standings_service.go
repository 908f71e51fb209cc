package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dosada05/swiss-engine/events"
	"github.com/Dosada05/swiss-engine/live"
	"github.com/Dosada05/swiss-engine/models"
	"github.com/Dosada05/swiss-engine/repositories"
	"github.com/Dosada05/swiss-engine/standings"
)

// StandingsService materializes the standings view. Recomputation always
// goes through the pure calculator over the full completed-match log and
// replaces the stored rows wholesale.
type StandingsService interface {
	Recompute(ctx context.Context, tournamentID int) ([]*models.PlayerStats, error)
	Get(ctx context.Context, tournamentID int) ([]*models.PlayerStats, error)
}

type standingsService struct {
	db              TxBeginner
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	matchRepo       repositories.MatchRepository
	statsRepo       repositories.PlayerStatsRepository
	hub             Broadcaster
	producer        EventEmitter
	logger          *slog.Logger
}

func NewStandingsService(
	db TxBeginner,
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	matchRepo repositories.MatchRepository,
	statsRepo repositories.PlayerStatsRepository,
	hub Broadcaster,
	producer EventEmitter,
	logger *slog.Logger,
) StandingsService {
	return &standingsService{
		db:              db,
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		matchRepo:       matchRepo,
		statsRepo:       statsRepo,
		hub:             hub,
		producer:        producer,
		logger:          logger,
	}
}

func (s *standingsService) Recompute(ctx context.Context, tournamentID int) ([]*models.PlayerStats, error) {
	participants, err := s.participantRepo.ListByTournament(ctx, nil, tournamentID, false)
	if err != nil {
		return nil, err
	}
	completed, err := s.matchRepo.ListCompletedByTournament(ctx, nil, tournamentID)
	if err != nil {
		return nil, err
	}

	input := standings.Input{TournamentID: tournamentID}
	for _, p := range participants {
		input.Entrants = append(input.Entrants, standings.Entrant{
			ParticipantID: p.ID,
			TiebreakSeed:  p.TiebreakSeed,
			Dropped:       p.Dropped,
		})
	}

	// Round numbers restart per phase; replace them with a global sequence
	// so the calculator folds swiss before elimination. The repository
	// already returns matches ordered by phase and round.
	seq := 0
	lastPhase, lastRound := 0, 0
	for _, cm := range completed {
		if cm.PhaseID != lastPhase || cm.RoundNumber != lastRound {
			seq++
			lastPhase, lastRound = cm.PhaseID, cm.RoundNumber
		}
		m := cm.Match
		input.Results = append(input.Results, standings.Result{
			RoundNumber: seq,
			P1ID:        m.P1ParticipantID,
			P2ID:        m.P2ParticipantID,
			WinnerID:    m.WinnerParticipantID,
			P1GameWins:  m.P1GameWins,
			P2GameWins:  m.P2GameWins,
		})
	}

	stats, err := standings.Compute(input)
	if err != nil {
		if errors.Is(err, standings.ErrMatchMissingWinner) {
			s.flagForReview(ctx, tournamentID, err)
			return nil, fmt.Errorf("%w: %v", ErrDataIntegrity, err)
		}
		return nil, err
	}

	err = withTx(ctx, s.db, func(exec repositories.SQLExecutor) error {
		return s.statsRepo.ReplaceForTournament(ctx, exec, tournamentID, stats)
	})
	if err != nil {
		return nil, err
	}

	s.hub.BroadcastToTournament(tournamentID, live.MessageStandingsUpdated, stats)
	s.producer.Emit(events.EventStandingsUpdated, tournamentID, map[string]int{"rows": len(stats)})
	return stats, nil
}

// flagForReview parks the tournament in needs_review so no further rounds
// get paired until staff inspects the match log. Losing the status race
// here is fine, somebody else flagged it first.
func (s *standingsService) flagForReview(ctx context.Context, tournamentID int, cause error) {
	s.logger.Error("standings recomputation failed, flagging tournament for review",
		slog.Int("tournament_id", tournamentID), slog.Any("error", cause))

	err := s.tournamentRepo.UpdateStatus(ctx, nil, tournamentID, models.StatusActive, models.StatusNeedsReview)
	if err != nil && !errors.Is(err, repositories.ErrTournamentStateConflict) {
		s.logger.Error("failed to flag tournament for review",
			slog.Int("tournament_id", tournamentID), slog.Any("error", err))
	}
}

func (s *standingsService) Get(ctx context.Context, tournamentID int) ([]*models.PlayerStats, error) {
	return s.statsRepo.ListByTournament(ctx, nil, tournamentID)
}
