package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/swiss-engine/config"
	"github.com/Dosada05/swiss-engine/events"
	"github.com/Dosada05/swiss-engine/live"
	"github.com/Dosada05/swiss-engine/models"
	"github.com/Dosada05/swiss-engine/pairing"
	"github.com/Dosada05/swiss-engine/repositories"
)

// RoundDetail is a round with its matches, plus whether the check-in
// window has lapsed with matches still waiting. Overdue is computed at
// read time from the round clock; nothing in the engine runs on timers.
type RoundDetail struct {
	Round   *models.Round   `json:"round"`
	Matches []*models.Match `json:"matches"`
	Overdue []int           `json:"overdue_match_ids,omitempty"`
}

// ProgressionService is the orchestrator: it moves a tournament through
// its phases and rounds. Pairing generation, round confirmation and
// completion, the cut to elimination and final completion all live here,
// each one built on conditional updates so concurrent staff clicks
// cannot double-fire a transition.
type ProgressionService interface {
	Start(ctx context.Context, caller Caller, tournamentID int) (*models.Tournament, error)

	// PrepareRound generates and persists pairings for the next round of
	// the current phase. Calling it again before the round starts returns
	// the already generated pairings.
	PrepareRound(ctx context.Context, caller Caller, tournamentID int) (*RoundDetail, error)
	// StartRound confirms posted pairings and starts the round clock.
	StartRound(ctx context.Context, caller Caller, roundID int) (*models.Round, error)
	ExtendRound(ctx context.Context, caller Caller, roundID, minutes int) (*models.Round, error)
	// CompleteRound closes an active round once every match is settled,
	// then recomputes standings. Blocked rounds come back as a
	// *RoundBlockedError naming the matches in the way.
	CompleteRound(ctx context.Context, caller Caller, roundID int) (*RoundDetail, error)

	GetRound(ctx context.Context, roundID int) (*RoundDetail, error)

	// CanAdvancePhase reports whether the current phase has run its
	// course; the reason string says what is still missing when not.
	CanAdvancePhase(ctx context.Context, tournamentID int) (bool, string, error)
	// AdvanceToTopCut closes the swiss phase and opens the elimination
	// phase with its first-round bracket seeded from final standings.
	AdvanceToTopCut(ctx context.Context, caller Caller, tournamentID int) (*RoundDetail, error)
	Complete(ctx context.Context, caller Caller, tournamentID int) (*models.Tournament, error)
}

type progressionService struct {
	db              TxBeginner
	tournamentRepo  repositories.TournamentRepository
	phaseRepo       repositories.PhaseRepository
	roundRepo       repositories.RoundRepository
	matchRepo       repositories.MatchRepository
	participantRepo repositories.ParticipantRepository
	statsRepo       repositories.PlayerStatsRepository
	pairingSvc      PairingService
	standingsSvc    StandingsService
	hub             Broadcaster
	producer        EventEmitter
	logger          *slog.Logger

	noCheckInPolicy config.NoCheckInPolicy
}

func NewProgressionService(
	db TxBeginner,
	tournamentRepo repositories.TournamentRepository,
	phaseRepo repositories.PhaseRepository,
	roundRepo repositories.RoundRepository,
	matchRepo repositories.MatchRepository,
	participantRepo repositories.ParticipantRepository,
	statsRepo repositories.PlayerStatsRepository,
	pairingSvc PairingService,
	standingsSvc StandingsService,
	hub Broadcaster,
	producer EventEmitter,
	logger *slog.Logger,
	noCheckInPolicy config.NoCheckInPolicy,
) ProgressionService {
	return &progressionService{
		db:              db,
		tournamentRepo:  tournamentRepo,
		phaseRepo:       phaseRepo,
		roundRepo:       roundRepo,
		matchRepo:       matchRepo,
		participantRepo: participantRepo,
		statsRepo:       statsRepo,
		pairingSvc:      pairingSvc,
		standingsSvc:    standingsSvc,
		hub:             hub,
		producer:        producer,
		logger:          logger,
		noCheckInPolicy: noCheckInPolicy,
	}
}

func (s *progressionService) Start(ctx context.Context, caller Caller, tournamentID int) (*models.Tournament, error) {
	t, err := s.loadTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if !canManage(t, caller) {
		return nil, ErrNotTournamentOrganizer
	}
	if t.Status == models.StatusActive {
		return t, nil
	}
	if t.Status != models.StatusDraft && t.Status != models.StatusUpcoming {
		return nil, fmt.Errorf("%w: %s -> %s", ErrTournamentInvalidStatusTransition, t.Status, models.StatusActive)
	}

	count, err := s.participantRepo.CountActive(ctx, nil, tournamentID)
	if err != nil {
		return nil, err
	}
	if count < 2 {
		return nil, fmt.Errorf("%w: at least two active participants are required", ErrValidationFailed)
	}

	phases, err := s.phaseRepo.ListByTournament(ctx, nil, tournamentID)
	if err != nil {
		return nil, err
	}
	if len(phases) == 0 {
		return nil, fmt.Errorf("%w: tournament has no phases", ErrValidationFailed)
	}
	first := phases[0]

	err = withTx(ctx, s.db, func(exec repositories.SQLExecutor) error {
		if err := s.tournamentRepo.UpdateStatus(ctx, exec, tournamentID, t.Status, models.StatusActive); err != nil {
			return err
		}
		if err := s.phaseRepo.UpdateStatus(ctx, exec, first.ID, models.PhasePending, models.PhaseActive); err != nil {
			return err
		}
		return s.tournamentRepo.SetCurrentPhase(ctx, exec, tournamentID, &first.ID)
	})
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentStateConflict) || errors.Is(err, repositories.ErrPhaseStateConflict) {
			// Someone else started it; verify and treat as done.
			current, getErr := s.loadTournament(ctx, tournamentID)
			if getErr == nil && current.Status == models.StatusActive {
				return current, nil
			}
			return nil, ErrConcurrentUpdate
		}
		return nil, err
	}

	// Seed the standings table so the UI has rows before round one.
	if _, err := s.standingsSvc.Recompute(ctx, tournamentID); err != nil {
		return nil, err
	}

	t, err = s.loadTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("tournament started",
		slog.Int("tournament_id", tournamentID),
		slog.Int("participants", count))
	s.hub.BroadcastToTournament(tournamentID, live.MessageTournamentUpdated, t)
	s.producer.Emit(events.EventTournamentStarted, tournamentID, map[string]int{"participants": count})
	return t, nil
}

func (s *progressionService) PrepareRound(ctx context.Context, caller Caller, tournamentID int) (*RoundDetail, error) {
	t, phase, err := s.loadActivePhase(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if !canManage(t, caller) {
		return nil, ErrNotTournamentOrganizer
	}

	rounds, err := s.roundRepo.ListByPhase(ctx, nil, phase.ID)
	if err != nil {
		return nil, err
	}
	if len(rounds) > 0 {
		last := rounds[len(rounds)-1]
		switch last.Status {
		case models.RoundPending:
			// Pairings already posted; hand them back instead of failing.
			return s.roundDetail(ctx, t, last)
		case models.RoundActive:
			return nil, ErrPriorRoundNotCompleted
		}
	}
	nextNumber := len(rounds) + 1

	var round *models.Round
	var matches []*models.Match
	switch phase.Type {
	case models.PhaseSwiss:
		round, matches, err = s.prepareSwissRound(ctx, t, phase, nextNumber)
	case models.PhaseSingleElimination:
		round, matches, err = s.prepareEliminationRound(ctx, phase, rounds, nextNumber)
	default:
		return nil, fmt.Errorf("unsupported phase type %q", phase.Type)
	}
	if err != nil {
		if errors.Is(err, repositories.ErrRoundAlreadyExists) {
			// A concurrent call won the unique round slot; its pairings are
			// the pairings.
			existing, getErr := s.roundRepo.GetByPhaseAndNumber(ctx, nil, phase.ID, nextNumber)
			if getErr != nil {
				return nil, getErr
			}
			return s.roundDetail(ctx, t, existing)
		}
		return nil, err
	}

	detail := &RoundDetail{Round: round, Matches: matches}
	s.logger.Info("pairings posted",
		slog.Int("tournament_id", t.ID),
		slog.Int("round_id", round.ID),
		slog.Int("round_number", round.RoundNumber),
		slog.Int("matches", len(matches)))
	s.hub.BroadcastToTournament(t.ID, live.MessagePairingsPosted, detail)
	s.producer.Emit(events.EventPairingsPosted, t.ID, map[string]int{
		"round_id":     round.ID,
		"round_number": round.RoundNumber,
	})
	return detail, nil
}

func (s *progressionService) prepareSwissRound(ctx context.Context, t *models.Tournament, phase *models.Phase, nextNumber int) (*models.Round, []*models.Match, error) {
	if phase.PlannedRounds != nil && nextNumber > *phase.PlannedRounds {
		return nil, nil, ErrPhaseRoundsExhausted
	}

	var round *models.Round
	var matches []*models.Match
	err := withTx(ctx, s.db, func(exec repositories.SQLExecutor) error {
		var err error
		round, matches, err = s.pairingSvc.GenerateSwissRound(ctx, exec, phase, nextNumber, t.ID)
		return err
	})
	if errors.Is(err, pairing.ErrSinglePlayer) {
		// The field collapsed to one player; the phase is over early.
		if err := s.phaseRepo.UpdateStatus(ctx, nil, phase.ID, models.PhaseActive, models.PhaseCompleted); err != nil &&
			!errors.Is(err, repositories.ErrPhaseStateConflict) {
			return nil, nil, err
		}
		return nil, nil, ErrPhaseCompletedEarly
	}
	if err != nil {
		return nil, nil, err
	}
	return round, matches, nil
}

func (s *progressionService) prepareEliminationRound(ctx context.Context, phase *models.Phase, rounds []*models.Round, nextNumber int) (*models.Round, []*models.Match, error) {
	if len(rounds) == 0 {
		// The opener is seeded by AdvanceToTopCut together with the phase
		// activation; an active elimination phase always has round one.
		return nil, nil, ErrPhaseNotActive
	}
	prev := rounds[len(rounds)-1]
	prevMatches, err := s.matchRepo.ListByRound(ctx, nil, prev.ID)
	if err != nil {
		return nil, nil, err
	}
	if len(prevMatches) <= 1 {
		return nil, nil, ErrPhaseRoundsExhausted
	}

	var round *models.Round
	var matches []*models.Match
	err = withTx(ctx, s.db, func(exec repositories.SQLExecutor) error {
		var err error
		round, matches, err = s.pairingSvc.GenerateEliminationRound(ctx, exec, phase, nextNumber, prevMatches)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return round, matches, nil
}

func (s *progressionService) StartRound(ctx context.Context, caller Caller, roundID int) (*models.Round, error) {
	t, _, round, err := s.loadRoundChain(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if !canManage(t, caller) {
		return nil, ErrNotTournamentOrganizer
	}
	if round.Status == models.RoundActive {
		return round, nil
	}
	if round.Status != models.RoundPending {
		return nil, ErrRoundNotPending
	}

	now := time.Now().UTC()
	endsAt := now.Add(time.Duration(t.RoundDurationMinutes) * time.Minute)
	if err := s.roundRepo.Start(ctx, nil, roundID, now, endsAt); err != nil {
		if errors.Is(err, repositories.ErrRoundStateConflict) {
			current, getErr := s.roundRepo.GetByID(ctx, nil, roundID)
			if getErr != nil {
				return nil, getErr
			}
			if current.Status == models.RoundActive {
				return current, nil
			}
			return nil, ErrRoundNotPending
		}
		return nil, err
	}

	round, err = s.roundRepo.GetByID(ctx, nil, roundID)
	if err != nil {
		return nil, err
	}
	s.hub.BroadcastToTournament(t.ID, live.MessageRoundStarted, round)
	s.producer.Emit(events.EventRoundStarted, t.ID, map[string]int{
		"round_id":     round.ID,
		"round_number": round.RoundNumber,
	})
	return round, nil
}

func (s *progressionService) ExtendRound(ctx context.Context, caller Caller, roundID, minutes int) (*models.Round, error) {
	if minutes <= 0 {
		return nil, fmt.Errorf("%w: extension must be positive", ErrValidationFailed)
	}
	t, _, round, err := s.loadRoundChain(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if !canManage(t, caller) {
		return nil, ErrNotTournamentOrganizer
	}
	if round.Status != models.RoundActive {
		return nil, ErrRoundNotActive
	}

	if err := s.roundRepo.AddExtension(ctx, nil, roundID, minutes); err != nil {
		if errors.Is(err, repositories.ErrRoundStateConflict) {
			return nil, ErrRoundNotActive
		}
		return nil, err
	}
	round, err = s.roundRepo.GetByID(ctx, nil, roundID)
	if err != nil {
		return nil, err
	}
	s.hub.BroadcastToTournament(t.ID, live.MessageTournamentUpdated, round)
	return round, nil
}

func (s *progressionService) CompleteRound(ctx context.Context, caller Caller, roundID int) (*RoundDetail, error) {
	t, phase, round, err := s.loadRoundChain(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if !canManage(t, caller) {
		return nil, ErrNotTournamentOrganizer
	}
	if round.Status == models.RoundCompleted {
		return s.roundDetail(ctx, t, round)
	}
	if round.Status != models.RoundActive {
		return nil, ErrRoundNotActive
	}

	matches, err := s.matchRepo.ListByRound(ctx, nil, roundID)
	if err != nil {
		return nil, err
	}
	matches, err = s.settleOverdueCheckIns(ctx, caller, t, round, matches)
	if err != nil {
		return nil, err
	}

	if blocked := blockingMatches(roundID, matches); blocked != nil {
		return nil, blocked
	}

	if err := s.roundRepo.Complete(ctx, nil, roundID); err != nil {
		if errors.Is(err, repositories.ErrRoundStateConflict) {
			// The concurrent completer already ran the side effects.
			current, getErr := s.roundRepo.GetByID(ctx, nil, roundID)
			if getErr != nil {
				return nil, getErr
			}
			if current.Status == models.RoundCompleted {
				return s.roundDetail(ctx, t, current)
			}
			return nil, ErrConcurrentUpdate
		}
		return nil, err
	}

	// Standings only ever change on the committed completion of a round.
	if _, err := s.standingsSvc.Recompute(ctx, t.ID); err != nil {
		return nil, err
	}

	if phase.Type == models.PhaseSingleElimination && len(matches) == 1 {
		if err := s.finishEliminationPhase(ctx, t, phase, matches[0]); err != nil {
			return nil, err
		}
	}

	round, err = s.roundRepo.GetByID(ctx, nil, roundID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("round completed",
		slog.Int("tournament_id", t.ID),
		slog.Int("round_id", roundID),
		slog.Int("round_number", round.RoundNumber))
	s.hub.BroadcastToTournament(t.ID, live.MessageRoundCompleted, round)
	s.producer.Emit(events.EventRoundCompleted, t.ID, map[string]int{
		"round_id":     roundID,
		"round_number": round.RoundNumber,
	})
	return &RoundDetail{Round: round, Matches: matches}, nil
}

// settleOverdueCheckIns applies the no-check-in policy once the window
// has lapsed. Under auto_forfeit a one-sided no-show loses 0-2 on paper;
// a match where nobody showed still waits for staff, since the engine
// will not invent a winner. Under staff_flag nothing changes here, the
// matches simply stay in the blocking list.
func (s *progressionService) settleOverdueCheckIns(ctx context.Context, caller Caller, t *models.Tournament, round *models.Round, matches []*models.Match) ([]*models.Match, error) {
	if s.noCheckInPolicy != config.PolicyAutoForfeit {
		return matches, nil
	}
	if round.StartedAt == nil {
		return matches, nil
	}
	windowEnd := round.StartedAt.Add(time.Duration(t.CheckInWindowMinutes) * time.Minute)
	if time.Now().UTC().Before(windowEnd) {
		return matches, nil
	}

	changed := false
	for _, m := range matches {
		if m.Status != models.MatchPending || m.P1CheckedIn == m.P2CheckedIn {
			continue
		}
		winnerID := m.P1ParticipantID
		p1Games, p2Games := 2, 0
		if m.P2CheckedIn {
			winnerID = *m.P2ParticipantID
			p1Games, p2Games = 0, 2
		}
		err := s.matchRepo.ForceComplete(ctx, nil, m.ID, &winnerID, p1Games, p2Games, caller.UserID)
		if err != nil {
			return nil, err
		}
		changed = true
		s.logger.Info("match forfeited on missed check-in",
			slog.Int("match_id", m.ID),
			slog.Int("winner_participant_id", winnerID))
	}
	if !changed {
		return matches, nil
	}
	return s.matchRepo.ListByRound(ctx, nil, round.ID)
}

func blockingMatches(roundID int, matches []*models.Match) *RoundBlockedError {
	blocked := &RoundBlockedError{RoundID: roundID}
	for _, m := range matches {
		if m.Status != models.MatchCompleted {
			blocked.UnfinishedMatches = append(blocked.UnfinishedMatches, m.ID)
		}
		if m.Disputed {
			blocked.DisputedMatches = append(blocked.DisputedMatches, m.ID)
		}
	}
	if len(blocked.UnfinishedMatches) == 0 && len(blocked.DisputedMatches) == 0 {
		return nil
	}
	return blocked
}

// finishEliminationPhase closes the bracket after its final: the phase
// completes and the finalist who won becomes the tournament winner.
func (s *progressionService) finishEliminationPhase(ctx context.Context, t *models.Tournament, phase *models.Phase, final *models.Match) error {
	err := s.phaseRepo.UpdateStatus(ctx, nil, phase.ID, models.PhaseActive, models.PhaseCompleted)
	if err != nil {
		if errors.Is(err, repositories.ErrPhaseStateConflict) {
			return nil
		}
		return err
	}
	if final.WinnerParticipantID != nil {
		if err := s.tournamentRepo.SetWinner(ctx, nil, t.ID, final.WinnerParticipantID); err != nil {
			return err
		}
	}
	s.hub.BroadcastToTournament(t.ID, live.MessagePhaseAdvanced, phase)
	return nil
}

func (s *progressionService) GetRound(ctx context.Context, roundID int) (*RoundDetail, error) {
	t, _, round, err := s.loadRoundChain(ctx, roundID)
	if err != nil {
		return nil, err
	}
	return s.roundDetail(ctx, t, round)
}

func (s *progressionService) CanAdvancePhase(ctx context.Context, tournamentID int) (bool, string, error) {
	_, phase, err := s.loadActivePhase(ctx, tournamentID)
	if err != nil {
		return false, "", err
	}
	rounds, err := s.roundRepo.ListByPhase(ctx, nil, phase.ID)
	if err != nil {
		return false, "", err
	}

	switch phase.Type {
	case models.PhaseSwiss:
		planned := 0
		if phase.PlannedRounds != nil {
			planned = *phase.PlannedRounds
		}
		completed := 0
		for _, r := range rounds {
			if r.Status == models.RoundCompleted {
				completed++
			}
		}
		if completed < planned {
			return false, fmt.Sprintf("%d of %d swiss rounds completed", completed, planned), nil
		}
		return true, "", nil
	case models.PhaseSingleElimination:
		if len(rounds) == 0 {
			return false, "bracket not seeded", nil
		}
		last := rounds[len(rounds)-1]
		matches, err := s.matchRepo.ListByRound(ctx, nil, last.ID)
		if err != nil {
			return false, "", err
		}
		if len(matches) == 1 && last.Status == models.RoundCompleted {
			return true, "", nil
		}
		return false, "bracket final not completed", nil
	}
	return false, "", fmt.Errorf("unsupported phase type %q", phase.Type)
}

func (s *progressionService) AdvanceToTopCut(ctx context.Context, caller Caller, tournamentID int) (*RoundDetail, error) {
	t, phase, err := s.loadActivePhase(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if !canManage(t, caller) {
		return nil, ErrNotTournamentOrganizer
	}
	if phase.Type != models.PhaseSwiss {
		return nil, fmt.Errorf("%w: current phase is not swiss", ErrValidationFailed)
	}

	ok, reason, err := s.CanAdvancePhase(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPhaseNotComplete, reason)
	}

	phases, err := s.phaseRepo.ListByTournament(ctx, nil, tournamentID)
	if err != nil {
		return nil, err
	}
	var next *models.Phase
	for _, p := range phases {
		if p.PhaseOrder == phase.PhaseOrder+1 {
			next = p
			break
		}
	}
	if next == nil {
		return nil, ErrNoNextPhase
	}
	if next.Type != models.PhaseSingleElimination || next.CutSize == nil {
		return nil, fmt.Errorf("%w: next phase is not a configured top cut", ErrValidationFailed)
	}

	cutSize := *next.CutSize
	if cutSize < 2 {
		return nil, ErrInvalidCutSize
	}
	seeds, err := s.cutSeeds(ctx, tournamentID, cutSize)
	if err != nil {
		return nil, err
	}

	var round *models.Round
	var matches []*models.Match
	err = withTx(ctx, s.db, func(exec repositories.SQLExecutor) error {
		if err := s.phaseRepo.UpdateStatus(ctx, exec, phase.ID, models.PhaseActive, models.PhaseCompleted); err != nil {
			return err
		}
		var err error
		round, matches, err = s.pairingSvc.GenerateEliminationOpener(ctx, exec, next, seeds)
		if err != nil {
			return err
		}
		// Pairings exist before the phase goes active, so an active
		// elimination phase is never seen without its opening round.
		if err := s.phaseRepo.UpdateStatus(ctx, exec, next.ID, models.PhasePending, models.PhaseActive); err != nil {
			return err
		}
		return s.tournamentRepo.SetCurrentPhase(ctx, exec, tournamentID, &next.ID)
	})
	if err != nil {
		if errors.Is(err, repositories.ErrPhaseStateConflict) || errors.Is(err, repositories.ErrRoundAlreadyExists) {
			// A concurrent advance won; return the bracket it produced.
			existing, getErr := s.roundRepo.GetByPhaseAndNumber(ctx, nil, next.ID, 1)
			if getErr != nil {
				return nil, ErrConcurrentUpdate
			}
			return s.roundDetail(ctx, t, existing)
		}
		return nil, err
	}

	detail := &RoundDetail{Round: round, Matches: matches}
	s.logger.Info("advanced to top cut",
		slog.Int("tournament_id", tournamentID),
		slog.Int("cut_size", cutSize),
		slog.Int("phase_id", next.ID))
	s.hub.BroadcastToTournament(tournamentID, live.MessagePhaseAdvanced, next)
	s.hub.BroadcastToTournament(tournamentID, live.MessagePairingsPosted, detail)
	s.producer.Emit(events.EventPhaseAdvanced, tournamentID, map[string]int{
		"phase_id": next.ID,
		"cut_size": cutSize,
	})
	return detail, nil
}

// cutSeeds returns the participant IDs of the top cutSize active players
// in standing order. Dropped players never make the cut even when their
// record would have carried them in.
func (s *progressionService) cutSeeds(ctx context.Context, tournamentID, cutSize int) ([]int, error) {
	participants, err := s.participantRepo.ListByTournament(ctx, nil, tournamentID, true)
	if err != nil {
		return nil, err
	}
	if cutSize > len(participants) {
		return nil, ErrCutSizeTooLarge
	}
	active := make(map[int]bool, len(participants))
	for _, p := range participants {
		active[p.ID] = true
	}

	stats, err := s.statsRepo.ListByTournament(ctx, nil, tournamentID)
	if err != nil {
		return nil, err
	}
	seeds := make([]int, 0, cutSize)
	for _, row := range stats {
		if !active[row.ParticipantID] {
			continue
		}
		seeds = append(seeds, row.ParticipantID)
		if len(seeds) == cutSize {
			break
		}
	}
	if len(seeds) < cutSize {
		return nil, ErrCutSizeTooLarge
	}
	return seeds, nil
}

func (s *progressionService) Complete(ctx context.Context, caller Caller, tournamentID int) (*models.Tournament, error) {
	t, err := s.loadTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if !canManage(t, caller) {
		return nil, ErrNotTournamentOrganizer
	}
	if t.Status == models.StatusCompleted {
		return t, nil
	}
	if t.Status != models.StatusActive {
		return nil, fmt.Errorf("%w: %s -> %s", ErrTournamentInvalidStatusTransition, t.Status, models.StatusCompleted)
	}

	phases, err := s.phaseRepo.ListByTournament(ctx, nil, tournamentID)
	if err != nil {
		return nil, err
	}
	// A tournament that ends on swiss has no advance step, so its last
	// phase closes here once every planned round is completed.
	if err := s.closeTrailingSwissPhase(ctx, phases); err != nil {
		return nil, err
	}
	for _, p := range phases {
		if p.Status != models.PhaseCompleted {
			return nil, fmt.Errorf("%w: phase %d is %s", ErrPhasesNotComplete, p.PhaseOrder, p.Status)
		}
	}

	stats, err := s.standingsSvc.Recompute(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	err = withTx(ctx, s.db, func(exec repositories.SQLExecutor) error {
		if err := s.tournamentRepo.UpdateStatus(ctx, exec, tournamentID, models.StatusActive, models.StatusCompleted); err != nil {
			return err
		}
		// Freeze exactly once; the standings view stays rebuildable but
		// the final ranking never moves again.
		if err := s.statsRepo.FreezeFinalRankings(ctx, exec, tournamentID); err != nil {
			return err
		}
		if t.WinnerParticipantID == nil && len(stats) > 0 {
			winnerID := stats[0].ParticipantID
			return s.tournamentRepo.SetWinner(ctx, exec, tournamentID, &winnerID)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentStateConflict) {
			current, getErr := s.loadTournament(ctx, tournamentID)
			if getErr == nil && current.Status == models.StatusCompleted {
				return current, nil
			}
			return nil, ErrConcurrentUpdate
		}
		return nil, err
	}

	t, err = s.loadTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("tournament completed", slog.Int("tournament_id", tournamentID))
	s.hub.BroadcastToTournament(tournamentID, live.MessageTournamentUpdated, t)
	s.producer.Emit(events.EventTournamentCompleted, tournamentID, t.WinnerParticipantID)
	return t, nil
}

// closeTrailingSwissPhase completes the final phase of a swiss-only
// tournament when all its planned rounds are done. A swiss phase that is
// followed by a cut stays active until AdvanceToTopCut closes it.
func (s *progressionService) closeTrailingSwissPhase(ctx context.Context, phases []*models.Phase) error {
	if len(phases) == 0 {
		return nil
	}
	last := phases[len(phases)-1]
	if last.Type != models.PhaseSwiss || last.Status != models.PhaseActive {
		return nil
	}

	rounds, err := s.roundRepo.ListByPhase(ctx, nil, last.ID)
	if err != nil {
		return err
	}
	planned := 0
	if last.PlannedRounds != nil {
		planned = *last.PlannedRounds
	}
	completed := 0
	for _, r := range rounds {
		if r.Status == models.RoundCompleted {
			completed++
		}
	}
	if completed < planned {
		return nil
	}

	if err := s.phaseRepo.UpdateStatus(ctx, nil, last.ID, models.PhaseActive, models.PhaseCompleted); err != nil {
		if errors.Is(err, repositories.ErrPhaseStateConflict) {
			current, getErr := s.phaseRepo.GetByID(ctx, nil, last.ID)
			if getErr != nil {
				return getErr
			}
			*last = *current
			return nil
		}
		return err
	}
	last.Status = models.PhaseCompleted
	return nil
}

func (s *progressionService) loadTournament(ctx context.Context, tournamentID int) (*models.Tournament, error) {
	t, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

func (s *progressionService) loadActivePhase(ctx context.Context, tournamentID int) (*models.Tournament, *models.Phase, error) {
	t, err := s.loadTournament(ctx, tournamentID)
	if err != nil {
		return nil, nil, err
	}
	if t.Status != models.StatusActive {
		return nil, nil, ErrTournamentNotActive
	}
	if t.CurrentPhaseID == nil {
		return nil, nil, ErrPhaseNotActive
	}
	phase, err := s.phaseRepo.GetByID(ctx, nil, *t.CurrentPhaseID)
	if err != nil {
		return nil, nil, err
	}
	if phase.Status != models.PhaseActive {
		return nil, nil, ErrPhaseNotActive
	}
	return t, phase, nil
}

func (s *progressionService) loadRoundChain(ctx context.Context, roundID int) (*models.Tournament, *models.Phase, *models.Round, error) {
	round, err := s.roundRepo.GetByID(ctx, nil, roundID)
	if err != nil {
		if errors.Is(err, repositories.ErrRoundNotFound) {
			return nil, nil, nil, ErrNotFound
		}
		return nil, nil, nil, err
	}
	phase, err := s.phaseRepo.GetByID(ctx, nil, round.PhaseID)
	if err != nil {
		return nil, nil, nil, err
	}
	t, err := s.loadTournament(ctx, phase.TournamentID)
	if err != nil {
		return nil, nil, nil, err
	}
	return t, phase, round, nil
}

func (s *progressionService) roundDetail(ctx context.Context, t *models.Tournament, round *models.Round) (*RoundDetail, error) {
	matches, err := s.matchRepo.ListByRound(ctx, nil, round.ID)
	if err != nil {
		return nil, err
	}
	detail := &RoundDetail{Round: round, Matches: matches}

	// Surface matches that slept through check-in; staff_flag mode relies
	// on this to route them to a human.
	if round.Status == models.RoundActive && round.StartedAt != nil {
		windowEnd := round.StartedAt.Add(time.Duration(t.CheckInWindowMinutes) * time.Minute)
		if time.Now().UTC().After(windowEnd) {
			for _, m := range matches {
				if m.Status == models.MatchPending {
					detail.Overdue = append(detail.Overdue, m.ID)
				}
			}
		}
	}
	return detail, nil
}
