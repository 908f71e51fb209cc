package services

import (
	"context"
	"sort"

	"github.com/Dosada05/swiss-engine/models"
	"github.com/Dosada05/swiss-engine/pairing"
	"github.com/Dosada05/swiss-engine/repositories"
)

// PairingService turns the pure pairing algorithms into persisted rounds.
// Every generate method runs against the caller's executor so the round
// and its matches land in one transaction; the unique round constraint
// makes the whole generation at-most-once.
type PairingService interface {
	// GenerateSwissRound pairs the next swiss round from the current
	// standings snapshot. pairing.ErrSinglePlayer propagates so the
	// orchestrator can complete the phase early instead.
	GenerateSwissRound(ctx context.Context, exec repositories.SQLExecutor, phase *models.Phase, roundNumber, tournamentID int) (*models.Round, []*models.Match, error)
	// GenerateEliminationOpener seeds round one of a top cut from the
	// final swiss standings, seeds[0] being seed 1.
	GenerateEliminationOpener(ctx context.Context, exec repositories.SQLExecutor, phase *models.Phase, seeds []int) (*models.Round, []*models.Match, error)
	// GenerateEliminationRound pairs winners of the previous elimination
	// round by bracket adjacency.
	GenerateEliminationRound(ctx context.Context, exec repositories.SQLExecutor, phase *models.Phase, roundNumber int, prevMatches []*models.Match) (*models.Round, []*models.Match, error)
}

type pairingService struct {
	participantRepo repositories.ParticipantRepository
	statsRepo       repositories.PlayerStatsRepository
	roundRepo       repositories.RoundRepository
	matchRepo       repositories.MatchRepository
}

func NewPairingService(
	participantRepo repositories.ParticipantRepository,
	statsRepo repositories.PlayerStatsRepository,
	roundRepo repositories.RoundRepository,
	matchRepo repositories.MatchRepository,
) PairingService {
	return &pairingService{
		participantRepo: participantRepo,
		statsRepo:       statsRepo,
		roundRepo:       roundRepo,
		matchRepo:       matchRepo,
	}
}

func (s *pairingService) GenerateSwissRound(ctx context.Context, exec repositories.SQLExecutor, phase *models.Phase, roundNumber, tournamentID int) (*models.Round, []*models.Match, error) {
	players, err := s.activePlayersInStandingOrder(ctx, exec, tournamentID)
	if err != nil {
		return nil, nil, err
	}
	pairings, err := pairing.Swiss(players)
	if err != nil {
		return nil, nil, err
	}
	return s.persistRound(ctx, exec, phase.ID, roundNumber, pairings)
}

func (s *pairingService) GenerateEliminationOpener(ctx context.Context, exec repositories.SQLExecutor, phase *models.Phase, seeds []int) (*models.Round, []*models.Match, error) {
	pairings, err := pairing.EliminationSeeding(seeds)
	if err != nil {
		return nil, nil, err
	}
	return s.persistRound(ctx, exec, phase.ID, 1, pairings)
}

func (s *pairingService) GenerateEliminationRound(ctx context.Context, exec repositories.SQLExecutor, phase *models.Phase, roundNumber int, prevMatches []*models.Match) (*models.Round, []*models.Match, error) {
	// prevMatches arrive in table order; winners keep that order so
	// bracket adjacency holds.
	winners := make([]int, 0, len(prevMatches))
	for _, m := range prevMatches {
		if m.WinnerParticipantID != nil {
			winners = append(winners, *m.WinnerParticipantID)
		}
	}
	pairings, err := pairing.EliminationNextRound(winners)
	if err != nil {
		return nil, nil, err
	}
	return s.persistRound(ctx, exec, phase.ID, roundNumber, pairings)
}

// activePlayersInStandingOrder builds the pairing input from the stored
// standings. Before any standings exist (round one) active participants
// are ordered by their registration tiebreak seed, which is exactly
// where the tie-break ladder lands when nobody has played.
func (s *pairingService) activePlayersInStandingOrder(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) ([]pairing.Player, error) {
	participants, err := s.participantRepo.ListByTournament(ctx, exec, tournamentID, true)
	if err != nil {
		return nil, err
	}
	active := make(map[int]*models.Participant, len(participants))
	for _, p := range participants {
		active[p.ID] = p
	}

	stats, err := s.statsRepo.ListByTournament(ctx, exec, tournamentID)
	if err != nil {
		return nil, err
	}

	if len(stats) == 0 {
		sorted := make([]*models.Participant, len(participants))
		copy(sorted, participants)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].TiebreakSeed < sorted[j].TiebreakSeed
		})
		players := make([]pairing.Player, 0, len(sorted))
		for _, p := range sorted {
			players = append(players, pairing.Player{ParticipantID: p.ID})
		}
		return players, nil
	}

	players := make([]pairing.Player, 0, len(active))
	for _, row := range stats {
		if _, ok := active[row.ParticipantID]; !ok {
			continue
		}
		players = append(players, pairing.Player{
			ParticipantID:  row.ParticipantID,
			HasReceivedBye: row.HasReceivedBye,
			Opponents:      row.OpponentHistory,
		})
	}
	return players, nil
}

// persistRound writes the round and its matches. Bye matches are born
// completed with the win already awarded, so they never wait on check-in
// or confirmation.
func (s *pairingService) persistRound(ctx context.Context, exec repositories.SQLExecutor, phaseID, roundNumber int, pairings []pairing.Pairing) (*models.Round, []*models.Match, error) {
	round := &models.Round{
		PhaseID:     phaseID,
		RoundNumber: roundNumber,
		Status:      models.RoundPending,
	}
	if err := s.roundRepo.Create(ctx, exec, round); err != nil {
		return nil, nil, err
	}

	matches := make([]*models.Match, 0, len(pairings))
	for _, p := range pairings {
		m := &models.Match{
			RoundID:         round.ID,
			TableNumber:     p.Table,
			P1ParticipantID: p.P1,
			P2ParticipantID: p.P2,
			IsBye:           p.IsBye,
			Status:          models.MatchPending,
		}
		if p.IsBye {
			winnerID := p.P1
			m.WinnerParticipantID = &winnerID
			m.P1CheckedIn = true
			m.P1Confirmed = true
			m.P2Confirmed = true
			m.Status = models.MatchCompleted
		}
		matches = append(matches, m)
	}
	if err := s.matchRepo.CreateBatch(ctx, exec, matches); err != nil {
		return nil, nil, err
	}
	return round, matches, nil
}
