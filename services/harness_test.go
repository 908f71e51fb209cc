package services

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/Dosada05/swiss-engine/config"
	"github.com/Dosada05/swiss-engine/models"
)

// organizer is the staff caller used across the service tests. User 1
// creates every test tournament, so canManage always holds for it.
var organizer = Caller{UserID: 1, Role: models.RoleOrganizer}

type testEngine struct {
	users        *fakeUserRepo
	tournaments  *fakeTournamentRepo
	phases       *fakePhaseRepo
	rounds       *fakeRoundRepo
	matches      *fakeMatchRepo
	participants *fakeParticipantRepo
	stats        *fakeStatsRepo
	hub          *fakeHub
	producer     *fakeProducer

	auth          AuthService
	standings     StandingsService
	pairings      PairingService
	matchSvc      MatchService
	tournamentSvc TournamentService
	progression   ProgressionService
}

func newTestEngine(policy config.NoCheckInPolicy) *testEngine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	e := &testEngine{
		users:        newFakeUserRepo(),
		tournaments:  newFakeTournamentRepo(),
		phases:       newFakePhaseRepo(),
		rounds:       newFakeRoundRepo(),
		participants: newFakeParticipantRepo(),
		stats:        newFakeStatsRepo(),
		hub:          &fakeHub{},
		producer:     &fakeProducer{},
	}
	e.matches = newFakeMatchRepo(e.rounds, e.phases)

	e.auth = NewAuthService(e.users)
	e.standings = NewStandingsService(
		nil, e.tournaments, e.participants, e.matches, e.stats,
		e.hub, e.producer, logger,
	)
	e.pairings = NewPairingService(e.participants, e.stats, e.rounds, e.matches)
	e.matchSvc = NewMatchService(
		e.matches, e.rounds, e.phases, e.tournaments, e.participants,
		e.hub, e.producer, logger,
	)
	e.tournamentSvc = NewTournamentService(
		e.tournaments, e.phases, e.participants, nil,
		e.hub, e.producer, logger,
		50, 10,
	)
	e.progression = NewProgressionService(
		nil, e.tournaments, e.phases, e.rounds, e.matches,
		e.participants, e.stats, e.pairings, e.standings,
		e.hub, e.producer, logger, policy,
	)
	return e
}

// setupTournament creates a tournament and registers n players. Tiebreak
// seeds are pinned to registration order so the round-one pairing order
// is predictable. Returns the participants in seed order and a caller
// per participant ID.
func (e *testEngine) setupTournament(t *testing.T, players, swissRounds int, cutSize *int) (*models.Tournament, []*models.Participant, map[int]Caller) {
	t.Helper()
	ctx := context.Background()

	tour, err := e.tournamentSvc.Create(ctx, organizer, CreateTournamentInput{
		Name:            "Friday Night Modern",
		MaxParticipants: players,
		SwissRounds:     swissRounds,
		CutSize:         cutSize,
	})
	if err != nil {
		t.Fatalf("create tournament: %v", err)
	}

	callers := make(map[int]Caller, players)
	parts := make([]*models.Participant, 0, players)
	for i := 0; i < players; i++ {
		c := Caller{UserID: 100 + i, Role: models.RolePlayer}
		p, err := e.tournamentSvc.Register(ctx, c, tour.ID)
		if err != nil {
			t.Fatalf("register player %d: %v", i, err)
		}
		e.participants.mu.Lock()
		e.participants.participants[p.ID].TiebreakSeed = i
		e.participants.mu.Unlock()
		p.TiebreakSeed = i
		parts = append(parts, p)
		callers[p.ID] = c
	}
	return tour, parts, callers
}

// playMatch runs one non-bye match through its full happy path: both
// check-ins, a report from seat 1 and a confirmation from seat 2.
func (e *testEngine) playMatch(t *testing.T, m *models.Match, winnerID int, callers map[int]Caller) {
	t.Helper()
	ctx := context.Background()

	p1 := callers[m.P1ParticipantID]
	p2 := callers[*m.P2ParticipantID]
	if _, err := e.matchSvc.CheckIn(ctx, p1, m.ID); err != nil {
		t.Fatalf("check in seat 1 of match %d: %v", m.ID, err)
	}
	if _, err := e.matchSvc.CheckIn(ctx, p2, m.ID); err != nil {
		t.Fatalf("check in seat 2 of match %d: %v", m.ID, err)
	}

	p1Games, p2Games := 2, 0
	if winnerID == *m.P2ParticipantID {
		p1Games, p2Games = 0, 2
	}
	if _, err := e.matchSvc.ReportResult(ctx, p1, m.ID, ReportResultInput{
		WinnerParticipantID: winnerID,
		P1GameWins:          p1Games,
		P2GameWins:          p2Games,
	}); err != nil {
		t.Fatalf("report result for match %d: %v", m.ID, err)
	}
	if _, err := e.matchSvc.ConfirmResult(ctx, p2, m.ID, &winnerID); err != nil {
		t.Fatalf("confirm result for match %d: %v", m.ID, err)
	}
}

// runRound drives a full round: pairings, clock start, seat-1 wins
// everywhere, completion.
func (e *testEngine) runRound(t *testing.T, tournamentID int, callers map[int]Caller) *RoundDetail {
	t.Helper()
	ctx := context.Background()

	detail, err := e.progression.PrepareRound(ctx, organizer, tournamentID)
	if err != nil {
		t.Fatalf("prepare round: %v", err)
	}
	if _, err := e.progression.StartRound(ctx, organizer, detail.Round.ID); err != nil {
		t.Fatalf("start round %d: %v", detail.Round.ID, err)
	}
	for _, m := range detail.Matches {
		if m.IsBye {
			continue
		}
		e.playMatch(t, m, m.P1ParticipantID, callers)
	}
	out, err := e.progression.CompleteRound(ctx, organizer, detail.Round.ID)
	if err != nil {
		t.Fatalf("complete round %d: %v", detail.Round.ID, err)
	}
	return out
}

func (e *testEngine) statsFor(t *testing.T, tournamentID, participantID int) *models.PlayerStats {
	t.Helper()
	rows, err := e.standings.Get(context.Background(), tournamentID)
	if err != nil {
		t.Fatalf("get standings: %v", err)
	}
	for _, row := range rows {
		if row.ParticipantID == participantID {
			return row
		}
	}
	t.Fatalf("no standings row for participant %d", participantID)
	return nil
}

func intPtr(v int) *int { return &v }
