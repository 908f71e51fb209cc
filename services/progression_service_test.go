package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Dosada05/swiss-engine/config"
	"github.com/Dosada05/swiss-engine/models"
)

func TestSwissRunWithMidEventDrop(t *testing.T) {
	e := newTestEngine(config.PolicyStaffFlag)
	ctx := context.Background()
	tour, parts, callers := e.setupTournament(t, 15, 3, nil)

	started, err := e.progression.Start(ctx, organizer, tour.ID)
	if err != nil {
		t.Fatalf("start tournament: %v", err)
	}
	if started.Status != models.StatusActive {
		t.Fatalf("tournament status = %s, want %s", started.Status, models.StatusActive)
	}
	if started.CurrentPhaseID == nil {
		t.Fatal("current phase not set after start")
	}
	if rows, err := e.standings.Get(ctx, tour.ID); err != nil || len(rows) != 15 {
		t.Fatalf("seeded standings: %d rows, err %v; want 15 rows", len(rows), err)
	}

	// Round one of fifteen players: seven matches plus a bye for the
	// lowest-ranked player.
	detail, err := e.progression.PrepareRound(ctx, organizer, tour.ID)
	if err != nil {
		t.Fatalf("prepare round 1: %v", err)
	}
	if len(detail.Matches) != 8 {
		t.Fatalf("round 1 has %d matches, want 8", len(detail.Matches))
	}
	var bye *models.Match
	for _, m := range detail.Matches {
		if m.IsBye {
			if bye != nil {
				t.Fatal("round 1 has more than one bye")
			}
			bye = m
		}
	}
	if bye == nil {
		t.Fatal("round 1 has no bye")
	}
	if bye.P1ParticipantID != parts[14].ID {
		t.Errorf("bye went to participant %d, want lowest-ranked %d", bye.P1ParticipantID, parts[14].ID)
	}
	if bye.Status != models.MatchCompleted || bye.WinnerParticipantID == nil || *bye.WinnerParticipantID != bye.P1ParticipantID {
		t.Error("bye match should be born completed with its player as winner")
	}

	if _, err := e.progression.StartRound(ctx, organizer, detail.Round.ID); err != nil {
		t.Fatalf("start round 1: %v", err)
	}
	for _, m := range detail.Matches {
		if !m.IsBye {
			e.playMatch(t, m, m.P1ParticipantID, callers)
		}
	}
	if _, err := e.progression.CompleteRound(ctx, organizer, detail.Round.ID); err != nil {
		t.Fatalf("complete round 1: %v", err)
	}

	byeStats := e.statsFor(t, tour.ID, parts[14].ID)
	if !byeStats.HasReceivedBye {
		t.Error("bye recipient not flagged in standings")
	}
	if byeStats.MatchWins != 1 || byeStats.GameWins != 0 {
		t.Errorf("bye counted as %d match wins / %d game wins, want 1 / 0", byeStats.MatchWins, byeStats.GameWins)
	}

	e.runRound(t, tour.ID, callers)

	// A mid-event self-drop: no further pairings, history intact.
	dropped := parts[2]
	if err := e.tournamentSvc.DropParticipant(ctx, callers[dropped.ID], tour.ID, dropped.ID); err != nil {
		t.Fatalf("drop participant: %v", err)
	}
	// Dropping again is a no-op, not an error.
	if err := e.tournamentSvc.DropParticipant(ctx, organizer, tour.ID, dropped.ID); err != nil {
		t.Fatalf("second drop: %v", err)
	}

	round3, err := e.progression.PrepareRound(ctx, organizer, tour.ID)
	if err != nil {
		t.Fatalf("prepare round 3: %v", err)
	}
	if len(round3.Matches) != 7 {
		t.Fatalf("round 3 has %d matches, want 7 (14 active players)", len(round3.Matches))
	}
	for _, m := range round3.Matches {
		if m.IsBye {
			t.Error("round 3 should have no bye with an even field")
		}
		if m.Side(dropped.ID) != 0 {
			t.Errorf("dropped participant %d paired in match %d", dropped.ID, m.ID)
		}
	}
	if _, err := e.progression.StartRound(ctx, organizer, round3.Round.ID); err != nil {
		t.Fatalf("start round 3: %v", err)
	}
	for _, m := range round3.Matches {
		e.playMatch(t, m, m.P1ParticipantID, callers)
	}
	if _, err := e.progression.CompleteRound(ctx, organizer, round3.Round.ID); err != nil {
		t.Fatalf("complete round 3: %v", err)
	}

	if _, err := e.progression.PrepareRound(ctx, organizer, tour.ID); !errors.Is(err, ErrPhaseRoundsExhausted) {
		t.Fatalf("prepare past planned rounds: err = %v, want ErrPhaseRoundsExhausted", err)
	}

	done, err := e.progression.Complete(ctx, organizer, tour.ID)
	if err != nil {
		t.Fatalf("complete tournament: %v", err)
	}
	if done.Status != models.StatusCompleted {
		t.Fatalf("tournament status = %s, want %s", done.Status, models.StatusCompleted)
	}
	if done.WinnerParticipantID == nil {
		t.Fatal("no winner recorded on completion")
	}

	rows, err := e.standings.Get(ctx, tour.ID)
	if err != nil {
		t.Fatalf("final standings: %v", err)
	}
	if len(rows) != 15 {
		t.Fatalf("final standings have %d rows, want 15 (dropped players included)", len(rows))
	}
	for _, row := range rows {
		if row.FinalRanking == nil {
			t.Errorf("participant %d has no frozen final ranking", row.ParticipantID)
		}
	}

	// Completing twice is idempotent.
	if again, err := e.progression.Complete(ctx, organizer, tour.ID); err != nil || again.Status != models.StatusCompleted {
		t.Fatalf("second complete: %v (status %v)", err, again)
	}
}

func TestTopCutSeedingAndBracket(t *testing.T) {
	e := newTestEngine(config.PolicyStaffFlag)
	ctx := context.Background()
	tour, _, callers := e.setupTournament(t, 8, 1, intPtr(6))

	if _, err := e.progression.Start(ctx, organizer, tour.ID); err != nil {
		t.Fatalf("start tournament: %v", err)
	}
	e.runRound(t, tour.ID, callers)

	if ok, reason, err := e.progression.CanAdvancePhase(ctx, tour.ID); err != nil || !ok {
		t.Fatalf("can advance = %v (%q), err %v; want true", ok, reason, err)
	}

	rows, err := e.standings.Get(ctx, tour.ID)
	if err != nil {
		t.Fatalf("standings before cut: %v", err)
	}
	seeds := make([]int, 6)
	for i := 0; i < 6; i++ {
		seeds[i] = rows[i].ParticipantID
	}

	opener, err := e.progression.AdvanceToTopCut(ctx, organizer, tour.ID)
	if err != nil {
		t.Fatalf("advance to top cut: %v", err)
	}
	if opener.Round.RoundNumber != 1 {
		t.Errorf("opener round number = %d, want 1", opener.Round.RoundNumber)
	}
	if len(opener.Matches) != 4 {
		t.Fatalf("top 6 opener has %d tables, want 4 in a size-8 bracket", len(opener.Matches))
	}

	// Folded bracket for a top 6: byes for seeds 1 and 2, then 3v6 and 4v5.
	m := opener.Matches
	if !m[0].IsBye || m[0].P1ParticipantID != seeds[0] {
		t.Errorf("table 1 should be a bye for seed 1 (%d), got %+v", seeds[0], m[0])
	}
	if !m[1].IsBye || m[1].P1ParticipantID != seeds[1] {
		t.Errorf("table 2 should be a bye for seed 2 (%d), got %+v", seeds[1], m[1])
	}
	if m[2].IsBye || m[2].P1ParticipantID != seeds[2] || *m[2].P2ParticipantID != seeds[5] {
		t.Errorf("table 3 should pair seed 3 (%d) with seed 6 (%d), got %+v", seeds[2], seeds[5], m[2])
	}
	if m[3].IsBye || m[3].P1ParticipantID != seeds[3] || *m[3].P2ParticipantID != seeds[4] {
		t.Errorf("table 4 should pair seed 4 (%d) with seed 5 (%d), got %+v", seeds[3], seeds[4], m[3])
	}

	// Phase bookkeeping: swiss closed, elimination current and active,
	// and the bracket existed before the phase went live.
	phases, err := e.phases.ListByTournament(ctx, nil, tour.ID)
	if err != nil {
		t.Fatalf("list phases: %v", err)
	}
	if phases[0].Status != models.PhaseCompleted {
		t.Errorf("swiss phase status = %s, want completed", phases[0].Status)
	}
	if phases[1].Status != models.PhaseActive {
		t.Errorf("elimination phase status = %s, want active", phases[1].Status)
	}
	current, err := e.tournamentSvc.GetByID(ctx, tour.ID)
	if err != nil {
		t.Fatalf("reload tournament: %v", err)
	}
	if current.CurrentPhaseID == nil || *current.CurrentPhaseID != phases[1].ID {
		t.Error("current phase does not point at the elimination phase")
	}

	// Quarterfinals: play the two real matches, seat 1 wins.
	if _, err := e.progression.StartRound(ctx, organizer, opener.Round.ID); err != nil {
		t.Fatalf("start opener: %v", err)
	}
	e.playMatch(t, m[2], seeds[2], callers)
	e.playMatch(t, m[3], seeds[3], callers)
	if _, err := e.progression.CompleteRound(ctx, organizer, opener.Round.ID); err != nil {
		t.Fatalf("complete opener: %v", err)
	}

	// Semifinals pair winners by table adjacency.
	semis, err := e.progression.PrepareRound(ctx, organizer, tour.ID)
	if err != nil {
		t.Fatalf("prepare semifinals: %v", err)
	}
	if len(semis.Matches) != 2 {
		t.Fatalf("semifinals have %d matches, want 2", len(semis.Matches))
	}
	sm := semis.Matches
	if sm[0].P1ParticipantID != seeds[0] || *sm[0].P2ParticipantID != seeds[1] {
		t.Errorf("semifinal 1 = %d vs %d, want %d vs %d", sm[0].P1ParticipantID, *sm[0].P2ParticipantID, seeds[0], seeds[1])
	}
	if sm[1].P1ParticipantID != seeds[2] || *sm[1].P2ParticipantID != seeds[3] {
		t.Errorf("semifinal 2 = %d vs %d, want %d vs %d", sm[1].P1ParticipantID, *sm[1].P2ParticipantID, seeds[2], seeds[3])
	}
	if _, err := e.progression.StartRound(ctx, organizer, semis.Round.ID); err != nil {
		t.Fatalf("start semifinals: %v", err)
	}
	e.playMatch(t, sm[0], seeds[0], callers)
	e.playMatch(t, sm[1], seeds[2], callers)
	if _, err := e.progression.CompleteRound(ctx, organizer, semis.Round.ID); err != nil {
		t.Fatalf("complete semifinals: %v", err)
	}

	final, err := e.progression.PrepareRound(ctx, organizer, tour.ID)
	if err != nil {
		t.Fatalf("prepare final: %v", err)
	}
	if len(final.Matches) != 1 {
		t.Fatalf("final round has %d matches, want 1", len(final.Matches))
	}
	if _, err := e.progression.StartRound(ctx, organizer, final.Round.ID); err != nil {
		t.Fatalf("start final: %v", err)
	}
	e.playMatch(t, final.Matches[0], seeds[0], callers)
	if _, err := e.progression.CompleteRound(ctx, organizer, final.Round.ID); err != nil {
		t.Fatalf("complete final: %v", err)
	}

	current, err = e.tournamentSvc.GetByID(ctx, tour.ID)
	if err != nil {
		t.Fatalf("reload tournament after final: %v", err)
	}
	if current.WinnerParticipantID == nil || *current.WinnerParticipantID != seeds[0] {
		t.Errorf("tournament winner = %v, want %d", current.WinnerParticipantID, seeds[0])
	}

	// Nothing left to pair once the bracket is decided.
	if _, err := e.progression.PrepareRound(ctx, organizer, tour.ID); !errors.Is(err, ErrPhaseNotActive) {
		t.Fatalf("prepare after final: err = %v, want ErrPhaseNotActive", err)
	}

	done, err := e.progression.Complete(ctx, organizer, tour.ID)
	if err != nil {
		t.Fatalf("complete tournament: %v", err)
	}
	if done.Status != models.StatusCompleted {
		t.Fatalf("tournament status = %s, want completed", done.Status)
	}
}

func TestPrepareRoundIdempotent(t *testing.T) {
	e := newTestEngine(config.PolicyStaffFlag)
	ctx := context.Background()
	tour, _, _ := e.setupTournament(t, 4, 2, nil)

	if _, err := e.progression.Start(ctx, organizer, tour.ID); err != nil {
		t.Fatalf("start tournament: %v", err)
	}

	first, err := e.progression.PrepareRound(ctx, organizer, tour.ID)
	if err != nil {
		t.Fatalf("first prepare: %v", err)
	}
	second, err := e.progression.PrepareRound(ctx, organizer, tour.ID)
	if err != nil {
		t.Fatalf("second prepare: %v", err)
	}
	if first.Round.ID != second.Round.ID {
		t.Fatalf("duplicate prepare produced a new round: %d then %d", first.Round.ID, second.Round.ID)
	}
	if len(first.Matches) != len(second.Matches) {
		t.Fatalf("duplicate prepare changed the pairings: %d then %d matches", len(first.Matches), len(second.Matches))
	}

	if _, err := e.progression.StartRound(ctx, organizer, first.Round.ID); err != nil {
		t.Fatalf("start round: %v", err)
	}
	if _, err := e.progression.PrepareRound(ctx, organizer, tour.ID); !errors.Is(err, ErrPriorRoundNotCompleted) {
		t.Fatalf("prepare during active round: err = %v, want ErrPriorRoundNotCompleted", err)
	}
	// Starting an already started round is a no-op, not an error.
	if _, err := e.progression.StartRound(ctx, organizer, first.Round.ID); err != nil {
		t.Fatalf("second start: %v", err)
	}
}

func TestCompleteRoundBlockedUntilResolved(t *testing.T) {
	e := newTestEngine(config.PolicyStaffFlag)
	ctx := context.Background()
	tour, _, callers := e.setupTournament(t, 4, 1, nil)

	if _, err := e.progression.Start(ctx, organizer, tour.ID); err != nil {
		t.Fatalf("start tournament: %v", err)
	}
	detail, err := e.progression.PrepareRound(ctx, organizer, tour.ID)
	if err != nil {
		t.Fatalf("prepare round: %v", err)
	}
	if _, err := e.progression.StartRound(ctx, organizer, detail.Round.ID); err != nil {
		t.Fatalf("start round: %v", err)
	}

	clean, contested := detail.Matches[0], detail.Matches[1]
	e.playMatch(t, clean, clean.P1ParticipantID, callers)

	// The contested table: result on file, then the opponent disputes it.
	p1 := callers[contested.P1ParticipantID]
	p2 := callers[*contested.P2ParticipantID]
	if _, err := e.matchSvc.CheckIn(ctx, p1, contested.ID); err != nil {
		t.Fatalf("check in: %v", err)
	}
	if _, err := e.matchSvc.CheckIn(ctx, p2, contested.ID); err != nil {
		t.Fatalf("check in: %v", err)
	}
	if _, err := e.matchSvc.ReportResult(ctx, p1, contested.ID, ReportResultInput{
		WinnerParticipantID: contested.P1ParticipantID,
		P1GameWins:          2,
		P2GameWins:          1,
	}); err != nil {
		t.Fatalf("report: %v", err)
	}
	if _, err := e.matchSvc.Dispute(ctx, p2, contested.ID); err != nil {
		t.Fatalf("dispute: %v", err)
	}

	_, err = e.progression.CompleteRound(ctx, organizer, detail.Round.ID)
	var blocked *RoundBlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("complete with open dispute: err = %v, want *RoundBlockedError", err)
	}
	if len(blocked.UnfinishedMatches) != 1 || blocked.UnfinishedMatches[0] != contested.ID {
		t.Errorf("unfinished matches = %v, want [%d]", blocked.UnfinishedMatches, contested.ID)
	}
	if len(blocked.DisputedMatches) != 1 || blocked.DisputedMatches[0] != contested.ID {
		t.Errorf("disputed matches = %v, want [%d]", blocked.DisputedMatches, contested.ID)
	}

	// Staff settles it the other way round than reported.
	resolved, err := e.matchSvc.Resolve(ctx, organizer, contested.ID, ReportResultInput{
		WinnerParticipantID: *contested.P2ParticipantID,
		P1GameWins:          1,
		P2GameWins:          2,
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Disputed {
		t.Error("resolution left the dispute flag set")
	}
	if resolved.ResolvedByUserID == nil || *resolved.ResolvedByUserID != organizer.UserID {
		t.Errorf("resolver = %v, want user %d", resolved.ResolvedByUserID, organizer.UserID)
	}

	if _, err := e.progression.CompleteRound(ctx, organizer, detail.Round.ID); err != nil {
		t.Fatalf("complete after resolution: %v", err)
	}
	winner := e.statsFor(t, tour.ID, *contested.P2ParticipantID)
	if winner.MatchWins != 1 {
		t.Errorf("resolved winner has %d match wins, want 1", winner.MatchWins)
	}
}

func TestAutoForfeitOnMissedCheckIn(t *testing.T) {
	e := newTestEngine(config.PolicyAutoForfeit)
	ctx := context.Background()
	tour, _, callers := e.setupTournament(t, 6, 1, nil)

	if _, err := e.progression.Start(ctx, organizer, tour.ID); err != nil {
		t.Fatalf("start tournament: %v", err)
	}
	detail, err := e.progression.PrepareRound(ctx, organizer, tour.ID)
	if err != nil {
		t.Fatalf("prepare round: %v", err)
	}
	if _, err := e.progression.StartRound(ctx, organizer, detail.Round.ID); err != nil {
		t.Fatalf("start round: %v", err)
	}

	oneSided, noShow, played := detail.Matches[0], detail.Matches[1], detail.Matches[2]
	if _, err := e.matchSvc.CheckIn(ctx, callers[oneSided.P1ParticipantID], oneSided.ID); err != nil {
		t.Fatalf("check in: %v", err)
	}
	e.playMatch(t, played, played.P1ParticipantID, callers)

	// Lapse the check-in window.
	e.rounds.mu.Lock()
	past := time.Now().UTC().Add(-time.Hour)
	e.rounds.rounds[detail.Round.ID].StartedAt = &past
	e.rounds.mu.Unlock()

	// The one-sided no-show is forfeited; the table where nobody came
	// still needs a human decision and keeps blocking.
	_, err = e.progression.CompleteRound(ctx, organizer, detail.Round.ID)
	var blocked *RoundBlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("complete: err = %v, want *RoundBlockedError", err)
	}
	if len(blocked.UnfinishedMatches) != 1 || blocked.UnfinishedMatches[0] != noShow.ID {
		t.Fatalf("unfinished = %v, want only the double no-show %d", blocked.UnfinishedMatches, noShow.ID)
	}

	forfeited, err := e.matchSvc.GetMatch(ctx, oneSided.ID)
	if err != nil {
		t.Fatalf("reload forfeited match: %v", err)
	}
	if forfeited.Status != models.MatchCompleted {
		t.Fatalf("one-sided no-show status = %s, want completed", forfeited.Status)
	}
	if forfeited.WinnerParticipantID == nil || *forfeited.WinnerParticipantID != oneSided.P1ParticipantID {
		t.Errorf("forfeit winner = %v, want the side that showed (%d)", forfeited.WinnerParticipantID, oneSided.P1ParticipantID)
	}
	if forfeited.P1GameWins != 2 || forfeited.P2GameWins != 0 {
		t.Errorf("forfeit score = %d-%d, want 2-0", forfeited.P1GameWins, forfeited.P2GameWins)
	}

	// Staff settles the double no-show on paper, scoreless.
	if _, err := e.matchSvc.Resolve(ctx, organizer, noShow.ID, ReportResultInput{
		WinnerParticipantID: noShow.P1ParticipantID,
	}); err != nil {
		t.Fatalf("resolve double no-show: %v", err)
	}
	if _, err := e.progression.CompleteRound(ctx, organizer, detail.Round.ID); err != nil {
		t.Fatalf("complete after resolutions: %v", err)
	}
}

func TestOverdueSurfacedUnderStaffFlag(t *testing.T) {
	e := newTestEngine(config.PolicyStaffFlag)
	ctx := context.Background()
	tour, _, callers := e.setupTournament(t, 4, 1, nil)

	if _, err := e.progression.Start(ctx, organizer, tour.ID); err != nil {
		t.Fatalf("start tournament: %v", err)
	}
	detail, err := e.progression.PrepareRound(ctx, organizer, tour.ID)
	if err != nil {
		t.Fatalf("prepare round: %v", err)
	}
	if _, err := e.progression.StartRound(ctx, organizer, detail.Round.ID); err != nil {
		t.Fatalf("start round: %v", err)
	}
	stalled := detail.Matches[0]
	e.playMatch(t, detail.Matches[1], detail.Matches[1].P1ParticipantID, callers)

	e.rounds.mu.Lock()
	past := time.Now().UTC().Add(-time.Hour)
	e.rounds.rounds[detail.Round.ID].StartedAt = &past
	e.rounds.mu.Unlock()

	got, err := e.progression.GetRound(ctx, detail.Round.ID)
	if err != nil {
		t.Fatalf("get round: %v", err)
	}
	if len(got.Overdue) != 1 || got.Overdue[0] != stalled.ID {
		t.Errorf("overdue = %v, want [%d]", got.Overdue, stalled.ID)
	}

	// staff_flag never invents results; the round stays blocked.
	if _, err := e.progression.CompleteRound(ctx, organizer, detail.Round.ID); err == nil {
		t.Fatal("complete succeeded with a pending match under staff_flag")
	}
}

func TestStartRequiresEnoughPlayers(t *testing.T) {
	e := newTestEngine(config.PolicyStaffFlag)
	ctx := context.Background()
	tour, parts, callers := e.setupTournament(t, 2, 1, nil)

	if err := e.tournamentSvc.DropParticipant(ctx, callers[parts[0].ID], tour.ID, parts[0].ID); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if _, err := e.progression.Start(ctx, organizer, tour.ID); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("start with one player: err = %v, want ErrValidationFailed", err)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	e := newTestEngine(config.PolicyStaffFlag)
	ctx := context.Background()
	tour, _, _ := e.setupTournament(t, 4, 1, nil)

	if _, err := e.progression.Start(ctx, organizer, tour.ID); err != nil {
		t.Fatalf("first start: %v", err)
	}
	again, err := e.progression.Start(ctx, organizer, tour.ID)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if again.Status != models.StatusActive {
		t.Fatalf("status after repeated start = %s, want active", again.Status)
	}
}
