package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Dosada05/swiss-engine/events"
	"github.com/Dosada05/swiss-engine/models"
	"github.com/Dosada05/swiss-engine/repositories"
)

// In-memory repositories with the same conditional-update semantics as
// the postgres ones: status guards, the unique round slot, the frozen
// final ranking. The exec parameter is ignored, there is nothing
// transactional to join.

type fakeHub struct {
	mu       sync.Mutex
	messages []string
}

func (h *fakeHub) BroadcastToTournament(tournamentID int, msgType string, payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msgType)
}

type fakeProducer struct {
	mu     sync.Mutex
	events []events.EventType
}

func (p *fakeProducer) Emit(eventType events.EventType, tournamentID int, data any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
}

func (p *fakeProducer) count(eventType events.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == eventType {
			n++
		}
	}
	return n
}

type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int
	users  map[int]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int]*models.User)}
}

func (r *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return repositories.ErrUserEmailConflict
		}
	}
	r.nextID++
	user.ID = r.nextID
	user.CreatedAt = time.Now()
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id int) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

type fakeTournamentRepo struct {
	mu          sync.Mutex
	nextID      int
	tournaments map[int]*models.Tournament
}

func newFakeTournamentRepo() *fakeTournamentRepo {
	return &fakeTournamentRepo{tournaments: make(map[int]*models.Tournament)}
}

func (r *fakeTournamentRepo) Create(ctx context.Context, t *models.Tournament) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	t.ID = r.nextID
	t.CreatedAt = time.Now()
	clone := *t
	clone.Phases = nil
	clone.Participants = nil
	r.tournaments[t.ID] = &clone
	return nil
}

func (r *fakeTournamentRepo) GetByID(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	clone := *t
	return &clone, nil
}

func (r *fakeTournamentRepo) List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Tournament, 0)
	for _, t := range r.tournaments {
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		if filter.OrganizerID != nil && t.OrganizerID != *filter.OrganizerID {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeTournamentRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int, from, to models.TournamentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok || t.Status != from {
		return repositories.ErrTournamentStateConflict
	}
	t.Status = to
	return nil
}

func (r *fakeTournamentRepo) SetCurrentPhase(ctx context.Context, exec repositories.SQLExecutor, id int, phaseID *int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.CurrentPhaseID = phaseID
	return nil
}

func (r *fakeTournamentRepo) SetWinner(ctx context.Context, exec repositories.SQLExecutor, id int, winnerParticipantID *int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.WinnerParticipantID = winnerParticipantID
	return nil
}

func (r *fakeTournamentRepo) UpdateLogoKey(ctx context.Context, id int, logoKey *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.LogoKey = logoKey
	return nil
}

type fakePhaseRepo struct {
	mu     sync.Mutex
	nextID int
	phases map[int]*models.Phase
}

func newFakePhaseRepo() *fakePhaseRepo {
	return &fakePhaseRepo{phases: make(map[int]*models.Phase)}
}

func (r *fakePhaseRepo) Create(ctx context.Context, exec repositories.SQLExecutor, phase *models.Phase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	phase.ID = r.nextID
	phase.CreatedAt = time.Now()
	clone := *phase
	r.phases[phase.ID] = &clone
	return nil
}

func (r *fakePhaseRepo) GetByID(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Phase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.phases[id]
	if !ok {
		return nil, repositories.ErrPhaseNotFound
	}
	clone := *p
	return &clone, nil
}

func (r *fakePhaseRepo) ListByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) ([]*models.Phase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Phase, 0)
	for _, p := range r.phases {
		if p.TournamentID == tournamentID {
			clone := *p
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PhaseOrder < out[j].PhaseOrder })
	return out, nil
}

func (r *fakePhaseRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int, from, to models.PhaseStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.phases[id]
	if !ok || p.Status != from {
		return repositories.ErrPhaseStateConflict
	}
	p.Status = to
	return nil
}

type fakeRoundRepo struct {
	mu     sync.Mutex
	nextID int
	rounds map[int]*models.Round
}

func newFakeRoundRepo() *fakeRoundRepo {
	return &fakeRoundRepo{rounds: make(map[int]*models.Round)}
}

func (r *fakeRoundRepo) Create(ctx context.Context, exec repositories.SQLExecutor, round *models.Round) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rounds {
		if existing.PhaseID == round.PhaseID && existing.RoundNumber == round.RoundNumber {
			return repositories.ErrRoundAlreadyExists
		}
	}
	r.nextID++
	round.ID = r.nextID
	round.CreatedAt = time.Now()
	clone := *round
	clone.Matches = nil
	r.rounds[round.ID] = &clone
	return nil
}

func (r *fakeRoundRepo) GetByID(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Round, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rd, ok := r.rounds[id]
	if !ok {
		return nil, repositories.ErrRoundNotFound
	}
	clone := *rd
	return &clone, nil
}

func (r *fakeRoundRepo) GetByPhaseAndNumber(ctx context.Context, exec repositories.SQLExecutor, phaseID, roundNumber int) (*models.Round, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rd := range r.rounds {
		if rd.PhaseID == phaseID && rd.RoundNumber == roundNumber {
			clone := *rd
			return &clone, nil
		}
	}
	return nil, repositories.ErrRoundNotFound
}

func (r *fakeRoundRepo) ListByPhase(ctx context.Context, exec repositories.SQLExecutor, phaseID int) ([]*models.Round, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Round, 0)
	for _, rd := range r.rounds {
		if rd.PhaseID == phaseID {
			clone := *rd
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoundNumber < out[j].RoundNumber })
	return out, nil
}

func (r *fakeRoundRepo) Start(ctx context.Context, exec repositories.SQLExecutor, id int, startedAt, endsAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rd, ok := r.rounds[id]
	if !ok || rd.Status != models.RoundPending {
		return repositories.ErrRoundStateConflict
	}
	rd.Status = models.RoundActive
	rd.StartedAt = &startedAt
	rd.EndsAt = &endsAt
	return nil
}

func (r *fakeRoundRepo) Complete(ctx context.Context, exec repositories.SQLExecutor, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rd, ok := r.rounds[id]
	if !ok || rd.Status != models.RoundActive {
		return repositories.ErrRoundStateConflict
	}
	rd.Status = models.RoundCompleted
	return nil
}

func (r *fakeRoundRepo) AddExtension(ctx context.Context, exec repositories.SQLExecutor, id, minutes int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rd, ok := r.rounds[id]
	if !ok || rd.Status != models.RoundActive {
		return repositories.ErrRoundStateConflict
	}
	rd.ExtensionMinutes += minutes
	return nil
}

type fakeMatchRepo struct {
	mu      sync.Mutex
	nextID  int
	matches map[int]*models.Match
	// roundMeta lets ListCompletedByTournament walk the chain without a
	// database join.
	rounds *fakeRoundRepo
	phases *fakePhaseRepo
}

func newFakeMatchRepo(rounds *fakeRoundRepo, phases *fakePhaseRepo) *fakeMatchRepo {
	return &fakeMatchRepo{
		matches: make(map[int]*models.Match),
		rounds:  rounds,
		phases:  phases,
	}
}

func (r *fakeMatchRepo) CreateBatch(ctx context.Context, exec repositories.SQLExecutor, matches []*models.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range matches {
		r.nextID++
		m.ID = r.nextID
		m.CreatedAt = time.Now()
		clone := *m
		r.matches[m.ID] = &clone
	}
	return nil
}

func (r *fakeMatchRepo) GetByID(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	clone := *m
	return &clone, nil
}

func (r *fakeMatchRepo) ListByRound(ctx context.Context, exec repositories.SQLExecutor, roundID int) ([]*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Match, 0)
	for _, m := range r.matches {
		if m.RoundID == roundID {
			clone := *m
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TableNumber < out[j].TableNumber })
	return out, nil
}

func (r *fakeMatchRepo) ListCompletedByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) ([]*repositories.CompletedMatch, error) {
	r.mu.Lock()
	matches := make([]*models.Match, 0)
	for _, m := range r.matches {
		if m.Status == models.MatchCompleted {
			clone := *m
			matches = append(matches, &clone)
		}
	}
	r.mu.Unlock()

	out := make([]*repositories.CompletedMatch, 0)
	for _, m := range matches {
		round, err := r.rounds.GetByID(ctx, nil, m.RoundID)
		if err != nil {
			return nil, err
		}
		phase, err := r.phases.GetByID(ctx, nil, round.PhaseID)
		if err != nil {
			return nil, err
		}
		if phase.TournamentID != tournamentID {
			continue
		}
		out = append(out, &repositories.CompletedMatch{
			Match:       *m,
			RoundNumber: round.RoundNumber,
			PhaseID:     phase.ID,
			PhaseType:   phase.Type,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PhaseID != out[j].PhaseID {
			return out[i].PhaseID < out[j].PhaseID
		}
		if out[i].RoundNumber != out[j].RoundNumber {
			return out[i].RoundNumber < out[j].RoundNumber
		}
		return out[i].Match.TableNumber < out[j].Match.TableNumber
	})
	return out, nil
}

func (r *fakeMatchRepo) CheckIn(ctx context.Context, exec repositories.SQLExecutor, id, side int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok || m.Status != models.MatchPending {
		return repositories.ErrMatchStateConflict
	}
	if side == 1 {
		m.P1CheckedIn = true
	} else {
		m.P2CheckedIn = true
	}
	return nil
}

func (r *fakeMatchRepo) ActivateIfBothCheckedIn(ctx context.Context, exec repositories.SQLExecutor, id int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok || m.Status != models.MatchPending || !m.P1CheckedIn || !m.P2CheckedIn {
		return false, nil
	}
	m.Status = models.MatchActive
	return true, nil
}

func (r *fakeMatchRepo) ReportResult(ctx context.Context, exec repositories.SQLExecutor, id int, winnerID *int, p1GameWins, p2GameWins, reporterSide int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok || m.Status != models.MatchActive {
		return repositories.ErrMatchStateConflict
	}
	m.WinnerParticipantID = winnerID
	m.P1GameWins = p1GameWins
	m.P2GameWins = p2GameWins
	if reporterSide == 1 {
		m.P1Confirmed = true
		m.P2Confirmed = false
	} else {
		m.P2Confirmed = true
		m.P1Confirmed = false
	}
	return nil
}

func (r *fakeMatchRepo) Confirm(ctx context.Context, exec repositories.SQLExecutor, id, side int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok || m.Status != models.MatchActive || m.WinnerParticipantID == nil {
		return repositories.ErrMatchStateConflict
	}
	if side == 1 {
		m.P1Confirmed = true
	} else {
		m.P2Confirmed = true
	}
	return nil
}

func (r *fakeMatchRepo) CompleteIfConfirmed(ctx context.Context, exec repositories.SQLExecutor, id int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok || m.Status != models.MatchActive ||
		m.WinnerParticipantID == nil || !m.P1Confirmed || !m.P2Confirmed {
		return false, nil
	}
	m.Status = models.MatchCompleted
	return true, nil
}

func (r *fakeMatchRepo) SetDisputed(ctx context.Context, exec repositories.SQLExecutor, id int, disputed bool, resolvedByUserID *int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok || (m.Status != models.MatchActive && m.Status != models.MatchCompleted) {
		return repositories.ErrMatchStateConflict
	}
	m.Disputed = disputed
	m.ResolvedByUserID = resolvedByUserID
	return nil
}

func (r *fakeMatchRepo) ForceComplete(ctx context.Context, exec repositories.SQLExecutor, id int, winnerID *int, p1GameWins, p2GameWins, resolvedByUserID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	m.Status = models.MatchCompleted
	m.WinnerParticipantID = winnerID
	m.P1GameWins = p1GameWins
	m.P2GameWins = p2GameWins
	m.P1Confirmed = true
	m.P2Confirmed = true
	m.Disputed = false
	m.ResolvedByUserID = &resolvedByUserID
	return nil
}

type fakeParticipantRepo struct {
	mu           sync.Mutex
	nextID       int
	participants map[int]*models.Participant
}

func newFakeParticipantRepo() *fakeParticipantRepo {
	return &fakeParticipantRepo{participants: make(map[int]*models.Participant)}
}

func (r *fakeParticipantRepo) Create(ctx context.Context, p *models.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.participants {
		if existing.TournamentID == p.TournamentID && existing.UserID == p.UserID {
			return repositories.ErrRegistrationConflict
		}
	}
	r.nextID++
	p.ID = r.nextID
	p.CreatedAt = time.Now()
	clone := *p
	r.participants[p.ID] = &clone
	return nil
}

func (r *fakeParticipantRepo) GetByID(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[id]
	if !ok {
		return nil, repositories.ErrParticipantNotFound
	}
	clone := *p
	return &clone, nil
}

func (r *fakeParticipantRepo) GetByTournamentAndUser(ctx context.Context, tournamentID, userID int) (*models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.participants {
		if p.TournamentID == tournamentID && p.UserID == userID {
			clone := *p
			return &clone, nil
		}
	}
	return nil, repositories.ErrParticipantNotFound
}

func (r *fakeParticipantRepo) ListByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, activeOnly bool) ([]*models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Participant, 0)
	for _, p := range r.participants {
		if p.TournamentID != tournamentID {
			continue
		}
		if activeOnly && p.Dropped {
			continue
		}
		clone := *p
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeParticipantRepo) CountActive(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) (int, error) {
	list, _ := r.ListByTournament(ctx, exec, tournamentID, true)
	return len(list), nil
}

func (r *fakeParticipantRepo) SetCheckedIn(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[id]
	if !ok {
		return repositories.ErrParticipantNotFound
	}
	p.CheckedIn = true
	return nil
}

func (r *fakeParticipantRepo) MarkDropped(ctx context.Context, exec repositories.SQLExecutor, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[id]
	if !ok || p.Dropped {
		return repositories.ErrParticipantAlreadyDropped
	}
	p.Dropped = true
	return nil
}

type fakeStatsRepo struct {
	mu    sync.Mutex
	stats map[int][]*models.PlayerStats // keyed by tournament ID
}

func newFakeStatsRepo() *fakeStatsRepo {
	return &fakeStatsRepo{stats: make(map[int][]*models.PlayerStats)}
}

func (r *fakeStatsRepo) ReplaceForTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, stats []*models.PlayerStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	frozen := make(map[int]*int)
	for _, old := range r.stats[tournamentID] {
		if old.FinalRanking != nil {
			frozen[old.ParticipantID] = old.FinalRanking
		}
	}

	replaced := make([]*models.PlayerStats, 0, len(stats))
	for _, s := range stats {
		clone := *s
		if ranking, ok := frozen[s.ParticipantID]; ok && clone.FinalRanking == nil {
			clone.FinalRanking = ranking
		}
		history := make([]int, len(s.OpponentHistory))
		copy(history, s.OpponentHistory)
		clone.OpponentHistory = history
		replaced = append(replaced, &clone)
	}
	r.stats[tournamentID] = replaced
	return nil
}

func (r *fakeStatsRepo) ListByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) ([]*models.PlayerStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.PlayerStats, 0, len(r.stats[tournamentID]))
	for _, s := range r.stats[tournamentID] {
		clone := *s
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CurrentStanding < out[j].CurrentStanding })
	return out, nil
}

func (r *fakeStatsRepo) FreezeFinalRankings(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.stats[tournamentID] {
		if s.FinalRanking == nil {
			standing := s.CurrentStanding
			s.FinalRanking = &standing
		}
	}
	return nil
}
