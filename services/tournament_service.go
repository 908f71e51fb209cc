package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Dosada05/swiss-engine/events"
	"github.com/Dosada05/swiss-engine/live"
	"github.com/Dosada05/swiss-engine/models"
	"github.com/Dosada05/swiss-engine/repositories"
	"github.com/Dosada05/swiss-engine/storage"
)

type CreateTournamentInput struct {
	Name                 string  `json:"name"`
	Description          *string `json:"description,omitempty"`
	MaxParticipants      int     `json:"max_participants"`
	RoundDurationMinutes int     `json:"round_duration_minutes"`
	CheckInWindowMinutes int     `json:"check_in_window_minutes"`

	// SwissRounds plans the swiss phase; CutSize, when set, adds a single
	// elimination phase after it.
	SwissRounds int  `json:"swiss_rounds"`
	CutSize     *int `json:"cut_size,omitempty"`
}

// TournamentService owns the tournament aggregate outside of live play:
// creation with its phase plan, registration, drops, logos and status
// administration. Running rounds is ProgressionService territory.
type TournamentService interface {
	Create(ctx context.Context, caller Caller, input CreateTournamentInput) (*models.Tournament, error)
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error)
	UpdateStatus(ctx context.Context, caller Caller, id int, to models.TournamentStatus) (*models.Tournament, error)
	UploadLogo(ctx context.Context, caller Caller, id int, filename, contentType string, file io.Reader) (*models.Tournament, error)

	Register(ctx context.Context, caller Caller, tournamentID int) (*models.Participant, error)
	CheckInParticipant(ctx context.Context, caller Caller, tournamentID int) error
	// DropParticipant is terminal; a second drop of the same participant
	// is a no-op. Players may drop themselves, staff may drop anyone.
	DropParticipant(ctx context.Context, caller Caller, tournamentID, participantID int) error
}

type tournamentService struct {
	tournamentRepo  repositories.TournamentRepository
	phaseRepo       repositories.PhaseRepository
	participantRepo repositories.ParticipantRepository
	uploader        storage.FileUploader
	hub             Broadcaster
	producer        EventEmitter
	logger          *slog.Logger

	defaultRoundDuration int
	defaultCheckInWindow int
}

func NewTournamentService(
	tournamentRepo repositories.TournamentRepository,
	phaseRepo repositories.PhaseRepository,
	participantRepo repositories.ParticipantRepository,
	uploader storage.FileUploader,
	hub Broadcaster,
	producer EventEmitter,
	logger *slog.Logger,
	defaultRoundDuration, defaultCheckInWindow int,
) TournamentService {
	return &tournamentService{
		tournamentRepo:       tournamentRepo,
		phaseRepo:            phaseRepo,
		participantRepo:      participantRepo,
		uploader:             uploader,
		hub:                  hub,
		producer:             producer,
		logger:               logger,
		defaultRoundDuration: defaultRoundDuration,
		defaultCheckInWindow: defaultCheckInWindow,
	}
}

func (s *tournamentService) Create(ctx context.Context, caller Caller, input CreateTournamentInput) (*models.Tournament, error) {
	if caller.Role != models.RoleOrganizer && caller.Role != models.RoleAdmin {
		return nil, ErrForbiddenOperation
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("%w: tournament name is required", ErrValidationFailed)
	}
	if input.MaxParticipants < 2 {
		return nil, fmt.Errorf("%w: at least two participants are required", ErrValidationFailed)
	}
	if input.SwissRounds < 1 {
		return nil, fmt.Errorf("%w: at least one swiss round must be planned", ErrValidationFailed)
	}
	if input.CutSize != nil {
		if *input.CutSize < 2 {
			return nil, ErrInvalidCutSize
		}
		if *input.CutSize > input.MaxParticipants {
			return nil, ErrCutSizeTooLarge
		}
	}

	roundDuration := input.RoundDurationMinutes
	if roundDuration <= 0 {
		roundDuration = s.defaultRoundDuration
	}
	checkInWindow := input.CheckInWindowMinutes
	if checkInWindow <= 0 {
		checkInWindow = s.defaultCheckInWindow
	}

	t := &models.Tournament{
		Name:                 strings.TrimSpace(input.Name),
		Description:          input.Description,
		OrganizerID:          caller.UserID,
		Status:               models.StatusDraft,
		MaxParticipants:      input.MaxParticipants,
		RoundDurationMinutes: roundDuration,
		CheckInWindowMinutes: checkInWindow,
	}
	if err := s.tournamentRepo.Create(ctx, t); err != nil {
		return nil, err
	}

	swissRounds := input.SwissRounds
	swissPhase := &models.Phase{
		TournamentID:  t.ID,
		PhaseOrder:    1,
		Type:          models.PhaseSwiss,
		Status:        models.PhasePending,
		PlannedRounds: &swissRounds,
	}
	if err := s.phaseRepo.Create(ctx, nil, swissPhase); err != nil {
		return nil, err
	}
	t.Phases = append(t.Phases, *swissPhase)

	if input.CutSize != nil {
		cutSize := *input.CutSize
		cutPhase := &models.Phase{
			TournamentID: t.ID,
			PhaseOrder:   2,
			Type:         models.PhaseSingleElimination,
			Status:       models.PhasePending,
			CutSize:      &cutSize,
		}
		if err := s.phaseRepo.Create(ctx, nil, cutPhase); err != nil {
			return nil, err
		}
		t.Phases = append(t.Phases, *cutPhase)
	}

	s.logger.Info("tournament created",
		slog.Int("tournament_id", t.ID),
		slog.Int("organizer_id", caller.UserID))
	return t, nil
}

// GetByID returns the tournament with its phases and participants,
// fetched concurrently.
func (s *tournamentService) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	t, err := s.tournamentRepo.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	var phases []*models.Phase
	var participants []*models.Participant

	g.Go(func() error {
		var err error
		phases, err = s.phaseRepo.ListByTournament(gctx, nil, id)
		return err
	})
	g.Go(func() error {
		var err error
		participants, err = s.participantRepo.ListByTournament(gctx, nil, id, false)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, p := range phases {
		t.Phases = append(t.Phases, *p)
	}
	for _, p := range participants {
		t.Participants = append(t.Participants, *p)
	}
	if t.LogoKey != nil && s.uploader != nil {
		url := s.uploader.GetPublicURL(*t.LogoKey)
		t.LogoURL = &url
	}
	return t, nil
}

func (s *tournamentService) List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	tournaments, err := s.tournamentRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if s.uploader != nil {
		for i := range tournaments {
			if tournaments[i].LogoKey != nil {
				url := s.uploader.GetPublicURL(*tournaments[i].LogoKey)
				tournaments[i].LogoURL = &url
			}
		}
	}
	return tournaments, nil
}

// UpdateStatus handles the administrative transitions (publish, pause,
// resume, cancel, clear a review flag). Starting and completing a
// tournament go through ProgressionService, which does the extra work
// those transitions imply.
func (s *tournamentService) UpdateStatus(ctx context.Context, caller Caller, id int, to models.TournamentStatus) (*models.Tournament, error) {
	t, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManage(t, caller) {
		return nil, ErrNotTournamentOrganizer
	}
	if t.Status == to {
		return t, nil
	}
	if !isValidTournamentTransition(t.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrTournamentInvalidStatusTransition, t.Status, to)
	}

	if err := s.tournamentRepo.UpdateStatus(ctx, nil, id, t.Status, to); err != nil {
		if errors.Is(err, repositories.ErrTournamentStateConflict) {
			return nil, ErrConcurrentUpdate
		}
		return nil, err
	}
	t.Status = to

	s.hub.BroadcastToTournament(id, live.MessageTournamentUpdated, t)
	return t, nil
}

func (s *tournamentService) UploadLogo(ctx context.Context, caller Caller, id int, filename, contentType string, file io.Reader) (*models.Tournament, error) {
	if s.uploader == nil {
		return nil, fmt.Errorf("%w: file storage is not configured", ErrValidationFailed)
	}
	t, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManage(t, caller) {
		return nil, ErrNotTournamentOrganizer
	}

	ext := strings.ToLower(path.Ext(filename))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".webp", ".svg":
	default:
		return nil, fmt.Errorf("%w: unsupported logo format %q", ErrValidationFailed, ext)
	}

	key := fmt.Sprintf("tournaments/%d/logo%s", id, ext)
	result, err := s.uploader.Upload(ctx, key, contentType, file)
	if err != nil {
		return nil, fmt.Errorf("failed to upload logo: %w", err)
	}
	if err := s.tournamentRepo.UpdateLogoKey(ctx, id, &result.Key); err != nil {
		return nil, err
	}

	t.LogoKey = &result.Key
	t.LogoURL = &result.Location
	return t, nil
}

func (s *tournamentService) Register(ctx context.Context, caller Caller, tournamentID int) (*models.Participant, error) {
	t, err := s.GetByID(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if t.Status != models.StatusDraft && t.Status != models.StatusUpcoming {
		return nil, ErrRegistrationClosed
	}
	count, err := s.participantRepo.CountActive(ctx, nil, tournamentID)
	if err != nil {
		return nil, err
	}
	if t.MaxParticipants > 0 && count >= t.MaxParticipants {
		return nil, ErrTournamentFull
	}

	p := &models.Participant{
		TournamentID: tournamentID,
		UserID:       caller.UserID,
		// The seed is the final rung of the tie-break ladder. Assigned
		// once here and never reshuffled, so standings stay stable.
		TiebreakSeed: rand.Intn(1 << 30),
	}
	if err := s.participantRepo.Create(ctx, p); err != nil {
		if errors.Is(err, repositories.ErrRegistrationConflict) {
			return nil, ErrRegistrationConflict
		}
		return nil, err
	}

	s.hub.BroadcastToTournament(tournamentID, live.MessageTournamentUpdated,
		map[string]int{"participants": count + 1})
	return p, nil
}

func (s *tournamentService) CheckInParticipant(ctx context.Context, caller Caller, tournamentID int) error {
	p, err := s.participantRepo.GetByTournamentAndUser(ctx, tournamentID, caller.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrParticipantNotFound) {
			return ErrNotFound
		}
		return err
	}
	if p.CheckedIn {
		return nil
	}
	return s.participantRepo.SetCheckedIn(ctx, p.ID)
}

func (s *tournamentService) DropParticipant(ctx context.Context, caller Caller, tournamentID, participantID int) error {
	t, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return ErrNotFound
		}
		return err
	}
	p, err := s.participantRepo.GetByID(ctx, nil, participantID)
	if err != nil {
		if errors.Is(err, repositories.ErrParticipantNotFound) {
			return ErrNotFound
		}
		return err
	}
	if p.TournamentID != tournamentID {
		return ErrNotFound
	}
	if p.UserID != caller.UserID && !canManage(t, caller) {
		return ErrForbiddenOperation
	}

	if err := s.participantRepo.MarkDropped(ctx, nil, participantID); err != nil {
		if errors.Is(err, repositories.ErrParticipantAlreadyDropped) {
			return nil
		}
		return err
	}

	s.logger.Info("participant dropped",
		slog.Int("tournament_id", tournamentID),
		slog.Int("participant_id", participantID),
		slog.Int("by_user_id", caller.UserID))
	s.hub.BroadcastToTournament(tournamentID, live.MessageTournamentUpdated,
		map[string]int{"dropped_participant_id": participantID})
	s.producer.Emit(events.EventPlayerDropped, tournamentID,
		map[string]int{"participant_id": participantID})
	return nil
}
