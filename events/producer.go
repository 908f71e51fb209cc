// Package events publishes tournament lifecycle events to Kafka for
// analytics and downstream consumers. The producer is optional: with no
// broker configured every emit is a cheap no-op.
package events

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

const TopicTournamentEvents = "tournament-events"

type EventType string

const (
	EventTournamentStarted   EventType = "tournament_started"
	EventPairingsPosted      EventType = "pairings_posted"
	EventRoundStarted        EventType = "round_started"
	EventMatchCompleted      EventType = "match_completed"
	EventRoundCompleted      EventType = "round_completed"
	EventStandingsUpdated    EventType = "standings_updated"
	EventPhaseAdvanced       EventType = "phase_advanced"
	EventPlayerDropped       EventType = "player_dropped"
	EventTournamentCompleted EventType = "tournament_completed"
)

type TournamentEvent struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	TournamentID int       `json:"tournament_id"`
	Timestamp    time.Time `json:"timestamp"`
	Data         any       `json:"data,omitempty"`
}

type Producer struct {
	producer sarama.SyncProducer
	logger   *slog.Logger
	enabled  bool
}

// NewProducer connects to the given brokers (comma separated). An empty
// broker list or a connection failure yields a disabled producer rather
// than an error: eventing is best-effort and must never block the engine.
func NewProducer(brokers string, logger *slog.Logger) *Producer {
	if brokers == "" {
		return &Producer{logger: logger}
	}

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(strings.Split(brokers, ","), cfg)
	if err != nil {
		logger.Warn("kafka producer not available, eventing disabled", slog.Any("error", err))
		return &Producer{logger: logger}
	}

	logger.Info("kafka producer connected", slog.String("brokers", brokers))
	return &Producer{producer: producer, logger: logger, enabled: true}
}

func (p *Producer) Emit(eventType EventType, tournamentID int, data any) {
	if !p.enabled {
		return
	}

	event := TournamentEvent{
		ID:           uuid.NewString(),
		Type:         eventType,
		TournamentID: tournamentID,
		Timestamp:    time.Now().UTC(),
		Data:         data,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to marshal tournament event", slog.Any("error", err))
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: TopicTournamentEvents,
		Key:   sarama.StringEncoder(strconv.Itoa(tournamentID)),
		Value: sarama.ByteEncoder(payload),
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		p.logger.Error("failed to send tournament event",
			slog.String("type", string(eventType)),
			slog.Int("tournament_id", tournamentID),
			slog.Any("error", err))
	}
}

func (p *Producer) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
