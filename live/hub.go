// Package live pushes tournament state changes to connected spectators
// and players over websockets. Clients join a room per tournament and
// receive pairing, match, round and standings updates as they commit.
package live

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
)

const (
	MessagePairingsPosted    = "PAIRINGS_POSTED"
	MessageRoundStarted      = "ROUND_STARTED"
	MessageMatchUpdated      = "MATCH_UPDATED"
	MessageRoundCompleted    = "ROUND_COMPLETED"
	MessageStandingsUpdated  = "STANDINGS_UPDATED"
	MessagePhaseAdvanced     = "PHASE_ADVANCED"
	MessageTournamentUpdated = "TOURNAMENT_UPDATED"
)

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
	RoomID  string      `json:"room_id,omitempty"`
}

type roomMessage struct {
	room string
	data []byte
}

type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan roomMessage

	rooms  map[string]map[*Client]bool
	mu     sync.RWMutex
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan roomMessage, 64),
		rooms:      make(map[string]map[*Client]bool),
		logger:     logger,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if _, ok := h.rooms[client.room]; !ok {
				h.rooms[client.room] = make(map[*Client]bool)
			}
			h.rooms[client.room][client] = true
			h.mu.Unlock()
			h.logger.Debug("live client joined", slog.String("room", client.room))

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[client.room]; ok {
				if _, exists := clients[client]; exists {
					client.closeSend()
					delete(clients, client)
					if len(clients) == 0 {
						delete(h.rooms, client.room)
					}
				}
			}
			h.mu.Unlock()
			h.logger.Debug("live client left", slog.String("room", client.room))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.rooms[msg.room] {
				select {
				case client.send <- msg.data:
				default:
					// Slow consumer; drop it rather than stall the hub.
					client.closeSend()
					delete(h.rooms[msg.room], client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastToTournament sends a typed message to every client watching
// the given tournament. Marshal errors are logged and swallowed: the
// engine's state transitions never depend on the push path.
func (h *Hub) BroadcastToTournament(tournamentID int, msgType string, payload interface{}) {
	room := strconv.Itoa(tournamentID)
	data, err := json.Marshal(Message{Type: msgType, Payload: payload, RoomID: room})
	if err != nil {
		h.logger.Error("failed to marshal live message",
			slog.String("type", msgType), slog.Any("error", err))
		return
	}
	h.broadcast <- roomMessage{room: room, data: data}
}
