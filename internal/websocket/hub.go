package websocket

import (
	"encoding/json"
	"log"

	"github.com/gofiber/contrib/websocket"

	"github.com/pagesforge/api/internal/model"
)

// Hub fans job progress messages out to WebSocket subscribers, one room per
// job ID. All room mutation happens on the Run goroutine.
type Hub struct {
	register   chan *subscription
	unregister chan *subscription
	broadcast  chan broadcastMsg
	rooms      map[string]map[*websocket.Conn]bool
}

type subscription struct {
	jobID string
	conn  *websocket.Conn
}

type broadcastMsg struct {
	jobID   string
	payload []byte
}

// NewHub creates a new hub
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *subscription),
		unregister: make(chan *subscription),
		broadcast:  make(chan broadcastMsg, 64),
		rooms:      make(map[string]map[*websocket.Conn]bool),
	}
}

// Run processes subscriptions and broadcasts; call it once, in its own
// goroutine.
func (h *Hub) Run() {
	for {
		select {
		case sub := <-h.register:
			room := h.rooms[sub.jobID]
			if room == nil {
				room = make(map[*websocket.Conn]bool)
				h.rooms[sub.jobID] = room
			}
			room[sub.conn] = true

		case sub := <-h.unregister:
			if room := h.rooms[sub.jobID]; room != nil {
				delete(room, sub.conn)
				if len(room) == 0 {
					delete(h.rooms, sub.jobID)
				}
			}
			sub.conn.Close()

		case msg := <-h.broadcast:
			for conn := range h.rooms[msg.jobID] {
				if err := conn.WriteMessage(websocket.TextMessage, msg.payload); err != nil {
					delete(h.rooms[msg.jobID], conn)
					conn.Close()
				}
			}
		}
	}
}

// HandleConnection subscribes one connection to a job's messages and blocks
// until the client goes away.
func (h *Hub) HandleConnection(conn *websocket.Conn, jobID string) {
	sub := &subscription{jobID: jobID, conn: conn}
	h.register <- sub
	defer func() { h.unregister <- sub }()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// BroadcastProgress pushes a stage transition to a job's subscribers
func (h *Hub) BroadcastProgress(jobID string, status model.JobStatus, stage model.JobStage) {
	h.send(jobID, model.WSProgressMessage{
		Type:   model.WSMessageTypeProgress,
		JobID:  jobID,
		Status: status,
		Stage:  stage,
	})
}

// BroadcastComplete pushes the terminal outcome to a job's subscribers
func (h *Hub) BroadcastComplete(jobID string, outcome interface{}) {
	h.send(jobID, model.WSCompleteMessage{
		Type:    model.WSMessageTypeComplete,
		JobID:   jobID,
		Outcome: outcome,
	})
}

// BroadcastError pushes a failure to a job's subscribers
func (h *Hub) BroadcastError(jobID, code, message string) {
	h.send(jobID, model.WSErrorMessage{
		Type:  model.WSMessageTypeError,
		JobID: jobID,
		Error: model.WSError{Code: code, Message: message},
	})
}

func (h *Hub) send(jobID string, msg interface{}) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal websocket message: %v", err)
		return
	}
	select {
	case h.broadcast <- broadcastMsg{jobID: jobID, payload: payload}:
	default:
		// Hub backlog full; progress messages are advisory, drop rather than block the worker
	}
}
