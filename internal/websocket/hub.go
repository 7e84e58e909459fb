package notifyws

import (
	"encoding/json"
	"log"
	"strconv"
	"time"

	websocket "github.com/gofiber/contrib/websocket"

	"github.com/ashish6318/skillbarter-sub001/internal/models"
)

// Hub fans out session and balance events to connected participants. Events
// are fire-and-forget: a slow or absent client never blocks or fails the
// operation that produced the event.
type Hub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	events     chan *event
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

type event struct {
	payload    []byte
	recipients []string
}

type sessionEvent struct {
	Type      string `json:"type"`
	SessionID int64  `json:"session_id"`
	Status    string `json:"status"`
	TeacherID int64  `json:"teacher_id"`
	StudentID int64  `json:"student_id"`
	Skill     string `json:"skill"`
}

type balanceEvent struct {
	Type    string `json:"type"`
	UserID  int64  `json:"user_id"`
	Balance int64  `json:"balance"`
}

type reminderEvent struct {
	Type        string `json:"type"`
	SessionID   int64  `json:"session_id"`
	Kind        string `json:"kind"`
	ScheduledAt string `json:"scheduled_at"`
	Skill       string `json:"skill"`
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan *event, 64),
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 32),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.userID] = set
			}
			set[client] = struct{}{}
		case client := <-h.unregister:
			set, ok := h.clients[client.userID]
			if !ok {
				continue
			}
			if _, exists := set[client]; exists {
				delete(set, client)
				close(client.send)
			}
			if len(set) == 0 {
				delete(h.clients, client.userID)
			}
		case ev := <-h.events:
			h.deliver(ev)
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// SessionStatusChanged implements services.Notifier.
func (h *Hub) SessionStatusChanged(session *models.Session) {
	h.publish(sessionEvent{
		Type:      "session_status",
		SessionID: session.ID,
		Status:    session.Status,
		TeacherID: session.TeacherID,
		StudentID: session.StudentID,
		Skill:     session.Skill,
	}, session.TeacherID, session.StudentID)
}

// BalanceChanged implements services.Notifier.
func (h *Hub) BalanceChanged(userID int64, balance int64) {
	h.publish(balanceEvent{
		Type:    "balance",
		UserID:  userID,
		Balance: balance,
	}, userID)
}

// SessionReminder implements services.Notifier.
func (h *Hub) SessionReminder(session *models.Session, kind string) {
	h.publish(reminderEvent{
		Type:        "session_reminder",
		SessionID:   session.ID,
		Kind:        kind,
		ScheduledAt: session.ScheduledAt.UTC().Format(time.RFC3339),
		Skill:       session.Skill,
	}, session.TeacherID, session.StudentID)
}

func (h *Hub) publish(payload any, recipientIDs ...int64) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		log.Printf("notification hub encode event: %v", err)
		return
	}

	recipients := make([]string, 0, len(recipientIDs))
	for _, id := range recipientIDs {
		recipients = append(recipients, strconv.FormatInt(id, 10))
	}

	select {
	case h.events <- &event{payload: encoded, recipients: recipients}:
	default:
		log.Println("notification hub event buffer full, dropping event")
	}
}

func (h *Hub) deliver(ev *event) {
	seen := make(map[string]struct{}, len(ev.recipients))
	for _, recipient := range ev.recipients {
		if _, dup := seen[recipient]; dup {
			continue
		}
		seen[recipient] = struct{}{}
		h.sendToUser(recipient, ev.payload)
	}
}

func (h *Hub) sendToUser(userID string, payload []byte) {
	set, ok := h.clients[userID]
	if !ok {
		return
	}

	for client := range set {
		select {
		case client.send <- payload:
		default:
			delete(set, client)
			close(client.send)
		}
	}
	if len(set) == 0 {
		delete(h.clients, userID)
	}
}

// ReadPump drains the connection until the client goes away. Notifications
// are one-way; inbound frames are discarded.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}
