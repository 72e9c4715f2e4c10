// Package broadcast pushes tally snapshots and raw responses to connected
// WebSocket sessions.
package broadcast

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/emilythestrangee/tally/backend/internal/models"
)

const (
	EventTalliesUpdated = "tallies-updated"
	EventNewResponse    = "new-response"
	EventJoinAdmin      = "join-admin"
	EventError          = "error"
)

// Target selects which sessions receive a frame.
type Target string

const (
	TargetAll   Target = "all"
	TargetAdmin Target = "admin"
)

const (
	writeWait       = 10 * time.Second
	defaultPongWait = 60 * time.Second
	defaultPing     = 25 * time.Second
	maxMessageSize  = 4096
	sendBuffer      = 32
)

// Envelope is the JSON frame exchanged with clients.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Broadcaster is the publishing side of the hub.
type Broadcaster interface {
	BroadcastTallies(snapshot models.Snapshot)
	NotifyAdmins(r models.Response)
}

// Relay forwards frames to every instance, including this one.
type Relay interface {
	Publish(ctx context.Context, target Target, frame []byte) error
}

type SnapshotFunc func(ctx context.Context) (models.Snapshot, error)

type Options struct {
	PingInterval time.Duration
	PongWait     time.Duration

	// AllowedOrigins restricts the upgrade handshake. Empty or "*" allows any.
	AllowedOrigins []string

	// Snapshot supplies the state sent to a session right after it connects.
	Snapshot SnapshotFunc

	// AuthorizeAdmin validates the token of a join-admin request. When nil
	// every request is accepted.
	AuthorizeAdmin func(token string) error
}

type Hub struct {
	opts     Options
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*Session
	relay    Relay
}

func NewHub(opts Options) *Hub {
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPing
	}
	if opts.PongWait <= 0 {
		opts.PongWait = defaultPongWait
	}
	if opts.PingInterval >= opts.PongWait {
		opts.PingInterval = opts.PongWait * 9 / 10
	}

	h := &Hub{
		opts:     opts,
		sessions: make(map[string]*Session),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// UseRelay routes every outgoing frame through r. Local sessions then only
// receive what comes back through Deliver.
func (h *Hub) UseRelay(r Relay) {
	h.mu.Lock()
	h.relay = r
	h.mu.Unlock()
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range h.opts.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (h *Hub) BroadcastTallies(snapshot models.Snapshot) {
	if snapshot == nil {
		snapshot = models.Snapshot{}
	}
	h.emit(TargetAll, EventTalliesUpdated, snapshot)
}

func (h *Hub) NotifyAdmins(r models.Response) {
	h.emit(TargetAdmin, EventNewResponse, r)
}

// NotifyAdminsLocal skips the relay. It is for events every instance observes
// on its own, such as a shared database change feed.
func (h *Hub) NotifyAdminsLocal(r models.Response) {
	frame, err := encode(EventNewResponse, r)
	if err != nil {
		log.Printf("Error encoding %s event: %v", EventNewResponse, err)
		return
	}
	h.Deliver(TargetAdmin, frame)
}

func (h *Hub) emit(target Target, event string, data any) {
	frame, err := encode(event, data)
	if err != nil {
		log.Printf("Error encoding %s event: %v", event, err)
		return
	}

	h.mu.RLock()
	relay := h.relay
	h.mu.RUnlock()

	if relay != nil {
		err := relay.Publish(context.Background(), target, frame)
		if err == nil {
			return
		}
		log.Printf("⚠️  Relay publish failed, delivering locally: %v", err)
	}
	h.Deliver(target, frame)
}

// Deliver writes frame to the matching local sessions. Sessions whose queue
// is full are dropped.
func (h *Hub) Deliver(target Target, frame []byte) {
	var slow []*Session

	h.mu.RLock()
	for _, s := range h.sessions {
		if target == TargetAdmin && !s.IsAdmin() {
			continue
		}
		select {
		case s.send <- frame:
			if target == TargetAll {
				s.broadcasted.Store(true)
			}
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.drop(s)
	}
}

// sendTo queues frame for a single session if it is still registered.
func (h *Hub) sendTo(s *Session, frame []byte) {
	h.mu.RLock()
	_, ok := h.sessions[s.ID]
	queued := false
	if ok {
		select {
		case s.send <- frame:
			queued = true
		default:
		}
	}
	h.mu.RUnlock()

	if ok && !queued {
		h.drop(s)
	}
}

// sendSnapshot queues the connect snapshot unless a broadcast already reached
// the session, since that broadcast is at least as new.
func (h *Hub) sendSnapshot(s *Session, frame []byte) {
	h.mu.Lock()
	_, ok := h.sessions[s.ID]
	queued := !ok || s.broadcasted.Load()
	if !queued {
		select {
		case s.send <- frame:
			queued = true
		default:
		}
	}
	h.mu.Unlock()

	if !queued {
		h.drop(s)
	}
}

func (h *Hub) register(s *Session) {
	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()
}

func (h *Hub) drop(s *Session) {
	h.mu.Lock()
	_, ok := h.sessions[s.ID]
	delete(h.sessions, s.ID)
	h.mu.Unlock()

	if ok {
		close(s.send)
	}
}

// Sessions returns the number of connected sessions.
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Admins returns the number of sessions in the admin group.
func (h *Hub) Admins() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, s := range h.sessions {
		if s.IsAdmin() {
			n++
		}
	}
	return n
}

// Close disconnects every session.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]*Session)
	h.mu.Unlock()

	for _, s := range sessions {
		close(s.send)
	}
}

// ServeWS upgrades the request and runs the session until it disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s := newSession(h, conn)
	h.register(s)
	log.Printf("👤 User connected: %s", s.ID)

	go s.writePump()
	go s.readPump()

	if h.opts.Snapshot == nil {
		return
	}
	snapshot, err := h.opts.Snapshot(r.Context())
	if err != nil {
		log.Printf("Error fetching tallies for new client: %v", err)
		return
	}
	if snapshot == nil {
		snapshot = models.Snapshot{}
	}
	frame, err := encode(EventTalliesUpdated, snapshot)
	if err != nil {
		return
	}
	h.sendSnapshot(s, frame)
}

type joinAdminData struct {
	Token string `json:"token"`
}

func (h *Hub) handle(s *Session, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}

	switch env.Event {
	case EventJoinAdmin:
		var req joinAdminData
		if len(env.Data) > 0 {
			_ = json.Unmarshal(env.Data, &req)
		}
		if h.opts.AuthorizeAdmin != nil {
			if err := h.opts.AuthorizeAdmin(req.Token); err != nil {
				log.Printf("⚠️  Admin join rejected for %s: %v", s.ID, err)
				if frame, err := encode(EventError, map[string]string{"message": "admin token rejected"}); err == nil {
					h.sendTo(s, frame)
				}
				return
			}
		}
		s.admin.Store(true)
		log.Printf("👑 Admin joined: %s", s.ID)
	}
}

func encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
