package gateway

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/vidfetch/vidfetch/internal/vidfetch/configuration"
	"github.com/vidfetch/vidfetch/internal/vidfetch/domain"
)

// Hub upgrades websocket connections and tracks the resulting sessions.
// Every new connection is greeted with a queue snapshot so clients never
// start from a blank state.
type Hub struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	upgrader  websocket.Upgrader
	subs      *SubscriptionManager
	snapshot  func() []domain.JobInfo
	listFiles func() ([]string, error)
	config    configuration.GatewayConfig
	log       *log.Entry
}

func NewHub(config configuration.GatewayConfig, subs *SubscriptionManager, snapshot func() []domain.JobInfo, listFiles func() ([]string, error)) *Hub {
	if config.SendQueueSize <= 0 {
		config.SendQueueSize = 64
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}
	return &Hub{
		sessions: map[string]*Session{},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subs:      subs,
		snapshot:  snapshot,
		listFiles: listFiles,
		config:    config,
		log:       log.WithField("service", "gateway"),
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Error("WebSocket upgrade failed")
		return
	}
	session := &Session{
		id:           uuid.NewString(),
		conn:         conn,
		subs:         h.subs,
		hub:          h,
		out:          make(chan Message, h.config.SendQueueSize),
		done:         make(chan struct{}),
		writeTimeout: h.config.WriteTimeout,
	}
	session.log = h.log.WithField("observerId", session.id)
	h.register(session)
	session.log.Info("WebSocket client connected")

	go session.writePump()
	session.Enqueue(QueueStatusMessage(h.snapshot()))
	session.readPump()
}

// BroadcastQueueStatus pushes the current queue snapshot to every connected
// session, subscribed or not. Wired to the scheduler's change notifications.
func (h *Hub) BroadcastQueueStatus() {
	sessions := h.sessionList()
	if len(sessions) == 0 {
		return
	}
	message := QueueStatusMessage(h.snapshot())
	for _, session := range sessions {
		session.Enqueue(message)
	}
}

func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close disconnects every session. Used on server shutdown.
func (h *Hub) Close() {
	for _, session := range h.sessionList() {
		session.shutdown()
	}
}

func (h *Hub) register(session *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[session.id] = session
}

func (h *Hub) unregister(session *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, session.id)
}

func (h *Hub) sessionList() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, session := range h.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}
