package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// Session is one connected observer: a read loop decoding commands and a
// write loop draining the bounded outbound queue. A session that cannot
// keep up is disconnected rather than allowed to stall publishers.
type Session struct {
	id           string
	conn         *websocket.Conn
	subs         *SubscriptionManager
	hub          *Hub
	out          chan Message
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
	log          *log.Entry
}

func (s *Session) ID() string {
	return s.id
}

// Enqueue hands a frame to the write loop without blocking. On overflow the
// session tears itself down and reports false; the caller moves on.
func (s *Session) Enqueue(message Message) bool {
	select {
	case <-s.done:
		return false
	case s.out <- message:
		return true
	default:
		s.log.Warn("Observer cannot keep up, disconnecting")
		go s.shutdown()
		return false
	}
}

func (s *Session) writePump() {
	defer s.shutdown()
	for {
		select {
		case message := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteJSON(message); err != nil {
				s.log.WithError(err).Debug("Write failed")
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) readPump() {
	defer s.shutdown()
	for {
		var command Command
		if err := s.conn.ReadJSON(&command); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.log.WithError(err).Debug("Read failed")
			}
			return
		}
		s.handleCommand(command)
	}
}

func (s *Session) handleCommand(command Command) {
	switch command.Action {
	case ActionSubscribeAll:
		s.subs.Subscribe(s, ScopeAll)
		s.Enqueue(QueueStatusMessage(s.hub.snapshot()))
	case ActionSubscribe:
		if command.DownloadID == "" {
			s.log.Info("Ignoring subscribe without a download id")
			return
		}
		s.subs.Subscribe(s, command.DownloadID)
	case ActionUnsubscribe:
		scope := command.DownloadID
		if scope == "" {
			scope = ScopeAll
		}
		s.subs.Unsubscribe(s.id, scope)
	case ActionList:
		videos, err := s.hub.listFiles()
		if err != nil {
			s.log.WithError(err).Warn("Listing artifacts failed")
			return
		}
		s.Enqueue(ListMessage(videos))
	default:
		// Unknown commands are logged and ignored, never fatal.
		s.log.WithField("action", command.Action).Info("Ignoring unknown action")
	}
}

func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
		s.subs.Drop(s.id)
		s.hub.unregister(s)
		s.log.Info("WebSocket client disconnected")
	})
}
