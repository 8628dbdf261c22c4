package transport

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"chat-core/internal/chat"
	"chat-core/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Frame is one outbound event pushed to a session.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Session is one websocket connection. Inbound lines starting with '/' go
// through the session's CommandManager; everything else is a room message
// for the session's active room.
type Session struct {
	id      string
	server  *Server
	conn    *websocket.Conn
	send    chan []byte
	manager *chat.CommandManager
	limiter *rate.Limiter
}

func newSession(srv *Server, conn *websocket.Conn) *Session {
	sess := &Session{
		id:     uuid.NewString(),
		server: srv,
		conn:   conn,
		send:   make(chan []byte, 256),
	}
	sess.manager = chat.NewCommandManager(sess.id, "", "", srv.service, srv.repo, srv.recent, &sessionNotifier{server: srv, session: sess})
	if srv.cfg.EnableRateLimit {
		every := srv.cfg.RateLimitWindow / time.Duration(srv.cfg.RateLimitMessages)
		sess.limiter = rate.NewLimiter(rate.Every(every), srv.cfg.RateLimitMessages)
	}
	return sess
}

// enqueue queues a frame for delivery, dropping it when the session's send
// buffer is full.
func (s *Session) enqueue(frame *Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.Error().Err(err).Str("event", frame.Event).Msg("marshal frame")
		return
	}
	select {
	case s.send <- data:
	default:
		log.Warn().Str("client_id", s.id).Str("event", frame.Event).Msg("send buffer full, frame dropped")
	}
}

func (s *Session) readPump() {
	defer func() {
		s.server.unregister(s)
		if user, err := s.server.service.DisconnectClient(s.id); err == nil && user != nil {
			log.Info().Str("user", user.Name).Str("client_id", s.id).Msg("session disconnected")
		}
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(int64(s.server.cfg.MaxMessageLength) + 512)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("client_id", s.id).Msg("read error")
			}
			return
		}
		s.handleInput(string(data))
	}
}

func (s *Session) handleInput(input string) {
	input = strings.TrimSpace(input)
	if input == "" {
		return
	}
	if s.limiter != nil && !s.limiter.Allow() {
		s.enqueue(&Frame{Event: "error", Data: "You are sending messages too quickly. Please slow down."})
		return
	}

	handled, err := s.manager.TryHandleCommand(input)
	if handled {
		if err == nil {
			metrics.CommandsTotal.WithLabelValues("ok").Inc()
			return
		}
		metrics.CommandsTotal.WithLabelValues("error").Inc()
		var cmdErr *chat.CommandError
		if errors.As(err, &cmdErr) {
			s.enqueue(&Frame{Event: "error", Data: cmdErr.Message})
			return
		}
		log.Error().Err(err).Str("client_id", s.id).Msg("command failed")
		s.enqueue(&Frame{Event: "error", Data: "Something went wrong. Please try again."})
		return
	}

	s.handleMessage(input)
}

// handleMessage delivers a plain (non-command) line to the active room.
func (s *Session) handleMessage(content string) {
	user, exists := s.server.repo.GetUserByID(s.manager.UserID())
	if !exists {
		s.enqueue(&Frame{Event: "error", Data: chat.ErrNotLoggedIn().Message})
		return
	}
	room, exists := s.server.repo.GetRoomByName(s.manager.ActiveRoom())
	if !exists {
		s.enqueue(&Frame{Event: "error", Data: chat.ErrNoActiveRoom().Message})
		return
	}

	if max := s.server.cfg.MaxMessageLength; len(content) > max {
		content = content[:max]
	}
	if err := s.server.service.UpdateActivity(user, s.id); err != nil {
		log.Error().Err(err).Str("user", user.Name).Msg("update activity")
	}
	msg, err := s.server.service.AddMessage(user, room, content)
	if err != nil {
		var cmdErr *chat.CommandError
		if errors.As(err, &cmdErr) {
			s.enqueue(&Frame{Event: "error", Data: cmdErr.Message})
			return
		}
		log.Error().Err(err).Str("user", user.Name).Str("room", room.Name).Msg("add message")
		return
	}
	if s.server.store != nil {
		if err := s.server.store.SaveMessage(msg); err != nil {
			log.Error().Err(err).Str("room", room.Name).Msg("persist message")
		}
	}
	metrics.MessagesTotal.Inc()
	s.server.toRoom(room, &Frame{Event: "message", Data: msg})
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case data, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
