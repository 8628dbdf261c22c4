package transport

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"chat-core/internal/cache"
	"chat-core/internal/chat"
	"chat-core/internal/config"
	"chat-core/internal/message"
	"chat-core/internal/metrics"
)

// MessageStore persists room messages as they are sent. Optional; the
// in-memory deployment runs without one.
type MessageStore interface {
	SaveMessage(msg *message.Message) error
}

// Server owns the websocket endpoint and the set of live sessions. Each
// accepted connection becomes a Session with its own CommandManager.
type Server struct {
	cfg     *config.ServerConfig
	service *chat.ChatService
	repo    chat.Repository
	recent  *cache.RecentMessageCache
	store   MessageStore

	upgrader websocket.Upgrader
	mutex    sync.RWMutex
	sessions map[string]*Session
}

// NewServer creates a websocket server. store may be nil.
func NewServer(cfg *config.ServerConfig, service *chat.ChatService, repo chat.Repository, recent *cache.RecentMessageCache, store MessageStore) *Server {
	return &Server{
		cfg:     cfg,
		service: service,
		repo:    repo,
		recent:  recent,
		store:   store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		sessions: make(map[string]*Session),
	}
}

// HandleWS upgrades an HTTP request to a websocket session.
func (srv *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := srv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	sess := newSession(srv, conn)
	srv.register(sess)
	log.Info().Str("client_id", sess.id).Msg("session connected")

	go sess.writePump()
	sess.readPump()
}

// HasClient reports whether a session with the given client id is live. The
// sweeper uses this to drop stale client registrations.
func (srv *Server) HasClient(clientID string) bool {
	srv.mutex.RLock()
	defer srv.mutex.RUnlock()
	_, exists := srv.sessions[clientID]
	return exists
}

// SessionCount returns the number of live sessions.
func (srv *Server) SessionCount() int {
	srv.mutex.RLock()
	defer srv.mutex.RUnlock()
	return len(srv.sessions)
}

func (srv *Server) register(sess *Session) {
	srv.mutex.Lock()
	srv.sessions[sess.id] = sess
	srv.mutex.Unlock()
	metrics.ActiveSessions.Inc()
}

func (srv *Server) unregister(sess *Session) {
	srv.mutex.Lock()
	if _, exists := srv.sessions[sess.id]; exists {
		delete(srv.sessions, sess.id)
		close(sess.send)
		metrics.ActiveSessions.Dec()
	}
	srv.mutex.Unlock()
}

// toUser sends a frame to every session logged in as the given user.
func (srv *Server) toUser(userID string, frame *Frame) {
	if userID == "" {
		return
	}
	srv.mutex.RLock()
	defer srv.mutex.RUnlock()
	for _, sess := range srv.sessions {
		if sess.manager.UserID() == userID {
			sess.enqueue(frame)
		}
	}
}

// toRoom sends a frame to every session of every member of the room. The
// member set is snapshotted through the service so the live membership maps
// are never read outside its lock.
func (srv *Server) toRoom(room *chat.Room, frame *Frame) {
	members := make(map[string]bool)
	for _, id := range srv.service.RoomMemberIDs(room) {
		members[id] = true
	}
	srv.mutex.RLock()
	defer srv.mutex.RUnlock()
	for _, sess := range srv.sessions {
		if members[sess.manager.UserID()] {
			sess.enqueue(frame)
		}
	}
}

// toAll sends a frame to every live session.
func (srv *Server) toAll(frame *Frame) {
	srv.mutex.RLock()
	defer srv.mutex.RUnlock()
	for _, sess := range srv.sessions {
		sess.enqueue(frame)
	}
}
