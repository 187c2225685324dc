package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	hydra "github.com/collective/volto-hydra"
)

// peerRole names which side of the bridge a connection speaks for.
type peerRole string

const (
	roleAdmin peerRole = "admin"
	roleFrame peerRole = "frame"
)

// peerConn is one websocket leg of a bridge session. Writes are serialized
// by mu; inbound traffic is rate limited before it reaches the relay.
type peerConn struct {
	conn    *websocket.Conn
	role    peerRole
	origin  string
	limiter *rate.Limiter
	mu      sync.Mutex
}

func (p *peerConn) writeMessage(d hydra.Delivery) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteJSON(d)
}

func (p *peerConn) close() {
	p.conn.Close()
}

// session is one admin+frame pair. Messages relay between the two legs,
// stamped with the sender's upgrade-time origin; a leg never chooses its
// own origin string.
type session struct {
	id    string
	mu    sync.Mutex
	admin *peerConn
	frame *peerConn
}

func (s *session) attach(p *peerConn) (replaced *peerConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch p.role {
	case roleAdmin:
		replaced, s.admin = s.admin, p
	case roleFrame:
		replaced, s.frame = s.frame, p
	}
	return replaced
}

func (s *session) peerOf(role peerRole) *peerConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if role == roleAdmin {
		return s.frame
	}
	return s.admin
}

func (s *session) detach(p *peerConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.admin == p {
		s.admin = nil
	}
	if s.frame == p {
		s.frame = nil
	}
}

func (s *session) empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.admin == nil && s.frame == nil
}

// handleWS upgrades a connection and runs its read loop until the peer
// disconnects.
func (srv *Server) handleWS(role peerRole, w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if !srv.allowedOrigin(role, origin) {
		if srv.debug {
			log.Printf("[WS] Rejected %s connection from origin %q", role, origin)
		}
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := srv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade failed: %v", err)
		return
	}

	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = "default"
	}

	p := &peerConn{
		conn:    conn,
		role:    role,
		origin:  origin,
		limiter: rate.NewLimiter(rate.Limit(srv.cfg.GetRateLimit()), srv.cfg.GetRateBurst()),
	}
	sess := srv.session(sessionID)
	if old := sess.attach(p); old != nil {
		old.close()
	}

	if srv.debug {
		log.Printf("[WS] %s connected to session %s from %s", role, sessionID, origin)
	}

	srv.readLoop(sess, p)

	sess.detach(p)
	conn.Close()
	srv.dropIfEmpty(sessionID, sess)
	if srv.debug {
		log.Printf("[WS] %s disconnected from session %s", role, sessionID)
	}
}

// readLoop relays each inbound envelope to the opposite leg. Malformed
// frames and rate-limit overruns drop the message, never the relay.
func (srv *Server) readLoop(sess *session, p *peerConn) {
	for {
		_, raw, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		if !p.limiter.Allow() {
			if srv.debug {
				log.Printf("[WS] Rate limit exceeded for %s in session %s", p.role, sess.id)
			}
			continue
		}

		var m hydra.Message
		if err := json.Unmarshal(raw, &m); err != nil {
			if srv.debug {
				log.Printf("[WS] Malformed message from %s: %v", p.role, err)
			}
			continue
		}

		peer := sess.peerOf(p.role)
		if peer == nil {
			if srv.debug {
				log.Printf("[WS] No peer for %s in session %s, dropping %s", p.role, sess.id, m.Type)
			}
			continue
		}
		if err := peer.writeMessage(hydra.Delivery{Origin: p.origin, Message: m}); err != nil {
			if srv.debug {
				log.Printf("[WS] Relay to %s failed: %v", peer.role, err)
			}
		}
	}
}

// broadcastToFrames sends a message to the frame leg of every session, as
// the development-reload watcher does.
func (srv *Server) broadcastToFrames(m hydra.Message) {
	srv.mu.Lock()
	sessions := make([]*session, 0, len(srv.sessions))
	for _, s := range srv.sessions {
		sessions = append(sessions, s)
	}
	srv.mu.Unlock()

	for _, s := range sessions {
		s.mu.Lock()
		frame := s.frame
		s.mu.Unlock()
		if frame == nil {
			continue
		}
		if err := frame.writeMessage(hydra.Delivery{Origin: srv.cfg.AdminOrigin, Message: m}); err != nil && srv.debug {
			log.Printf("[WS] Broadcast to session %s failed: %v", s.id, err)
		}
	}
}
