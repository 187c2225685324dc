// Package server is the websocket relay between the admin application and
// the content frame. It pairs one admin leg and one frame leg per session,
// enforces origin allow-lists at upgrade time, stamps every relayed
// message with its sender's origin, and pushes RELOAD to frames when
// watched files change.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	hydra "github.com/collective/volto-hydra"
	"github.com/collective/volto-hydra/internal/config"
)

// Server relays bridge messages between admin and frame connections.
type Server struct {
	cfg      config.ServerConfig
	upgrader websocket.Upgrader
	httpSrv  *http.Server
	watcher  *Watcher
	debug    bool

	mu       sync.Mutex
	sessions map[string]*session
}

// New builds a relay server from configuration.
func New(cfg config.ServerConfig) *Server {
	srv := &Server{
		cfg:      cfg,
		debug:    cfg.Debug,
		sessions: make(map[string]*session),
	}
	srv.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			o := r.Header.Get("Origin")
			return o == cfg.AdminOrigin || o == cfg.FrameOrigin
		},
	}
	return srv
}

// allowedOrigin checks a connection's origin against the role it claims.
// An admin connecting with the frame's origin is refused, not just an
// unknown one.
func (srv *Server) allowedOrigin(role peerRole, origin string) bool {
	switch role {
	case roleAdmin:
		return origin == srv.cfg.AdminOrigin
	case roleFrame:
		return origin == srv.cfg.FrameOrigin
	}
	return false
}

// session returns the session for an id, creating it if needed.
func (srv *Server) session(id string) *session {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	s, ok := srv.sessions[id]
	if !ok {
		s = &session{id: id}
		srv.sessions[id] = s
	}
	return s
}

func (srv *Server) dropIfEmpty(id string, s *session) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if cur, ok := srv.sessions[id]; ok && cur == s && s.empty() {
		delete(srv.sessions, id)
	}
}

// SessionCount reports the number of live sessions.
func (srv *Server) SessionCount() int {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return len(srv.sessions)
}

// Handler returns the relay's HTTP routes.
func (srv *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/admin", func(w http.ResponseWriter, r *http.Request) {
		srv.handleWS(roleAdmin, w, r)
	})
	mux.HandleFunc("/ws/frame", func(w http.ResponseWriter, r *http.Request) {
		srv.handleWS(roleFrame, w, r)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	return mux
}

// Start listens on the configured address until the context is cancelled.
func (srv *Server) Start(ctx context.Context) error {
	if srv.cfg.WatchDir != "" {
		w, err := NewWatcher(srv.cfg.WatchDir, srv.onFileChange, srv.debug)
		if err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		srv.watcher = w
		w.Start()
	}

	srv.httpSrv = &http.Server{
		Addr:    srv.cfg.Addr(),
		Handler: srv.Handler(),
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("[Server] Listening on %s", srv.cfg.Addr())
		errc <- srv.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return srv.Shutdown()
	case err := <-errc:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// onFileChange pushes RELOAD to every connected frame.
func (srv *Server) onFileChange(path string) error {
	if srv.debug {
		log.Printf("[Server] Change in %s, reloading frames", path)
	}
	srv.broadcastToFrames(hydra.Message{Type: hydra.TypeReload})
	return nil
}

// Shutdown stops the watcher and drains the HTTP server.
func (srv *Server) Shutdown() error {
	if srv.watcher != nil {
		if err := srv.watcher.Stop(); err != nil && srv.debug {
			log.Printf("[Server] Watcher stop: %v", err)
		}
	}
	if srv.httpSrv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.httpSrv.Shutdown(ctx)
}
