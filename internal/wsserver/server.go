// Package wsserver is the server runtime: it accepts
// WebSocket connections, performs the RFC 6455 handshake, wraps each socket
// in a Bedrock session, auto-subscribes it per the handler registry, and
// tracks the set of live sessions for graceful shutdown.
package wsserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bedrockrelay/server/internal/audit"
	"github.com/bedrockrelay/server/internal/bedrock"
	"github.com/bedrockrelay/server/internal/wsproto"
)

// Config configures a Server's listen address, timeouts, and resource
// bounds.
type Config struct {
	Host string
	Port int

	TLS *tls.Config

	HandshakeTimeout time.Duration
	CloseTimeout     time.Duration
	CommandTimeout   time.Duration
	MaxMessageBytes  int

	// ShutdownGrace bounds how long graceful shutdown waits for live
	// sessions' dispatched handler goroutines to return. It does not bound
	// the close handshake itself; each connection's CloseTimeout does.
	ShutdownGrace time.Duration

	Logger *slog.Logger

	// Audit, if non-nil, receives one record per RunCommand resolution.
	Audit *audit.Trail
}

func (c *Config) addr() string {
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port == 0 {
		port = 8765
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// Server owns the accept loop and the set of live sessions. Its zero value
// is not usable; build one with New.
type Server struct {
	cfg      Config
	registry *bedrock.Registry
	logger   *slog.Logger

	httpSrv *http.Server
	ln      net.Listener

	sessions   sync.Map // session id (string) -> *bedrock.Session
	sessionCnt atomic.Int64

	// sessionCtx is the parent of every session's context; cancelSessions
	// fires on shutdown so all sessions wind down together.
	sessionCtx     context.Context
	cancelSessions context.CancelFunc

	shuttingDown atomic.Bool
}

// New creates a Server bound to cfg's host/port, dispatching events and
// auto-subscriptions through registry.
func New(cfg Config, registry *bedrock.Registry) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 10 * time.Second
	}
	s := &Server{
		cfg:      cfg,
		registry: registry,
		logger:   logger,
	}
	s.sessionCtx, s.cancelSessions = context.WithCancel(context.Background())
	s.httpSrv = &http.Server{
		Addr:    cfg.addr(),
		Handler: http.HandlerFunc(s.serveUpgrade),
	}
	if cfg.HandshakeTimeout > 0 {
		s.httpSrv.ReadHeaderTimeout = cfg.HandshakeTimeout
	}
	return s
}

// ListenAndServe binds the listener and runs the accept loop until the
// server is shut down, returning http.ErrServerClosed in the ordinary
// shutdown case.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("wsserver: listen %s: %w", s.httpSrv.Addr, err)
	}
	if s.cfg.TLS != nil {
		ln = tls.NewListener(ln, s.cfg.TLS)
	}
	s.ln = ln

	s.logger.Info("wsserver: listening", slog.String("addr", s.httpSrv.Addr), slog.Bool("tls", s.cfg.TLS != nil))
	err = s.httpSrv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return fmt.Errorf("wsserver: serve: %w", err)
}

// Handler returns the server's upgrade http.Handler, for embedding in an
// httptest.Server or a larger mux instead of calling ListenAndServe.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// ClientCount returns the number of currently live sessions.
func (s *Server) ClientCount() int { return int(s.sessionCnt.Load()) }

// Sessions returns a snapshot of the currently live sessions' ids and
// subscription counts, for the admin HTTP surface.
func (s *Server) Sessions() []SessionInfo {
	var out []SessionInfo
	s.sessions.Range(func(_, v any) bool {
		sess := v.(*bedrock.Session)
		out = append(out, SessionInfo{
			ID:                sess.ID,
			SubscriptionCount: len(sess.Subscriptions()),
		})
		return true
	})
	return out
}

// SessionInfo is the subset of session state exposed to the admin HTTP
// surface.
type SessionInfo struct {
	ID                string
	SubscriptionCount int
}

// serveUpgrade is the sole http.Handler for this server: it validates and
// performs the RFC 6455 handshake, then hijacks the connection and hands it
// off to a new Bedrock session.
func (s *Server) serveUpgrade(w http.ResponseWriter, r *http.Request) {
	key, err := wsproto.ValidateUpgrade(r)
	if err != nil {
		var hErr *wsproto.HandshakeError
		status := http.StatusBadRequest
		if errors.As(err, &hErr) {
			status = hErr.Status
		}
		s.logger.Warn("wsserver: handshake rejected", slog.Any("error", err), slog.String("remote_addr", r.RemoteAddr))
		http.Error(w, err.Error(), status)
		return
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "server does not support hijacking", http.StatusInternalServerError)
		return
	}
	conn, bufrw, err := hj.Hijack()
	if err != nil {
		s.logger.Error("wsserver: hijack failed", slog.Any("error", err))
		return
	}
	if bufrw.Reader.Buffered() > 0 {
		// The client sent frame bytes before we finished reading headers;
		// extremely unlikely for a well-behaved client, but a buffered
		// http.Server can leave bytes in bufrw that conn.Read would
		// otherwise miss. Drain them back onto the socket is not possible
		// on a net.Conn, so fail closed rather than silently drop bytes.
		s.logger.Warn("wsserver: unexpected buffered bytes after handshake, closing")
		conn.Close()
		return
	}

	accept := wsproto.AcceptKey(key)
	if _, err := conn.Write(wsproto.UpgradeResponse(accept)); err != nil {
		s.logger.Warn("wsserver: handshake write failed", slog.Any("error", err))
		conn.Close()
		return
	}

	if s.shuttingDown.Load() {
		// Reject new sessions once shutdown has begun rather than race the
		// accept loop; the listener will also stop accepting shortly.
		conn.Close()
		return
	}

	s.spawnSession(conn)
}

// spawnSession wraps conn in a wsproto.Conn and a bedrock.Session, registers
// the session in the live set, sends the auto-subscribe set, and runs its
// dispatch loop to completion.
func (s *Server) spawnSession(conn net.Conn) {
	wsConn := wsproto.NewConn(conn, wsproto.ConnConfig{
		CloseTimeout:    s.cfg.CloseTimeout,
		MaxMessageBytes: s.cfg.MaxMessageBytes,
		Logger:          s.logger,
	})

	session := bedrock.NewSession(s.sessionCtx, wsConn, s.registry, s.cfg.CommandTimeout, s.logger)
	if s.cfg.Audit != nil {
		session.SetAuditor(s.cfg.Audit)
	}
	s.sessions.Store(session.ID, session)
	s.sessionCnt.Add(1)
	defer func() {
		s.sessions.Delete(session.ID)
		s.sessionCnt.Add(-1)
	}()

	s.logger.Info("wsserver: session opened", slog.String("session_id", session.ID), slog.String("remote_addr", conn.RemoteAddr().String()))

	// Subscribe to every event name that has at least one auto-subscribe
	// handler as soon as the session reaches OPEN.
	for _, name := range s.registry.AutoSubscribeNames() {
		if err := session.Subscribe(name); err != nil {
			s.logger.Warn("wsserver: auto-subscribe failed", slog.String("session_id", session.ID), slog.String("event", name), slog.Any("error", err))
		}
	}

	session.Run()
	s.logger.Info("wsserver: session closed", slog.String("session_id", session.ID))
}

// Shutdown performs the graceful shutdown sequence: close the listener so
// no new connections are accepted, cancel every session's context, start
// the close handshake with code 1001 on every live session (aborting its
// pending command waiters), then wait up to grace for each session's
// dispatched handler goroutines to return. It does not wait for the
// connections to reach CLOSED; each connection's own close timeout forces
// its socket shut. If grace (or ctx) expires first, Shutdown returns the
// context's error and closes nothing further.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shuttingDown.Store(true)
	s.cancelSessions()

	grace := s.cfg.ShutdownGrace
	if grace <= 0 {
		grace = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("wsserver: http shutdown did not complete cleanly", slog.Any("error", err))
	}

	var wg sync.WaitGroup
	s.sessions.Range(func(_, v any) bool {
		sess := v.(*bedrock.Session)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess.Close(wsproto.CloseGoingAway, "server shutting down")
			sess.AwaitHandlers(grace)
		}()
		return true
	})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-shutdownCtx.Done():
		s.logger.Warn("wsserver: shutdown grace period elapsed with handler tasks still running")
		return shutdownCtx.Err()
	}
}
