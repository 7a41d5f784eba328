package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sheerbytes/filehost/internal/hostdir"
	"github.com/sheerbytes/filehost/internal/session"
	"github.com/sheerbytes/filehost/internal/transport"
	"github.com/sheerbytes/filehost/pkg/protocol"
)

const acceptBackoff = 50 * time.Millisecond

// Options tune a Server. Zero values select defaults.
type Options struct {
	IdleTimeout    time.Duration // 0 disables
	MaxSessions    int           // default 64
	Admission      Policy        // default PolicyQueue
	ConnectsPerMin int           // per remote IP, 0 disables
	ConnectsBurst  int
	MaxFrameBytes  int // default protocol.DefaultMaxFrameSize
}

func (o Options) withDefaults() Options {
	if o.MaxSessions <= 0 {
		o.MaxSessions = 64
	}
	if o.Admission == "" {
		o.Admission = PolicyQueue
	}
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = protocol.DefaultMaxFrameSize
	}
	return o
}

// Server accepts connections on one listener and serves each on its own
// goroutine.
type Server struct {
	ln       transport.Listener
	kind     transport.Kind
	dir      *hostdir.Dir
	opts     Options
	logger   *slog.Logger
	sessions *session.Store
	admit    *admission
	limiter  *ipLimiter

	wg         sync.WaitGroup
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// Listen binds addr with the given transport and returns a server ready to Serve.
func Listen(ctx context.Context, kind transport.Kind, addr string, dir *hostdir.Dir, opts Options, logger *slog.Logger) (*Server, error) {
	ln, err := transport.Listen(ctx, kind, addr, logger)
	if err != nil {
		return nil, err
	}
	return New(ln, kind, dir, opts, logger), nil
}

// New returns a server on an already bound listener.
func New(ln transport.Listener, kind transport.Kind, dir *hostdir.Dir, opts Options, logger *slog.Logger) *Server {
	opts = opts.withDefaults()
	base, cancel := context.WithCancel(context.Background())
	return &Server{
		ln:         ln,
		kind:       kind,
		dir:        dir,
		opts:       opts,
		logger:     logger,
		sessions:   session.NewStore(),
		admit:      newAdmission(opts.MaxSessions, opts.Admission),
		limiter:    newIPLimiter(opts.ConnectsPerMin, opts.ConnectsBurst),
		baseCtx:    base,
		cancelBase: cancel,
	}
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Sessions returns the live session registry.
func (s *Server) Sessions() *session.Store {
	return s.sessions
}

// Serve accepts connections until ctx is cancelled or the listener is closed.
// It never waits for a session to finish.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("listening",
		"addr", s.Addr(),
		"transport", string(s.kind),
		"dir", s.dir.Root(),
		"max_sessions", s.opts.MaxSessions,
		"admission", string(s.opts.Admission))

	for {
		conn, err := s.ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				return nil
			}
			s.logger.Warn("accept failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(acceptBackoff):
			}
			continue
		}

		remote := conn.RemoteAddr()
		if !s.limiter.allow(remote, time.Now()) {
			s.logger.Warn("connection rate limited", "remote", remote.String())
			_ = conn.Close()
			continue
		}
		if !s.admit.acquire(ctx) {
			_ = conn.Close()
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("session limit reached, connection rejected",
				"remote", remote.String(),
				"active", s.sessions.Count())
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.admit.release()
			s.serveConn(conn)
		}()
	}
}

func (s *Server) serveConn(conn transport.Conn) {
	info, active := s.sessions.Add(session.Info{
		Remote:    conn.RemoteAddr().String(),
		Transport: string(s.kind),
	})
	logger := s.logger.With("session", info.ID, "remote", info.Remote)
	logger.Info("new connection", "active", active)

	var closeOnce sync.Once
	closeConn := func() {
		closeOnce.Do(func() { _ = conn.Close() })
	}
	stop := context.AfterFunc(s.baseCtx, closeConn)
	defer func() {
		stop()
		closeConn()
		s.sessions.Remove(info.ID)
		logger.Info("connection closed", "active", s.sessions.Count())
	}()

	h := newHandler(conn, s.dir, s.opts.IdleTimeout, s.opts.MaxFrameBytes, logger)
	if err := h.run(); err != nil {
		if s.baseCtx.Err() != nil {
			logger.Info("session closed by shutdown")
			return
		}
		logger.Warn("session ended with error", "error", err)
	}
}

// Shutdown closes the listener and waits for active sessions to finish. When
// ctx expires first, the remaining sessions are closed and ctx.Err is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.ln.Close()
	active := s.sessions.List()
	s.logger.Info("shutting down", "active_sessions", len(active))
	for _, info := range active {
		s.logger.Info("waiting for session",
			"session", info.ID,
			"remote", info.Remote,
			"transport", info.Transport,
			"age", time.Since(info.StartedAt).Round(time.Millisecond))
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancelBase()
		if err != nil {
			return fmt.Errorf("close listener: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.cancelBase()
		<-done
		return ctx.Err()
	}
}
