// Package api serves the attendance records of a deployed AttendanceTracker
// over HTTP to authenticated users.
package api

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"golang.org/x/sync/errgroup"

	"github.com/iotsdd/attendchain/internal/attendance"
	"github.com/iotsdd/attendchain/internal/state"
)

// Store is the persistence the API needs.
type Store interface {
	Authenticate(ctx context.Context, username, password string) (*state.User, error)
	CreateUser(ctx context.Context, username, password string) (*state.User, error)
	EnsureUser(ctx context.Context, username, password string) (bool, error)
	ListUsers(ctx context.Context) ([]state.User, error)
	DeleteUser(ctx context.Context, id int64) error
	GetKey(ctx context.Context, course, label string) (*state.CourseKey, error)
}

// Contract is the read side of the AttendanceTracker binding.
type Contract interface {
	Address() common.Address
	CountRegistrations(ctx context.Context, course string) (uint64, error)
	CountLessonAttendances(ctx context.Context, course, lesson string) (uint64, error)
	CountExamParticipations(ctx context.Context, course, date string) (uint64, error)
	RecordsByOperation(ctx context.Context, op attendance.Operation, course, info string) ([]attendance.Record, error)
}

// ReloadFunc rebuilds the contract binding, typically from a build
// artifact that changed on disk.
type ReloadFunc func(ctx context.Context) (Contract, error)

// Config holds configuration for the API server.
type Config struct {
	Store          Store
	Contract       Contract
	Port           int
	SessionSecret  string
	SessionMaxAge  time.Duration
	RequestTimeout time.Duration
	AdminUser      string
	AdminPassword  string

	// ArtifactPath, when set together with Reload, is watched and the
	// contract is rebuilt whenever the file changes.
	ArtifactPath string
	Reload       ReloadFunc

	Logger *slog.Logger
}

// Server is the remote access API server.
type Server struct {
	store          Store
	contract       atomic.Pointer[Contract]
	sessionStore   *sessions.CookieStore
	port           int
	requestTimeout time.Duration
	adminUser      string
	adminPassword  string
	artifactPath   string
	reload         ReloadFunc
	logger         *slog.Logger
}

// NewServer creates a new API server instance. An empty session secret
// gets a random one, which logs everyone out on restart.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("api server needs a store")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
		logger.Warn("no session secret configured, sessions will not survive a restart")
	}
	maxAge := cfg.SessionMaxAge
	if maxAge <= 0 {
		maxAge = time.Hour
	}

	sessionStore := sessions.NewCookieStore(secret)
	sessionStore.MaxAge(int(maxAge.Seconds()))
	sessionStore.Options.Path = "/"
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.SameSite = http.SameSiteLaxMode

	s := &Server{
		store:          cfg.Store,
		sessionStore:   sessionStore,
		port:           cfg.Port,
		requestTimeout: cfg.RequestTimeout,
		adminUser:      cfg.AdminUser,
		adminPassword:  cfg.AdminPassword,
		artifactPath:   cfg.ArtifactPath,
		reload:         cfg.Reload,
		logger:         logger,
	}
	if cfg.Contract != nil {
		s.SetContract(cfg.Contract)
	}
	return s, nil
}

// SetContract swaps the contract binding used by subsequent requests.
func (s *Server) SetContract(c Contract) {
	s.contract.Store(&c)
}

func (s *Server) currentContract() Contract {
	if p := s.contract.Load(); p != nil {
		return *p
	}
	return nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	s.setupRoutes(r)
	return r
}

// Bootstrap creates the admin account when a password is configured.
func (s *Server) Bootstrap(ctx context.Context) error {
	if s.adminUser == "" || s.adminPassword == "" {
		s.logger.Debug("admin bootstrap skipped, no admin password configured")
		return nil
	}
	created, err := s.store.EnsureUser(ctx, s.adminUser, s.adminPassword)
	if err != nil {
		return fmt.Errorf("failed to bootstrap admin user: %w", err)
	}
	if created {
		s.logger.Info("admin user created", "username", s.adminUser)
	}
	return nil
}

// Serve starts the API server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Bootstrap(ctx); err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.serveListener(ctx, ln)
}

func (s *Server) serveListener(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting API server", "addr", ln.Addr().String())

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.artifactPath != "" && s.reload != nil {
		eg.Go(func() error {
			return s.watchArtifact(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down API server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
