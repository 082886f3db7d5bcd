package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/inkwell-blog/inkwell/config"
	"github.com/inkwell-blog/inkwell/internal/db"
	"github.com/inkwell-blog/inkwell/internal/events"
	"github.com/inkwell-blog/inkwell/internal/handlers"
	"github.com/inkwell-blog/inkwell/internal/mq"
	"github.com/inkwell-blog/inkwell/internal/services"
	"github.com/inkwell-blog/inkwell/internal/session"
	"github.com/inkwell-blog/inkwell/internal/storage"
	"github.com/inkwell-blog/inkwell/internal/store"
	"github.com/inkwell-blog/inkwell/internal/views"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	mq         *mq.MQ
	objects    *storage.Storage
	logger     *slog.Logger
}

// New wires storage, services and routes from cfg.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sessions, err := session.NewManager(cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("SESSION_SECRET: %w", err)
	}
	renderer, err := views.New()
	if err != nil {
		return nil, err
	}

	dbConn, userRepo, postRepo, err := openRepositories(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var broker *mq.MQ
	backend, err := events.NewBackend(ctx, cfg.Events)
	if err != nil {
		closeDB(dbConn)
		return nil, fmt.Errorf("init events: %w", err)
	}
	if backend != nil {
		broker = mq.New(backend)
	}
	publisher := events.NewPublisher(broker, cfg.Events.Channel)

	// Opened last so a failure above never leaks its client.
	objects, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		closeDB(dbConn)
		closeBroker(broker, logger)
		return nil, err
	}

	avatars := services.NewAvatarService(objects, cfg.AvatarMaxBytes)
	deps := handlers.Dependencies{
		Users:    services.NewUserService(userRepo, avatars, publisher, logger),
		Posts:    services.NewPostService(postRepo, publisher, logger),
		Avatars:  avatars,
		Sessions: sessions,
		Views:    renderer,
		Logger:   logger,
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	handlers.Routes(router, deps)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		mq:         broker,
		objects:    objects,
		logger:     logger,
	}, nil
}

func openRepositories(ctx context.Context, cfg config.Config) (*sql.DB, services.UserRepository, services.PostRepository, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Database.Driver)) {
	case "memory":
		mem := store.NewMemoryStore()
		return nil, mem.Users(), mem.Posts(), nil
	case "", "postgres":
		dbConn, err := db.Open(ctx, cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		return dbConn, store.NewUserRepository(dbConn), store.NewPostRepository(dbConn), nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func closeDB(dbConn *sql.DB) {
	if dbConn != nil {
		_ = dbConn.Close()
	}
}

func closeBroker(broker *mq.MQ, logger *slog.Logger) {
	if broker == nil {
		return
	}
	if err := broker.Close(); err != nil {
		logger.Warn("failed to close event broker", "error", err)
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then releases the database, broker
// and object storage clients.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	closeDB(s.db)
	closeBroker(s.mq, s.logger)
	if s.objects != nil {
		if cerr := s.objects.Close(); cerr != nil {
			s.logger.Warn("failed to close object storage", "error", cerr)
		}
	}
	return err
}
