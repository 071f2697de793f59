package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/messageapi/apiserver/config"
	"github.com/messageapi/apiserver/internal/attachments"
	"github.com/messageapi/apiserver/internal/db"
	"github.com/messageapi/apiserver/internal/handlers"
	"github.com/messageapi/apiserver/internal/logging"
	"github.com/messageapi/apiserver/internal/mq"
	"github.com/messageapi/apiserver/internal/services"
	"github.com/messageapi/apiserver/internal/storage"
	"github.com/messageapi/apiserver/internal/store"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	db         *sql.DB
	events     *mq.MQ
	logger     logging.Logger
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config, logger logging.Logger) (*Server, error) {
	if cfg.Database.AutoMigrate {
		if err := db.MigrateUp(cfg.Database); err != nil {
			return nil, err
		}
		logger.Info(ctx, "database migrations applied")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	objects, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	var messageOpts []services.MessageOption
	events, err := mq.Open(ctx, cfg.Events)
	switch {
	case errors.Is(err, mq.ErrDisabled):
		events = nil
	case err != nil:
		_ = dbConn.Close()
		return nil, err
	default:
		messageOpts = append(messageOpts, services.WithEvents(events, cfg.Events.Topic))
		logger.Info(ctx, "publishing message events", "backend", cfg.Events.Backend, "topic", cfg.Events.Topic)
	}

	userRepo := store.NewUserRepository(dbConn)
	messageRepo := store.NewMessageRepository(dbConn)

	userService := services.NewUserService(userRepo)
	messageService := services.NewMessageService(
		messageRepo,
		attachments.NewHandler(objects, cfg.Storage.Prefix),
		logger,
		messageOpts...,
	)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz(dbConn))
	router.Route("/MessageAPI", func(r chi.Router) {
		handlers.AuthRouter(r, userService, logger)
		handlers.MessageRouter(r, userService, messageService, logger, cfg.Storage.MaxUploadBytes)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		db:         dbConn,
		events:     events,
		logger:     logger,
	}, nil
}

// Start runs the HTTP server. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires, then releases the
// database pool and the events connection.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.events != nil {
		if closeErr := s.events.Close(); closeErr != nil {
			s.logger.Warn(ctx, "close events backend", "error", closeErr)
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
