// Package api wires the HTTP surface: telemetry ingestion, the
// role-scoped fleet read API, credential endpoints, and liveness.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/larkin1301/hvcm/internal/auth"
	"github.com/larkin1301/hvcm/internal/ingest"
	"github.com/larkin1301/hvcm/internal/query"
	"github.com/larkin1301/hvcm/internal/store"
	"github.com/larkin1301/hvcm/pkg/metrics"
)

// Server owns the HTTP API plus the optional AMQP telemetry intake.
type Server struct {
	logger      *slog.Logger
	config      *ServerConfig
	pool        *store.Pool
	writer      *ingest.Writer
	consumer    *ingest.Consumer
	credentials *auth.CredentialStore
	sessions    *auth.SessionService
	queries     *query.Service
	httpServer  *http.Server
	metrics     *apiMetricSet
}

// apiMetricSet groups the optional metric collectors the server hands
// to its components.
type apiMetricSet struct {
	api    *metrics.APIMetrics
	ingest *metrics.IngestMetrics
}

// ServerConfig holds the configuration for the Server.
type ServerConfig struct {
	Logger *slog.Logger

	// Database configuration
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBPort     int

	// Connection pool
	DBMaxConns       int
	DBAcquireTimeout time.Duration

	// HTTP configuration
	HTTPPort int

	// Session signing secret
	SessionSecret string

	// Optional AMQP intake; the consumer runs only when URL is set.
	RabbitMQURL string
	QueueName   string

	// EnableMetrics registers prometheus collectors and the /metrics route.
	EnableMetrics bool
}

// NewServer creates a new Server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.DBHost == "" {
		return nil, errors.New("database host cannot be empty")
	}

	if cfg.DBPort <= 0 {
		return nil, errors.New("database port must be positive")
	}

	if cfg.DBUser == "" {
		return nil, errors.New("database user cannot be empty")
	}

	if cfg.DBName == "" {
		return nil, errors.New("database name cannot be empty")
	}

	if cfg.HTTPPort <= 0 {
		return nil, errors.New("HTTP port must be positive")
	}

	if cfg.SessionSecret == "" {
		return nil, errors.New("session secret cannot be empty")
	}

	if cfg.RabbitMQURL != "" && cfg.QueueName == "" {
		return nil, errors.New("queue name cannot be empty when rabbitmq URL is set")
	}

	return &Server{
		logger: cfg.Logger,
		config: cfg,
	}, nil
}

// Run starts the server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting api server")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	var metricSet apiMetricSet
	if s.config.EnableMetrics {
		metricSet.api = metrics.NewAPIMetrics("hvcm")
		metricSet.ingest = metrics.NewIngestMetrics("hvcm")
	}
	s.metrics = &metricSet

	pool, err := store.NewPool(&store.Config{
		Logger:         s.logger,
		Host:           s.config.DBHost,
		Port:           s.config.DBPort,
		User:           s.config.DBUser,
		Password:       s.config.DBPassword,
		DBName:         s.config.DBName,
		SSLMode:        s.config.DBSSLMode,
		MaxConns:       s.config.DBMaxConns,
		AcquireTimeout: s.config.DBAcquireTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	s.pool = pool

	s.logger.Info("database initialized successfully")

	if err := s.initComponents(); err != nil {
		return err
	}

	// Optional AMQP intake.
	if s.config.RabbitMQURL != "" {
		consumer, err := ingest.NewConsumer(&ingest.ConsumerConfig{
			Logger:      s.logger,
			Writer:      s.writer,
			RabbitMQURL: s.config.RabbitMQURL,
			QueueName:   s.config.QueueName,
			Metrics:     metricSet.ingest,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize consumer: %w", err)
		}
		s.consumer = consumer

		if err := s.consumer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start consumer: %w", err)
		}
	}

	router := s.setupRouter()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("starting HTTP server", "address", s.httpServer.Addr)

	httpErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(httpErr)
	}()

	s.logger.Info("api server started successfully")

	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled")
	case err := <-httpErr:
		if err != nil {
			s.logger.Error("HTTP server error", "error", err)
			cancel()
			return err
		}
	}

	return s.Shutdown()
}

// initComponents builds the ingestion, auth, and query components on
// top of the connection pool.
func (s *Server) initComponents() error {
	writer, err := ingest.NewWriter(&ingest.WriterConfig{
		Logger:  s.logger,
		Pool:    s.pool,
		Metrics: s.metrics.ingest,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize writer: %w", err)
	}
	s.writer = writer

	credentials, err := auth.NewCredentialStore(&auth.CredentialStoreConfig{
		Logger: s.logger,
		Pool:   s.pool,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}
	s.credentials = credentials

	sessions, err := auth.NewSessionService(s.config.SessionSecret)
	if err != nil {
		return fmt.Errorf("failed to initialize session service: %w", err)
	}
	s.sessions = sessions

	queries, err := query.NewService(&query.ServiceConfig{
		Logger: s.logger,
		Pool:   s.pool,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize query service: %w", err)
	}
	s.queries = queries

	return nil
}

// setupRouter builds the gin engine with all routes and middleware.
func (s *Server) setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.accessLog())
	if s.metrics.api != nil {
		router.Use(s.trackRequests())
	}

	router.POST("/ingest", s.handleIngest)
	router.POST("/register", s.handleRegister)
	router.POST("/login", s.handleLogin)
	router.GET("/logout", s.handleLogout)
	router.GET("/ping-db", s.handlePingDB)

	if s.config.EnableMetrics {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	authed := router.Group("/api")
	authed.Use(s.requireSession())
	authed.Use(s.requireRole(store.RoleAdmin, store.RoleAccountManager, store.RoleUser))
	{
		authed.GET("/devices", s.handleDevices)
		authed.GET("/device/:device_id/history", s.handleHistory)
	}

	return router
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down api server")

	var shutdownErr error

	if s.httpServer != nil {
		s.logger.Info("stopping HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shutdown HTTP server", "error", err)
			shutdownErr = fmt.Errorf("HTTP server shutdown error: %w", err)
		}
		s.logger.Info("HTTP server stopped")
	}

	if s.consumer != nil {
		s.logger.Info("stopping consumer")
		if err := s.consumer.Stop(); err != nil {
			s.logger.Error("failed to stop consumer", "error", err)
			if shutdownErr != nil {
				shutdownErr = fmt.Errorf("%w; consumer shutdown error: %w", shutdownErr, err)
			} else {
				shutdownErr = fmt.Errorf("consumer shutdown error: %w", err)
			}
		}
	}

	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			s.logger.Error("failed to close database", "error", err)
			if shutdownErr != nil {
				shutdownErr = fmt.Errorf("%w; database close error: %w", shutdownErr, err)
			} else {
				shutdownErr = fmt.Errorf("database close error: %w", err)
			}
		}
	}

	if shutdownErr != nil {
		s.logger.Error("api server shutdown completed with errors", "error", shutdownErr)
		return shutdownErr
	}

	s.logger.Info("api server shutdown completed successfully")
	return nil
}
