package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jjudge-oj/accounts/config"
	"github.com/jjudge-oj/accounts/internal/credentials"
	"github.com/jjudge-oj/accounts/internal/db"
	"github.com/jjudge-oj/accounts/internal/handlers"
	"github.com/jjudge-oj/accounts/internal/identity"
	"github.com/jjudge-oj/accounts/internal/metrics"
	"github.com/jjudge-oj/accounts/internal/mq"
	"github.com/jjudge-oj/accounts/internal/notify"
	"github.com/jjudge-oj/accounts/internal/services"
	"github.com/jjudge-oj/accounts/internal/store"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// welcomeNotifier is a notifier whose in-flight sends can be awaited.
type welcomeNotifier interface {
	notify.Notifier
	Wait()
}

// Server wraps the HTTP server, router and the connections it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	logger     *zap.Logger
	notifier   welcomeNotifier
	closers    []func() error
}

// New constructs a Server wired to the configured store, broker and object storage.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{logger: logger}
	ok := false
	defer func() {
		if !ok {
			s.close()
		}
	}()

	creds, err := credentials.NewService(cfg.Auth.JWTSecret,
		credentials.WithTokenTTL(cfg.Auth.TokenTTL),
		credentials.WithBcryptCost(cfg.Auth.BcryptCost),
	)
	if err != nil {
		return nil, err
	}

	verifier, err := identity.NewGoogleVerifier(ctx, cfg.Auth.GoogleClientID)
	if err != nil {
		return nil, fmt.Errorf("init google verifier: %w", err)
	}

	repo, err := s.openRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}

	m := metrics.New()

	notifier, err := s.openNotifier(ctx, cfg, m)
	if err != nil {
		return nil, err
	}
	s.notifier = notifier

	accountService := services.NewAccountService(repo, creds, verifier, notifier, logger, m)
	authMiddleware := handlers.RequireAuth(creds)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
		cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Handle("/metrics", m.Handler())
	router.Route("/api/auth", func(r chi.Router) {
		handlers.AuthRouter(r, accountService, logger)
	})
	router.Route("/api/users", func(r chi.Router) {
		handlers.ProfileRouter(r, accountService, logger, authMiddleware)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.router = router
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ok = true
	return s, nil
}

func (s *Server) openRepository(ctx context.Context, cfg config.Config) (services.AccountRepository, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendMongo:
		client, database, err := db.OpenMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		s.closers = append(s.closers, func() error {
			return disconnectMongo(client)
		})

		repo := store.NewMongoAccountRepository(database.Collection(cfg.Mongo.Collection))
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		s.logger.Info("using mongo account store",
			zap.String("database", cfg.Mongo.Database),
			zap.String("collection", cfg.Mongo.Collection))
		return repo, nil
	default:
		dbConn, err := db.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s.closers = append(s.closers, dbConn.Close)
		s.logger.Info("using postgres account store",
			zap.String("host", cfg.Database.Host),
			zap.String("database", cfg.Database.DBName))
		return store.NewAccountRepository(dbConn), nil
	}
}

// openNotifier queues welcome emails on the broker when one is configured,
// and otherwise sends them from this process.
func (s *Server) openNotifier(ctx context.Context, cfg config.Config, m *metrics.Metrics) (welcomeNotifier, error) {
	broker, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		return nil, err
	}
	if broker != nil {
		s.closers = append(s.closers, broker.Close)
		s.logger.Info("queueing welcome emails",
			zap.String("backend", cfg.MQ.Backend),
			zap.String("channel", cfg.MQ.WelcomeChannel))
		return notify.NewQueueNotifier(broker, cfg.MQ.WelcomeChannel, s.logger, m), nil
	}

	templates, err := notify.OpenTemplates(ctx, cfg.Storage, s.logger)
	if err != nil {
		return nil, err
	}
	sender, err := notify.NewSender(cfg.SMTP, s.logger)
	if err != nil {
		return nil, err
	}
	return notify.NewDirectNotifier(templates, sender, s.logger, m), nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("accounts server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight requests and
// welcome emails until ctx is done, then releases every connection.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if waitErr := waitNotifier(ctx, s.notifier); waitErr != nil {
		s.logger.Warn("abandoning in-flight welcome emails", zap.Error(waitErr))
		err = errors.Join(err, waitErr)
	}
	s.close()
	return err
}

// waitNotifier blocks until n has no in-flight sends or ctx is done.
func waitNotifier(ctx context.Context, n welcomeNotifier) error {
	if n == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		n.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("close failed", zap.Error(err))
		}
	}
	s.closers = nil
}

func disconnectMongo(client *mongo.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return client.Disconnect(ctx)
}
