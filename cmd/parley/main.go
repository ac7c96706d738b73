package main

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

	"github.com/redis/go-redis/v9"

	app "github.com/parleyhq/parley"
	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/engine"
	"github.com/parleyhq/parley/internal/events"
	"github.com/parleyhq/parley/internal/intent"
	"github.com/parleyhq/parley/internal/llm"
	"github.com/parleyhq/parley/internal/payment"
	"github.com/parleyhq/parley/internal/profile"
	"github.com/parleyhq/parley/internal/report"
	"github.com/parleyhq/parley/internal/server"
	"github.com/parleyhq/parley/internal/session"
	"github.com/parleyhq/parley/internal/store"
	"github.com/parleyhq/parley/internal/workflows"
	"github.com/parleyhq/parley/pkg/log"
)

type parley struct {
	cfg        *config.Config
	redis      *redis.Client
	store      store.Store
	sessions   *session.Manager
	profiles   *profile.Service
	archive    *report.Archive
	engine     *engine.Engine
	dispatcher *events.Dispatcher
	subscriber *events.Subscriber
	apiServer  *server.Server
	httpServer *http.Server
	quit       chan os.Signal
}

var (
	ErrConnectRedis   = errors.New("failed to connect to redis")
	ErrOpenArchive    = errors.New("failed to open report archive")
	ErrLoadWorkflows  = errors.New("failed to load workflow definitions")
	ErrStartSubscribe = errors.New("failed to start event subscriber")
)

const redisConnectTimeout = 5 * time.Second

func main() {
	cfg := config.NewDefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}

	s := &parley{
		cfg:  cfg,
		quit: make(chan os.Signal, 1),
	}
	s.setupLogging()

	if err := s.run(); err != nil {
		slog.Error("Failed to start application", log.Error(err))
		os.Exit(1)
	}
}

func (s *parley) run() error {
	if err := s.initializeStores(); err != nil {
		return err
	}

	if err := s.initializeEngine(); err != nil {
		return err
	}

	if err := s.startEvents(); err != nil {
		return err
	}
	s.startServer()

	signal.Notify(s.quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(s.quit)
	<-s.quit

	s.shutdown()
	return nil
}

func (s *parley) setupLogging() {
	level := log.ParseLevel(s.cfg.LogLevel)
	env := os.Getenv("ENV")
	logger := log.NewWithLevel(app.Name, env, app.Version, level)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level)

	slog.Info("Parley starting",
		slog.String("log_level", s.cfg.LogLevel))

	slog.Info("Configuration loaded",
		slog.String("redis_addr", s.cfg.Redis.Addr),
		slog.Int("redis_db", s.cfg.Redis.DB),
		slog.String("api_host", s.cfg.APIHost),
		slog.Int("api_port", s.cfg.APIPort),
		slog.String("definitions", s.cfg.DefinitionsPath),
		slog.String("report_bucket", s.cfg.ReportBucketURL))
}

func (s *parley) initializeStores() error {
	s.redis = redis.NewClient(&redis.Options{
		Addr:     s.cfg.Redis.Addr,
		Password: s.cfg.Redis.Password,
		DB:       s.cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(
		context.Background(), redisConnectTimeout,
	)
	defer cancel()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		_ = s.redis.Close()
		return fmt.Errorf("%w: %w", ErrConnectRedis, err)
	}

	s.store = store.NewRedisStore(s.redis,
		store.WithPrefix(s.cfg.Redis.Prefix),
		store.WithRetention(s.cfg.TerminalRetention),
	)
	s.sessions = session.NewManager(
		session.NewRedisStore(s.redis,
			session.WithPrefix(s.cfg.Redis.Prefix)),
		session.WithTurnLimit(s.cfg.SessionTurns),
	)
	s.profiles = profile.NewService(
		profile.NewRedisStore(s.redis,
			profile.WithPrefix(s.cfg.Redis.Prefix)),
	)

	archive, err := report.NewArchive(
		context.Background(), s.cfg.ReportBucketURL, "",
	)
	if err != nil {
		_ = s.redis.Close()
		return fmt.Errorf("%w: %w", ErrOpenArchive, err)
	}
	s.archive = archive

	return nil
}

func (s *parley) initializeEngine() error {
	llmClient := llm.NewHTTPClient(s.cfg.Assistant)
	classifier := intent.NewHTTPClassifier(
		s.cfg.Classifier, s.cfg.ConfidenceThreshold,
	)

	reg := engine.NewRegistry()
	doc, err := workflows.Install(reg, &workflows.Deps{
		Config:   s.cfg,
		LLM:      llmClient,
		Profiles: s.profiles,
		Places:   profile.NewPlaceResolver(),
		Payments: payment.NewHTTPClient(s.cfg.Payments),
		Reports:  report.NewGenerator(report.WithCompletionClient(llmClient)),
		Archive:  s.archive,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoadWorkflows, err)
	}
	slog.Info("Workflow definitions loaded",
		slog.Int("workflows", len(doc.Workflows)))

	s.engine = engine.New(
		reg, s.store, s.sessions, classifier, s.cfg,
	)
	s.engine.Start()
	return nil
}

func (s *parley) startEvents() error {
	s.dispatcher = events.NewDispatcher(s.engine)
	s.subscriber = events.NewSubscriber(s.dispatcher, s.cfg)

	if !s.subscriber.Enabled() {
		slog.Info("NATS subscriber disabled")
		return nil
	}
	if err := s.subscriber.Start(); err != nil {
		return fmt.Errorf("%w: %w", ErrStartSubscribe, err)
	}
	return nil
}

func (s *parley) startServer() {
	s.apiServer = server.NewServer(s.engine, s.dispatcher, s.archive)
	mux := s.apiServer.SetupRoutes()

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.APIHost, s.cfg.APIPort),
		Handler: mux,
	}

	go func() {
		slog.Info("HTTP server starting",
			slog.String("addr", s.httpServer.Addr))
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", log.Error(err))
		}
	}()
}

func (s *parley) shutdown() {
	slog.Info("Shutting down")

	ctx, cancel := context.WithTimeout(
		context.Background(), s.cfg.ShutdownTimeout,
	)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		slog.Error("Shutdown failed", log.Error(err))
	}

	s.apiServer.CloseWebSockets()
	s.subscriber.Stop()

	if err := s.engine.Stop(); err != nil {
		slog.Error("Engine shutdown failed", log.Error(err))
	}

	if err := s.archive.Close(); err != nil {
		slog.Error("Archive close failed", log.Error(err))
	}

	// the instance, session, and profile stores share this client
	if err := s.redis.Close(); err != nil {
		slog.Error("Redis close failed", log.Error(err))
	}

	slog.Info("Server exited")
}
