package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/oindividum/bankcards-service/internal/auth"
	"github.com/oindividum/bankcards-service/internal/config"
	"github.com/oindividum/bankcards-service/internal/handler"
	"github.com/oindividum/bankcards-service/internal/jobs"
	"github.com/oindividum/bankcards-service/internal/metrics"
	"github.com/oindividum/bankcards-service/internal/migrate"
	"github.com/oindividum/bankcards-service/internal/repository"
	"github.com/oindividum/bankcards-service/internal/service"
	"github.com/oindividum/bankcards-service/internal/utils"
	"github.com/oindividum/bankcards-service/internal/utils/email"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize store
	var (
		store repository.Store
		ping  func(context.Context) error
	)
	switch cfg.Store {
	case config.StorePostgres:
		db, err := sql.Open("postgres", cfg.DBConn)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			logger.Fatalf("Failed to ping database: %v", err)
		}
		if err := migrate.Up(ctx, db); err != nil {
			logger.Fatalf("Failed to apply migrations: %v", err)
		}
		store = repository.NewRepository(db)
		ping = db.PingContext
	default:
		logger.Warn("Using in-memory store; data is lost on restart")
		store = repository.NewMemory()
	}

	// Initialize security primitives
	cipher, err := utils.NewCardCipher(cfg.EncryptionKey)
	if err != nil {
		logger.Fatalf("Failed to initialize card cipher: %v", err)
	}
	tokens, err := auth.NewTokenCodec([]byte(cfg.JWTSecret), cfg.JWTExpiration)
	if err != nil {
		logger.Fatalf("Refusing to start: %v", err)
	}
	hasher := auth.NewBcryptHasher(cfg.BcryptCost)

	// Initialize metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Initialize layers
	var (
		notifier service.Notifier
		mailer   *email.Sender
	)
	if cfg.MailEnabled() {
		mailer = email.NewSender(cfg, logger)
		notifier = mailer
	}
	authSvc := service.NewAuthService(store, hasher, tokens, m, logger)
	userSvc := service.NewUserService(store, logger)
	cardSvc := service.NewCardService(store, cipher, notifier, m, logger)
	transferSvc := service.NewTransferService(store, cipher, m, logger)

	if cfg.AdminUsername != "" {
		if err := authSvc.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
			logger.Fatalf("Failed to create admin user: %v", err)
		}
	}

	h := handler.NewHandler(authSvc, userSvc, cardSvc, transferSvc, ping, logger)
	r := handler.NewRouter(h, handler.RouterDeps{
		Tokens:   tokens,
		Users:    store,
		Policy:   auth.DefaultPolicy,
		Metrics:  m,
		Gatherer: reg,
		Logger:   logger,
	})

	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("Shutting down server")
		return server.Shutdown(shutdownCtx)
	})
	if cfg.ExpiryCron != "" {
		var reporter jobs.ReportSender
		if mailer != nil {
			reporter = mailer
		}
		sweep := jobs.NewExpirySweep(cardSvc, reporter, cfg.ExpiryAutoBlock, logger)
		g.Go(func() error { return sweep.Serve(gctx, cfg.ExpiryCron) })
	}

	if err := g.Wait(); err != nil {
		logger.Fatalf("Service stopped: %v", err)
	}
	logger.Info("Service stopped")
}
