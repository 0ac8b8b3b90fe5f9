package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/iliyamo/deckvault/internal/auth"
	"github.com/iliyamo/deckvault/internal/config"
	"github.com/iliyamo/deckvault/internal/database"
	"github.com/iliyamo/deckvault/internal/handler"
	"github.com/iliyamo/deckvault/internal/linking"
	"github.com/iliyamo/deckvault/internal/logger"
	"github.com/iliyamo/deckvault/internal/metrics"
	"github.com/iliyamo/deckvault/internal/middleware"
	"github.com/iliyamo/deckvault/internal/patreon"
	"github.com/iliyamo/deckvault/internal/queue"
	"github.com/iliyamo/deckvault/internal/repository"
	"github.com/iliyamo/deckvault/internal/router"
	"github.com/iliyamo/deckvault/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional

	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.Env)
	defer func() { _ = log.Sync() }()

	adminOpts := database.Options{User: cfg.DBAdmin.User, Pass: cfg.DBAdmin.Pass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName}
	readOpts := database.Options{User: cfg.DBRead.User, Pass: cfg.DBRead.Pass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName}

	version, err := database.MigrateUp(adminOpts)
	if err != nil {
		log.Fatal("migrate", zap.Error(err))
	}
	log.Info("schema ready", zap.Uint("version", version))

	adminDB, err := database.Open(adminOpts)
	if err != nil {
		log.Fatal("open admin pool", zap.Error(err))
	}
	defer adminDB.Close()
	readDB, err := database.Open(readOpts)
	if err != nil {
		log.Fatal("open read pool", zap.Error(err))
	}
	defer readDB.Close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unavailable, rate limiting and caching disabled")
	} else {
		defer rdb.Close()
	}
	rlCfg := config.LoadRateLimitConfig()
	cacheCfg := config.LoadCacheConfig()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	accounts := repository.NewAccountRepo(adminDB)
	profiles := repository.NewProfileRepo(adminDB)
	tokens := repository.NewTokenRepo(adminDB)
	decks := repository.NewDeckRepo(readDB, adminDB)

	authSvc := auth.NewService(accounts, profiles, tokens, auth.Options{
		JWTSecret:      cfg.JWTSecret,
		AccessTTLMin:   cfg.AccessTTLMin,
		RefreshTTLDays: cfg.RefreshTTLDays,
		BcryptCost:     cfg.BcryptCost,
	})

	publisher := service.NewPublisher(cfg.RabbitMQURL, logger.WithComponent(log, "publisher"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	invalidate := func(ctx context.Context) error { return middleware.InvalidateCache(ctx, cacheCfg, rdb) }
	consumer := queue.NewImportResultConsumer(cfg.RabbitMQURL, decks, invalidate, log)
	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("import consumer stopped", zap.Error(err))
		}
	}()

	pc := patreon.New(cfg.Patreon, logger.WithComponent(log, "patreon"))
	linkLog := logger.WithComponent(log, "linking")
	reporter := linking.NewReporter(m, publisher, cfg.SiteURL, !cfg.IsProduction(), linkLog)
	linker := linking.NewLinker(
		pc,
		linking.NewReconciler(accounts, profiles, linkLog),
		linking.NewProfileUpserter(profiles, linkLog),
		linking.NewSessionProvisioner(authSvc, linkLog),
		reporter,
		linkLog,
	)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestLogger(logger.WithComponent(log, "http"), m))

	deckH := handler.NewDeckHandler(decks, publisher, invalidate, logger.WithComponent(log, "decks"))

	router.RegisterRoutes(e, handler.Health(adminDB), promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	router.RegisterPatreon(e,
		handler.NewPatreonAuthHandler(cfg.Patreon, pc, linker, reporter, log),
		middleware.NewTokenBucket(rlCfg, rdb, log))
	router.RegisterSession(e,
		handler.NewSessionHandler(authSvc, accounts, repository.NewProfileRepo(readDB), logger.WithComponent(log, "session")),
		cfg.JWTSecret)
	router.RegisterDecks(e, deckH, cfg.JWTSecret, middleware.NewRedisCache(cacheCfg, rdb, log))
	router.RegisterAdmin(e, deckH, handler.NewAdminHandler(profiles, logger.WithComponent(log, "admin")), cfg.JWTSecret)

	go func() {
		addr := ":" + cfg.Port
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
}
