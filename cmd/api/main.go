package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"tenantcore.org/internal/alerts"
	"tenantcore.org/internal/config"
	"tenantcore.org/internal/httpapi"
	"tenantcore.org/internal/identity"
	"tenantcore.org/internal/obs"
	"tenantcore.org/internal/risk"
	"tenantcore.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	// Инициализация observability (регистрация метрик, JSON-логгер и т.п.)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	if cfg.PostgresDSN == "" {
		log.Fatal("TENANTCORE_PG_DSN is required")
	}
	store, err := pg.Open(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	manager, err := identity.NewManager(store, identity.WithAttemptWriter(store.Attempts()))
	if err != nil {
		log.Fatalf("identity manager: %v", err)
	}
	roles, err := identity.NewRoleDirectory(store.Roles())
	if err != nil {
		log.Fatalf("role directory: %v", err)
	}
	analyzer, err := risk.NewAnalyzer(store.Attempts(), store.Users())
	if err != nil {
		log.Fatalf("risk analyzer: %v", err)
	}
	hub := alerts.New()

	api := httpapi.New(httpapi.ReadyProbe{DB: store.DB()}, version, httpapi.Deps{
		Store:    store,
		Manager:  manager,
		Roles:    roles,
		Analyzer: analyzer,
		Alerts:   hub,
		Attempts: store.Attempts(),
		TokenTTL: cfg.TokenTTL,

		AnalysisPeriodDays: cfg.AnalysisPeriodDays,
	})

	handler := api.Handler() // уже обёрнут авторизацией и метриками
	handler = httpapi.RateLimit(handler, cfg.RateLimitBurst, cfg.RateLimitPerSec)
	handler = httpapi.MaxBodyBytes(handler, cfg.MaxBodyBytes)
	handler = httpapi.CORS(handler)
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.RequestID(handler)
	handler = httpapi.Logging(handler)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	log.Printf("Starting tenantcore-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
