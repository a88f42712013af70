package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"peopleflow.org/internal/cache"
	"peopleflow.org/internal/config"
	"peopleflow.org/internal/httpapi"
	"peopleflow.org/internal/obs"
	"peopleflow.org/internal/rbac"
	"peopleflow.org/internal/store/pg"
)

var (
	version = "0.4.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var (
		store        rbac.Store
		sessionStore rbac.SessionStore
		db           *sql.DB
	)
	if cfg.PostgresDSN != "" {
		pgStore, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pgStore.Close()
		store, sessionStore, db = pgStore, pgStore, pgStore.DB()
	} else {
		// No DSN configured: run against the in-memory store. Useful for
		// local development, useless for anything else.
		log.Println("PEOPLEFLOW_PG_DSN not set, using in-memory store")
		mem := rbac.NewInMemoryStore()
		store, sessionStore = mem, mem
	}

	agg, err := rbac.NewAggregator(store)
	if err != nil {
		log.Fatalf("init aggregator: %v", err)
	}

	var source rbac.Source = agg
	var svcOpts []rbac.ServiceOption
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		cached, err := cache.NewPermissions(client, agg, cfg.PermCacheTTL)
		if err != nil {
			log.Fatalf("init permission cache: %v", err)
		}
		source = cached
		svcOpts = append(svcOpts, rbac.WithInvalidator(cached))
	}

	svc, err := rbac.NewService(store, svcOpts...)
	if err != nil {
		log.Fatalf("init rbac service: %v", err)
	}
	sessions, err := rbac.NewSessions(store, sessionStore, source)
	if err != nil {
		log.Fatalf("init sessions: %v", err)
	}

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	if err := svc.EnsureBuiltins(bootCtx); err != nil {
		cancelBoot()
		log.Fatalf("ensure permission catalog: %v", err)
	}
	cancelBoot()

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, svc, sessions, source, cfg)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting peopleflow-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
