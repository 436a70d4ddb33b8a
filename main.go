package main

import (
	"context"
	"expvar"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"gittimeline/internal"
	"gittimeline/pkg/api"
	"gittimeline/pkg/auth"
	"gittimeline/pkg/ingest"
	github "gittimeline/pkg/providers/github"
	"gittimeline/pkg/storage/events"
	"gittimeline/pkg/storage/repos"
	"gittimeline/pkg/webhook"
)

func main() {
	logger := internal.NewLogger("server")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	config, err := internal.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	repoStore, err := repos.Open(repos.Config{
		Driver:      config.Storage.Driver,
		DSN:         config.Storage.DSN,
		Table:       config.Storage.ReposTable,
		AutoMigrate: config.Storage.AutoMigrate,
	})
	if err != nil {
		logger.Fatalf("open repo store: %v", err)
	}
	defer repoStore.Close()

	eventStore, err := events.Open(events.Config{
		Driver:      config.Storage.Driver,
		DSN:         config.Storage.DSN,
		Table:       config.Storage.EventsTable,
		AutoMigrate: config.Storage.AutoMigrate,
	})
	if err != nil {
		logger.Fatalf("open event store: %v", err)
	}
	defer eventStore.Close()

	moderation, err := internal.NewModerationEngine(config.Moderation, internal.NewLogger("moderation"))
	if err != nil {
		logger.Fatalf("compile moderation rules: %v", err)
	}

	coordinator := ingest.NewCoordinator(repoStore, eventStore, moderation, internal.NewLogger("ingest"))

	var enricher *github.Enricher
	if config.GitHub.Token != "" {
		client, err := github.NewTokenClient(context.Background(), config.GitHub.Token, config.GitHub.BaseURL)
		if err != nil {
			logger.Fatalf("github client: %v", err)
		}
		enricher = github.NewEnricher(client, time.Duration(config.GitHub.RequestTimeoutMS)*time.Millisecond, internal.NewLogger("enrich"))
	} else {
		logger.Printf("github token not configured, event detail enrichment disabled")
		enricher = github.NewEnricher(nil, 0, internal.NewLogger("enrich"))
	}

	ghHandler, err := webhook.NewGitHubHandler(
		config.Webhook.Secret,
		coordinator,
		internal.NewLogger("webhook"),
		config.Server.MaxBodyBytes,
	)
	if err != nil {
		logger.Fatalf("github handler: %v", err)
	}
	if config.Webhook.Secret == "" {
		logger.Printf("webhook secret not configured, signature verification disabled")
	}

	verifier := auth.NewVerifier(config.Admin.Password)

	mux := http.NewServeMux()
	mux.Handle("POST "+config.Webhook.Path, internal.NewRateLimitHandler(
		ghHandler,
		config.Server.RateLimitRPS,
		config.Server.RateLimitBurst,
		10*time.Minute,
	))
	mux.Handle("POST /api/auth/login", &api.LoginHandler{Auth: verifier, Logger: logger})
	mux.Handle("GET /api/events", &api.EventsHandler{Events: eventStore, Repos: repoStore, Auth: verifier, Logger: logger})
	mux.Handle("/api/events/{id}", &api.EventHandler{Events: eventStore, Auth: verifier, Logger: logger})
	mux.Handle("GET /api/events/{id}/details", &api.EventDetailsHandler{Events: eventStore, Repos: repoStore, Enricher: enricher, Logger: logger})
	mux.Handle("GET /api/repos", &api.ReposHandler{Events: eventStore, Repos: repoStore, Logger: logger})
	if config.Server.MetricsEnabled {
		mux.Handle("GET "+config.Server.MetricsPath, expvar.Handler())
	}
	logger.Printf("github webhook enabled on %s", config.Webhook.Path)

	addr := ":" + strconv.Itoa(config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       time.Duration(config.Server.ReadTimeoutMS) * time.Millisecond,
		WriteTimeout:      time.Duration(config.Server.WriteTimeoutMS) * time.Millisecond,
		IdleTimeout:       time.Duration(config.Server.IdleTimeoutMS) * time.Millisecond,
		ReadHeaderTimeout: time.Duration(config.Server.ReadHeaderMS) * time.Millisecond,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Printf("listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("listen: %v", err)
		}
	}()

	<-shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Printf("shutdown: %v", err)
	}
}
