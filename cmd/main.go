package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"entry_service/internal/config"
	"entry_service/internal/entry"
	"entry_service/internal/http_server/handlers/companies"
	entryhandler "entry_service/internal/http_server/handlers/entry"
	"entry_service/internal/http_server/handlers/users"
	rateLimit "entry_service/internal/middleware/ratelimit"
	"entry_service/internal/rabbitmq"
	"entry_service/internal/storage/postgres"
	redisrepo "entry_service/internal/storage/redis"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator/v10"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad("./config/config.yaml")

	log := setupLogger(cfg.Env)

	log.Info("starting entry service", slog.String("env", cfg.Env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("Shutdown signal received")
		cancel()
	}()

	storage, err := postgres.New(ctx, cfg)
	if err != nil {
		log.Error("failed to connect postgres", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer storage.Close()

	attempts, err := redisrepo.New(
		ctx,
		cfg.Redis.Address,
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Entry.MaxKeyFailures,
		cfg.Entry.FailureWindow,
	)
	if err != nil {
		log.Error("failed to connect redis", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer attempts.Close()

	auditQueue, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		log.Error("failed to connect rabbitmq", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer auditQueue.Close()

	entryService := entry.New(log, storage, storage, storage, storage, storage, attempts, auditQueue)

	router := setupRouter(log, entryService, storage)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server is running")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", slog.String("err", err.Error()))
			cancel()
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", slog.String("err", err.Error()))
	} else {
		log.Info("Server stopped gracefully")
	}

	log.Info("Main service stopped")
}

func setupRouter(
	log *slog.Logger,
	entryService *entry.Entry,
	storage *postgres.PostgresRepo,
) *chi.Mux {
	validate := validator.New()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.With(rateLimit.Entry()).Get("/entry",
		entryhandler.New(log, entryService),
	)

	r.Route("/admin", func(r chi.Router) {
		r.Route("/companies", func(r chi.Router) {
			r.With(rateLimit.AdminWrite()).Post("/", companies.Create(log, validate, storage))
			r.Get("/", companies.List(log, storage))
			r.Get("/{id}", companies.Get(log, storage))
			r.With(rateLimit.AdminWrite()).Delete("/{id}", companies.Delete(log, storage))
			r.With(rateLimit.AdminWrite()).Post("/{id}/secret", companies.RotateSecret(log, storage))
			r.With(rateLimit.AdminWrite()).Post("/{id}/users", users.Create(log, validate, storage))
			r.Get("/{id}/users", users.List(log, storage))
		})

		r.Route("/users", func(r chi.Router) {
			r.With(rateLimit.AdminWrite()).Delete("/{id}", users.Delete(log, storage))
			r.With(rateLimit.AdminWrite()).Put("/{id}/key", users.SetKey(log, validate, storage))
			r.With(rateLimit.AdminWrite()).Delete("/{id}/key", users.DeleteKey(log, storage))
			r.Get("/{id}/tokens", users.Tokens(log, storage))
		})
	})

	return r
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
