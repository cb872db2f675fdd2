package main

import (
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	server "tchouf/internal/adapters/http_server"
	"tchouf/internal/adapters/observability"
	redisad "tchouf/internal/adapters/redis"
	"tchouf/internal/app"
	"tchouf/internal/domain"
	"tchouf/internal/shared"
	"tchouf/internal/storage"
)

func main() {
	cfg, err := shared.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	observability.Serve()

	// storage + cache
	var client *redis.Client
	var cache domain.Cache
	if cfg.StorageBackend == "redis" {
		client = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPass, DB: cfg.RedisDB})
		cache = redisad.NewWithClient(client)
	}
	store, err := storage.Open(cfg.StorageBackend, client)
	if err != nil {
		log.Fatal().Err(err).Msg("storage open failed")
	}
	log.Info().Str("backend", cfg.StorageBackend).Msg("storage ready")

	// services
	accounts := app.NewAccountService(store)
	dir := app.NewDirectoryService(store, cache, cfg.CacheTTL())
	ratings := app.NewRatingService(store, cache)
	claims := app.NewClaimService(store, cache)

	// http
	srv := server.New(cfg.RateLimitRPS)
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Accounts: accounts,
		Dir:      dir,
		Ratings:  ratings,
		Claims:   claims,
	})

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}

	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
}
