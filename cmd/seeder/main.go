package main

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"tchouf/internal/adapters/observability"
	redisad "tchouf/internal/adapters/redis"
	"tchouf/internal/app"
	"tchouf/internal/domain"
	"tchouf/internal/shared"
	"tchouf/internal/storage"
)

type seedReview struct {
	UserID   int64  `json:"userId"`
	Rating   int    `json:"rating"`
	Comment  string `json:"comment"`
	PhotoURL string `json:"photoUrl"`
}

type seedBusiness struct {
	Name        string       `json:"name"`
	Category    string       `json:"category"`
	Description string       `json:"description"`
	Address     string       `json:"address"`
	City        string       `json:"city"`
	Phone       string       `json:"phone"`
	Website     string       `json:"website"`
	Photos      []string     `json:"photos"`
	CreatedBy   int64        `json:"createdBy"`
	Reviews     []seedReview `json:"reviews"`
}

func main() {
	ctx := context.Background()
	cfg, err := shared.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	log.Logger = observability.NewLogger(cfg.AppEnv)

	log.Info().
		Str("file", cfg.SeedFile).
		Int("workers", cfg.SeedWorkers).
		Msg("seeder starting")

	raw, err := os.ReadFile(cfg.SeedFile)
	if err != nil {
		log.Fatal().Err(err).Msg("read seed file failed")
	}
	var seeds []seedBusiness
	if err := json.Unmarshal(raw, &seeds); err != nil {
		log.Fatal().Err(err).Msg("parse seed file failed")
	}

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

	dir := app.NewDirectoryService(store, cache, cfg.CacheTTL())
	ratings := app.NewRatingService(store, cache)

	sem := semaphore.NewWeighted(int64(cfg.SeedWorkers))
	var wg sync.WaitGroup

	for _, sb := range seeds {
		sb := sb

		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Fatal().Err(err).Msg("semaphore acquire failed")
		}

		wg.Add(1)
		go func(sb seedBusiness) {
			defer wg.Done()
			defer sem.Release(1)

			b, err := dir.Create(ctx, domain.BusinessInput{
				Name:        sb.Name,
				Category:    sb.Category,
				Description: sb.Description,
				Address:     sb.Address,
				City:        sb.City,
				Phone:       sb.Phone,
				Website:     sb.Website,
				Photos:      sb.Photos,
				CreatedBy:   sb.CreatedBy,
			})
			if err != nil {
				log.Warn().Str("name", sb.Name).Err(err).Msg("seed business failed")
				return
			}
			for _, rv := range sb.Reviews {
				if _, err := ratings.CreateReview(ctx, b.ID, rv.UserID, rv.Rating, rv.Comment, rv.PhotoURL); err != nil {
					log.Warn().Int64("business", b.ID).Err(err).Msg("seed review failed")
				}
			}
			log.Info().Int64("id", b.ID).Str("name", b.Name).Msg("seeded")
		}(sb)
	}

	wg.Wait()
	log.Info().Msg("seeding completed")
}
