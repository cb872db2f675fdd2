package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"

	"tchouf/internal/adapters/observability"
	"tchouf/internal/domain"
)

func businessCacheKey(id int64) string        { return fmt.Sprintf("business:view:%d", id) }
func reviewsCacheKey(businessID int64) string { return fmt.Sprintf("reviews:%d", businessID) }

const featuredCacheKey = "businesses:featured"

func isNotFound(err error) bool    { return errors.Is(err, domain.ErrNotFound) }
func isConstraint(err error) bool  { return errors.Is(err, domain.ErrConstraintViolation) }
func isUnavailable(err error) bool { return errors.Is(err, domain.ErrBackendUnavailable) }

// DirectoryService owns business listings: create, lookup, search,
// featured. Reads are cache-aside; the two list endpoints sit behind a
// circuit breaker and degrade to an empty page when the backend is
// down. Single-entity lookups and all writes propagate the failure
// unmodified so callers can decide whether a retry is safe.
type DirectoryService struct {
	store    domain.Store
	cache    domain.Cache
	cacheTTL time.Duration
	breaker  *gobreaker.CircuitBreaker[domain.BusinessPage]
}

func NewDirectoryService(store domain.Store, cache domain.Cache, ttl time.Duration) *DirectoryService {
	cb := gobreaker.NewCircuitBreaker[domain.BusinessPage](gobreaker.Settings{
		Name:    "store-list",
		Timeout: 15 * time.Second,
		IsSuccessful: func(err error) bool {
			// Only backend outages should trip the breaker.
			return err == nil || !isUnavailable(err)
		},
	})
	return &DirectoryService{store: store, cache: cache, cacheTTL: ttl, breaker: cb}
}

func (s *DirectoryService) Create(ctx context.Context, in domain.BusinessInput) (domain.Business, error) {
	b, err := s.store.CreateBusiness(ctx, domain.NewBusiness(in))
	observability.ObserveStore("business", "create", resultLabel(err))
	if err != nil {
		return domain.Business{}, err
	}
	return b, nil
}

// Update rewrites a listing's profile fields. Ownership, verification
// and rating aggregates are server-owned; the store preserves them.
func (s *DirectoryService) Update(ctx context.Context, id int64, in domain.BusinessInput) (domain.Business, error) {
	b, err := s.store.UpdateBusiness(ctx, domain.Business{
		ID:          id,
		Name:        in.Name,
		Category:    in.Category,
		Description: in.Description,
		Address:     in.Address,
		City:        in.City,
		Phone:       in.Phone,
		Website:     in.Website,
		Photos:      append([]string(nil), in.Photos...),
	})
	observability.ObserveStore("business", "update", resultLabel(err))
	if err != nil {
		return domain.Business{}, err
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, businessCacheKey(id))
		_ = s.cache.Del(ctx, featuredCacheKey)
	}
	return b, nil
}

func (s *DirectoryService) Get(ctx context.Context, id int64) (domain.Business, error) {
	key := businessCacheKey(id)
	var cached domain.Business
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, key, &cached); ok {
			return cached, nil
		}
	}
	b, err := s.store.GetBusiness(ctx, id)
	observability.ObserveStore("business", "get", resultLabel(err))
	if err != nil {
		return domain.Business{}, err
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, b, int(s.cacheTTL.Seconds()))
	}
	return b, nil
}

// Search runs the filtered scan. On a backend outage (or an open
// breaker) it returns an empty page: the product tolerates a degraded
// list view, and the choice is deliberate and logged.
func (s *DirectoryService) Search(ctx context.Context, q domain.BusinessQuery) (domain.BusinessPage, error) {
	page, err := s.breaker.Execute(func() (domain.BusinessPage, error) {
		return s.store.ListBusinesses(ctx, q)
	})
	if err != nil {
		if isUnavailable(err) || errors.Is(err, gobreaker.ErrOpenState) {
			log.Warn().Err(err).Msg("search degraded to empty page")
			return domain.BusinessPage{}, nil
		}
		return domain.BusinessPage{}, err
	}
	return page, nil
}

// Featured lists verified businesses, best-rated first. Same degraded
// fallback as Search.
func (s *DirectoryService) Featured(ctx context.Context, limit int) ([]domain.Business, error) {
	if limit <= 0 {
		limit = 10
	}

	var cached []domain.Business
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, featuredCacheKey, &cached); ok && len(cached) >= limit {
			return cached[:limit], nil
		}
	}

	verified := true
	page, err := s.breaker.Execute(func() (domain.BusinessPage, error) {
		return s.store.ListBusinesses(ctx, domain.BusinessQuery{Verified: &verified})
	})
	if err != nil {
		if isUnavailable(err) || errors.Is(err, gobreaker.ErrOpenState) {
			log.Warn().Err(err).Msg("featured degraded to empty list")
			return nil, nil
		}
		return nil, err
	}

	items := page.Items
	sort.Slice(items, func(i, j int) bool {
		if items[i].AvgRating == items[j].AvgRating {
			return items[i].ReviewCount > items[j].ReviewCount
		}
		return items[i].AvgRating > items[j].AvgRating
	})
	if s.cache != nil {
		_ = s.cache.Set(ctx, featuredCacheKey, items, int(s.cacheTTL.Seconds()))
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
