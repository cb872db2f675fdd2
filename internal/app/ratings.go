package app

import (
	"context"
	"fmt"
	"sync"

	"tchouf/internal/adapters/observability"
	"tchouf/internal/domain"
)

// lockStripes bounds the lock table; businesses sharing a stripe
// serialize against each other, which is harmless, only extra waiting.
const lockStripes = 64

// RatingService keeps Business.AvgRating and Business.ReviewCount
// consistent with the actual review set. Every review mutation is
// followed synchronously by a recompute of both fields.
type RatingService struct {
	store domain.Store
	cache domain.Cache

	// Striped per-business serialization of the recompute
	// read-modify-write: keeps two concurrent review writers from
	// interleaving their review scan and aggregate update.
	locks [lockStripes]sync.Mutex
}

func NewRatingService(store domain.Store, cache domain.Cache) *RatingService {
	return &RatingService{store: store, cache: cache}
}

func (s *RatingService) businessLock(id int64) *sync.Mutex {
	return &s.locks[id%lockStripes]
}

// CreateReview persists a review and recomputes the business aggregates.
// A review against a missing business fails fast: the store returns
// ErrConstraintViolation instead of creating an orphan.
func (s *RatingService) CreateReview(ctx context.Context, businessID, userID int64, rating int, comment, photoURL string) (domain.Review, error) {
	if !domain.ValidRating(rating) {
		return domain.Review{}, fmt.Errorf("rating %d out of range: %w", rating, domain.ErrConstraintViolation)
	}

	l := s.businessLock(businessID)
	l.Lock()
	defer l.Unlock()

	r, err := s.store.CreateReview(ctx, domain.NewReview(businessID, userID, rating, comment, photoURL))
	if err != nil {
		observability.ObserveStore("review", "create", resultLabel(err))
		return domain.Review{}, err
	}
	observability.ObserveStore("review", "create", "ok")

	if err := s.recomputeLocked(ctx, businessID); err != nil {
		return domain.Review{}, err
	}
	return r, nil
}

func (s *RatingService) UpdateReview(ctx context.Context, id int64, rating int, comment, photoURL string) (domain.Review, error) {
	if !domain.ValidRating(rating) {
		return domain.Review{}, fmt.Errorf("rating %d out of range: %w", rating, domain.ErrConstraintViolation)
	}
	old, err := s.store.GetReview(ctx, id)
	if err != nil {
		return domain.Review{}, err
	}

	l := s.businessLock(old.BusinessID)
	l.Lock()
	defer l.Unlock()

	old.Rating = rating
	old.Comment = comment
	old.PhotoURL = photoURL
	r, err := s.store.UpdateReview(ctx, old)
	if err != nil {
		observability.ObserveStore("review", "update", resultLabel(err))
		return domain.Review{}, err
	}
	observability.ObserveStore("review", "update", "ok")

	if err := s.recomputeLocked(ctx, r.BusinessID); err != nil {
		return domain.Review{}, err
	}
	return r, nil
}

func (s *RatingService) DeleteReview(ctx context.Context, id int64) error {
	old, err := s.store.GetReview(ctx, id)
	if err != nil {
		return err
	}

	l := s.businessLock(old.BusinessID)
	l.Lock()
	defer l.Unlock()

	if err := s.store.DeleteReview(ctx, id); err != nil {
		observability.ObserveStore("review", "delete", resultLabel(err))
		return err
	}
	observability.ObserveStore("review", "delete", "ok")
	return s.recomputeLocked(ctx, old.BusinessID)
}

func (s *RatingService) ListReviews(ctx context.Context, businessID int64) ([]domain.Review, error) {
	return s.store.ListReviewsByBusiness(ctx, businessID)
}

// Recompute rebuilds both aggregate fields from the current review set.
// Idempotent: with no intervening review change a second run writes the
// same values.
func (s *RatingService) Recompute(ctx context.Context, businessID int64) error {
	l := s.businessLock(businessID)
	l.Lock()
	defer l.Unlock()
	return s.recomputeLocked(ctx, businessID)
}

func (s *RatingService) recomputeLocked(ctx context.Context, businessID int64) error {
	reviews, err := s.store.ListReviewsByBusiness(ctx, businessID)
	if err != nil {
		return err
	}

	avg := 0.0
	if len(reviews) > 0 {
		sum := 0
		for _, r := range reviews {
			sum += r.Rating
		}
		avg = float64(sum) / float64(len(reviews))
	}

	// Field-scoped write: a claim approval landing after the review scan
	// survives because the store never rewrites Verified/ClaimedBy here.
	if err := s.store.UpdateBusinessAggregates(ctx, businessID, avg, len(reviews)); err != nil {
		return err
	}

	if s.cache != nil {
		_ = s.cache.Del(ctx, businessCacheKey(businessID))
		_ = s.cache.Del(ctx, reviewsCacheKey(businessID))
		_ = s.cache.Del(ctx, featuredCacheKey)
	}
	return nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case isNotFound(err):
		return "not_found"
	case isConstraint(err):
		return "conflict"
	case isUnavailable(err):
		return "unavailable"
	default:
		return "error"
	}
}
