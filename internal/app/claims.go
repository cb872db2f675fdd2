package app

import (
	"context"
	"fmt"

	"tchouf/internal/adapters/observability"
	"tchouf/internal/domain"
)

// ClaimService drives ownership claims through
// pending -> approved | rejected. The compound approval write (claim
// status + business ClaimedBy/Verified) is delegated to the store's
// atomic DecideClaim so readers never see a half-applied approval.
type ClaimService struct {
	store domain.Store
	cache domain.Cache
}

func NewClaimService(store domain.Store, cache domain.Cache) *ClaimService {
	return &ClaimService{store: store, cache: cache}
}

// Submit opens a pending claim. The proof document is required by the
// form layer upstream; here it is carried opaquely.
func (s *ClaimService) Submit(ctx context.Context, businessID, userID int64, proofURL string) (domain.Claim, error) {
	c, err := s.store.CreateClaim(ctx, domain.NewClaim(businessID, userID, proofURL))
	observability.ObserveStore("claim", "create", resultLabel(err))
	if err != nil {
		return domain.Claim{}, err
	}
	return c, nil
}

// Decide resolves a pending claim. Outcomes outside the enumerated set
// are a contract violation and are refused at this boundary; a second
// decision on a terminal claim yields ErrInvalidTransition from the
// store regardless of which outcome it carries.
func (s *ClaimService) Decide(ctx context.Context, claimID int64, outcome domain.ClaimStatus) (domain.Claim, error) {
	if !domain.ValidOutcome(outcome) {
		return domain.Claim{}, fmt.Errorf("outcome %q: %w", outcome, domain.ErrInvalidTransition)
	}

	c, err := s.store.DecideClaim(ctx, claimID, outcome)
	observability.ObserveStore("claim", "decide", resultLabel(err))
	if err != nil {
		return domain.Claim{}, err
	}
	observability.ObserveClaimDecision(string(c.Status))

	// Approval changed the business document; drop its cached view and
	// the featured list, which filters on Verified.
	if s.cache != nil && c.Status == domain.ClaimApproved {
		_ = s.cache.Del(ctx, businessCacheKey(c.BusinessID))
		_ = s.cache.Del(ctx, featuredCacheKey)
	}
	return c, nil
}

func (s *ClaimService) Get(ctx context.Context, id int64) (domain.Claim, error) {
	return s.store.GetClaim(ctx, id)
}

func (s *ClaimService) List(ctx context.Context, q domain.ClaimQuery) ([]domain.Claim, error) {
	return s.store.ListClaims(ctx, q)
}

func (s *ClaimService) ForBusiness(ctx context.Context, businessID int64) ([]domain.Claim, error) {
	return s.store.ListClaimsByBusiness(ctx, businessID)
}
