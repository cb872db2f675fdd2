package domain

import "context"

// Store is the storage abstraction over the four entity collections.
// Ids are positive, strictly increasing per collection and assigned on
// create; they are never supplied by callers. Two implementations exist:
// an in-memory map store and a Redis document store.
type Store interface {
	// Users
	CreateUser(ctx context.Context, u User) (User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	GetUserByUID(ctx context.Context, uid string) (User, error)
	UpdateUser(ctx context.Context, u User) (User, error)

	// Businesses
	CreateBusiness(ctx context.Context, b Business) (Business, error)
	GetBusiness(ctx context.Context, id int64) (Business, error)
	// UpdateBusiness rewrites profile fields. Server-owned state
	// (CreatedBy, CreatedAt, ClaimedBy, Verified, AvgRating, ReviewCount)
	// is preserved from the stored document, atomically with respect to
	// DecideClaim and UpdateBusinessAggregates.
	UpdateBusiness(ctx context.Context, b Business) (Business, error)
	ListBusinesses(ctx context.Context, q BusinessQuery) (BusinessPage, error)

	// UpdateBusinessAggregates writes AvgRating and ReviewCount and nothing
	// else, atomically with respect to DecideClaim: a claim approval landing
	// between the caller's review scan and this write must survive it.
	UpdateBusinessAggregates(ctx context.Context, id int64, avg float64, count int) error

	// Reviews
	CreateReview(ctx context.Context, r Review) (Review, error)
	GetReview(ctx context.Context, id int64) (Review, error)
	UpdateReview(ctx context.Context, r Review) (Review, error)
	DeleteReview(ctx context.Context, id int64) error
	ListReviewsByBusiness(ctx context.Context, businessID int64) ([]Review, error)

	// Claims
	CreateClaim(ctx context.Context, c Claim) (Claim, error)
	GetClaim(ctx context.Context, id int64) (Claim, error)
	ListClaims(ctx context.Context, q ClaimQuery) ([]Claim, error)
	ListClaimsByBusiness(ctx context.Context, businessID int64) ([]Claim, error)

	// DecideClaim moves a pending claim to a terminal status and, on
	// approval, writes ClaimedBy/Verified on the referenced business in the
	// same atomic step. A claim already terminal yields ErrInvalidTransition.
	DecideClaim(ctx context.Context, claimID int64, outcome ClaimStatus) (Claim, error)
}

// Cache is a best-effort JSON cache in front of read paths.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// BusinessQuery filters are combined with AND; empty fields are ignored.
// Matching on Q (name/description) and City is a case-insensitive substring
// scan; Category is exact. Results are ordered by creation time descending.
type BusinessQuery struct {
	Q        string
	Category string
	City     string
	Verified *bool
	Limit    int
	Offset   int
}

type BusinessPage struct {
	Items []Business
	Total int
}

type ClaimQuery struct {
	Status *ClaimStatus
	Limit  int
	Offset int
}
