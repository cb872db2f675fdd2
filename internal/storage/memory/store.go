package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"tchouf/internal/domain"
)

// Store keeps all four collections in maps behind a single mutex. The
// mutex is the serialization point the id-assignment contract requires:
// two concurrent creates can never observe the same sequence value.
// Entities are copied on the way in and out so callers never alias
// stored state.
type Store struct {
	mu sync.Mutex

	seq map[string]int64

	users      map[int64]domain.User
	usersByUID map[string]int64
	businesses map[int64]domain.Business
	reviews    map[int64]domain.Review
	claims     map[int64]domain.Claim
}

func New() *Store {
	return &Store{
		seq:        map[string]int64{},
		users:      map[int64]domain.User{},
		usersByUID: map[string]int64{},
		businesses: map[int64]domain.Business{},
		reviews:    map[int64]domain.Review{},
		claims:     map[int64]domain.Claim{},
	}
}

// next assigns the next id for a collection. Caller must hold mu.
func (s *Store) next(collection string) int64 {
	s.seq[collection]++
	return s.seq[collection]
}

func copyBusiness(b domain.Business) domain.Business {
	b.Photos = append([]string(nil), b.Photos...)
	if b.ClaimedBy != nil {
		v := *b.ClaimedBy
		b.ClaimedBy = &v
	}
	return b
}

// ---- Users ----

func (s *Store) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return domain.User{}, domain.ErrConstraintViolation
		}
	}
	u.ID = s.next("users")
	s.users[u.ID] = u
	if u.UID != "" {
		s.usersByUID[u.UID] = u.ID
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByUID(ctx context.Context, uid string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.usersByUID[uid]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) UpdateUser(ctx context.Context, u domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return domain.User{}, domain.ErrNotFound
	}
	s.users[u.ID] = u
	if u.UID != "" {
		s.usersByUID[u.UID] = u.ID
	}
	return u, nil
}

// ---- Businesses ----

func (s *Store) CreateBusiness(ctx context.Context, b domain.Business) (domain.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.ID = s.next("businesses")
	s.businesses[b.ID] = copyBusiness(b)
	return b, nil
}

func (s *Store) GetBusiness(ctx context.Context, id int64) (domain.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.businesses[id]
	if !ok {
		return domain.Business{}, domain.ErrNotFound
	}
	return copyBusiness(b), nil
}

func (s *Store) UpdateBusiness(ctx context.Context, b domain.Business) (domain.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.businesses[b.ID]
	if !ok {
		return domain.Business{}, domain.ErrNotFound
	}
	// server-owned state stays as stored
	b.CreatedBy = old.CreatedBy
	b.CreatedAt = old.CreatedAt
	b.ClaimedBy = old.ClaimedBy
	b.Verified = old.Verified
	b.AvgRating = old.AvgRating
	b.ReviewCount = old.ReviewCount
	s.businesses[b.ID] = copyBusiness(b)
	return copyBusiness(b), nil
}

// UpdateBusinessAggregates touches only the two aggregate fields, under
// the same mutex DecideClaim runs under, so an approval can never be
// clobbered by a whole-entity rewrite from the rating path.
func (s *Store) UpdateBusinessAggregates(ctx context.Context, id int64, avg float64, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.businesses[id]
	if !ok {
		return domain.ErrNotFound
	}
	b.AvgRating = avg
	b.ReviewCount = count
	s.businesses[id] = b
	return nil
}

func matches(b domain.Business, q domain.BusinessQuery) bool {
	if q.Category != "" && b.Category != q.Category {
		return false
	}
	if q.City != "" && !strings.Contains(strings.ToLower(b.City), strings.ToLower(q.City)) {
		return false
	}
	if q.Verified != nil && b.Verified != *q.Verified {
		return false
	}
	if q.Q != "" {
		needle := strings.ToLower(q.Q)
		if !strings.Contains(strings.ToLower(b.Name), needle) &&
			!strings.Contains(strings.ToLower(b.Description), needle) {
			return false
		}
	}
	return true
}

// ListBusinesses is a full-collection scan; fine at directory scale.
func (s *Store) ListBusinesses(ctx context.Context, q domain.BusinessQuery) (domain.BusinessPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var hits []domain.Business
	for _, b := range s.businesses {
		if matches(b, q) {
			hits = append(hits, copyBusiness(b))
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].CreatedAt.Equal(hits[j].CreatedAt) {
			return hits[i].ID > hits[j].ID
		}
		return hits[i].CreatedAt.After(hits[j].CreatedAt)
	})

	total := len(hits)
	if q.Offset > 0 {
		if q.Offset >= len(hits) {
			hits = nil
		} else {
			hits = hits[q.Offset:]
		}
	}
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return domain.BusinessPage{Items: hits, Total: total}, nil
}

// ---- Reviews ----

func (s *Store) CreateReview(ctx context.Context, r domain.Review) (domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.businesses[r.BusinessID]; !ok {
		return domain.Review{}, domain.ErrConstraintViolation
	}
	r.ID = s.next("reviews")
	s.reviews[r.ID] = r
	return r, nil
}

func (s *Store) GetReview(ctx context.Context, id int64) (domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[id]
	if !ok {
		return domain.Review{}, domain.ErrNotFound
	}
	return r, nil
}

func (s *Store) UpdateReview(ctx context.Context, r domain.Review) (domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.reviews[r.ID]
	if !ok {
		return domain.Review{}, domain.ErrNotFound
	}
	// A review never moves between businesses.
	r.BusinessID = old.BusinessID
	s.reviews[r.ID] = r
	return r, nil
}

func (s *Store) DeleteReview(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reviews[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.reviews, id)
	return nil
}

func (s *Store) ListReviewsByBusiness(ctx context.Context, businessID int64) ([]domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Review
	for _, r := range s.reviews {
		if r.BusinessID == businessID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// ---- Claims ----

func (s *Store) CreateClaim(ctx context.Context, c domain.Claim) (domain.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.businesses[c.BusinessID]; !ok {
		return domain.Claim{}, domain.ErrConstraintViolation
	}
	c.ID = s.next("claims")
	s.claims[c.ID] = c
	return c, nil
}

func (s *Store) GetClaim(ctx context.Context, id int64) (domain.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[id]
	if !ok {
		return domain.Claim{}, domain.ErrNotFound
	}
	return c, nil
}

func (s *Store) ListClaims(ctx context.Context, q domain.ClaimQuery) ([]domain.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Claim
	for _, c := range s.claims {
		if q.Status != nil && c.Status != *q.Status {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if q.Offset > 0 {
		if q.Offset >= len(out) {
			out = nil
		} else {
			out = out[q.Offset:]
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) ListClaimsByBusiness(ctx context.Context, businessID int64) ([]domain.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Claim
	for _, c := range s.claims {
		if c.BusinessID == businessID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DecideClaim performs the terminal-state check and, on approval, the
// claim+business write under one lock so no reader can observe a claim
// approved while its business is still unverified.
func (s *Store) DecideClaim(ctx context.Context, claimID int64, outcome domain.ClaimStatus) (domain.Claim, error) {
	if !domain.ValidOutcome(outcome) {
		return domain.Claim{}, domain.ErrInvalidTransition
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.claims[claimID]
	if !ok {
		return domain.Claim{}, domain.ErrNotFound
	}
	if c.Status.Terminal() {
		return domain.Claim{}, domain.ErrInvalidTransition
	}

	if outcome == domain.ClaimApproved {
		b, ok := s.businesses[c.BusinessID]
		if !ok {
			return domain.Claim{}, domain.ErrConstraintViolation
		}
		if b.Verified {
			return domain.Claim{}, domain.ErrConstraintViolation
		}
		owner := c.UserID
		b.ClaimedBy = &owner
		b.Verified = true
		s.businesses[b.ID] = copyBusiness(b)
	}

	c.Status = outcome
	s.claims[c.ID] = c
	return c, nil
}
