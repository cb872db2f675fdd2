package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"tchouf/internal/domain"
)

// Key layout:
//
//	seq:{collection}              INCR id sequence
//	user:{id} business:{id} ...   JSON document per entity
//	users:byuid users:byemail     hash: secondary lookup to id
//	businesses:index claims:index zset scored by creation time (unix nanos)
//	business:{id}:reviews         set of review ids
//	business:{id}:claims          set of claim ids
//
// INCR makes id assignment race-free without any client-side locking;
// the compound claim decision runs under WATCH so the claim and business
// documents change in one exec or not at all.
type Store struct {
	c *redis.Client
}

func New(c *redis.Client) *Store { return &Store{c: c} }

// txRetries bounds the optimistic WATCH loop in DecideClaim.
const txRetries = 5

func userKey(id int64) string     { return "user:" + strconv.FormatInt(id, 10) }
func businessKey(id int64) string { return "business:" + strconv.FormatInt(id, 10) }
func reviewKey(id int64) string   { return "review:" + strconv.FormatInt(id, 10) }
func claimKey(id int64) string    { return "claim:" + strconv.FormatInt(id, 10) }

func bizReviewsKey(id int64) string { return fmt.Sprintf("business:%d:reviews", id) }
func bizClaimsKey(id int64) string  { return fmt.Sprintf("business:%d:claims", id) }

// wrap maps transport failures onto the shared taxonomy. redis.Nil is
// handled at call sites because it means NotFound, not an outage.
func wrap(op string, err error) error {
	return fmt.Errorf("redis %s: %v: %w", op, err, domain.ErrBackendUnavailable)
}

func (s *Store) nextID(ctx context.Context, collection string) (int64, error) {
	id, err := s.c.Incr(ctx, "seq:"+collection).Result()
	if err != nil {
		return 0, wrap("incr seq:"+collection, err)
	}
	return id, nil
}

func (s *Store) setJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.c.Set(ctx, key, b, 0).Err(); err != nil {
		return wrap("set "+key, err)
	}
	return nil
}

func (s *Store) getJSON(ctx context.Context, key string, dst any) error {
	b, err := s.c.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return domain.ErrNotFound
	}
	if err != nil {
		return wrap("get "+key, err)
	}
	return json.Unmarshal(b, dst)
}

func (s *Store) exists(ctx context.Context, key string) (bool, error) {
	n, err := s.c.Exists(ctx, key).Result()
	if err != nil {
		return false, wrap("exists "+key, err)
	}
	return n > 0, nil
}

// ---- Users ----

func (s *Store) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	// Email uniqueness via HSETNX: first writer wins, losers get the
	// constraint error instead of a duplicate row.
	ok, err := s.c.HSetNX(ctx, "users:byemail", strings.ToLower(u.Email), 0).Result()
	if err != nil {
		return domain.User{}, wrap("hsetnx users:byemail", err)
	}
	if !ok {
		return domain.User{}, domain.ErrConstraintViolation
	}
	id, err := s.nextID(ctx, "users")
	if err != nil {
		return domain.User{}, err
	}
	u.ID = id
	if err := s.setJSON(ctx, userKey(id), u); err != nil {
		return domain.User{}, err
	}
	pipe := s.c.Pipeline()
	pipe.HSet(ctx, "users:byemail", strings.ToLower(u.Email), id)
	if u.UID != "" {
		pipe.HSet(ctx, "users:byuid", u.UID, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.User{}, wrap("index user", err)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (domain.User, error) {
	var u domain.User
	if err := s.getJSON(ctx, userKey(id), &u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (s *Store) GetUserByUID(ctx context.Context, uid string) (domain.User, error) {
	raw, err := s.c.HGet(ctx, "users:byuid", uid).Result()
	if err == redis.Nil {
		return domain.User{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.User{}, wrap("hget users:byuid", err)
	}
	id, _ := strconv.ParseInt(raw, 10, 64)
	return s.GetUser(ctx, id)
}

func (s *Store) UpdateUser(ctx context.Context, u domain.User) (domain.User, error) {
	ok, err := s.exists(ctx, userKey(u.ID))
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	if err := s.setJSON(ctx, userKey(u.ID), u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// ---- Businesses ----

func (s *Store) CreateBusiness(ctx context.Context, b domain.Business) (domain.Business, error) {
	id, err := s.nextID(ctx, "businesses")
	if err != nil {
		return domain.Business{}, err
	}
	b.ID = id
	if err := s.setJSON(ctx, businessKey(id), b); err != nil {
		return domain.Business{}, err
	}
	err = s.c.ZAdd(ctx, "businesses:index", redis.Z{
		Score:  float64(b.CreatedAt.UnixNano()),
		Member: id,
	}).Err()
	if err != nil {
		return domain.Business{}, wrap("zadd businesses:index", err)
	}
	return b, nil
}

func (s *Store) GetBusiness(ctx context.Context, id int64) (domain.Business, error) {
	var b domain.Business
	if err := s.getJSON(ctx, businessKey(id), &b); err != nil {
		return domain.Business{}, err
	}
	return b, nil
}

// UpdateBusiness merges profile fields over the stored document under
// WATCH, keeping server-owned state (ownership, verification,
// aggregates) from whatever committed last.
func (s *Store) UpdateBusiness(ctx context.Context, b domain.Business) (domain.Business, error) {
	var merged domain.Business
	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, businessKey(b.ID)).Bytes()
		if err == redis.Nil {
			return domain.ErrNotFound
		}
		if err != nil {
			return wrap("get business", err)
		}
		var old domain.Business
		if err := json.Unmarshal(raw, &old); err != nil {
			return fmt.Errorf("unmarshal business %d: %w", b.ID, err)
		}
		merged = b
		merged.CreatedBy = old.CreatedBy
		merged.CreatedAt = old.CreatedAt
		merged.ClaimedBy = old.ClaimedBy
		merged.Verified = old.Verified
		merged.AvgRating = old.AvgRating
		merged.ReviewCount = old.ReviewCount
		mb, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, businessKey(b.ID), mb, 0)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < txRetries; i++ {
		err = s.c.Watch(ctx, txn, businessKey(b.ID))
		if err != redis.TxFailedErr {
			break
		}
	}
	if err == redis.TxFailedErr {
		return domain.Business{}, wrap("update business contention", err)
	}
	if err != nil {
		return domain.Business{}, err
	}
	return merged, nil
}

// UpdateBusinessAggregates rewrites only AvgRating and ReviewCount. It
// runs under WATCH on the business key: if a claim decision commits
// between read and exec the transaction aborts and we retry against the
// refreshed document, so the approval is carried into the new write.
func (s *Store) UpdateBusinessAggregates(ctx context.Context, id int64, avg float64, count int) error {
	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, businessKey(id)).Bytes()
		if err == redis.Nil {
			return domain.ErrNotFound
		}
		if err != nil {
			return wrap("get business", err)
		}
		var b domain.Business
		if err := json.Unmarshal(raw, &b); err != nil {
			return fmt.Errorf("unmarshal business %d: %w", id, err)
		}
		b.AvgRating = avg
		b.ReviewCount = count
		bb, err := json.Marshal(b)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, businessKey(id), bb, 0)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < txRetries; i++ {
		err = s.c.Watch(ctx, txn, businessKey(id))
		if err != redis.TxFailedErr {
			break
		}
	}
	if err == redis.TxFailedErr {
		return wrap("update aggregates contention", err)
	}
	return err
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

// ListBusinesses scans the whole index and filters client-side: O(n) per
// call, the documented trade-off for substring search on a document store.
func (s *Store) ListBusinesses(ctx context.Context, q domain.BusinessQuery) (domain.BusinessPage, error) {
	ids, err := s.c.ZRevRange(ctx, "businesses:index", 0, -1).Result()
	if err != nil {
		return domain.BusinessPage{}, wrap("zrevrange businesses:index", err)
	}
	if len(ids) == 0 {
		return domain.BusinessPage{}, nil
	}
	keys := make([]string, len(ids))
	for i, raw := range ids {
		id, _ := strconv.ParseInt(raw, 10, 64)
		keys[i] = businessKey(id)
	}
	vals, err := s.c.MGet(ctx, keys...).Result()
	if err != nil {
		return domain.BusinessPage{}, wrap("mget businesses", err)
	}

	var hits []domain.Business
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue // index entry with no document; skip
		}
		var b domain.Business
		if err := json.Unmarshal([]byte(raw), &b); err != nil {
			continue
		}
		if matches(b, q) {
			hits = append(hits, b)
		}
	}

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
	ok, err := s.exists(ctx, businessKey(r.BusinessID))
	if err != nil {
		return domain.Review{}, err
	}
	if !ok {
		return domain.Review{}, domain.ErrConstraintViolation
	}
	id, err := s.nextID(ctx, "reviews")
	if err != nil {
		return domain.Review{}, err
	}
	r.ID = id
	if err := s.setJSON(ctx, reviewKey(id), r); err != nil {
		return domain.Review{}, err
	}
	if err := s.c.SAdd(ctx, bizReviewsKey(r.BusinessID), id).Err(); err != nil {
		return domain.Review{}, wrap("sadd reviews index", err)
	}
	return r, nil
}

func (s *Store) GetReview(ctx context.Context, id int64) (domain.Review, error) {
	var r domain.Review
	if err := s.getJSON(ctx, reviewKey(id), &r); err != nil {
		return domain.Review{}, err
	}
	return r, nil
}

func (s *Store) UpdateReview(ctx context.Context, r domain.Review) (domain.Review, error) {
	old, err := s.GetReview(ctx, r.ID)
	if err != nil {
		return domain.Review{}, err
	}
	// A review never moves between businesses.
	r.BusinessID = old.BusinessID
	if err := s.setJSON(ctx, reviewKey(r.ID), r); err != nil {
		return domain.Review{}, err
	}
	return r, nil
}

func (s *Store) DeleteReview(ctx context.Context, id int64) error {
	r, err := s.GetReview(ctx, id)
	if err != nil {
		return err
	}
	pipe := s.c.Pipeline()
	pipe.Del(ctx, reviewKey(id))
	pipe.SRem(ctx, bizReviewsKey(r.BusinessID), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return wrap("del review", err)
	}
	return nil
}

func (s *Store) ListReviewsByBusiness(ctx context.Context, businessID int64) ([]domain.Review, error) {
	ids, err := s.c.SMembers(ctx, bizReviewsKey(businessID)).Result()
	if err != nil {
		return nil, wrap("smembers reviews index", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, raw := range ids {
		id, _ := strconv.ParseInt(raw, 10, 64)
		keys[i] = reviewKey(id)
	}
	vals, err := s.c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, wrap("mget reviews", err)
	}
	var out []domain.Review
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var r domain.Review
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			continue
		}
		out = append(out, r)
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
	ok, err := s.exists(ctx, businessKey(c.BusinessID))
	if err != nil {
		return domain.Claim{}, err
	}
	if !ok {
		return domain.Claim{}, domain.ErrConstraintViolation
	}
	id, err := s.nextID(ctx, "claims")
	if err != nil {
		return domain.Claim{}, err
	}
	c.ID = id
	if err := s.setJSON(ctx, claimKey(id), c); err != nil {
		return domain.Claim{}, err
	}
	pipe := s.c.Pipeline()
	pipe.ZAdd(ctx, "claims:index", redis.Z{Score: float64(c.CreatedAt.UnixNano()), Member: id})
	pipe.SAdd(ctx, bizClaimsKey(c.BusinessID), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Claim{}, wrap("index claim", err)
	}
	return c, nil
}

func (s *Store) GetClaim(ctx context.Context, id int64) (domain.Claim, error) {
	var c domain.Claim
	if err := s.getJSON(ctx, claimKey(id), &c); err != nil {
		return domain.Claim{}, err
	}
	return c, nil
}

func (s *Store) ListClaims(ctx context.Context, q domain.ClaimQuery) ([]domain.Claim, error) {
	ids, err := s.c.ZRevRange(ctx, "claims:index", 0, -1).Result()
	if err != nil {
		return nil, wrap("zrevrange claims:index", err)
	}
	var out []domain.Claim
	for _, raw := range ids {
		id, _ := strconv.ParseInt(raw, 10, 64)
		c, err := s.GetClaim(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if q.Status != nil && c.Status != *q.Status {
			continue
		}
		out = append(out, c)
	}
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
	ids, err := s.c.SMembers(ctx, bizClaimsKey(businessID)).Result()
	if err != nil {
		return nil, wrap("smembers claims index", err)
	}
	var out []domain.Claim
	for _, raw := range ids {
		id, _ := strconv.ParseInt(raw, 10, 64)
		c, err := s.GetClaim(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DecideClaim runs the read-check-write under WATCH on both documents.
// If either changes between read and exec the transaction aborts and we
// retry, so two concurrent decisions on one claim cannot both apply: the
// loser re-reads a terminal claim and gets ErrInvalidTransition.
func (s *Store) DecideClaim(ctx context.Context, claimID int64, outcome domain.ClaimStatus) (domain.Claim, error) {
	if !domain.ValidOutcome(outcome) {
		return domain.Claim{}, domain.ErrInvalidTransition
	}

	var decided domain.Claim
	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, claimKey(claimID)).Bytes()
		if err == redis.Nil {
			return domain.ErrNotFound
		}
		if err != nil {
			return wrap("get claim", err)
		}
		var c domain.Claim
		if err := json.Unmarshal(raw, &c); err != nil {
			return fmt.Errorf("unmarshal claim %d: %w", claimID, err)
		}
		if c.Status.Terminal() {
			return domain.ErrInvalidTransition
		}

		c.Status = outcome
		cb, err := json.Marshal(c)
		if err != nil {
			return err
		}

		var bb []byte
		if outcome == domain.ClaimApproved {
			// Watch the business too: a concurrent aggregate recompute
			// between our read and exec must abort this transaction.
			if err := tx.Watch(ctx, businessKey(c.BusinessID)).Err(); err != nil {
				return wrap("watch business", err)
			}
			braw, err := tx.Get(ctx, businessKey(c.BusinessID)).Bytes()
			if err == redis.Nil {
				return domain.ErrConstraintViolation
			}
			if err != nil {
				return wrap("get business", err)
			}
			var b domain.Business
			if err := json.Unmarshal(braw, &b); err != nil {
				return fmt.Errorf("unmarshal business %d: %w", c.BusinessID, err)
			}
			if b.Verified {
				return domain.ErrConstraintViolation
			}
			owner := c.UserID
			b.ClaimedBy = &owner
			b.Verified = true
			if bb, err = json.Marshal(b); err != nil {
				return err
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, claimKey(claimID), cb, 0)
			if bb != nil {
				pipe.Set(ctx, businessKey(c.BusinessID), bb, 0)
			}
			return nil
		})
		if err != nil {
			return err
		}
		decided = c
		return nil
	}

	var err error
	for i := 0; i < txRetries; i++ {
		err = s.c.Watch(ctx, txn, claimKey(claimID))
		if err != redis.TxFailedErr {
			break
		}
	}
	if err == redis.TxFailedErr {
		return domain.Claim{}, wrap("decide claim contention", err)
	}
	if err != nil {
		return domain.Claim{}, err
	}
	return decided, nil
}
