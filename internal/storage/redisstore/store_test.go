package redisstore

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tchouf/internal/domain"
)

func setupTestRedis(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client)
}

func seedBusiness(t *testing.T, s *Store) domain.Business {
	t.Helper()
	b, err := s.CreateBusiness(context.Background(), domain.NewBusiness(domain.BusinessInput{
		Name:      "Librairie El Ilm",
		Category:  "bookstore",
		City:      "Constantine",
		CreatedBy: 1,
	}))
	require.NoError(t, err)
	return b
}

func TestCreateAndGetBusiness(t *testing.T) {
	s := setupTestRedis(t)
	ctx := context.Background()

	b := seedBusiness(t, s)
	assert.Equal(t, int64(1), b.ID)

	got, err := s.GetBusiness(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Librairie El Ilm", got.Name)
	assert.False(t, got.Verified)
	assert.Nil(t, got.ClaimedBy)

	_, err = s.GetBusiness(ctx, 404)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIDSequenceIsMonotonic(t *testing.T) {
	s := setupTestRedis(t)

	b1 := seedBusiness(t, s)
	b2 := seedBusiness(t, s)
	b3 := seedBusiness(t, s)
	assert.Equal(t, []int64{1, 2, 3}, []int64{b1.ID, b2.ID, b3.ID})
}

func TestCreateIDsUniqueUnderConcurrency(t *testing.T) {
	s := setupTestRedis(t)
	ctx := context.Background()
	const n = 50

	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := s.CreateBusiness(ctx, domain.NewBusiness(domain.BusinessInput{Name: "x", Category: "c", City: "Annaba", CreatedBy: 1}))
			require.NoError(t, err)
			ids <- b.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[int64]bool{}
	for id := range ids {
		assert.False(t, seen[id], "id %d assigned twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestCreateReview_MissingBusinessFailsFast(t *testing.T) {
	s := setupTestRedis(t)
	_, err := s.CreateReview(context.Background(), domain.NewReview(42, 1, 5, "", ""))
	assert.ErrorIs(t, err, domain.ErrConstraintViolation)
}

func TestReviewsRoundTrip(t *testing.T) {
	s := setupTestRedis(t)
	ctx := context.Background()
	b := seedBusiness(t, s)

	r1, err := s.CreateReview(ctx, domain.NewReview(b.ID, 1, 4, "solid", ""))
	require.NoError(t, err)
	_, err = s.CreateReview(ctx, domain.NewReview(b.ID, 2, 5, "great", ""))
	require.NoError(t, err)

	list, err := s.ListReviewsByBusiness(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	r1.Rating = 2
	updated, err := s.UpdateReview(ctx, r1)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Rating)
	assert.Equal(t, b.ID, updated.BusinessID)

	require.NoError(t, s.DeleteReview(ctx, r1.ID))
	list, err = s.ListReviewsByBusiness(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.ErrorIs(t, s.DeleteReview(ctx, r1.ID), domain.ErrNotFound)
}

func TestListBusinesses_FilterAndPage(t *testing.T) {
	s := setupTestRedis(t)
	ctx := context.Background()

	mk := func(name, category, city string) {
		_, err := s.CreateBusiness(ctx, domain.NewBusiness(domain.BusinessInput{
			Name: name, Category: category, City: city, CreatedBy: 1,
		}))
		require.NoError(t, err)
	}
	mk("Hammam Essalihine", "wellness", "Khenchela")
	mk("Hammam Righa", "wellness", "Ain Defla")
	mk("Taxi Yassir", "transport", "Algiers")

	page, err := s.ListBusinesses(ctx, domain.BusinessQuery{Category: "wellness"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	page, err = s.ListBusinesses(ctx, domain.BusinessQuery{Q: "hammam", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Len(t, page.Items, 1)

	page, err = s.ListBusinesses(ctx, domain.BusinessQuery{City: "algiers"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Taxi Yassir", page.Items[0].Name)
}

func TestUpdateBusiness_PreservesServerOwnedFields(t *testing.T) {
	s := setupTestRedis(t)
	ctx := context.Background()
	b := seedBusiness(t, s)

	c, err := s.CreateClaim(ctx, domain.NewClaim(b.ID, 9, "https://example.com/proof.pdf"))
	require.NoError(t, err)
	_, err = s.DecideClaim(ctx, c.ID, domain.ClaimApproved)
	require.NoError(t, err)

	b.Name = "Librairie El Ilm (renamed)"
	b.Verified = false // must be ignored
	b.ClaimedBy = nil
	updated, err := s.UpdateBusiness(ctx, b)
	require.NoError(t, err)

	assert.Equal(t, "Librairie El Ilm (renamed)", updated.Name)
	assert.True(t, updated.Verified)
	require.NotNil(t, updated.ClaimedBy)
	assert.Equal(t, int64(9), *updated.ClaimedBy)
}

func TestUpdateBusinessAggregates_PreservesApproval(t *testing.T) {
	s := setupTestRedis(t)
	ctx := context.Background()
	b := seedBusiness(t, s)

	c, err := s.CreateClaim(ctx, domain.NewClaim(b.ID, 9, "https://example.com/proof.pdf"))
	require.NoError(t, err)
	_, err = s.DecideClaim(ctx, c.ID, domain.ClaimApproved)
	require.NoError(t, err)

	require.NoError(t, s.UpdateBusinessAggregates(ctx, b.ID, 4.5, 2))

	got, err := s.GetBusiness(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.5, got.AvgRating)
	assert.Equal(t, 2, got.ReviewCount)
	assert.True(t, got.Verified)
	require.NotNil(t, got.ClaimedBy)
	assert.Equal(t, int64(9), *got.ClaimedBy)

	assert.ErrorIs(t, s.UpdateBusinessAggregates(ctx, 404, 1, 1), domain.ErrNotFound)
}

func TestAggregateWriteAndDecisionConcurrently(t *testing.T) {
	s := setupTestRedis(t)
	ctx := context.Background()
	b := seedBusiness(t, s)

	c, err := s.CreateClaim(ctx, domain.NewClaim(b.ID, 9, "https://example.com/proof.pdf"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, s.UpdateBusinessAggregates(ctx, b.ID, 3.0, 1))
	}()
	go func() {
		defer wg.Done()
		_, err := s.DecideClaim(ctx, c.ID, domain.ClaimApproved)
		assert.NoError(t, err)
	}()
	wg.Wait()

	// whichever write landed second, both effects must be present
	got, err := s.GetBusiness(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, got.Verified)
	require.NotNil(t, got.ClaimedBy)
	assert.Equal(t, int64(9), *got.ClaimedBy)
	assert.Equal(t, 3.0, got.AvgRating)
	assert.Equal(t, 1, got.ReviewCount)
}

func TestDecideClaim_ApproveWritesBothDocuments(t *testing.T) {
	s := setupTestRedis(t)
	ctx := context.Background()
	b := seedBusiness(t, s)

	c, err := s.CreateClaim(ctx, domain.NewClaim(b.ID, 9, "https://example.com/proof.pdf"))
	require.NoError(t, err)

	decided, err := s.DecideClaim(ctx, c.ID, domain.ClaimApproved)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimApproved, decided.Status)

	got, err := s.GetBusiness(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, got.Verified)
	require.NotNil(t, got.ClaimedBy)
	assert.Equal(t, int64(9), *got.ClaimedBy)

	cl, err := s.GetClaim(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimApproved, cl.Status)
}

func TestDecideClaim_TerminalIsFinal(t *testing.T) {
	s := setupTestRedis(t)
	ctx := context.Background()
	b := seedBusiness(t, s)

	c, err := s.CreateClaim(ctx, domain.NewClaim(b.ID, 9, "https://example.com/proof.pdf"))
	require.NoError(t, err)
	_, err = s.DecideClaim(ctx, c.ID, domain.ClaimRejected)
	require.NoError(t, err)

	_, err = s.DecideClaim(ctx, c.ID, domain.ClaimApproved)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	got, err := s.GetBusiness(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, got.Verified)
}

func TestDecideClaim_MissingAndInvalid(t *testing.T) {
	s := setupTestRedis(t)
	ctx := context.Background()

	_, err := s.DecideClaim(ctx, 7, domain.ClaimApproved)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	b := seedBusiness(t, s)
	c, err := s.CreateClaim(ctx, domain.NewClaim(b.ID, 9, "https://example.com/proof.pdf"))
	require.NoError(t, err)
	_, err = s.DecideClaim(ctx, c.ID, domain.ClaimStatus("pending"))
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestListClaims_StatusFilter(t *testing.T) {
	s := setupTestRedis(t)
	ctx := context.Background()
	b := seedBusiness(t, s)

	c1, err := s.CreateClaim(ctx, domain.NewClaim(b.ID, 1, "https://example.com/a.pdf"))
	require.NoError(t, err)
	_, err = s.CreateClaim(ctx, domain.NewClaim(b.ID, 2, "https://example.com/b.pdf"))
	require.NoError(t, err)
	_, err = s.DecideClaim(ctx, c1.ID, domain.ClaimRejected)
	require.NoError(t, err)

	pending := domain.ClaimPending
	claims, err := s.ListClaims(ctx, domain.ClaimQuery{Status: &pending})
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, int64(2), claims[0].UserID)

	byBiz, err := s.ListClaimsByBusiness(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, byBiz, 2)
}

func TestUsers_UIDIndexAndEmailUniqueness(t *testing.T) {
	s := setupTestRedis(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, domain.NewUser("uid-1", "karima@example.com", "Karima", ""))
	require.NoError(t, err)

	got, err := s.GetUserByUID(ctx, "uid-1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.CreateUser(ctx, domain.NewUser("uid-2", "Karima@Example.com", "Dup", ""))
	assert.ErrorIs(t, err, domain.ErrConstraintViolation)

	_, err = s.GetUserByUID(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBackendDown_WrapsUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	s := New(client)
	ctx := context.Background()

	b := seedBusiness(t, s)
	mr.Close()

	_, err := s.GetBusiness(ctx, b.ID)
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)

	_, err = s.ListBusinesses(ctx, domain.BusinessQuery{})
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)

	_, err = s.CreateBusiness(ctx, domain.NewBusiness(domain.BusinessInput{Name: "x", Category: "c", City: "Oran", CreatedBy: 1}))
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
}
