//go:build integration

package redisstore_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	goredis "github.com/redis/go-redis/v9"

	"tchouf/internal/domain"
	"tchouf/internal/storage/redisstore"
)

// Starts an isolated Redis container and exercises the paths where a
// real server differs from miniredis: WATCH-based transactions under
// genuine client concurrency.
func TestStore_Redis_ConcurrentDecisions(t *testing.T) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}

	res, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "redis",
		Tag:        "7-alpine",
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run redis: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(res) })

	addr := fmt.Sprintf("localhost:%s", res.GetPort("6379/tcp"))
	var client *goredis.Client
	if err := pool.Retry(func() error {
		client = goredis.NewClient(&goredis.Options{Addr: addr})
		return client.Ping(context.Background()).Err()
	}); err != nil {
		t.Fatalf("redis not ready: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	s := redisstore.New(client)
	ctx := context.Background()

	b, err := s.CreateBusiness(ctx, domain.NewBusiness(domain.BusinessInput{
		Name: "Atelier Casbah", Category: "craft", City: "Algiers", CreatedBy: 1,
	}))
	if err != nil {
		t.Fatalf("create business: %v", err)
	}
	c, err := s.CreateClaim(ctx, domain.NewClaim(b.ID, 5, "https://example.com/proof.pdf"))
	if err != nil {
		t.Fatalf("create claim: %v", err)
	}

	const n = 20
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		outcome := domain.ClaimApproved
		if i%2 == 1 {
			outcome = domain.ClaimRejected
		}
		wg.Add(1)
		go func(o domain.ClaimStatus) {
			defer wg.Done()
			_, err := s.DecideClaim(ctx, c.ID, o)
			errs <- err
		}(outcome)
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one decision to win, got %d", wins)
	}

	got, err := s.GetClaim(ctx, c.ID)
	if err != nil {
		t.Fatalf("get claim: %v", err)
	}
	if !got.Status.Terminal() {
		t.Fatalf("claim not terminal after decisions: %s", got.Status)
	}
	biz, err := s.GetBusiness(ctx, b.ID)
	if err != nil {
		t.Fatalf("get business: %v", err)
	}
	// claim and business must agree, whichever outcome won
	if got.Status == domain.ClaimApproved {
		if !biz.Verified || biz.ClaimedBy == nil || *biz.ClaimedBy != 5 {
			t.Fatalf("approved claim but business not updated: %+v", biz)
		}
	} else if biz.Verified {
		t.Fatalf("rejected claim but business verified: %+v", biz)
	}

	// id assignment stays gapless under concurrent creates
	ids := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			nb, err := s.CreateBusiness(ctx, domain.NewBusiness(domain.BusinessInput{
				Name: "x", Category: "c", City: "Oran", CreatedBy: 1,
			}))
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			ids <- nb.ID
		}()
	}
	wg.Wait()
	close(ids)
	seen := map[int64]bool{}
	for id := range ids {
		if seen[id] {
			t.Fatalf("id %d assigned twice", id)
		}
		seen[id] = true
	}
}
