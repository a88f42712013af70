package cache

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type countingSource struct {
	calls int
	byKey map[string][]string
}

func (s *countingSource) UserPermissions(_ context.Context, userID string, tenantID *string) ([]string, error) {
	s.calls++
	return s.byKey[cacheKey(userID, tenantID)], nil
}

func newCacheRig(t *testing.T) (*Permissions, *countingSource, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	src := &countingSource{byKey: map[string][]string{}}
	cache, err := NewPermissions(client, src, time.Minute)
	if err != nil {
		t.Fatalf("NewPermissions: %v", err)
	}
	return cache, src, mr
}

func TestCacheServesSecondReadWithoutSource(t *testing.T) {
	cache, src, _ := newCacheRig(t)
	tenant := "tenant-a"
	src.byKey[cacheKey("user-1", &tenant)] = []string{"clientes:ver", "leads:crear"}

	got, err := cache.UserPermissions(context.Background(), "user-1", &tenant)
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	if !slices.Equal(got, []string{"clientes:ver", "leads:crear"}) {
		t.Fatalf("unexpected permissions: %v", got)
	}
	if src.calls != 1 {
		t.Fatalf("expected one source call, got %d", src.calls)
	}

	got, err = cache.UserPermissions(context.Background(), "user-1", &tenant)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if !slices.Equal(got, []string{"clientes:ver", "leads:crear"}) {
		t.Fatalf("unexpected cached permissions: %v", got)
	}
	if src.calls != 1 {
		t.Fatalf("second read should be served from cache, source calls = %d", src.calls)
	}
}

func TestCacheKeysAreScopedPerTenant(t *testing.T) {
	cache, src, _ := newCacheRig(t)
	tenantA, tenantB := "tenant-a", "tenant-b"
	src.byKey[cacheKey("user-1", &tenantA)] = []string{"clientes:ver"}
	src.byKey[cacheKey("user-1", &tenantB)] = []string{"facturas:ver"}
	src.byKey[cacheKey("user-1", nil)] = nil

	a, _ := cache.UserPermissions(context.Background(), "user-1", &tenantA)
	b, _ := cache.UserPermissions(context.Background(), "user-1", &tenantB)
	g, _ := cache.UserPermissions(context.Background(), "user-1", nil)

	if !slices.Equal(a, []string{"clientes:ver"}) || !slices.Equal(b, []string{"facturas:ver"}) {
		t.Fatalf("tenant scopes mixed: a=%v b=%v", a, b)
	}
	if len(g) != 0 {
		t.Fatalf("global scope should be empty, got %v", g)
	}
}

func TestInvalidateUserDropsAllScopes(t *testing.T) {
	cache, src, mr := newCacheRig(t)
	tenant := "tenant-a"
	src.byKey[cacheKey("user-1", &tenant)] = []string{"clientes:ver"}
	src.byKey[cacheKey("user-2", &tenant)] = []string{"leads:ver"}

	if _, err := cache.UserPermissions(context.Background(), "user-1", &tenant); err != nil {
		t.Fatalf("prime user-1: %v", err)
	}
	if _, err := cache.UserPermissions(context.Background(), "user-2", &tenant); err != nil {
		t.Fatalf("prime user-2: %v", err)
	}

	if err := cache.InvalidateUser(context.Background(), "user-1"); err != nil {
		t.Fatalf("InvalidateUser: %v", err)
	}
	if mr.Exists(cacheKey("user-1", &tenant)) {
		t.Fatal("user-1 entry should be gone")
	}
	if !mr.Exists(cacheKey("user-2", &tenant)) {
		t.Fatal("user-2 entry should survive")
	}
}

func TestInvalidateAllDropsEverything(t *testing.T) {
	cache, src, mr := newCacheRig(t)
	tenant := "tenant-a"
	src.byKey[cacheKey("user-1", &tenant)] = []string{"clientes:ver"}

	if _, err := cache.UserPermissions(context.Background(), "user-1", &tenant); err != nil {
		t.Fatalf("prime: %v", err)
	}
	if err := cache.InvalidateAll(context.Background()); err != nil {
		t.Fatalf("InvalidateAll: %v", err)
	}
	if mr.Exists(cacheKey("user-1", &tenant)) {
		t.Fatal("cache should be empty")
	}
}

func TestCacheFallsThroughWhenRedisIsDown(t *testing.T) {
	cache, src, mr := newCacheRig(t)
	tenant := "tenant-a"
	src.byKey[cacheKey("user-1", &tenant)] = []string{"clientes:ver"}

	mr.Close()

	got, err := cache.UserPermissions(context.Background(), "user-1", &tenant)
	if err != nil {
		t.Fatalf("read with redis down: %v", err)
	}
	if !slices.Equal(got, []string{"clientes:ver"}) {
		t.Fatalf("unexpected permissions: %v", got)
	}
	if src.calls != 1 {
		t.Fatalf("expected source call, got %d", src.calls)
	}
}

func TestCorruptEntryIsDiscarded(t *testing.T) {
	cache, src, mr := newCacheRig(t)
	tenant := "tenant-a"
	key := cacheKey("user-1", &tenant)
	src.byKey[key] = []string{"clientes:ver"}
	if err := mr.Set(key, "{not json"); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}

	got, err := cache.UserPermissions(context.Background(), "user-1", &tenant)
	if err != nil {
		t.Fatalf("UserPermissions: %v", err)
	}
	if !slices.Equal(got, []string{"clientes:ver"}) {
		t.Fatalf("unexpected permissions: %v", got)
	}
	if src.calls != 1 {
		t.Fatalf("corrupt entry must fall through to the source, calls = %d", src.calls)
	}
}
