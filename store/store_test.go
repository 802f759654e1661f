package store

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// storeUnderTest runs the shared contract tests against any Store.
func storeUnderTest(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get missing: err = %v, want ErrNotFound", err)
	}

	if err := s.Set(ctx, "user", `{"id":"1"}`); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, err := s.Get(ctx, "user")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != `{"id":"1"}` {
		t.Fatalf("get = %q", got)
	}

	if err := s.Set(ctx, "user", `{"id":"2"}`); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	if got, _ := s.Get(ctx, "user"); got != `{"id":"2"}` {
		t.Fatalf("overwrite not visible: %q", got)
	}

	if err := s.Set(ctx, "authToken", "tok"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := s.Delete(ctx, "user", "authToken", "never-existed"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "user"); !errors.Is(err, ErrNotFound) {
		t.Fatal("user must be gone after delete")
	}
	if _, err := s.Get(ctx, "authToken"); !errors.Is(err, ErrNotFound) {
		t.Fatal("authToken must be gone after delete")
	}

	if err := s.Delete(ctx); err != nil {
		t.Fatalf("empty delete must be a no-op, got %v", err)
	}
}

func TestMemoryStoreContract(t *testing.T) {
	storeUnderTest(t, NewMemoryStore())
}

func TestRedisStoreContract(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	storeUnderTest(t, NewRedisStore(client, "contract"))
}

func TestRedisStorePrefixIsolation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	a := NewRedisStore(client, "app-a")
	b := NewRedisStore(client, "app-b")

	if err := a.Set(ctx, "user", "alice"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if _, err := b.Get(ctx, "user"); !errors.Is(err, ErrNotFound) {
		t.Fatal("prefixes must not share keys")
	}
	if got, _ := mr.Get("app-a:user"); got != "alice" {
		t.Fatalf("expected namespaced key, got %q", got)
	}
}

func TestRedisStoreDefaultPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	s := NewRedisStore(client, "")
	if err := s.Set(context.Background(), "user", "x"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if got, _ := mr.Get("authsession:user"); got != "x" {
		t.Fatalf("default prefix not applied, got %q", got)
	}
}

func TestMemoryStoreLen(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	if m.Len() != 0 {
		t.Fatalf("fresh store Len = %d", m.Len())
	}
	m.Set(ctx, "a", "1")
	m.Set(ctx, "b", "2")
	m.Set(ctx, "a", "3")
	if m.Len() != 2 {
		t.Fatalf("Len = %d, want 2", m.Len())
	}
}
