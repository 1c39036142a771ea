package identity

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"nexus-backend/internal/redis"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	mr := miniredis.RunT(t)
	kv := redis.NewFromAddr(mr.Addr())
	t.Cleanup(func() { kv.Close() })
	return NewResolver(slog.New(slog.NewTextHandler(io.Discard, nil)), kv)
}

func TestResolve_AllocatesOnFirstSight(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	id, err := r.Resolve(ctx, "twitch", "12345", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id == "" {
		t.Fatal("expected allocated id")
	}
	if strings.Contains(id, ":") {
		t.Errorf("canonical id must not contain platform prefix: %q", id)
	}
}

func TestResolve_SecondResolveReturnsSameID(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	first, err := r.Resolve(ctx, "twitch", "12345", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := r.Resolve(ctx, "twitch", "12345", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if first != second {
		t.Errorf("expected stable mapping, got %q then %q", first, second)
	}
}

func TestResolve_PreferredIDUsedForAllocation(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	id, err := r.Resolve(ctx, "youtube", "UCabc", "existing-account")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != "existing-account" {
		t.Errorf("expected preferred id, got %q", id)
	}
}

func TestResolve_PreferredIDIgnoredWhenMappingExists(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	first, err := r.Resolve(ctx, "twitch", "999", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := r.Resolve(ctx, "twitch", "999", "some-other-account")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if second != first {
		t.Errorf("existing mapping must win over preferred id, got %q want %q", second, first)
	}
}

func TestResolve_DifferentPlatformsGetDifferentAccounts(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	// same native id on two platforms is two different people
	a, err := r.Resolve(ctx, "twitch", "777", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	b, err := r.Resolve(ctx, "youtube", "777", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if a == b {
		t.Error("platforms must not share a namespace")
	}
}

func TestReverseLookup(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	id, err := r.Resolve(ctx, "twitch", "12345", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	pair, found, err := r.ReverseLookup(ctx, id)
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if !found {
		t.Fatal("expected reverse mapping")
	}
	if pair != "twitch:12345" {
		t.Errorf("expected twitch:12345, got %q", pair)
	}
}

func TestReverseLookup_AbsentAccount(t *testing.T) {
	r := newTestResolver(t)

	_, found, err := r.ReverseLookup(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if found {
		t.Error("expected no mapping")
	}
}
