package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"nexus-backend/internal/ledger"
	"nexus-backend/internal/models"
	"nexus-backend/internal/profile"
	"nexus-backend/internal/redis"
)

func newTestStore(t *testing.T) (*Service, *ledger.Service, *profile.Manager) {
	t.Helper()
	mr := miniredis.RunT(t)
	kv := redis.NewFromAddr(mr.Addr())
	t.Cleanup(func() { kv.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	led := ledger.NewService(log, ledger.NewMemStore(), "owner-uuid")
	profiles := profile.NewManager(log, kv, led)
	svc := NewService(log, kv, led, profiles)

	ctx := context.Background()
	items := []models.StoreItem{
		{ID: "hat_red", Name: "Red Hat", Cost: 60, Type: models.ItemTypeAvatarDecoration, CSSClass: "deco-hat-red"},
		{ID: "sparkle", Name: "Sparkle Text", Cost: 120, Type: models.ItemTypeMessageDecoration, CSSClass: "deco-sparkle"},
	}
	for _, item := range items {
		if err := svc.UpsertItem(ctx, item); err != nil {
			t.Fatalf("seed catalog: %v", err)
		}
	}
	return svc, led, profiles
}

func fund(t *testing.T, led *ledger.Service, userID string, amount int64) {
	t.Helper()
	if _, _, err := led.Credit(context.Background(), userID, amount, ledger.CreditOptions{Reason: "bonus"}); err != nil {
		t.Fatalf("fund: %v", err)
	}
}

func TestPurchase_DebitsAndAddsToInventory(t *testing.T) {
	svc, led, _ := newTestStore(t)
	ctx := context.Background()
	fund(t, led, "u1", 100)

	result, err := svc.Purchase(ctx, "u1", "hat_red")
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if result.Balance != 40 {
		t.Errorf("expected 40 remaining, got %d", result.Balance)
	}
	if len(result.Inventory) != 1 || result.Inventory[0] != "hat_red" {
		t.Errorf("expected inventory [hat_red], got %v", result.Inventory)
	}

	// the debit audits as a purchase event
	events, err := led.Events(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	last := events[len(events)-1]
	if last.Type != models.EventPurchase || last.Delta != -60 {
		t.Errorf("expected purchase event delta -60, got %+v", last)
	}
}

func TestPurchase_InsufficientFunds(t *testing.T) {
	svc, led, _ := newTestStore(t)
	ctx := context.Background()
	fund(t, led, "u1", 50)

	_, err := svc.Purchase(ctx, "u1", "hat_red")
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	balance, _ := led.GetBalance(ctx, "u1")
	if balance != 50 {
		t.Errorf("failed purchase must not charge, got %d", balance)
	}
}

func TestPurchase_AlreadyOwnedDoesNotChargeAgain(t *testing.T) {
	svc, led, _ := newTestStore(t)
	ctx := context.Background()
	fund(t, led, "u1", 200)

	if _, err := svc.Purchase(ctx, "u1", "hat_red"); err != nil {
		t.Fatalf("first purchase: %v", err)
	}
	_, err := svc.Purchase(ctx, "u1", "hat_red")
	if !errors.Is(err, ErrAlreadyOwned) {
		t.Fatalf("expected ErrAlreadyOwned, got %v", err)
	}

	balance, _ := led.GetBalance(ctx, "u1")
	if balance != 140 {
		t.Errorf("repeat purchase must not charge, got %d", balance)
	}
}

func TestPurchase_UnknownItem(t *testing.T) {
	svc, led, _ := newTestStore(t)
	fund(t, led, "u1", 100)

	_, err := svc.Purchase(context.Background(), "u1", "no_such_item")
	if !errors.Is(err, ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got %v", err)
	}
}

func TestEquip_OwnedItemSetsSlotByType(t *testing.T) {
	svc, led, profiles := newTestStore(t)
	ctx := context.Background()
	fund(t, led, "u1", 200)

	if _, err := svc.Purchase(ctx, "u1", "hat_red"); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if _, err := svc.Purchase(ctx, "u1", "sparkle"); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	result, err := svc.Equip(ctx, "u1", "hat_red")
	if err != nil {
		t.Fatalf("equip: %v", err)
	}
	if result.Type != models.ItemTypeAvatarDecoration || result.Equipped == nil || *result.Equipped != "deco-hat-red" {
		t.Errorf("unexpected equip result: %+v", result)
	}

	if _, err := svc.Equip(ctx, "u1", "sparkle"); err != nil {
		t.Fatalf("equip: %v", err)
	}

	meta, err := profiles.Load(ctx, "u1", "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if meta.AvatarDecoration == nil || *meta.AvatarDecoration != "deco-hat-red" {
		t.Errorf("avatar slot wrong: %v", meta.AvatarDecoration)
	}
	if meta.MessageDecoration == nil || *meta.MessageDecoration != "deco-sparkle" {
		t.Errorf("message slot wrong: %v", meta.MessageDecoration)
	}
}

func TestEquip_NotOwned(t *testing.T) {
	svc, _, _ := newTestStore(t)

	_, err := svc.Equip(context.Background(), "u1", "hat_red")
	if !errors.Is(err, ErrNotOwned) {
		t.Errorf("expected ErrNotOwned, got %v", err)
	}
}

func TestEquip_UnequipPseudoIDsClearSlots(t *testing.T) {
	svc, led, profiles := newTestStore(t)
	ctx := context.Background()
	fund(t, led, "u1", 200)

	if _, err := svc.Purchase(ctx, "u1", "hat_red"); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if _, err := svc.Equip(ctx, "u1", "hat_red"); err != nil {
		t.Fatalf("equip: %v", err)
	}

	// unequip needs no ownership check, even for never-owned slots
	if _, err := svc.Equip(ctx, "u1", UnequipAvatar); err != nil {
		t.Fatalf("unequip avatar: %v", err)
	}
	if _, err := svc.Equip(ctx, "u1", UnequipMessage); err != nil {
		t.Fatalf("unequip message: %v", err)
	}

	meta, err := profiles.Load(ctx, "u1", "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if meta.AvatarDecoration != nil || meta.MessageDecoration != nil {
		t.Errorf("expected cleared slots, got %v / %v", meta.AvatarDecoration, meta.MessageDecoration)
	}
}

func TestUpsertItem_ReplacesExisting(t *testing.T) {
	svc, _, _ := newTestStore(t)
	ctx := context.Background()

	if err := svc.UpsertItem(ctx, models.StoreItem{ID: "hat_red", Name: "Crimson Hat", Cost: 80, Type: models.ItemTypeAvatarDecoration}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	catalog, err := svc.Catalog(ctx)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	count := 0
	for _, item := range catalog.Items {
		if item.ID == "hat_red" {
			count++
			if item.Cost != 80 || item.Name != "Crimson Hat" {
				t.Errorf("expected replacement, got %+v", item)
			}
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one hat_red, got %d", count)
	}
}

func TestCatalog_EmptyIsNotError(t *testing.T) {
	mr := miniredis.RunT(t)
	kv := redis.NewFromAddr(mr.Addr())
	t.Cleanup(func() { kv.Close() })
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	led := ledger.NewService(log, ledger.NewMemStore(), "owner-uuid")
	svc := NewService(log, kv, led, profile.NewManager(log, kv, led))

	catalog, err := svc.Catalog(context.Background())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if catalog.Items == nil || len(catalog.Items) != 0 {
		t.Errorf("expected empty slice, got %v", catalog.Items)
	}
}
