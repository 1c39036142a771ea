package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"nexus-backend/internal/ledger"
	"nexus-backend/internal/models"
	"nexus-backend/internal/profile"
	"nexus-backend/internal/redis"
)

var (
	ErrItemNotFound = errors.New("item not found")
	ErrAlreadyOwned = errors.New("item already owned")
	ErrNotOwned     = errors.New("item not owned")
	ErrInvalidItem  = errors.New("invalid item definition")
)

// Pseudo item ids that clear a decoration slot without an ownership check.
const (
	UnequipAvatar  = "unequip_avatar"
	UnequipMessage = "unequip_message"
)

const catalogKey = "store_items"

// Service sells and equips cosmetic items. All spending goes through the
// ledger's atomic debit; this service only touches inventory and the two
// decoration slots.
type Service struct {
	kv       *redis.Client
	ledger   *ledger.Service
	profiles *profile.Manager
	log      *slog.Logger
}

func NewService(log *slog.Logger, kv *redis.Client, led *ledger.Service, profiles *profile.Manager) *Service {
	return &Service{kv: kv, ledger: led, profiles: profiles, log: log}
}

func (s *Service) Catalog(ctx context.Context) (models.StoreCatalog, error) {
	var catalog models.StoreCatalog
	if _, err := s.kv.GetJSON(ctx, catalogKey, &catalog); err != nil {
		return catalog, fmt.Errorf("catalog read: %w", err)
	}
	if catalog.Items == nil {
		catalog.Items = []models.StoreItem{}
	}
	return catalog, nil
}

// UpsertItem adds or replaces a catalog entry (admin surface).
func (s *Service) UpsertItem(ctx context.Context, item models.StoreItem) error {
	catalog, err := s.Catalog(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i, existing := range catalog.Items {
		if existing.ID == item.ID {
			catalog.Items[i] = item
			replaced = true
			break
		}
	}
	if !replaced {
		catalog.Items = append(catalog.Items, item)
	}
	return s.kv.SetJSON(ctx, catalogKey, catalog, 0)
}

func (s *Service) item(ctx context.Context, itemID string) (models.StoreItem, error) {
	catalog, err := s.Catalog(ctx)
	if err != nil {
		return models.StoreItem{}, err
	}
	for _, item := range catalog.Items {
		if item.ID == itemID {
			return item, nil
		}
	}
	return models.StoreItem{}, ErrItemNotFound
}

type PurchaseResult struct {
	Item      models.StoreItem
	Balance   int64
	Inventory []string
}

// Purchase buys a catalog item: ownership check, atomic debit, inventory
// append. Ownership check and debit are two storage operations; the debit
// itself is atomic so balances stay sound, but a genuinely simultaneous
// duplicate click can charge twice in the worst case. Accepted trade-off.
func (s *Service) Purchase(ctx context.Context, userID, itemID string) (PurchaseResult, error) {
	item, err := s.item(ctx, itemID)
	if err != nil {
		return PurchaseResult{}, err
	}

	meta, err := s.profiles.Load(ctx, userID, "")
	if err != nil {
		return PurchaseResult{}, err
	}
	for _, owned := range meta.Inventory {
		if owned == itemID {
			return PurchaseResult{}, ErrAlreadyOwned
		}
	}

	balance, err := s.ledger.DebitIfAffordable(ctx, userID, item.Cost, "store_purchase", itemID)
	if err != nil {
		return PurchaseResult{}, err
	}

	meta.Inventory = append(meta.Inventory, itemID)
	if err := s.profiles.Save(ctx, meta); err != nil {
		return PurchaseResult{}, err
	}

	s.log.Info("purchase_completed", "user_id", userID, "item_id", itemID, "cost", item.Cost)
	return PurchaseResult{Item: item, Balance: balance, Inventory: meta.Inventory}, nil
}

type EquipResult struct {
	Equipped *string
	Type     string
}

// Equip sets a decoration slot from an owned item, or clears a slot via
// the unequip pseudo-ids. Each slot holds at most one item; setting
// overwrites.
func (s *Service) Equip(ctx context.Context, userID, itemID string) (EquipResult, error) {
	meta, err := s.profiles.Load(ctx, userID, "")
	if err != nil {
		return EquipResult{}, err
	}

	switch itemID {
	case UnequipAvatar:
		meta.AvatarDecoration = nil
		if err := s.profiles.Save(ctx, meta); err != nil {
			return EquipResult{}, err
		}
		return EquipResult{Type: models.ItemTypeAvatarDecoration}, nil
	case UnequipMessage:
		meta.MessageDecoration = nil
		if err := s.profiles.Save(ctx, meta); err != nil {
			return EquipResult{}, err
		}
		return EquipResult{Type: models.ItemTypeMessageDecoration}, nil
	}

	owned := false
	for _, id := range meta.Inventory {
		if id == itemID {
			owned = true
			break
		}
	}
	if !owned {
		return EquipResult{}, ErrNotOwned
	}

	item, err := s.item(ctx, itemID)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return EquipResult{}, ErrInvalidItem
		}
		return EquipResult{}, err
	}

	itemType := item.Type
	if itemType == "" {
		itemType = models.ItemTypeAvatarDecoration
	}
	payload := item.CSSClass
	switch itemType {
	case models.ItemTypeAvatarDecoration:
		meta.AvatarDecoration = &payload
	case models.ItemTypeMessageDecoration:
		meta.MessageDecoration = &payload
	default:
		return EquipResult{}, ErrInvalidItem
	}

	if err := s.profiles.Save(ctx, meta); err != nil {
		return EquipResult{}, err
	}
	return EquipResult{Equipped: &payload, Type: itemType}, nil
}
