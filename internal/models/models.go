package models

// Point event types. Everything that changes a balance is recorded as one
// of these in the append-only point_events table.
const (
	EventMessage      = "message"
	EventWatch        = "watch"
	EventMod          = "mod"
	EventAdjust       = "adjust"
	EventRedeem       = "redeem"
	EventBonus        = "bonus"
	EventPurchase     = "purchase"
	EventTip          = "tip"
	EventSubscription = "subscription"
)

// Ban kinds. Brainrot is the lower-severity automod match; the duration is
// the same, only the record differs.
const (
	BanKindManual   = "manual"
	BanKindAutomod  = "automod_ban"
	BanKindBrainrot = "brainrot"
)

// InfinitePoints is the sentinel balance reported for the owner account.
// It is never persisted as a spendable balance.
const InfinitePoints int64 = 999_999_999_999

type PointEvent struct {
	ID           int64   `json:"id"`
	UserID       string  `json:"user_id"`
	Delta        int64   `json:"delta"`
	Type         string  `json:"type"`
	Reason       *string `json:"reason,omitempty"`
	Source       *string `json:"source,omitempty"`
	CreatedAt    int64   `json:"created_at"` // unix millis
	BalanceAfter int64   `json:"balance_after"`
}

// AccountMeta is the per-account KV record: inventory, decorations and
// one-time bonus flags. Balances live in the ledger, not here; Points is
// only meaningful inside the legacy document and is kept for the migration
// audit trail.
type AccountMeta struct {
	UUID              string   `json:"uuid"`
	Platform          string   `json:"platform"`
	DisplayName       string   `json:"displayName"`
	Points            int64    `json:"points"`
	Inventory         []string `json:"inventory"`
	AvatarDecoration  *string  `json:"avatarDecoration"`
	MessageDecoration *string  `json:"activeMessageDecoration"`
	BonusSignInGiven  bool     `json:"bonusSignInGiven,omitempty"`
	BonusLinkedGiven  bool     `json:"bonusLinkedAccountsGiven,omitempty"`
}

// LegacyStore is the pre-sharded single document that held every account
// under a "<platform>:<uuid>" key.
type LegacyStore struct {
	Users map[string]AccountMeta `json:"users"`
}

type ModerationRecord struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Reason    string `json:"reason"`
	BanKind   string `json:"banKind"`
	CreatedAt int64  `json:"createdAt"`
	ExpiresAt *int64 `json:"expiresAt"` // nil = permanent
	ModID     string `json:"modId"`
	ModName   string `json:"modName"`
	Platform  string `json:"platform"`
}

// ModerationDoc is the shared moderation document: moderator ids plus the
// historical ban list. The active ban for an account is mirrored to its
// own key for cheap lookups.
type ModerationDoc struct {
	Mods []string           `json:"mods"`
	Bans []ModerationRecord `json:"bans"`
}

const (
	ItemTypeAvatarDecoration  = "avatar_decoration"
	ItemTypeMessageDecoration = "message_decoration"
)

type StoreItem struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	Cost          int64  `json:"cost"`
	Type          string `json:"type"`
	CSSClass      string `json:"cssClass,omitempty"`
	RequiresInput bool   `json:"requiresInput,omitempty"`
}

type StoreCatalog struct {
	Items []StoreItem `json:"items"`
}

// LinkedIdentity is one platform login attached to a session. AccessToken
// is AES-GCM encrypted before the session record is stored.
type LinkedIdentity struct {
	ID          string `json:"id"`
	Login       string `json:"login,omitempty"`
	Name        string `json:"name,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	AccessToken string `json:"accessToken,omitempty"`
}

type SessionUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar,omitempty"`
}

type Session struct {
	ID        string          `json:"id"`
	CreatedAt int64           `json:"created"`
	User      *SessionUser    `json:"user,omitempty"`
	Twitch    *LinkedIdentity `json:"twitch,omitempty"`
	YouTube   *LinkedIdentity `json:"youtube,omitempty"`
}

// TimeoutAction is what automod hands back for broadcast when a message
// trips a word list.
type TimeoutAction struct {
	UserID          string `json:"userId"`
	Reason          string `json:"reason"`
	DurationMinutes int    `json:"durationMinutes"`
	Kind            string `json:"kind"`
}

// InboundMessage is one chat message arriving over the platform bridge.
type InboundMessage struct {
	Platform    string `json:"platform"`
	NativeID    string `json:"userId"`
	DisplayName string `json:"displayName"`
	Text        string `json:"message"`
	MessageID   string `json:"messageId,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}
