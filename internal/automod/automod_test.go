package automod

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"nexus-backend/internal/models"
	"nexus-backend/internal/moderation"
	"nexus-backend/internal/redis"
)

const ownerID = "owner-uuid"

func newTestEngine(t *testing.T) (*Engine, *moderation.Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	kv := redis.NewFromAddr(mr.Addr())
	t.Cleanup(func() { kv.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mods := moderation.NewService(log, kv, ownerID)
	return NewEngine(log, kv, mods, ownerID), mods, mr
}

func setLists(mr *miniredis.Miniredis, banned, brainrot string) {
	if banned != "" {
		mr.Set("banned_words", banned)
	}
	if brainrot != "" {
		mr.Set("brainrot_words", brainrot)
	}
}

func TestScan_BannedWordTimesOutFiveMinutes(t *testing.T) {
	engine, mods, mr := newTestEngine(t)
	setLists(mr, "slur1\nslur2", "")
	ctx := context.Background()

	action, err := engine.Scan(ctx, "u1", "you are a SLUR1 honestly")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if action == nil {
		t.Fatal("expected timeout action")
	}
	if action.Kind != models.BanKindAutomod {
		t.Errorf("expected kind %q, got %q", models.BanKindAutomod, action.Kind)
	}
	if action.DurationMinutes != 5 {
		t.Errorf("expected 5 minutes, got %d", action.DurationMinutes)
	}
	if !strings.Contains(action.Reason, "slur1") {
		t.Errorf("reason should name the word, got %q", action.Reason)
	}

	banned, err := mods.IsBanned(ctx, "u1")
	if err != nil {
		t.Fatalf("isbanned: %v", err)
	}
	if !banned {
		t.Error("timeout must persist as an active ban")
	}
}

func TestScan_BrainrotWordGetsBrainrotKind(t *testing.T) {
	engine, _, mr := newTestEngine(t)
	setLists(mr, "", "skibidi,gyatt")
	ctx := context.Background()

	action, err := engine.Scan(ctx, "u1", "that was so skibidi")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if action == nil {
		t.Fatal("expected timeout action")
	}
	if action.Kind != models.BanKindBrainrot {
		t.Errorf("expected kind %q, got %q", models.BanKindBrainrot, action.Kind)
	}
}

func TestScan_BannedOutranksBrainrot(t *testing.T) {
	engine, _, mr := newTestEngine(t)
	setLists(mr, "badword", "skibidi")

	action, err := engine.Scan(context.Background(), "u1", "badword skibidi")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if action == nil || action.Kind != models.BanKindAutomod {
		t.Errorf("banned list must win, got %+v", action)
	}
}

func TestScan_CleanTextPasses(t *testing.T) {
	engine, _, mr := newTestEngine(t)
	setLists(mr, "badword", "skibidi")

	action, err := engine.Scan(context.Background(), "u1", "hello everyone, nice stream")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if action != nil {
		t.Errorf("clean text must pass, got %+v", action)
	}
}

func TestScan_EmptyListsPass(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	action, err := engine.Scan(context.Background(), "u1", "anything at all")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if action != nil {
		t.Errorf("no lists configured must pass, got %+v", action)
	}
}

func TestScan_OwnerExempt(t *testing.T) {
	engine, _, mr := newTestEngine(t)
	setLists(mr, "badword", "")

	action, err := engine.Scan(context.Background(), ownerID, "badword badword")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if action != nil {
		t.Errorf("owner must be exempt, got %+v", action)
	}
}

func TestScan_MatchIsCaseInsensitiveSubstring(t *testing.T) {
	engine, _, mr := newTestEngine(t)
	setLists(mr, "BadWord", "")

	action, err := engine.Scan(context.Background(), "u1", "xxBADWORDxx")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if action == nil {
		t.Error("expected substring match regardless of case")
	}
}

func TestScan_ListFetchFailureDegradesOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	kv := redis.NewFromAddr(mr.Addr())
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mods := moderation.NewService(log, kv, ownerID)
	engine := NewEngine(log, kv, mods, ownerID)

	mr.Set("banned_words", "badword")
	mr.Close() // simulate redis outage

	action, err := engine.Scan(context.Background(), "u1", "badword")
	if err != nil {
		t.Fatalf("degraded scan must not error: %v", err)
	}
	if action != nil {
		t.Errorf("degraded scan must take no action, got %+v", action)
	}
}

func TestParseWordList(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected []string
	}{
		{"newlines", "a\nb\nc", []string{"a", "b", "c"}},
		{"commas", "a,b,c", []string{"a", "b", "c"}},
		{"mixed with blanks", "A\n\n b ,\r\nC", []string{"a", "b", "c"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseWordList(tt.raw)
			if len(got) != len(tt.expected) {
				t.Fatalf("expected %v, got %v", tt.expected, got)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("expected %v, got %v", tt.expected, got)
				}
			}
		})
	}
}

func TestWordListAdmin_RoundTrip(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	if err := engine.SetWordList(ctx, ListBanned, "one\ntwo"); err != nil {
		t.Fatalf("set: %v", err)
	}
	raw, err := engine.WordList(ctx, ListBanned)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if raw != "one\ntwo" {
		t.Errorf("expected stored text back, got %q", raw)
	}

	if _, err := engine.WordList(ctx, "nope"); err != ErrUnknownList {
		t.Errorf("expected ErrUnknownList, got %v", err)
	}
}
