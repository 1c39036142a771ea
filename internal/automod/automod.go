package automod

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"nexus-backend/internal/models"
	"nexus-backend/internal/moderation"
	"nexus-backend/internal/redis"
)

const (
	bannedWordsKey   = "banned_words"
	brainrotWordsKey = "brainrot_words"

	timeoutDuration = 5 * time.Minute

	automodModID   = "AUTO_MOD"
	automodModName = "Nexus System"
)

// Word list names accepted by the admin surface.
const (
	ListBanned   = "banned"
	ListBrainrot = "brainrot"
)

var ErrUnknownList = errors.New("unknown word list")

func listKey(name string) (string, error) {
	switch name {
	case ListBanned:
		return bannedWordsKey, nil
	case ListBrainrot:
		return brainrotWordsKey, nil
	}
	return "", ErrUnknownList
}

// Engine scans chat text against the banned and flagged word lists and
// issues timed suspensions on a match. Matching is plain lowercase
// substring containment, first match wins. If the lists cannot be read the
// engine takes no action rather than blocking chat.
type Engine struct {
	kv      *redis.Client
	mods    *moderation.Service
	log     *slog.Logger
	ownerID string
}

func NewEngine(log *slog.Logger, kv *redis.Client, mods *moderation.Service, ownerID string) *Engine {
	return &Engine{kv: kv, mods: mods, log: log, ownerID: ownerID}
}

// Scan returns a TimeoutAction when the text trips a word list, nil
// otherwise. The site owner is always exempt.
func (e *Engine) Scan(ctx context.Context, userID, text string) (*models.TimeoutAction, error) {
	if userID == e.ownerID {
		return nil, nil
	}

	bannedRaw, _, bErr := e.kv.Get(ctx, bannedWordsKey)
	brainrotRaw, _, fErr := e.kv.Get(ctx, brainrotWordsKey)
	if bErr != nil || fErr != nil {
		// word lists unavailable means no enforcement this message, not a
		// failure of the chat pipeline
		e.log.Warn("automod_lists_unavailable", "banned_err", bErr, "flagged_err", fErr)
		return nil, nil
	}

	banned := parseWordList(bannedRaw)
	brainrot := parseWordList(brainrotRaw)
	if len(banned) == 0 && len(brainrot) == 0 {
		return nil, nil
	}

	normalized := strings.ToLower(text)
	word, kind := firstMatch(normalized, banned, brainrot)
	if word == "" {
		return nil, nil
	}

	reason := fmt.Sprintf("Automod: Used forbidden word (%s)", word)
	if _, err := e.mods.ApplyTimeout(ctx, userID, reason, kind, timeoutDuration, automodModID, automodModName); err != nil {
		return nil, fmt.Errorf("automod timeout: %w", err)
	}

	e.log.Info("automod_timeout", "user_id", userID, "kind", kind)
	return &models.TimeoutAction{
		UserID:          userID,
		Reason:          reason,
		DurationMinutes: int(timeoutDuration.Minutes()),
		Kind:            kind,
	}, nil
}

// WordList returns the raw stored list text for the admin surface.
func (e *Engine) WordList(ctx context.Context, name string) (string, error) {
	key, err := listKey(name)
	if err != nil {
		return "", err
	}
	raw, _, err := e.kv.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("word list read: %w", err)
	}
	return raw, nil
}

// SetWordList replaces a list wholesale. The text is stored as pasted;
// normalization happens at scan time.
func (e *Engine) SetWordList(ctx context.Context, name, raw string) error {
	key, err := listKey(name)
	if err != nil {
		return err
	}
	if err := e.kv.Set(ctx, key, raw, 0); err != nil {
		return fmt.Errorf("word list write: %w", err)
	}
	e.log.Info("word_list_updated", "list", name, "words", len(parseWordList(raw)))
	return nil
}

// firstMatch checks the banned list before the flagged one; a banned match
// outranks a flagged match for the recorded kind.
func firstMatch(text string, banned, brainrot []string) (string, string) {
	for _, w := range banned {
		if strings.Contains(text, w) {
			return w, models.BanKindAutomod
		}
	}
	for _, w := range brainrot {
		if strings.Contains(text, w) {
			return w, models.BanKindBrainrot
		}
	}
	return "", ""
}

// parseWordList splits a raw list on newlines and commas, lowercasing and
// dropping blanks. Admins paste these as free text.
func parseWordList(raw string) []string {
	if raw == "" {
		return nil
	}
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\n' || r == '\r' || r == ','
	})
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		w := strings.ToLower(strings.TrimSpace(f))
		if w != "" {
			words = append(words, w)
		}
	}
	return words
}
