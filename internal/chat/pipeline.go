package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nexus-backend/internal/automod"
	"nexus-backend/internal/broadcast"
	"nexus-backend/internal/identity"
	"nexus-backend/internal/ledger"
	"nexus-backend/internal/models"
	"nexus-backend/internal/moderation"
	"nexus-backend/internal/profile"
	"nexus-backend/internal/redis"
	"nexus-backend/internal/security"
)

const (
	queueSize      = 50000
	processTimeout = 30 * time.Second
	dedupTTL       = 60 * time.Second
)

type worker struct {
	id       int
	stopChan chan bool
}

// Pipeline consumes inbound chat messages from the platform bridges and
// runs each through resolution, moderation, automod and the message point
// award. Messages are processed by a bounded worker pool so a burst on one
// platform cannot stall the HTTP layer.
type Pipeline struct {
	log      *slog.Logger
	kv       *redis.Client
	resolver *identity.Resolver
	ledger   *ledger.Service
	awarder  *ledger.Awarder
	mods     *moderation.Service
	automod  *automod.Engine
	profiles *profile.Manager
	notify   broadcast.Notifier

	queue      chan models.InboundMessage
	workerPool []*worker
	wg         sync.WaitGroup
	mu         sync.Mutex
}

func NewPipeline(
	log *slog.Logger,
	kv *redis.Client,
	resolver *identity.Resolver,
	led *ledger.Service,
	awarder *ledger.Awarder,
	mods *moderation.Service,
	engine *automod.Engine,
	profiles *profile.Manager,
	notify broadcast.Notifier,
) *Pipeline {
	if notify == nil {
		notify = broadcast.Nop{}
	}
	return &Pipeline{
		log:      log,
		kv:       kv,
		resolver: resolver,
		ledger:   led,
		awarder:  awarder,
		mods:     mods,
		automod:  engine,
		profiles: profiles,
		notify:   notify,
		queue:    make(chan models.InboundMessage, queueSize),
	}
}

// Enqueue hands a message to the worker pool. Returns false when the queue
// is saturated; the caller decides whether to surface that to the bridge.
func (p *Pipeline) Enqueue(msg models.InboundMessage) bool {
	select {
	case p.queue <- msg:
		return true
	default:
		p.log.Warn("chat_queue_full", "platform", msg.Platform)
		return false
	}
}

func (p *Pipeline) StartWorkers(workerCount int) {
	if workerCount < 1 {
		workerCount = 5
	}
	if workerCount > 64 {
		workerCount = 64
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < workerCount; i++ {
		w := &worker{id: i + 1, stopChan: make(chan bool, 1)}
		p.workerPool = append(p.workerPool, w)

		p.wg.Add(1)
		go p.runWorker(w)
	}

	p.log.Info("chat_workers_started", "count", workerCount)
}

func (p *Pipeline) runWorker(w *worker) {
	defer p.wg.Done()

	for {
		select {
		case msg := <-p.queue:
			ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
			if err := p.Process(ctx, msg); err != nil {
				p.log.Warn("chat_message_failed",
					"worker_id", w.id,
					"platform", msg.Platform,
					"error", err,
				)
			}
			cancel()
		case <-w.stopChan:
			return
		}
	}
}

func (p *Pipeline) StopWorkers() {
	p.mu.Lock()
	for _, w := range p.workerPool {
		select {
		case w.stopChan <- true:
		default:
		}
	}
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Info("chat_workers_stopped")
}

// Process runs one message through the full pipeline. Banned accounts and
// automod hits are dropped silently from chat; everything else flows
// through to the broadcast hub.
func (p *Pipeline) Process(ctx context.Context, msg models.InboundMessage) error {
	if msg.Platform == "" || msg.NativeID == "" {
		return fmt.Errorf("message missing platform identity")
	}
	if err := security.ValidatePlatformID(msg.NativeID); err != nil {
		return fmt.Errorf("platform id rejected: %w", err)
	}

	if msg.MessageID != "" {
		dedupKey := fmt.Sprintf("chat:dedup:%s:%s", msg.Platform, msg.MessageID)
		exists, err := p.kv.RDB().Exists(ctx, dedupKey).Result()
		if err == nil && exists > 0 {
			return nil // duplicate delivery from the bridge, skip
		}
		_ = p.kv.RDB().Set(ctx, dedupKey, "1", dedupTTL).Err()
	}

	userID, err := p.resolver.Resolve(ctx, msg.Platform, msg.NativeID, "")
	if err != nil {
		return err
	}

	if err := p.ledger.EnsureAccount(ctx, userID, msg.DisplayName, msg.AvatarURL); err != nil {
		return err
	}

	banned, err := p.mods.IsBanned(ctx, userID)
	if err != nil {
		return err
	}
	if banned {
		p.log.Debug("chat_dropped_banned", "user_id", userID)
		return nil
	}

	action, err := p.automod.Scan(ctx, userID, msg.Text)
	if err != nil {
		return err
	}
	if action != nil {
		p.notify.Notify(broadcast.EventModeration, action)
		return nil
	}

	awarded, err := p.awarder.AwardMessagePoints(ctx, userID, msg.Platform)
	if err != nil {
		// the message still goes out; points are best effort
		p.log.Warn("message_award_failed", "user_id", userID, "error", err)
	}

	meta, err := p.profiles.Load(ctx, userID, msg.DisplayName)
	if err != nil {
		p.log.Warn("chat_meta_load_failed", "user_id", userID, "error", err)
		meta = models.AccountMeta{UUID: userID, DisplayName: msg.DisplayName}
	}

	p.notify.Notify(broadcast.EventChat, ChatMessage{
		UserID:            userID,
		Platform:          msg.Platform,
		DisplayName:       displayName(meta, msg),
		Text:              msg.Text,
		AvatarURL:         msg.AvatarURL,
		AvatarDecoration:  meta.AvatarDecoration,
		MessageDecoration: meta.MessageDecoration,
		Awarded:           awarded,
	})
	return nil
}

// ChatMessage is the broadcast payload for one delivered chat line.
type ChatMessage struct {
	UserID            string  `json:"userId"`
	Platform          string  `json:"platform"`
	DisplayName       string  `json:"displayName"`
	Text              string  `json:"message"`
	AvatarURL         string  `json:"avatarUrl,omitempty"`
	AvatarDecoration  *string `json:"avatarDecoration,omitempty"`
	MessageDecoration *string `json:"messageDecoration,omitempty"`
	Awarded           bool    `json:"awarded"`
}

func displayName(meta models.AccountMeta, msg models.InboundMessage) string {
	if msg.DisplayName != "" {
		return msg.DisplayName
	}
	if meta.DisplayName != "" {
		return meta.DisplayName
	}
	return "Adventurer"
}
