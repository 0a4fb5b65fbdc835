// portal - A cross-server message relay for chat channels.
// Copyright (C) 2026 Beaver Labs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package portal implements the cross-server message propagation engine:
// fan-out of creates, edits, deletes and reactions across every channel
// connected to a portal, with per-message event ordering and the abuse
// limiting gate in front.
package portal

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/beaverbot/portal/pkg/database"
	"github.com/beaverbot/portal/pkg/delivery"
	"github.com/beaverbot/portal/pkg/sequencer"
	"github.com/beaverbot/portal/pkg/transform"
)

// Config is the engine's runtime tuning. Zero values fall back to the
// defaults applied in New.
type Config struct {
	CommandPrefix       string
	AttachmentSizeLimit int64
	StickerCacheDir     string
	StickerCacheSize    int
	// ReplyLookupRetryDelay is how long to wait before the single retry
	// of a reply-target group lookup, covering fan-out lag of the
	// referenced message.
	ReplyLookupRetryDelay time.Duration
	// SetupTimeout bounds interactive setup steps (reaction collection).
	SetupTimeout time.Duration
}

func (cfg *Config) applyDefaults() {
	if cfg.CommandPrefix == "" {
		cfg.CommandPrefix = "!portal"
	}
	if cfg.AttachmentSizeLimit <= 0 {
		cfg.AttachmentSizeLimit = transform.DefaultSizeLimit
	}
	if cfg.StickerCacheSize <= 0 {
		cfg.StickerCacheSize = 64
	}
	if cfg.ReplyLookupRetryDelay <= 0 {
		cfg.ReplyLookupRetryDelay = time.Second
	}
	if cfg.SetupTimeout <= 0 {
		cfg.SetupTimeout = time.Minute
	}
}

// Engine orchestrates propagation. Storage and delivery are injected
// capabilities; the engine itself holds only transient state (sequencer
// queues, setup sessions, reaction waiters).
type Engine struct {
	db      *database.Database
	adapter delivery.Adapter
	log     zerolog.Logger
	seq     *sequencer.Sequencer

	configLock sync.RWMutex
	config     Config

	stickers *transform.StickerCache
	sessions *sessionStore
	waiters  *reactionWaiters

	// noticedDeleteFailures tracks (group, channel) pairs that already
	// got a "could not delete" notice, so each failure notifies once.
	noticeLock            sync.Mutex
	noticedDeleteFailures map[string]struct{}
}

func NewEngine(db *database.Database, adapter delivery.Adapter, cfg Config, log zerolog.Logger) (*Engine, error) {
	cfg.applyDefaults()
	e := &Engine{
		db:                    db,
		adapter:               adapter,
		log:                   log.With().Str("component", "engine").Logger(),
		seq:                   sequencer.New(log),
		config:                cfg,
		sessions:              newSessionStore(),
		waiters:               &reactionWaiters{},
		noticedDeleteFailures: map[string]struct{}{},
	}
	if cfg.StickerCacheDir != "" {
		var err error
		e.stickers, err = transform.NewStickerCache(cfg.StickerCacheDir, cfg.StickerCacheSize, adapter.DownloadSticker, log)
		if err != nil {
			return nil, fmt.Errorf("failed to init sticker cache: %w", err)
		}
	}
	return e, nil
}

// UpdateConfig applies reloaded tunables to a running engine.
func (e *Engine) UpdateConfig(cfg Config) {
	cfg.applyDefaults()
	e.configLock.Lock()
	// The sticker cache keeps its construction-time settings; swapping
	// the cache directory underneath in-flight sends is not worth it.
	cfg.StickerCacheDir = e.config.StickerCacheDir
	cfg.StickerCacheSize = e.config.StickerCacheSize
	e.config = cfg
	e.configLock.Unlock()
}

func (e *Engine) getConfig() Config {
	e.configLock.RLock()
	defer e.configLock.RUnlock()
	return e.config
}

// Run connects the adapter and pumps platform events into the engine until
// ctx is cancelled or the event stream closes.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect platform adapter: %w", err)
	}
	defer e.seq.Close()
	defer func() {
		_ = e.adapter.Close()
	}()
	e.log.Info().Msg("Engine running")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-e.adapter.Events():
			if !ok {
				return fmt.Errorf("platform event stream closed")
			}
			e.HandleEvent(evt)
		}
	}
}

// HandleEvent routes one platform event. Events that depend on a message's
// prior events are serialized per message id; everything for one logical
// message runs strictly in arrival order.
func (e *Engine) HandleEvent(evt delivery.Event) {
	switch evt := evt.(type) {
	case *delivery.MessageCreate:
		msg := evt.Message
		if cmd, ok := e.parseCommand(msg); ok {
			e.seq.Enqueue(msg.ID, func(ctx context.Context) {
				e.handleCommand(ctx, msg, cmd)
			})
			return
		}
		e.seq.Enqueue(msg.ID, func(ctx context.Context) {
			e.createFlow(ctx, msg)
		})
	case *delivery.MessageUpdate:
		msg := evt.Message
		e.seq.Enqueue(msg.ID, func(ctx context.Context) {
			e.editFlow(ctx, msg)
		})
	case *delivery.MessageDelete:
		e.seq.Enqueue(evt.MessageID, func(ctx context.Context) {
			e.deleteFlow(ctx, evt.ChannelID, evt.MessageID)
		})
	case *delivery.ReactionAdd:
		if e.waiters.deliver(evt) {
			return
		}
		e.seq.Enqueue(evt.MessageID, func(ctx context.Context) {
			e.reactFlow(ctx, evt)
		})
	default:
		e.log.Warn().Type("event_type", evt).Msg("Unhandled platform event")
	}
}

// Flush waits for all queued flows to finish. Test hook.
func (e *Engine) Flush() {
	e.seq.Wait()
}

func (e *Engine) parseCommand(msg *delivery.Message) ([]string, bool) {
	prefix := e.getConfig().CommandPrefix
	if msg.WebhookID != "" || !strings.HasPrefix(msg.Content, prefix) {
		return nil, false
	}
	rest := strings.TrimPrefix(msg.Content, prefix)
	if rest != "" && !strings.HasPrefix(rest, " ") {
		// "!portalsomething" is not a command invocation.
		return nil, false
	}
	return strings.Fields(rest), true
}

func (e *Engine) transformOptions() transform.Options {
	return transform.Options{
		Emoji:     e.adapter,
		Stickers:  e.stickers,
		Download:  e.adapter.DownloadAttachment,
		SizeLimit: e.getConfig().AttachmentSizeLimit,
	}
}

// formatRelayName is the display name shown on relayed copies: the source
// author plus the origin server.
func formatRelayName(authorName, guildName string) string {
	if guildName == "" {
		return authorName
	}
	return fmt.Sprintf("%s (%s)", authorName, guildName)
}
