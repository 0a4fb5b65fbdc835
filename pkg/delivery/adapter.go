// portal - A cross-server message relay for chat channels.
// Copyright (C) 2026 Beaver Labs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package delivery

import (
	"context"
)

// Adapter is the capability contract the propagation engine needs from a
// chat platform. It is the only surface that touches platform wire
// semantics; everything behind it is platform-neutral.
//
// Error discipline: ResolveChannel never errors (a missing channel is nil),
// everything else returns platform errors unwrapped so callers can decide
// per-row whether to swallow, self-heal or surface them.
type Adapter interface {
	Connect(ctx context.Context) error
	Close() error
	// Events delivers inbound platform events. The channel is closed when
	// the adapter disconnects permanently. Platforms echo the relay's own
	// actions back as events; adapters deliver them as-is and the engine
	// filters by SelfID and webhook identity.
	Events() <-chan Event
	// SelfID returns the relay's own platform user id.
	SelfID() string

	// ResolveChannel returns nil if the channel no longer exists or is
	// not visible to the relay.
	ResolveChannel(ctx context.Context, channelID string) *Channel
	FetchMessage(ctx context.Context, channelID, messageID string) (*Message, error)
	// DeleteMessage is the authoritative delete path, used when the
	// webhook-identity delete fails (identity mismatch, revoked webhook).
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	SendNotice(ctx context.Context, channelID, content string) (*Message, error)
	// MessageLink builds a client-renderable permalink for a message.
	MessageLink(channelID, messageID string) string

	ListWebhooks(ctx context.Context, channelID string) ([]*Webhook, error)
	CreateWebhook(ctx context.Context, channelID, name string) (*Webhook, error)
	DeleteWebhook(ctx context.Context, wh *Webhook) error
	SendWebhookMessage(ctx context.Context, wh *Webhook, payload *WebhookPayload) (*Message, error)
	EditWebhookMessage(ctx context.Context, wh *Webhook, messageID string, payload *WebhookPayload) error
	DeleteWebhookMessage(ctx context.Context, wh *Webhook, messageID string) error

	CreateInvite(ctx context.Context, channelID string) (string, error)
	ApplyReaction(ctx context.Context, channelID, messageID, emoji string) error
	RevokeSendPermission(ctx context.Context, channelID, userID string) error
	// HasManagePermission reports whether the message author holds a
	// channel/guild management capability.
	HasManagePermission(ctx context.Context, msg *Message) bool

	// HasEmoji reports whether the relay itself can render the given
	// custom emoji id in any channel it sends to.
	HasEmoji(id string) bool
	// EmojiURL returns a stable CDN image URL for a custom emoji.
	EmojiURL(id string, animated bool) string

	DownloadAttachment(ctx context.Context, att *Attachment) ([]byte, error)
	DownloadSticker(ctx context.Context, sticker *Sticker) ([]byte, error)
}
