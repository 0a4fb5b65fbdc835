// portal - A cross-server message relay for chat channels.
// Copyright (C) 2026 Beaver Labs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package portal

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/beaverbot/portal/pkg/database"
	"github.com/beaverbot/portal/pkg/delivery"
)

const webhookName = "Portal Relay"

// connWebhook rebuilds the send identity from the stored credential.
func connWebhook(conn *database.Connection) *delivery.Webhook {
	return &delivery.Webhook{
		ID:        conn.WebhookID,
		Token:     conn.WebhookToken,
		ChannelID: conn.ChannelID,
	}
}

// ensureWebhook validates the connection's send identity against the
// platform and silently recreates it if it was revoked. The recreated
// identity is persisted before first use, so a concurrent flow picks up
// the fresh credential instead of recreating again. (Two truly concurrent
// recreations may both succeed; stragglers are reconciled by platform-side
// cleanup, not here.)
func (e *Engine) ensureWebhook(ctx context.Context, conn *database.Connection) (*delivery.Webhook, error) {
	log := zerolog.Ctx(ctx)
	if conn.WebhookID != "" {
		hooks, err := e.adapter.ListWebhooks(ctx, conn.ChannelID)
		if err != nil {
			return nil, fmt.Errorf("failed to list webhooks in %s: %w", conn.ChannelID, err)
		}
		for _, hook := range hooks {
			if hook.ID == conn.WebhookID {
				return connWebhook(conn), nil
			}
		}
		log.Info().
			Str("channel_id", conn.ChannelID).
			Str("webhook_id", conn.WebhookID).
			Msg("Stored webhook no longer exists, recreating")
	}

	hook, err := e.adapter.CreateWebhook(ctx, conn.ChannelID, webhookName)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook in %s: %w", conn.ChannelID, err)
	}
	conn.WebhookID = hook.ID
	conn.WebhookToken = hook.Token
	if err = e.db.Connection.Update(ctx, conn); err != nil {
		return nil, fmt.Errorf("failed to persist recreated webhook: %w", err)
	}
	return hook, nil
}

// refreshDisplayCache opportunistically updates the cached channel/guild
// names when the resolved channel disagrees with storage.
func (e *Engine) refreshDisplayCache(ctx context.Context, conn *database.Connection, ch *delivery.Channel) {
	if conn.ChannelName == ch.Name && conn.GuildName == ch.GuildName && conn.GuildID == ch.GuildID {
		return
	}
	conn.ChannelName = ch.Name
	conn.GuildName = ch.GuildName
	conn.GuildID = ch.GuildID
	if err := e.db.Connection.Update(ctx, conn); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("channel_id", conn.ChannelID).Msg("Failed to refresh connection display cache")
	}
}
