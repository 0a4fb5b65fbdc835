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
	"sync"

	"github.com/rs/zerolog"

	"github.com/beaverbot/portal/pkg/database"
	"github.com/beaverbot/portal/pkg/delivery"
	"github.com/beaverbot/portal/pkg/transform"
)

// createFlow fans a new message out to every other connection of its
// portal. Each target channel is handled independently and concurrently;
// one channel's failure never blocks the others. The origin row is written
// only after every send settles, so "the group exists" is a reliable
// "fan-out finished" signal for the edit/delete flows queued behind this
// one.
func (e *Engine) createFlow(ctx context.Context, msg *delivery.Message) {
	log := e.log.With().
		Str("flow", "create").
		Str("channel_id", msg.ChannelID).
		Str("message_id", msg.ID).
		Logger()
	ctx = log.WithContext(ctx)

	conn, err := e.db.Connection.GetByChannel(ctx, msg.ChannelID)
	if err != nil {
		log.Err(err).Msg("Failed to resolve portal connection")
		return
	}
	if conn == nil {
		return
	}
	if msg.WebhookID != "" || msg.AuthorID == e.adapter.SelfID() {
		// Webhook messages in a connected channel are relayed copies
		// (ours or another relay's) and SelfID messages are this relay's
		// own notices; propagating either would loop.
		return
	}
	if e.gateLimited(ctx, conn, msg) {
		return
	}

	refs := e.resolveReply(ctx, msg)
	payload := transform.BuildPayload(ctx, msg, e.transformOptions())

	groupID, err := e.db.Message.GenerateGroupID(ctx)
	if err != nil {
		log.Err(err).Msg("Failed to generate group id")
		return
	}

	targets, err := e.db.Connection.ListByPortal(ctx, conn.PortalID)
	if err != nil {
		log.Err(err).Msg("Failed to list portal connections")
		return
	}

	var wg sync.WaitGroup
	for _, target := range targets {
		if target.ChannelID == msg.ChannelID {
			continue
		}
		wg.Add(1)
		go func(target *database.Connection) {
			defer wg.Done()
			e.relayTo(ctx, target, conn, msg, payload, refs, groupID)
		}(target)
	}
	wg.Wait()

	err = e.db.Message.Insert(ctx, &database.Message{
		GroupID:   groupID,
		PortalID:  conn.PortalID,
		MessageID: msg.ID,
		ChannelID: msg.ChannelID,
		Type:      database.MessageTypeOriginal,
	})
	if err != nil {
		log.Err(err).Str("group_id", groupID).Msg("Failed to write original message row")
		return
	}
	log.Debug().Str("group_id", groupID).Msg("Message fan-out complete")
}

// relayTo delivers the payload to one target connection: validates the
// channel and send identity (self-healing both), sends the primary copy,
// then one follow-up per linkified attachment.
func (e *Engine) relayTo(
	ctx context.Context,
	target, source *database.Connection,
	msg *delivery.Message,
	payload *transform.Payload,
	refs replyRefs,
	groupID string,
) {
	log := zerolog.Ctx(ctx).With().Str("target_channel_id", target.ChannelID).Logger()

	ch := e.adapter.ResolveChannel(ctx, target.ChannelID)
	if ch == nil {
		// The channel is gone; drop the stale connection and move on.
		if _, err := e.db.Connection.Delete(ctx, target.ChannelID); err != nil {
			log.Err(err).Msg("Failed to remove stale connection")
		} else {
			log.Info().Msg("Removed connection to missing channel")
		}
		return
	}
	e.refreshDisplayCache(ctx, target, ch)

	hook, err := e.ensureWebhook(ctx, target)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to obtain send identity, skipping channel")
		return
	}

	content := payload.Content
	if preamble := e.preambleFor(refs, target.ChannelID); preamble != "" {
		content = preamble + "\n" + content
	}
	relayName := formatRelayName(msg.AuthorName, source.GuildName)

	sent, err := e.adapter.SendWebhookMessage(ctx, hook, &delivery.WebhookPayload{
		Content:   content,
		Username:  relayName,
		AvatarURL: msg.AuthorAvatarURL,
		Embeds:    payload.Embeds,
		Files:     payload.Files,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to relay message to channel")
		return
	}
	err = e.db.Message.Insert(ctx, &database.Message{
		GroupID:   groupID,
		PortalID:  target.PortalID,
		MessageID: sent.ID,
		ChannelID: target.ChannelID,
		Type:      database.MessageTypeLinked,
	})
	if err != nil {
		log.Err(err).Msg("Failed to record linked message")
		return
	}

	for _, att := range payload.Linkified {
		followup, sendErr := e.adapter.SendWebhookMessage(ctx, hook, &delivery.WebhookPayload{
			Content:   att.URL,
			Username:  relayName,
			AvatarURL: msg.AuthorAvatarURL,
		})
		if sendErr != nil {
			log.Warn().Err(sendErr).Str("attachment_id", att.ID).Msg("Failed to relay linkified attachment")
			continue
		}
		err = e.db.Message.Insert(ctx, &database.Message{
			GroupID:      groupID,
			PortalID:     target.PortalID,
			MessageID:    followup.ID,
			ChannelID:    target.ChannelID,
			Type:         database.MessageTypeLinkedAttachment,
			AttachmentID: att.ID,
		})
		if err != nil {
			log.Err(err).Str("attachment_id", att.ID).Msg("Failed to record linked attachment message")
		}
	}
}
