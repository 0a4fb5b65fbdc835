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

	"github.com/beaverbot/portal/pkg/database"
	"github.com/beaverbot/portal/pkg/delivery"
	"github.com/beaverbot/portal/pkg/transform"
)

// editFlow pushes an edit of the origin message to every linked copy, and
// deletes linked-attachment messages whose source attachment was edited
// out. Running behind createFlow on the same sequencer key guarantees the
// group rows exist by the time this executes, so an empty lookup means the
// message was simply never propagated.
func (e *Engine) editFlow(ctx context.Context, msg *delivery.Message) {
	log := e.log.With().
		Str("flow", "edit").
		Str("channel_id", msg.ChannelID).
		Str("message_id", msg.ID).
		Logger()
	ctx = log.WithContext(ctx)

	if msg.WebhookID != "" {
		// Linked copies fire their own update events when this engine
		// edits them; processing those would loop.
		return
	}

	groupID, err := e.db.Message.GroupIDForMessage(ctx, msg.ID)
	if err != nil {
		log.Err(err).Msg("Failed to look up message group")
		return
	}
	if groupID == "" {
		return
	}
	rows, err := e.db.Message.GetGroup(ctx, groupID)
	if err != nil {
		log.Err(err).Str("group_id", groupID).Msg("Failed to load message group")
		return
	}

	payload := transform.BuildPayload(ctx, msg, e.transformOptions())
	liveAttachments := make(map[string]bool, len(msg.Attachments))
	for _, att := range msg.Attachments {
		liveAttachments[att.ID] = true
	}

	for _, row := range rows {
		switch row.Type {
		case database.MessageTypeLinked:
			e.editLinked(ctx, row, payload)
		case database.MessageTypeLinkedAttachment:
			// Attachments can only ever be removed by an edit, never
			// added, so a vanished id is the only case to handle.
			if row.AttachmentID != "" && !liveAttachments[row.AttachmentID] {
				e.removeLinkedAttachment(ctx, row)
			}
		}
	}
}

func (e *Engine) editLinked(ctx context.Context, row *database.Message, payload *transform.Payload) {
	log := e.log.With().Str("target_channel_id", row.ChannelID).Str("linked_message_id", row.MessageID).Logger()

	conn, err := e.db.Connection.GetByChannel(ctx, row.ChannelID)
	if err != nil || conn == nil {
		log.Warn().Err(err).Msg("No connection for linked message, skipping edit")
		return
	}
	hook, err := e.ensureWebhook(ctx, conn)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to obtain send identity for edit")
		return
	}

	content := payload.Content
	// Preserve the reply preamble this engine prepended at relay time.
	// The remote copy decides: whatever sentinel line it carries now is
	// what survives the edit.
	if existing, fetchErr := e.adapter.FetchMessage(ctx, row.ChannelID, row.MessageID); fetchErr == nil && existing != nil {
		if preamble, _ := splitPreamble(existing.Content); preamble != "" {
			content = preamble + "\n" + content
		}
	}

	err = e.adapter.EditWebhookMessage(ctx, hook, row.MessageID, &delivery.WebhookPayload{
		Content: content,
		Embeds:  payload.Embeds,
		Files:   payload.Files,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to edit linked message")
	}
}

func (e *Engine) removeLinkedAttachment(ctx context.Context, row *database.Message) {
	log := e.log.With().Str("target_channel_id", row.ChannelID).Str("linked_message_id", row.MessageID).Logger()

	deleted := false
	if conn, err := e.db.Connection.GetByChannel(ctx, row.ChannelID); err == nil && conn != nil && conn.WebhookID != "" {
		if err = e.adapter.DeleteWebhookMessage(ctx, connWebhook(conn), row.MessageID); err == nil {
			deleted = true
		}
	}
	if !deleted {
		if err := e.adapter.DeleteMessage(ctx, row.ChannelID, row.MessageID); err != nil {
			log.Warn().Err(err).Msg("Failed to delete linked attachment message")
		}
	}
	if err := e.db.Message.DeleteRow(ctx, row.GroupID, row.MessageID); err != nil {
		log.Err(err).Msg("Failed to drop linked attachment row")
	}
}
