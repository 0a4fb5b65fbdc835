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
)

// deleteFlow removes every copy of a message group after any one of its
// messages is deleted platform-side. Remote deletes go through the channel
// identity first, falling back to the authoritative delete; storage rows
// are removed regardless of remote success so the mapping never references
// an asserted-but-unconfirmed-deleted message, with a one-time channel
// notice when permissions blocked the remote delete.
func (e *Engine) deleteFlow(ctx context.Context, channelID, messageID string) {
	log := e.log.With().
		Str("flow", "delete").
		Str("channel_id", channelID).
		Str("message_id", messageID).
		Logger()
	ctx = log.WithContext(ctx)

	groupID, err := e.db.Message.GroupIDForMessage(ctx, messageID)
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

	for _, row := range rows {
		if row.MessageID == messageID {
			// This is the copy whose deletion triggered the flow; it is
			// already gone platform-side.
			continue
		}
		e.deleteRemoteCopy(ctx, row)
	}

	if _, err = e.db.Message.DeleteGroup(ctx, groupID); err != nil {
		log.Err(err).Str("group_id", groupID).Msg("Failed to remove message group rows")
		return
	}
	log.Debug().Str("group_id", groupID).Int("rows", len(rows)).Msg("Message group deleted")
}

func (e *Engine) deleteRemoteCopy(ctx context.Context, row *database.Message) {
	log := e.log.With().Str("target_channel_id", row.ChannelID).Str("target_message_id", row.MessageID).Logger()

	if conn, err := e.db.Connection.GetByChannel(ctx, row.ChannelID); err == nil && conn != nil && conn.WebhookID != "" {
		if err = e.adapter.DeleteWebhookMessage(ctx, connWebhook(conn), row.MessageID); err == nil {
			return
		}
	}
	if err := e.adapter.DeleteMessage(ctx, row.ChannelID, row.MessageID); err != nil {
		log.Warn().Err(err).Msg("Failed to delete relayed copy")
		e.notifyDeleteFailure(ctx, row)
	}
}

// notifyDeleteFailure tells the channel once per (group, channel) that a
// relayed message could not be removed there.
func (e *Engine) notifyDeleteFailure(ctx context.Context, row *database.Message) {
	key := row.GroupID + "/" + row.ChannelID
	e.noticeLock.Lock()
	_, already := e.noticedDeleteFailures[key]
	if !already {
		e.noticedDeleteFailures[key] = struct{}{}
	}
	e.noticeLock.Unlock()
	if already {
		return
	}
	_, err := e.adapter.SendNotice(ctx, row.ChannelID,
		"A relayed message could not be deleted in this channel (missing permission). Please remove it manually.")
	if err != nil {
		e.log.Debug().Err(err).Str("channel_id", row.ChannelID).Msg("Failed to send delete-failure notice")
	}
}
