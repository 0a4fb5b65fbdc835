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

	"github.com/beaverbot/portal/pkg/delivery"
)

// reactFlow mirrors a reaction onto every other copy of the message group.
// Failures are swallowed per row: a channel without access to the emoji
// must not keep the rest of the portal from seeing the reaction.
func (e *Engine) reactFlow(ctx context.Context, evt *delivery.ReactionAdd) {
	log := e.log.With().
		Str("flow", "react").
		Str("channel_id", evt.ChannelID).
		Str("message_id", evt.MessageID).
		Logger()
	ctx = log.WithContext(ctx)

	if evt.UserID == e.adapter.SelfID() {
		// Mirrored reactions come back as the relay's own reaction events.
		return
	}

	groupID, err := e.db.Message.GroupIDForMessage(ctx, evt.MessageID)
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
		if row.MessageID == evt.MessageID {
			continue
		}
		if err = e.adapter.ApplyReaction(ctx, row.ChannelID, row.MessageID, evt.Emoji); err != nil {
			log.Debug().Err(err).Str("target_channel_id", row.ChannelID).Msg("Failed to mirror reaction")
		}
	}
}
