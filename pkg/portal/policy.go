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

	"github.com/rs/zerolog"

	"github.com/beaverbot/portal/pkg/database"
	"github.com/beaverbot/portal/pkg/delivery"
)

// gateLimited consults the abuse policy for the author. A banned user, or
// one limited to a different channel, is silently dropped and best-effort
// stripped of send permission; the user is never told. A non-banned record
// matching this channel is informational only.
func (e *Engine) gateLimited(ctx context.Context, conn *database.Connection, msg *delivery.Message) bool {
	log := zerolog.Ctx(ctx)
	limited, err := e.db.LimitedAccount.Get(ctx, msg.AuthorID, conn.PortalID)
	if err != nil {
		log.Err(err).Msg("Failed to look up limited account, dropping message")
		return true
	}
	if limited == nil {
		return false
	}
	if !limited.Banned && limited.ChannelID == msg.ChannelID {
		return false
	}
	if err = e.adapter.RevokeSendPermission(ctx, msg.ChannelID, msg.AuthorID); err != nil {
		log.Debug().Err(err).Str("user_id", msg.AuthorID).Msg("Failed to revoke send permission for limited account")
	}
	log.Info().
		Str("user_id", msg.AuthorID).
		Bool("banned", limited.Banned).
		Str("limited_to", limited.ChannelID).
		Msg("Dropped message from limited account")
	return true
}
