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
	"strings"
	"time"

	"github.com/beaverbot/portal/pkg/database"
	"github.com/beaverbot/portal/pkg/delivery"
	"github.com/beaverbot/portal/pkg/transform"
)

const helpText = `**Portal commands**
` + "`portal`" + ` — show this channel's portal and its members
` + "`create <name> [password]`" + ` — create a new portal (react with its emoji to finish)
` + "`join <name> [password]`" + ` — connect this channel to a portal
` + "`leave`" + ` — disconnect this channel
` + "`delete`" + ` — delete the portal (only with a single remaining connection)
` + "`invite`" + ` — attach this server's invite for other portal members
` + "`ban / limit / unlimit <user> [reason]`" + ` — moderate a user's relay access
` + "`help`" + ` — this text`

// handleCommand dispatches one parsed text command. State-changing
// commands are gated on the author holding a management capability; the
// gate itself replies on denial, so callers just stop.
func (e *Engine) handleCommand(ctx context.Context, msg *delivery.Message, args []string) {
	log := e.log.With().
		Str("component", "commands").
		Str("channel_id", msg.ChannelID).
		Str("user_id", msg.AuthorID).
		Logger()
	ctx = log.WithContext(ctx)

	if len(args) == 0 {
		args = []string{"portal"}
	}
	command, args := strings.ToLower(args[0]), args[1:]
	log.Debug().Str("command", command).Msg("Handling command")

	switch command {
	case "help":
		e.notice(ctx, msg.ChannelID, helpText)
	case "portal", "status":
		e.cmdStatus(ctx, msg)
	case "create":
		if e.requireManage(ctx, msg) {
			e.cmdCreate(ctx, msg, args)
		}
	case "join":
		if e.requireManage(ctx, msg) {
			e.cmdJoin(ctx, msg, args)
		}
	case "leave":
		if e.requireManage(ctx, msg) {
			e.cmdLeave(ctx, msg)
		}
	case "delete":
		if e.requireManage(ctx, msg) {
			e.cmdDelete(ctx, msg)
		}
	case "invite":
		if e.requireManage(ctx, msg) {
			e.cmdInvite(ctx, msg)
		}
	case "ban", "limit":
		if e.requireManage(ctx, msg) {
			e.cmdLimit(ctx, msg, command == "ban", args)
		}
	case "unlimit":
		if e.requireManage(ctx, msg) {
			e.cmdUnlimit(ctx, msg, args)
		}
	default:
		e.notice(ctx, msg.ChannelID, fmt.Sprintf("Unknown command %q — try `%s help`.", command, e.getConfig().CommandPrefix))
	}
}

// requireManage checks the management capability and replies on denial.
func (e *Engine) requireManage(ctx context.Context, msg *delivery.Message) bool {
	if e.adapter.HasManagePermission(ctx, msg) {
		return true
	}
	e.notice(ctx, msg.ChannelID, "You need channel management permission for that.")
	return false
}

// displayEmoji renders a portal's emoji for notices. Custom emoji are
// stored as a bare platform id: emit real markup when the relay can
// render the emoji itself, otherwise fall back to its CDN image URL so
// readers still see it.
func (e *Engine) displayEmoji(portal *database.Portal) string {
	if !portal.CustomEmoji {
		return portal.Emoji
	}
	if e.adapter.HasEmoji(portal.Emoji) {
		return fmt.Sprintf("<:portal:%s>", portal.Emoji)
	}
	return e.adapter.EmojiURL(portal.Emoji, false)
}

func (e *Engine) notice(ctx context.Context, channelID, text string) {
	if _, err := e.adapter.SendNotice(ctx, channelID, text); err != nil {
		e.log.Warn().Err(err).Str("channel_id", channelID).Msg("Failed to send notice")
	}
}

func (e *Engine) cmdStatus(ctx context.Context, msg *delivery.Message) {
	conn, err := e.db.Connection.GetByChannel(ctx, msg.ChannelID)
	if err != nil {
		e.notice(ctx, msg.ChannelID, "Something went wrong, try again later.")
		return
	}
	if conn == nil {
		e.notice(ctx, msg.ChannelID, "This channel is not connected to a portal.")
		return
	}
	portal, err := e.db.Portal.Get(ctx, conn.PortalID)
	if err != nil || portal == nil {
		e.notice(ctx, msg.ChannelID, "Something went wrong, try again later.")
		return
	}
	members, err := e.db.Connection.ListByPortal(ctx, conn.PortalID)
	if err != nil {
		e.notice(ctx, msg.ChannelID, "Something went wrong, try again later.")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s **%s** — %d connected channel(s)\n", e.displayEmoji(portal), portal.Name, len(members))
	for _, member := range members {
		fmt.Fprintf(&sb, "- #%s (%s)", member.ChannelName, member.GuildName)
		if member.GuildInvite != "" && member.ChannelID != msg.ChannelID {
			fmt.Fprintf(&sb, " — %s", member.GuildInvite)
		}
		sb.WriteByte('\n')
	}
	e.notice(ctx, msg.ChannelID, sb.String())
}

// cmdCreate runs the creation wizard: validate, collect the portal emoji
// via a bounded reaction wait, then write the portal and its first
// connection. The connection is only written once a webhook exists.
func (e *Engine) cmdCreate(ctx context.Context, msg *delivery.Message, args []string) {
	if len(args) == 0 {
		e.notice(ctx, msg.ChannelID, "Usage: `create <name> [password]`")
		return
	}
	existing, err := e.db.Connection.GetByChannel(ctx, msg.ChannelID)
	if err != nil {
		e.notice(ctx, msg.ChannelID, "Something went wrong, try again later.")
		return
	}
	if existing != nil {
		e.notice(ctx, msg.ChannelID, "This channel is already connected to a portal. `leave` first.")
		return
	}

	ch := e.adapter.ResolveChannel(ctx, msg.ChannelID)
	if ch == nil {
		return
	}
	cfg := e.getConfig()
	sess := &setupSession{
		UserID:    msg.AuthorID,
		ChannelID: msg.ChannelID,
		Name:      args[0],
		NSFW:      ch.NSFW,
		ExpiresAt: time.Now().Add(cfg.SetupTimeout),
	}
	if len(args) > 1 {
		sess.Password = args[1]
	}
	if !e.sessions.Start(sess) {
		e.notice(ctx, msg.ChannelID, "You already have a portal setup in progress.")
		return
	}
	defer e.sessions.End(msg.AuthorID)

	prompt, err := e.adapter.SendNotice(ctx, msg.ChannelID,
		fmt.Sprintf("Creating portal **%s** — react to this message with the portal's emoji within %s.", sess.Name, cfg.SetupTimeout))
	if err != nil {
		return
	}
	reaction, ok := e.AwaitReaction(ctx, cfg.SetupTimeout, func(evt *delivery.ReactionAdd) bool {
		return evt.MessageID == prompt.ID && evt.UserID == msg.AuthorID
	})
	if !ok {
		e.notice(ctx, msg.ChannelID, "Portal setup timed out.")
		return
	}

	portalID, err := e.db.Portal.GenerateID(ctx)
	if err != nil {
		e.notice(ctx, msg.ChannelID, "Something went wrong, try again later.")
		return
	}
	emoji, customEmoji := reaction.Emoji, false
	if id, ok := transform.ParseCustomEmoji(reaction.Emoji); ok {
		emoji, customEmoji = id, true
	}
	portal := &database.Portal{
		ID:          portalID,
		Name:        sess.Name,
		Emoji:       emoji,
		CustomEmoji: customEmoji,
		NSFW:        sess.NSFW,
		Exclusive:   sess.Password != "",
		Password:    sess.Password,
	}
	if err = e.db.Portal.Insert(ctx, portal); err != nil {
		e.notice(ctx, msg.ChannelID, "Something went wrong, try again later.")
		return
	}
	if err = e.connectChannel(ctx, portal, ch); err != nil {
		// Keep creation atomic: no portal without its first connection.
		_, _ = e.db.Portal.Delete(ctx, portalID)
		e.notice(ctx, msg.ChannelID, "Could not set up a relay identity in this channel (missing webhook permission?).")
		return
	}
	e.notice(ctx, msg.ChannelID, fmt.Sprintf("Portal %s **%s** created. Other channels can `join %s`.", e.displayEmoji(portal), portal.Name, portal.Name))
}

func (e *Engine) cmdJoin(ctx context.Context, msg *delivery.Message, args []string) {
	if len(args) == 0 {
		e.notice(ctx, msg.ChannelID, "Usage: `join <name> [password]`")
		return
	}
	existing, err := e.db.Connection.GetByChannel(ctx, msg.ChannelID)
	if err != nil {
		e.notice(ctx, msg.ChannelID, "Something went wrong, try again later.")
		return
	}
	if existing != nil {
		e.notice(ctx, msg.ChannelID, "This channel is already connected to a portal. `leave` first.")
		return
	}

	portal, err := e.findPortalByName(ctx, args[0])
	if err != nil {
		e.notice(ctx, msg.ChannelID, "Something went wrong, try again later.")
		return
	}
	if portal == nil {
		e.notice(ctx, msg.ChannelID, fmt.Sprintf("No portal named **%s** exists.", args[0]))
		return
	}
	if portal.Exclusive {
		if len(args) < 2 || args[1] != portal.Password {
			e.notice(ctx, msg.ChannelID, "Wrong password for this portal.")
			return
		}
	}
	ch := e.adapter.ResolveChannel(ctx, msg.ChannelID)
	if ch == nil {
		return
	}
	if portal.NSFW && !ch.NSFW {
		e.notice(ctx, msg.ChannelID, "This portal is NSFW and can only be joined from an age-restricted channel.")
		return
	}
	if err = e.connectChannel(ctx, portal, ch); err != nil {
		e.notice(ctx, msg.ChannelID, "Could not set up a relay identity in this channel (missing webhook permission?).")
		return
	}
	e.notice(ctx, msg.ChannelID, fmt.Sprintf("Connected to portal %s **%s**.", e.displayEmoji(portal), portal.Name))
}

// connectChannel creates the webhook first and only then the connection
// row, so a connection never exists without a confirmed send identity.
func (e *Engine) connectChannel(ctx context.Context, portal *database.Portal, ch *delivery.Channel) error {
	hook, err := e.adapter.CreateWebhook(ctx, ch.ID, webhookName)
	if err != nil {
		return fmt.Errorf("failed to create webhook: %w", err)
	}
	err = e.db.Connection.Insert(ctx, &database.Connection{
		ChannelID:    ch.ID,
		PortalID:     portal.ID,
		GuildID:      ch.GuildID,
		GuildName:    ch.GuildName,
		ChannelName:  ch.Name,
		WebhookID:    hook.ID,
		WebhookToken: hook.Token,
	})
	if err != nil {
		_ = e.adapter.DeleteWebhook(ctx, hook)
		return fmt.Errorf("failed to store connection: %w", err)
	}
	return nil
}

func (e *Engine) cmdLeave(ctx context.Context, msg *delivery.Message) {
	conn, err := e.db.Connection.Delete(ctx, msg.ChannelID)
	if err != nil {
		e.notice(ctx, msg.ChannelID, "Something went wrong, try again later.")
		return
	}
	if conn == nil {
		e.notice(ctx, msg.ChannelID, "This channel is not connected to a portal.")
		return
	}
	if conn.WebhookID != "" {
		_ = e.adapter.DeleteWebhook(ctx, connWebhook(conn))
	}
	e.notice(ctx, msg.ChannelID, "Disconnected this channel from its portal.")
}

func (e *Engine) cmdDelete(ctx context.Context, msg *delivery.Message) {
	conn, err := e.db.Connection.GetByChannel(ctx, msg.ChannelID)
	if err != nil {
		e.notice(ctx, msg.ChannelID, "Something went wrong, try again later.")
		return
	}
	if conn == nil {
		e.notice(ctx, msg.ChannelID, "This channel is not connected to a portal.")
		return
	}
	members, err := e.db.Connection.ListByPortal(ctx, conn.PortalID)
	if err != nil {
		e.notice(ctx, msg.ChannelID, "Something went wrong, try again later.")
		return
	}
	if len(members) != 1 {
		e.notice(ctx, msg.ChannelID, "A portal can only be deleted once every other channel has left it.")
		return
	}
	count, err := e.db.Portal.Count(ctx)
	if err != nil {
		e.notice(ctx, msg.ChannelID, "Something went wrong, try again later.")
		return
	}
	if count <= 1 {
		e.notice(ctx, msg.ChannelID, "Cannot delete the last portal.")
		return
	}
	portal, err := e.db.Portal.Delete(ctx, conn.PortalID)
	if err != nil || portal == nil {
		e.notice(ctx, msg.ChannelID, "Something went wrong, try again later.")
		return
	}
	if conn.WebhookID != "" {
		_ = e.adapter.DeleteWebhook(ctx, connWebhook(conn))
	}
	e.notice(ctx, msg.ChannelID, fmt.Sprintf("Portal **%s** deleted.", portal.Name))
}

func (e *Engine) cmdInvite(ctx context.Context, msg *delivery.Message) {
	conn, err := e.db.Connection.GetByChannel(ctx, msg.ChannelID)
	if err != nil {
		e.notice(ctx, msg.ChannelID, "Something went wrong, try again later.")
		return
	}
	if conn == nil {
		e.notice(ctx, msg.ChannelID, "This channel is not connected to a portal.")
		return
	}
	invite, err := e.adapter.CreateInvite(ctx, msg.ChannelID)
	if err != nil {
		e.notice(ctx, msg.ChannelID, "Could not create an invite for this channel.")
		return
	}
	conn.GuildInvite = invite
	if err = e.db.Connection.Update(ctx, conn); err != nil {
		e.notice(ctx, msg.ChannelID, "Something went wrong, try again later.")
		return
	}
	e.notice(ctx, msg.ChannelID, "Invite attached — other portal members will now see it in `portal`.")
}

func (e *Engine) cmdLimit(ctx context.Context, msg *delivery.Message, ban bool, args []string) {
	if len(args) == 0 {
		e.notice(ctx, msg.ChannelID, "Usage: `ban <user> [reason]` / `limit <user> [reason]`")
		return
	}
	conn, err := e.db.Connection.GetByChannel(ctx, msg.ChannelID)
	if err != nil || conn == nil {
		e.notice(ctx, msg.ChannelID, "This channel is not connected to a portal.")
		return
	}
	userID := strings.Trim(args[0], "<@!>")
	limited := &database.LimitedAccount{
		UserID:   userID,
		PortalID: conn.PortalID,
		Reason:   strings.Join(args[1:], " "),
		Banned:   ban,
	}
	if !ban {
		limited.ChannelID = msg.ChannelID
	}
	if err = e.db.LimitedAccount.Set(ctx, limited); err != nil {
		e.notice(ctx, msg.ChannelID, "Something went wrong, try again later.")
		return
	}
	if ban {
		if err = e.adapter.RevokeSendPermission(ctx, msg.ChannelID, userID); err != nil {
			e.log.Debug().Err(err).Str("user_id", userID).Msg("Failed to revoke send permission after ban")
		}
		e.notice(ctx, msg.ChannelID, "User banned from this portal.")
	} else {
		e.notice(ctx, msg.ChannelID, "User limited to this channel.")
	}
}

func (e *Engine) cmdUnlimit(ctx context.Context, msg *delivery.Message, args []string) {
	if len(args) == 0 {
		e.notice(ctx, msg.ChannelID, "Usage: `unlimit <user>`")
		return
	}
	conn, err := e.db.Connection.GetByChannel(ctx, msg.ChannelID)
	if err != nil || conn == nil {
		e.notice(ctx, msg.ChannelID, "This channel is not connected to a portal.")
		return
	}
	userID := strings.Trim(args[0], "<@!>")
	if err = e.db.LimitedAccount.Delete(ctx, userID, conn.PortalID); err != nil {
		e.notice(ctx, msg.ChannelID, "Something went wrong, try again later.")
		return
	}
	e.notice(ctx, msg.ChannelID, "Restrictions removed.")
}

func (e *Engine) findPortalByName(ctx context.Context, name string) (*database.Portal, error) {
	portals, err := e.db.Portal.All(ctx)
	if err != nil {
		return nil, err
	}
	for _, portal := range portals {
		if strings.EqualFold(portal.Name, name) {
			return portal, nil
		}
	}
	return nil, nil
}
