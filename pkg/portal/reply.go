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
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/beaverbot/portal/pkg/database"
	"github.com/beaverbot/portal/pkg/delivery"
)

// replySentinel prefixes every reply preamble this engine prepends to a
// relayed copy. Edits detect it on the remote content: the remote copy,
// not local state, is the source of truth for what prefix exists.
const replySentinel = "-# ↩ "

// replyRefs maps target channel id to the local representative of the
// replied-to group in that channel. A nil map with hadReference set means
// the reply target could not be resolved at all.
type replyRefs struct {
	hadReference bool
	byChannel    map[string]*database.Message
}

// resolveReply finds the replied-to message's group and picks each target
// channel's local representative (the original or linked row in that
// channel, never a linked attachment). The lookup retries once after a
// short delay: a reply can be authored faster than its target's fan-out
// completes in other channels.
func (e *Engine) resolveReply(ctx context.Context, msg *delivery.Message) replyRefs {
	if msg.ReferencedMessageID == "" {
		return replyRefs{}
	}
	log := zerolog.Ctx(ctx)

	groupID, err := e.db.Message.GroupIDForMessage(ctx, msg.ReferencedMessageID)
	if err != nil {
		log.Err(err).Msg("Failed to look up reply target group")
		return replyRefs{hadReference: true}
	}
	if groupID == "" {
		select {
		case <-ctx.Done():
			return replyRefs{hadReference: true}
		case <-time.After(e.getConfig().ReplyLookupRetryDelay):
		}
		groupID, err = e.db.Message.GroupIDForMessage(ctx, msg.ReferencedMessageID)
		if err != nil || groupID == "" {
			log.Debug().
				Str("referenced_message_id", msg.ReferencedMessageID).
				Msg("Reply target has no portal mapping after retry")
			return replyRefs{hadReference: true}
		}
	}

	rows, err := e.db.Message.GetGroup(ctx, groupID)
	if err != nil {
		log.Err(err).Str("group_id", groupID).Msg("Failed to load reply target group")
		return replyRefs{hadReference: true}
	}
	refs := replyRefs{hadReference: true, byChannel: make(map[string]*database.Message, len(rows))}
	for _, row := range rows {
		if row.Type == database.MessageTypeLinkedAttachment {
			continue
		}
		refs.byChannel[row.ChannelID] = row
	}
	return refs
}

// preambleFor builds the per-channel reply preamble line, or "" when the
// message is not a reply. A reply whose target has no representative in
// the channel gets a visibly failed preamble rather than a silent drop.
func (e *Engine) preambleFor(refs replyRefs, channelID string) string {
	if !refs.hadReference {
		return ""
	}
	if row := refs.byChannel[channelID]; row != nil {
		return replySentinel + e.adapter.MessageLink(row.ChannelID, row.MessageID)
	}
	return replySentinel + "reply to an unlinked message"
}

// splitPreamble separates an engine-written preamble line from the rest of
// remote content, returning ("", content) when none is present.
func splitPreamble(content string) (preamble, rest string) {
	if !strings.HasPrefix(content, replySentinel) {
		return "", content
	}
	idx := strings.IndexByte(content, '\n')
	if idx < 0 {
		return content, ""
	}
	return content[:idx], content[idx+1:]
}
