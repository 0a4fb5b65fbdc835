// portal - A cross-server message relay for chat channels.
// Copyright (C) 2026 Beaver Labs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package transform

import (
	"regexp"
)

// EmojiResolver answers whether the relay's own send identities can render
// a custom emoji, and where its CDN image lives if not.
type EmojiResolver interface {
	HasEmoji(id string) bool
	EmojiURL(id string, animated bool) string
}

// customEmojiPattern matches platform custom-emoji markup <:name:id> and
// its animated form <a:name:id>.
var customEmojiPattern = regexp.MustCompile(`<(a?):([A-Za-z0-9_~]+):([0-9]+)>`)

// reactionEmojiPattern matches the forms custom emoji show up in reaction
// events: bare "name:id" as well as full <a:name:id> markup.
var reactionEmojiPattern = regexp.MustCompile(`^<?(a?):?([A-Za-z0-9_~]+):([0-9]+)>?$`)

// ParseCustomEmoji extracts the platform id out of custom-emoji reaction
// markup. Plain unicode emoji return ok=false.
func ParseCustomEmoji(emoji string) (id string, ok bool) {
	parts := reactionEmojiPattern.FindStringSubmatch(emoji)
	if parts == nil {
		return "", false
	}
	return parts[3], true
}

// ConvertEmojis rewrites custom emoji the relaying identity cannot resolve
// cross-server. Resolvable emoji keep their markup (the client renders it
// anywhere), unresolvable ones become the stable CDN image URL so readers
// in other servers still see the image.
func ConvertEmojis(text string, resolver EmojiResolver) string {
	return customEmojiPattern.ReplaceAllStringFunc(text, func(match string) string {
		parts := customEmojiPattern.FindStringSubmatch(match)
		animated := parts[1] == "a"
		id := parts[3]
		if resolver != nil && resolver.HasEmoji(id) {
			return match
		}
		if resolver == nil {
			return match
		}
		return resolver.EmojiURL(id, animated)
	})
}
