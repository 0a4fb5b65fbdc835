// portal - A cross-server message relay for chat channels.
// Copyright (C) 2026 Beaver Labs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package transform normalizes source messages into portable relay
// payloads. Everything here is pure except the sticker cache, which keeps
// converted sticker files on disk.
package transform

import (
	"github.com/beaverbot/portal/pkg/delivery"
)

// embedTypeRich is the only embed type worth relaying; image/video embeds
// are auto-generated from links already present in the message body.
const embedTypeRich = "rich"

// CleanEmbeds drops every non-rich embed.
func CleanEmbeds(embeds []delivery.Embed) []delivery.Embed {
	cleaned := embeds[:0:0]
	for _, embed := range embeds {
		if embed.Type == embedTypeRich {
			cleaned = append(cleaned, embed)
		}
	}
	return cleaned
}
