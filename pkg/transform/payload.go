// portal - A cross-server message relay for chat channels.
// Copyright (C) 2026 Beaver Labs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package transform

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/beaverbot/portal/pkg/delivery"
)

// AttachmentDownloader fetches an attachment payload for re-upload.
type AttachmentDownloader func(ctx context.Context, att *delivery.Attachment) ([]byte, error)

// Options carries the collaborators BuildPayload needs. Everything is
// optional; a nil field degrades to the corresponding content being
// dropped or passed through.
type Options struct {
	Emoji     EmojiResolver
	Stickers  *StickerCache
	Download  AttachmentDownloader
	SizeLimit int64
}

// Payload is the transform-independent relay payload built once per source
// message and shared by every target channel.
type Payload struct {
	Content string
	Embeds  []delivery.Embed
	// Files are small non-media attachments re-uploaded with the primary
	// relayed message.
	Files []delivery.File
	// Linkified are attachments relayed as URL follow-up messages, one
	// per attachment, so a single oversized file does not force every
	// attachment out of the primary payload.
	Linkified []delivery.Attachment
}

// BuildPayload runs the full content transform over a source message.
func BuildPayload(ctx context.Context, msg *delivery.Message, opts Options) *Payload {
	log := zerolog.Ctx(ctx)
	payload := &Payload{
		Content: ConvertEmojis(msg.Content, opts.Emoji),
		Embeds:  CleanEmbeds(msg.Embeds),
	}

	var remaining []delivery.Attachment
	payload.Linkified, remaining = ConvertAttachments(msg.Attachments, opts.SizeLimit)
	for _, att := range remaining {
		if opts.Download == nil {
			payload.Linkified = append(payload.Linkified, att)
			continue
		}
		data, err := opts.Download(ctx, &att)
		if err != nil {
			// Can't re-upload what we can't read; fall back to the link.
			log.Warn().Err(err).Str("attachment_id", att.ID).Msg("Failed to download attachment, linkifying")
			payload.Linkified = append(payload.Linkified, att)
			continue
		}
		payload.Files = append(payload.Files, FileFromData(att, data))
	}

	if opts.Stickers != nil {
		for _, sticker := range msg.Stickers {
			sticker := sticker
			file, err := opts.Stickers.File(ctx, &sticker)
			if err != nil {
				if !errors.Is(err, ErrUnsupportedSticker) {
					log.Warn().Err(err).Str("sticker_id", sticker.ID).Msg("Failed to convert sticker")
				}
				continue
			}
			payload.Files = append(payload.Files, *file)
		}
	}

	// Degenerate-message rule: a message reduced to nothing but linkified
	// attachments would send empty, so the first link becomes the body.
	if payload.Content == "" && len(payload.Embeds) == 0 && len(payload.Files) == 0 &&
		len(payload.Linkified) > 0 {
		payload.Content = payload.Linkified[0].URL
		payload.Linkified = payload.Linkified[1:]
	}

	return payload
}
