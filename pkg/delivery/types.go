// portal - A cross-server message relay for chat channels.
// Copyright (C) 2026 Beaver Labs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package delivery

// Channel is the resolved view of a platform channel. GuildID/GuildName are
// the server the channel lives in; both are display data, not identity.
type Channel struct {
	ID        string
	GuildID   string
	GuildName string
	Name      string
	NSFW      bool
}

// Attachment is a file attached to a platform message. ContentType may be
// empty; callers are expected to sniff the payload in that case.
type Attachment struct {
	ID          string
	Filename    string
	URL         string
	Size        int64
	ContentType string
}

// Embed carries only the fields the relay needs: rich embeds are forwarded
// as-is, everything else is dropped before fan-out.
type Embed struct {
	Type        string
	Title       string
	Description string
	URL         string
	Color       int
}

// Sticker is an ephemeral sticker reference. Format is the platform format
// name ("png", "apng", "lottie", ...); URL points at the platform CDN.
type Sticker struct {
	ID     string
	Name   string
	Format string
	URL    string
}

// Message is the platform-neutral view of a chat message.
type Message struct {
	ID        string
	ChannelID string
	GuildID   string

	AuthorID        string
	AuthorName      string
	AuthorAvatarURL string
	AuthorIsBot     bool

	// WebhookID is set when the message was sent through a webhook
	// identity rather than a real user. Relayed copies produced by this
	// engine always carry one.
	WebhookID string

	Content     string
	Attachments []Attachment
	Embeds      []Embed
	Stickers    []Sticker

	// ReferencedMessageID/ReferencedChannelID identify the message this
	// one replies to, if any.
	ReferencedMessageID string
	ReferencedChannelID string
}

// Webhook is a channel-bound send identity. The token is the credential;
// platform-side the webhook may be revoked at any time.
type Webhook struct {
	ID        string
	Token     string
	ChannelID string
}

// File is an upload-ready attachment payload.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// WebhookPayload is one outgoing webhook send or edit. Username and
// AvatarURL override the webhook's defaults per call, which is how the
// original author is impersonated in target channels.
type WebhookPayload struct {
	Content   string
	Username  string
	AvatarURL string
	Embeds    []Embed
	Files     []File
}
