// portal - A cross-server message relay for chat channels.
// Copyright (C) 2026 Beaver Labs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package delivery

// Event is the closed set of inbound platform events the engine consumes.
// Each kind carries only the fields valid for that kind.
type Event interface {
	isDeliveryEvent()
}

// MessageCreate is a newly posted message.
type MessageCreate struct {
	Message *Message
}

// MessageUpdate is an edit of an existing message. The Message is the
// post-edit state; platforms that deliver partial updates must resolve the
// full message before handing it over.
type MessageUpdate struct {
	Message *Message
}

// MessageDelete is a deletion. Only ids are available, the content is gone.
type MessageDelete struct {
	ChannelID string
	MessageID string
}

// ReactionAdd is a reaction applied to a message. Emoji is either a unicode
// emoji or platform custom-emoji markup.
type ReactionAdd struct {
	ChannelID string
	MessageID string
	UserID    string
	Emoji     string
}

func (MessageCreate) isDeliveryEvent() {}
func (MessageUpdate) isDeliveryEvent() {}
func (MessageDelete) isDeliveryEvent() {}
func (ReactionAdd) isDeliveryEvent()   {}
