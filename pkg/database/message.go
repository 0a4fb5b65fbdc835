// portal - A cross-server message relay for chat channels.
// Copyright (C) 2026 Beaver Labs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.mau.fi/util/dbutil"
	"go.mau.fi/util/random"
)

// MessageType classifies one row of a message group.
type MessageType string

const (
	// MessageTypeOriginal is the single row for the message in its source
	// channel. It is written last, after fan-out completes, so its
	// presence doubles as a "fan-out finished" signal.
	MessageTypeOriginal MessageType = "original"
	// MessageTypeLinked is the relayed copy in one target channel.
	MessageTypeLinked MessageType = "linked"
	// MessageTypeLinkedAttachment is a follow-up relayed message carrying
	// one overflow attachment that did not fit in the primary copy.
	MessageTypeLinkedAttachment MessageType = "linked_attachment"
)

// Message is one entry of the origin↔linked mapping. GroupID is shared by
// every row describing the same logical relayed message.
type Message struct {
	GroupID   string
	PortalID  string
	MessageID string
	ChannelID string
	Type      MessageType
	// AttachmentID ties a linked_attachment row back to the source
	// attachment, so an edit that drops the attachment can find and
	// delete the corresponding relayed message. Empty on other types.
	AttachmentID string
}

func newMessage(_ *dbutil.QueryHelper[*Message]) *Message {
	return &Message{}
}

func (m *Message) Scan(row dbutil.Scannable) (*Message, error) {
	err := row.Scan(&m.GroupID, &m.PortalID, &m.MessageID, &m.ChannelID, &m.Type, &m.AttachmentID)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Message) sqlVariables() []any {
	return []any{m.GroupID, m.PortalID, m.MessageID, m.ChannelID, m.Type, m.AttachmentID}
}

type MessageQuery struct {
	*dbutil.QueryHelper[*Message]
}

const (
	messageColumns = `
		group_id, portal_id, message_id, channel_id, message_type, attachment_id
	`
	getMessageGroupQuery = `SELECT` + messageColumns + `FROM portal_message WHERE group_id=$1 ORDER BY message_type, channel_id`
	insertMessageQuery   = `
		INSERT INTO portal_message (group_id, portal_id, message_id, channel_id, message_type, attachment_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	deleteMessageGroupQuery   = `DELETE FROM portal_message WHERE group_id=$1`
	deleteMessageRowQuery     = `DELETE FROM portal_message WHERE group_id=$1 AND message_id=$2`
	getGroupIDForMessageQuery = `SELECT group_id FROM portal_message WHERE message_id=$1 LIMIT 1`
	countGroupRowsQuery       = `SELECT COUNT(*) FROM portal_message WHERE group_id=$1`
)

func (mq *MessageQuery) Insert(ctx context.Context, msg *Message) error {
	return mq.Exec(ctx, insertMessageQuery, msg.sqlVariables()...)
}

func (mq *MessageQuery) GetGroup(ctx context.Context, groupID string) ([]*Message, error) {
	return mq.QueryMany(ctx, getMessageGroupQuery, groupID)
}

// DeleteGroup removes every row of the group and returns them, or nil if
// the group did not exist.
func (mq *MessageQuery) DeleteGroup(ctx context.Context, groupID string) ([]*Message, error) {
	rows, err := mq.GetGroup(ctx, groupID)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows, mq.Exec(ctx, deleteMessageGroupQuery, groupID)
}

func (mq *MessageQuery) DeleteRow(ctx context.Context, groupID, messageID string) error {
	return mq.Exec(ctx, deleteMessageRowQuery, groupID, messageID)
}

// GroupIDForMessage resolves a platform message id to its group id, or ""
// when the message has no portal mapping (yet).
func (mq *MessageQuery) GroupIDForMessage(ctx context.Context, messageID string) (string, error) {
	var groupID string
	err := mq.GetDB().QueryRow(ctx, getGroupIDForMessageQuery, messageID).Scan(&groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return groupID, err
}

// GenerateGroupID allocates a fresh group id, re-rolling on collision with
// existing rows.
func (mq *MessageQuery) GenerateGroupID(ctx context.Context) (string, error) {
	for range 32 {
		id := random.String(10)
		var count int
		if err := mq.GetDB().QueryRow(ctx, countGroupRowsQuery, id).Scan(&count); err != nil {
			return "", err
		}
		if count == 0 {
			return id, nil
		}
	}
	return "", fmt.Errorf("failed to generate unused group id")
}
