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

	"go.mau.fi/util/dbutil"
)

// Connection is one channel's membership in a portal. A channel belongs to
// at most one portal; channel_id is the primary key.
type Connection struct {
	ChannelID string
	PortalID  string
	GuildID   string
	// GuildName and ChannelName are a display cache, refreshed
	// opportunistically during fan-out.
	GuildName   string
	ChannelName string
	GuildInvite string
	// WebhookID/WebhookToken are the channel-bound send identity. Empty
	// until first needed; never trusted without re-validation.
	WebhookID    string
	WebhookToken string
}

func newConnection(_ *dbutil.QueryHelper[*Connection]) *Connection {
	return &Connection{}
}

func (c *Connection) Scan(row dbutil.Scannable) (*Connection, error) {
	err := row.Scan(
		&c.ChannelID, &c.PortalID, &c.GuildID, &c.GuildName,
		&c.ChannelName, &c.GuildInvite, &c.WebhookID, &c.WebhookToken,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Connection) sqlVariables() []any {
	return []any{
		c.ChannelID, c.PortalID, c.GuildID, c.GuildName,
		c.ChannelName, c.GuildInvite, c.WebhookID, c.WebhookToken,
	}
}

type ConnectionQuery struct {
	*dbutil.QueryHelper[*Connection]
}

const (
	connectionColumns = `
		channel_id, portal_id, guild_id, guild_name, channel_name, guild_invite, webhook_id, webhook_token
	`
	getConnectionByChannelQuery = `SELECT` + connectionColumns + `FROM portal_connection WHERE channel_id=$1`
	getConnectionsByPortalQuery = `SELECT` + connectionColumns + `FROM portal_connection WHERE portal_id=$1 ORDER BY channel_id`
	getConnectionsByGuildQuery  = `SELECT` + connectionColumns + `FROM portal_connection WHERE guild_id=$1 ORDER BY channel_id`
	insertConnectionQuery       = `
		INSERT INTO portal_connection (channel_id, portal_id, guild_id, guild_name, channel_name, guild_invite, webhook_id, webhook_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	updateConnectionQuery = `
		UPDATE portal_connection
		SET portal_id=$2, guild_id=$3, guild_name=$4, channel_name=$5, guild_invite=$6, webhook_id=$7, webhook_token=$8
		WHERE channel_id=$1
	`
	deleteConnectionQuery = `DELETE FROM portal_connection WHERE channel_id=$1`
)

func (cq *ConnectionQuery) GetByChannel(ctx context.Context, channelID string) (*Connection, error) {
	return cq.QueryOne(ctx, getConnectionByChannelQuery, channelID)
}

func (cq *ConnectionQuery) ListByPortal(ctx context.Context, portalID string) ([]*Connection, error) {
	return cq.QueryMany(ctx, getConnectionsByPortalQuery, portalID)
}

func (cq *ConnectionQuery) ListByGuild(ctx context.Context, guildID string) ([]*Connection, error) {
	return cq.QueryMany(ctx, getConnectionsByGuildQuery, guildID)
}

func (cq *ConnectionQuery) Insert(ctx context.Context, conn *Connection) error {
	return cq.Exec(ctx, insertConnectionQuery, conn.sqlVariables()...)
}

// Update writes the full row back. Callers mutate the struct they loaded
// and call Update; partial updates are not worth a second code path.
func (cq *ConnectionQuery) Update(ctx context.Context, conn *Connection) error {
	return cq.Exec(ctx, updateConnectionQuery, conn.sqlVariables()...)
}

// Delete removes the connection and returns the deleted row, or nil if the
// channel had no connection.
func (cq *ConnectionQuery) Delete(ctx context.Context, channelID string) (*Connection, error) {
	conn, err := cq.GetByChannel(ctx, channelID)
	if err != nil || conn == nil {
		return nil, err
	}
	return conn, cq.Exec(ctx, deleteConnectionQuery, channelID)
}
