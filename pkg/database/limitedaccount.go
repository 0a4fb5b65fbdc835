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

// LimitedAccount is a per-user-per-portal abuse restriction. Banned blocks
// propagation everywhere in the portal; otherwise the user is limited to
// ChannelID and blocked elsewhere. A non-banned record matching the
// message's channel is informational only.
type LimitedAccount struct {
	UserID    string
	PortalID  string
	ChannelID string
	Reason    string
	Banned    bool
	Bot       bool
}

func newLimitedAccount(_ *dbutil.QueryHelper[*LimitedAccount]) *LimitedAccount {
	return &LimitedAccount{}
}

func (la *LimitedAccount) Scan(row dbutil.Scannable) (*LimitedAccount, error) {
	err := row.Scan(&la.UserID, &la.PortalID, &la.ChannelID, &la.Reason, &la.Banned, &la.Bot)
	if err != nil {
		return nil, err
	}
	return la, nil
}

func (la *LimitedAccount) sqlVariables() []any {
	return []any{la.UserID, la.PortalID, la.ChannelID, la.Reason, la.Banned, la.Bot}
}

type LimitedAccountQuery struct {
	*dbutil.QueryHelper[*LimitedAccount]
}

const (
	limitedAccountColumns = `
		user_id, portal_id, channel_id, reason, banned, is_bot
	`
	getLimitedAccountQuery    = `SELECT` + limitedAccountColumns + `FROM limited_account WHERE user_id=$1 AND portal_id=$2`
	listLimitedAccountsQuery  = `SELECT` + limitedAccountColumns + `FROM limited_account WHERE portal_id=$1 ORDER BY user_id`
	upsertLimitedAccountQuery = `
		INSERT INTO limited_account (user_id, portal_id, channel_id, reason, banned, is_bot)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, portal_id) DO UPDATE
			SET channel_id=excluded.channel_id, reason=excluded.reason, banned=excluded.banned, is_bot=excluded.is_bot
	`
	deleteLimitedAccountQuery = `DELETE FROM limited_account WHERE user_id=$1 AND portal_id=$2`
)

func (lq *LimitedAccountQuery) Get(ctx context.Context, userID, portalID string) (*LimitedAccount, error) {
	return lq.QueryOne(ctx, getLimitedAccountQuery, userID, portalID)
}

func (lq *LimitedAccountQuery) ListByPortal(ctx context.Context, portalID string) ([]*LimitedAccount, error) {
	return lq.QueryMany(ctx, listLimitedAccountsQuery, portalID)
}

// Set inserts or overwrites the restriction for (user, portal).
func (lq *LimitedAccountQuery) Set(ctx context.Context, la *LimitedAccount) error {
	return lq.Exec(ctx, upsertLimitedAccountQuery, la.sqlVariables()...)
}

func (lq *LimitedAccountQuery) Delete(ctx context.Context, userID, portalID string) error {
	return lq.Exec(ctx, deleteLimitedAccountQuery, userID, portalID)
}
