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
	"fmt"

	"go.mau.fi/util/dbutil"
	"go.mau.fi/util/random"
)

// Portal is a named relay group joined by channels.
type Portal struct {
	ID    string
	Name  string
	Emoji string
	// CustomEmoji marks Emoji as a platform custom emoji id that must be
	// resolved per channel instead of shown as literal text.
	CustomEmoji bool
	NSFW        bool
	Exclusive   bool
	// Password must be non-empty iff Exclusive is set.
	Password string
}

func newPortal(_ *dbutil.QueryHelper[*Portal]) *Portal {
	return &Portal{}
}

func (p *Portal) Scan(row dbutil.Scannable) (*Portal, error) {
	err := row.Scan(&p.ID, &p.Name, &p.Emoji, &p.CustomEmoji, &p.NSFW, &p.Exclusive, &p.Password)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Portal) sqlVariables() []any {
	return []any{p.ID, p.Name, p.Emoji, p.CustomEmoji, p.NSFW, p.Exclusive, p.Password}
}

type PortalQuery struct {
	*dbutil.QueryHelper[*Portal]
}

const (
	getPortalQuery = `
		SELECT id, name, emoji, custom_emoji, nsfw, exclusive, password FROM portal WHERE id=$1
	`
	getAllPortalsQuery = `
		SELECT id, name, emoji, custom_emoji, nsfw, exclusive, password FROM portal ORDER BY name
	`
	insertPortalQuery = `
		INSERT INTO portal (id, name, emoji, custom_emoji, nsfw, exclusive, password)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	deletePortalQuery            = `DELETE FROM portal WHERE id=$1`
	deletePortalConnectionsQuery = `DELETE FROM portal_connection WHERE portal_id=$1`
	deletePortalMessagesQuery    = `DELETE FROM portal_message WHERE portal_id=$1`
	deletePortalLimitsQuery      = `DELETE FROM limited_account WHERE portal_id=$1`
	countPortalsQuery            = `SELECT COUNT(*) FROM portal`
)

func (pq *PortalQuery) Get(ctx context.Context, id string) (*Portal, error) {
	return pq.QueryOne(ctx, getPortalQuery, id)
}

func (pq *PortalQuery) All(ctx context.Context) ([]*Portal, error) {
	return pq.QueryMany(ctx, getAllPortalsQuery)
}

func (pq *PortalQuery) Count(ctx context.Context) (count int, err error) {
	err = pq.GetDB().QueryRow(ctx, countPortalsQuery).Scan(&count)
	return
}

func (pq *PortalQuery) Insert(ctx context.Context, portal *Portal) error {
	return pq.Exec(ctx, insertPortalQuery, portal.sqlVariables()...)
}

// Delete removes the portal and everything hanging off it (connections,
// message links, limited accounts) as one transaction.
func (pq *PortalQuery) Delete(ctx context.Context, id string) (*Portal, error) {
	portal, err := pq.Get(ctx, id)
	if err != nil || portal == nil {
		return nil, err
	}
	err = pq.GetDB().DoTxn(ctx, nil, func(ctx context.Context) error {
		for _, query := range []string{
			deletePortalMessagesQuery,
			deletePortalConnectionsQuery,
			deletePortalLimitsQuery,
			deletePortalQuery,
		} {
			if err := pq.Exec(ctx, query, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return portal, nil
}

// GenerateID allocates a fresh portal id. Ids are short opaque strings, so
// uniqueness is guaranteed by re-rolling until the id is unused.
func (pq *PortalQuery) GenerateID(ctx context.Context) (string, error) {
	for range 32 {
		id := random.String(5)
		existing, err := pq.Get(ctx, id)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return id, nil
		}
	}
	return "", fmt.Errorf("failed to generate unused portal id")
}
