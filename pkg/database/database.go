// portal - A cross-server message relay for chat channels.
// Copyright (C) 2026 Beaver Labs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package database

import (
	"go.mau.fi/util/dbutil"

	"github.com/beaverbot/portal/pkg/database/upgrades"
)

// Database bundles the four portal stores over one dbutil connection.
// It owns persistence exclusively; no business logic lives here.
type Database struct {
	*dbutil.Database

	Portal         *PortalQuery
	Connection     *ConnectionQuery
	Message        *MessageQuery
	LimitedAccount *LimitedAccountQuery
}

// New wraps a dbutil database and attaches the portal schema upgrade table.
// Callers must run Upgrade before using the stores.
func New(db *dbutil.Database) *Database {
	db.UpgradeTable = upgrades.Table
	return &Database{
		Database:       db,
		Portal:         &PortalQuery{dbutil.MakeQueryHelper(db, newPortal)},
		Connection:     &ConnectionQuery{dbutil.MakeQueryHelper(db, newConnection)},
		Message:        &MessageQuery{dbutil.MakeQueryHelper(db, newMessage)},
		LimitedAccount: &LimitedAccountQuery{dbutil.MakeQueryHelper(db, newLimitedAccount)},
	}
}
