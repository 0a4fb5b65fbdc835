// portal - A cross-server message relay for chat channels.
// Copyright (C) 2026 Beaver Labs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package portal

import (
	"sync"
	"time"
)

// setupSession is the transient state of one user's in-progress portal
// creation. Sessions expire rather than being cancelled: an abandoned
// wizard simply stops existing after the deadline.
type setupSession struct {
	UserID    string
	ChannelID string
	Name      string
	Password  string
	NSFW      bool
	ExpiresAt time.Time
}

// sessionStore keeps at most one live setup session per user. Expired
// entries are swept lazily on access, no timer per entry.
type sessionStore struct {
	lock     sync.Mutex
	sessions map[string]*setupSession
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: map[string]*setupSession{}}
}

// Start registers a session unless the user already has a live one.
func (s *sessionStore) Start(sess *setupSession) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.sweepLocked()
	if _, exists := s.sessions[sess.UserID]; exists {
		return false
	}
	s.sessions[sess.UserID] = sess
	return true
}

// Get returns the user's live session, or nil.
func (s *sessionStore) Get(userID string) *setupSession {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.sweepLocked()
	return s.sessions[userID]
}

// End removes the user's session, live or not.
func (s *sessionStore) End(userID string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.sessions, userID)
}

func (s *sessionStore) sweepLocked() {
	now := time.Now()
	for userID, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, userID)
		}
	}
}
