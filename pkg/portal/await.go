// portal - A cross-server message relay for chat channels.
// Copyright (C) 2026 Beaver Labs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package portal

import (
	"context"
	"sync"
	"time"

	"github.com/beaverbot/portal/pkg/delivery"
)

// reactionWaiters lets interactive flows intercept the next matching
// reaction event before it reaches the propagation path.
type reactionWaiters struct {
	lock    sync.Mutex
	waiters []*reactionWaiter
}

type reactionWaiter struct {
	filter func(*delivery.ReactionAdd) bool
	ch     chan *delivery.ReactionAdd
}

// deliver hands evt to the first matching waiter. Returns true when a
// waiter consumed the event.
func (w *reactionWaiters) deliver(evt *delivery.ReactionAdd) bool {
	w.lock.Lock()
	defer w.lock.Unlock()
	for i, waiter := range w.waiters {
		if waiter.filter(evt) {
			w.waiters = append(w.waiters[:i], w.waiters[i+1:]...)
			waiter.ch <- evt
			return true
		}
	}
	return false
}

func (w *reactionWaiters) register(filter func(*delivery.ReactionAdd) bool) *reactionWaiter {
	waiter := &reactionWaiter{filter: filter, ch: make(chan *delivery.ReactionAdd, 1)}
	w.lock.Lock()
	w.waiters = append(w.waiters, waiter)
	w.lock.Unlock()
	return waiter
}

func (w *reactionWaiters) unregister(waiter *reactionWaiter) {
	w.lock.Lock()
	defer w.lock.Unlock()
	for i, registered := range w.waiters {
		if registered == waiter {
			w.waiters = append(w.waiters[:i], w.waiters[i+1:]...)
			return
		}
	}
}

// AwaitReaction waits up to timeout for a reaction matching filter. The
// waiter is always removed, whether it fires, times out or the context is
// cancelled; nothing leaks on the timeout path.
func (e *Engine) AwaitReaction(ctx context.Context, timeout time.Duration, filter func(*delivery.ReactionAdd) bool) (*delivery.ReactionAdd, bool) {
	waiter := e.waiters.register(filter)
	defer e.waiters.unregister(waiter)
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case evt := <-waiter.ch:
		return evt, true
	case <-timer.C:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}
