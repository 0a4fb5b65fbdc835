// portal - A cross-server message relay for chat channels.
// Copyright (C) 2026 Beaver Labs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package sequencer serializes dependent async work per key. Tasks sharing
// a key run strictly in submission order, one at a time; tasks with
// different keys run concurrently. This is what guarantees an edit or
// delete event for a message never runs before that message's create
// fan-out has registered its rows.
package sequencer

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"
)

// Task is one unit of keyed work. It must handle its own domain errors;
// panics are recovered and logged so the queue keeps draining.
type Task func(ctx context.Context)

type queue struct {
	tasks []Task
}

type Sequencer struct {
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	lock   sync.Mutex
	queues map[string]*queue
}

func New(log zerolog.Logger) *Sequencer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Sequencer{
		log:    log.With().Str("component", "sequencer").Logger(),
		ctx:    ctx,
		cancel: cancel,
		queues: map[string]*queue{},
	}
}

// Enqueue appends task to key's queue. The queue is created lazily on
// first use and removed once it drains, so an idle sequencer holds no
// per-key state.
func (s *Sequencer) Enqueue(key string, task Task) {
	s.lock.Lock()
	q, ok := s.queues[key]
	if ok {
		q.tasks = append(q.tasks, task)
		s.lock.Unlock()
		return
	}
	q = &queue{tasks: []Task{task}}
	s.queues[key] = q
	s.wg.Add(1)
	s.lock.Unlock()
	go s.drain(key, q)
}

func (s *Sequencer) drain(key string, q *queue) {
	defer s.wg.Done()
	for {
		s.lock.Lock()
		if len(q.tasks) == 0 {
			delete(s.queues, key)
			s.lock.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks = q.tasks[1:]
		s.lock.Unlock()
		s.run(key, task)
	}
}

func (s *Sequencer) run(key string, task Task) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			s.log.Error().
				Str("key", key).
				Any("panic", panicErr).
				Str("stack", string(debug.Stack())).
				Msg("Queued task panicked")
		}
	}()
	task(s.ctx)
}

// QueuedKeys reports how many keys currently have live queues.
func (s *Sequencer) QueuedKeys() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.queues)
}

// Wait blocks until every queue has drained. Pending tasks still run.
func (s *Sequencer) Wait() {
	s.wg.Wait()
}

// Close cancels the context passed to tasks and waits for the queues to
// drain. Tasks are expected to return promptly once their context is done.
func (s *Sequencer) Close() {
	s.cancel()
	s.wg.Wait()
}
