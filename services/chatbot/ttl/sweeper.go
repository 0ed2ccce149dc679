// Copyright (C) 2025 MindCare AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ttl evicts idle chat sessions from the in-memory store.
//
// Histories are volatile and unbounded by contract; the sweeper bounds
// worst-case memory growth by removing sessions that have seen no
// activity for the configured idle timeout. There is nothing to flush or
// roll back, so a sweep is a single store call.
package ttl

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mindcare-ai/mindcare/services/chatbot/conversation"
	"github.com/mindcare-ai/mindcare/services/chatbot/observability"
)

// SweeperConfig holds the sweep cadence and the idle cutoff.
//
// # Fields
//
//   - Interval: How often a sweep runs.
//   - IdleTimeout: Sessions with no activity for this long are evicted.
type SweeperConfig struct {
	Interval    time.Duration
	IdleTimeout time.Duration
}

// DefaultSweeperConfig returns the production defaults: sweep every ten
// minutes, evict after an hour idle.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:    10 * time.Minute,
		IdleTimeout: time.Hour,
	}
}

// Sweeper periodically evicts idle sessions. Uses the ticker + done
// channel pattern for graceful shutdown. Only one sweeper should run per
// process.
type Sweeper struct {
	store   *conversation.Store
	metrics *observability.ChatMetrics
	config  SweeperConfig
	now     func() time.Time

	done    chan struct{}
	mu      sync.Mutex
	running bool
}

// NewSweeper creates a sweeper over the given store. metrics may be nil.
func NewSweeper(store *conversation.Store, metrics *observability.ChatMetrics, config SweeperConfig) *Sweeper {
	return &Sweeper{
		store:   store,
		metrics: metrics,
		config:  config,
		now:     time.Now,
		done:    make(chan struct{}),
	}
}

// Start begins the background sweep loop. The loop runs until Stop is
// called or the context is cancelled. Returns an error when the sweeper
// is already running.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweeper is already running")
	}
	s.running = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	slog.Info("Session sweeper starting",
		"interval", s.config.Interval.String(),
		"idle_timeout", s.config.IdleTimeout.String(),
	)

	go s.runLoop(ctx)
	return nil
}

// Stop signals the sweep loop to exit. Safe to call multiple times.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	slog.Info("Session sweeper stopping")
	close(s.done)
	s.running = false
}

// RunNow performs one sweep immediately and returns the evicted session
// identifiers. Exposed for operational tooling and tests.
func (s *Sweeper) RunNow() []string {
	cutoff := s.now().Add(-s.config.IdleTimeout)
	evicted := s.store.EvictIdle(cutoff)

	if len(evicted) > 0 {
		slog.Info("Evicted idle sessions",
			"count", len(evicted),
			"remaining", s.store.Count(),
		)
	} else {
		slog.Debug("Sweep found no idle sessions")
	}

	if s.metrics != nil {
		s.metrics.RecordEvictions(len(evicted), s.store.Count())
	}
	return evicted
}

func (s *Sweeper) runLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Session sweeper stopped (context cancelled)")
			return
		case <-s.done:
			slog.Info("Session sweeper stopped (stop requested)")
			return
		case <-ticker.C:
			s.RunNow()
		}
	}
}
