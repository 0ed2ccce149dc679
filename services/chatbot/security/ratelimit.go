// Copyright (C) 2025 MindCare AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package security implements the abuse controls that run before any
// session mutation or upstream call: the sliding-window rate limiter and
// the input validation / sanitization chain.
package security

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// RateLimiter is an in-memory sliding-window request counter keyed by
// client identity. State does not survive a restart and is not shared
// across processes.
//
// For each client it keeps a queue of request timestamps. On every check
// the queue is pruned to the trailing window, so it never holds more than
// maxRequests entries nor any entry older than the window.
type RateLimiter struct {
	maxRequests int
	window      time.Duration

	mu       sync.Mutex
	requests map[string][]time.Time

	// now is injectable for tests.
	now func() time.Time
}

// NewRateLimiter creates a limiter allowing maxRequests per window.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	slog.Info("Rate limiter initialized",
		"max_requests", maxRequests,
		"window", window.String(),
	)
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    make(map[string][]time.Time),
		now:         time.Now,
	}
}

// Check reports whether a request from clientID is allowed right now.
// When the quota is exhausted it returns false and a human-readable
// message stating the limit. An allowed request is recorded immediately.
func (r *RateLimiter) Check(clientID string) (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)

	queue := r.requests[clientID]
	for len(queue) > 0 && queue[0].Before(cutoff) {
		queue = queue[1:]
	}

	if len(queue) >= r.maxRequests {
		r.requests[clientID] = queue
		slog.Warn("Rate limit exceeded", "client_id", clientID, "requests", len(queue))
		return false, fmt.Sprintf("Rate limit exceeded. Max %d requests per %d seconds.",
			r.maxRequests, int(r.window.Seconds()))
	}

	r.requests[clientID] = append(queue, now)
	return true, ""
}

// RetryAfter is the hint, in seconds, returned with rate_limit errors.
func (r *RateLimiter) RetryAfter() int {
	return int(r.window.Seconds())
}
