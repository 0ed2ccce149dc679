// Copyright (C) 2025 MindCare AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package conversation implements the in-memory session store: an
// append-only message log per session identifier.
//
// The store is process-local and volatile. It is injected into the request
// pipeline rather than held as ambient global state, and all access is
// guarded so concurrent requests against the same session cannot lose an
// append.
package conversation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mindcare-ai/mindcare/services/chatbot/datatypes"
)

// StoredMessage is one entry in a session's log. Immutable once appended.
type StoredMessage struct {
	Role      string
	Content   string
	Timestamp time.Time
}

// session holds the log and the bookkeeping used by the idle sweeper.
type session struct {
	messages   []StoredMessage
	createdAt  time.Time
	lastActive time.Time
}

// SessionInfo reports existence and size for a session identifier.
type SessionInfo struct {
	Exists       bool
	MessageCount int
}

// Store maps session identifiers to ordered message logs.
//
// A single RWMutex guards the map and the per-session slices. Append order
// within one session is the lock acquisition order, which satisfies the
// per-session ordering guarantee without global serialization of reads.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session
	evicted  uint64

	// now is injectable for tests.
	now func() time.Time
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*session),
		now:      time.Now,
	}
}

// Create registers a new empty session and returns its identifier.
// Identifiers are v4 UUIDs; collisions are treated as negligible.
func (s *Store) Create() string {
	id := uuid.New().String()

	s.mu.Lock()
	now := s.now()
	s.sessions[id] = &session{createdAt: now, lastActive: now}
	s.mu.Unlock()

	slog.Info("New session created", "session_id", id)
	return id
}

// Ensure registers id with an empty log if it is not already known.
// Returns true when the session was auto-created. This is the
// create-on-first-use path for externally supplied identifiers that have
// already passed format validation.
func (s *Store) Ensure(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; ok {
		return false
	}
	now := s.now()
	s.sessions[id] = &session{createdAt: now, lastActive: now}
	slog.Info("Auto-created session", "session_id", id)
	return true
}

// Append adds a message with the current timestamp to an existing session.
// Returns false, without error, when the identifier is unknown.
func (s *Store) Append(id, role, content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		slog.Warn("Append to unknown session", "session_id", id)
		return false
	}
	now := s.now()
	sess.messages = append(sess.messages, StoredMessage{
		Role:      role,
		Content:   content,
		Timestamp: now,
	})
	sess.lastActive = now
	return true
}

// History returns the session's messages in append order, as role/content
// pairs. Unknown identifiers yield an empty slice, not an error.
func (s *Store) History(id string) []datatypes.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return []datatypes.Message{}
	}
	history := make([]datatypes.Message, len(sess.messages))
	for i, m := range sess.messages {
		history[i] = datatypes.Message{Role: m.Role, Content: m.Content}
	}
	return history
}

// Info reports whether id exists and how many messages it holds.
func (s *Store) Info(id string) SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return SessionInfo{}
	}
	return SessionInfo{Exists: true, MessageCount: len(sess.messages)}
}

// ListIDs returns the identifiers of all known sessions, in no particular
// order.
func (s *Store) ListIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of active sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// EvictIdle removes every session whose last activity is older than cutoff
// and returns the evicted identifiers. Used by the TTL sweeper; histories
// are volatile so there is nothing to flush.
func (s *Store) EvictIdle(cutoff time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []string
	for id, sess := range s.sessions {
		if sess.lastActive.Before(cutoff) {
			delete(s.sessions, id)
			evicted = append(evicted, id)
		}
	}
	s.evicted += uint64(len(evicted))
	return evicted
}

// EvictedTotal returns the number of sessions removed by idle sweeps since
// startup.
func (s *Store) EvictedTotal() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.evicted
}
