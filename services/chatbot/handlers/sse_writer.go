// Copyright (C) 2025 MindCare AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mindcare-ai/mindcare/services/chatbot/datatypes"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SSEWriter defines the contract for writing Server-Sent Events to HTTP
// responses.
//
// # Description
//
// SSEWriter abstracts SSE event serialization and writing, enabling
// testability and separation from HTTP response mechanics. Implementations
// handle the SSE wire format (event: type\ndata: json\n\n) internally.
//
// Each event is automatically assigned:
//   - Id: UUID v4 for ordering and deduplication
//   - CreatedAt: Unix timestamp in milliseconds
//
// # Thread Safety
//
// Implementations must be safe for concurrent use by multiple goroutines.
//
// # Assumptions
//
//   - Caller has set SSE headers via SetSSEHeaders before the first write
type SSEWriter interface {
	// WriteEvent writes a single SSE event to the response. Id and
	// CreatedAt are auto-set. Flushes immediately after writing.
	WriteEvent(event datatypes.StreamEvent) error

	// WriteToken writes a token event with the given content. No
	// buffering; each fragment is sent immediately, in display order.
	WriteToken(content string) error

	// WriteError writes an error event to inform the client of a failure.
	// The message must already be sanitized; the stream is expected to be
	// closed with a done event afterwards.
	WriteError(errMsg string) error

	// WriteDone writes the final event indicating stream completion.
	// Includes the session id so the client can continue the
	// conversation. Should only be called once per stream.
	WriteDone(sessionID string) error

	// WriteKeepAlive sends an SSE comment line (": ping") to keep the
	// connection alive through proxies during long generations. Comments
	// are ignored by clients and are not events.
	WriteKeepAlive() error
}

// =============================================================================
// Implementation
// =============================================================================

// sseWriter implements SSEWriter for HTTP SSE responses.
//
// Each event is written as:
//
//	event: {type}
//	data: {json}
//
// Thread-safe via mutex. Cannot be reused across requests.
type sseWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// NewSSEWriter creates an SSEWriter for the given ResponseWriter.
// Returns an error when the ResponseWriter does not support flushing.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &sseWriter{
		writer:  w,
		flusher: flusher,
	}, nil
}

// SetSSEHeaders sets the response headers required for an SSE stream.
// Must be called before the first write.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func (w *sseWriter) WriteEvent(event datatypes.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	event.Id = uuid.New().String()
	event.CreatedAt = time.Now().UnixMilli()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	w.flusher.Flush()
	return nil
}

func (w *sseWriter) WriteToken(content string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:    datatypes.StreamEventToken,
		Content: content,
	})
}

func (w *sseWriter) WriteError(errMsg string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:  datatypes.StreamEventError,
		Error: errMsg,
	})
}

func (w *sseWriter) WriteDone(sessionID string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:      datatypes.StreamEventDone,
		SessionID: sessionID,
	})
}

func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprint(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}

	w.flusher.Flush()
	return nil
}
