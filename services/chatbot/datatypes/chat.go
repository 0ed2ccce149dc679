// Copyright (C) 2025 MindCare AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes holds the request, response and event shapes shared by
// the chat handlers and their clients.
package datatypes

import "time"

// Message roles. Every stored message carries exactly one of these.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single utterance in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /chat and POST /ai-chat.
// SessionID is optional; a fresh session is created when it is absent.
type ChatRequest struct {
	Message   string `json:"message" binding:"required"`
	SessionID string `json:"session_id"`
}

// ChatResponse is the success body of POST /chat.
type ChatResponse struct {
	Response     string `json:"response"`
	SessionID    string `json:"session_id"`
	MessageCount int    `json:"message_count"`
	Personality  string `json:"personality"`
	Status       string `json:"status"`
}

// NewSessionResponse is the body of POST /new-session.
type NewSessionResponse struct {
	SessionID   string `json:"session_id"`
	Message     string `json:"message"`
	Personality string `json:"personality"`
	Status      string `json:"status"`
}

// ConversationResponse is the body of GET /conversation/:sessionId.
type ConversationResponse struct {
	SessionID    string    `json:"session_id"`
	Exists       bool      `json:"exists"`
	MessageCount int       `json:"message_count"`
	Conversation []Message `json:"conversation"`
	Status       string    `json:"status"`
}

// PersonalityUpdateRequest is the body of POST /personality.
type PersonalityUpdateRequest struct {
	Personality string `json:"personality" binding:"required"`
}

// CrisisCheckRequest is the body of POST /crisis-check.
type CrisisCheckRequest struct {
	Message string `json:"message" binding:"required"`
}

// StreamEvent is one SSE event emitted by the /ai-chat relay.
//
// Type is one of "token", "error" or "done". Token events carry Content;
// error events carry Error; the done sentinel carries the session id so the
// client can continue the conversation.
type StreamEvent struct {
	Id        string `json:"id,omitempty"`
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	Error     string `json:"error,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	CreatedAt int64  `json:"created_at,omitempty"`
}

// Stream event types.
const (
	StreamEventToken = "token"
	StreamEventError = "error"
	StreamEventDone  = "done"
)

// Timestamp returns the wall-clock stamp used in error envelopes.
func Timestamp() string {
	return time.Now().Format(time.RFC3339)
}
