// Copyright (C) 2025 MindCare AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindcare-ai/mindcare/services/chatbot/conversation"
	"github.com/mindcare-ai/mindcare/services/chatbot/datatypes"
	"github.com/mindcare-ai/mindcare/services/chatbot/prompt"
	"github.com/mindcare-ai/mindcare/services/chatbot/security"
	"github.com/mindcare-ai/mindcare/services/llm"
)

// =============================================================================
// Test Setup
// =============================================================================

// MockLLMClient implements llm.Client for handler testing.
//
// Allows simulating blocking replies, token-by-token streaming and errors.
type MockLLMClient struct {
	// Reply is returned by Generate.
	Reply string
	// GenerateError is returned as error by Generate.
	GenerateError error
	// StreamTokens are the fragments to emit during GenerateStream.
	StreamTokens []string
	// StreamError is returned as error by GenerateStream after emitting.
	StreamError error
	// LastPrompt stores the last prompt passed to either mode.
	LastPrompt string
	// GenerateCallCount tracks how many times Generate was called.
	GenerateCallCount int
}

func (m *MockLLMClient) Generate(ctx context.Context, prompt string) (string, error) {
	m.GenerateCallCount++
	m.LastPrompt = prompt
	if m.GenerateError != nil {
		return "", m.GenerateError
	}
	return m.Reply, nil
}

func (m *MockLLMClient) GenerateStream(ctx context.Context, prompt string, callback llm.StreamCallback) error {
	m.LastPrompt = prompt
	for _, token := range m.StreamTokens {
		if err := callback(token); err != nil {
			return err
		}
	}
	return m.StreamError
}

// newTestDeps builds a full pipeline around the given mock client.
func newTestDeps(client llm.Client) ChatDeps {
	store := conversation.NewStore()
	return ChatDeps{
		Store:              store,
		Validator:          security.NewValidator(),
		Composer:           prompt.NewComposer(store),
		Client:             client,
		FallbackToBlocking: true,
	}
}

func newChatRouter(deps ChatDeps) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/chat", HandleChat(deps))
	return router
}

func postChat(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// =============================================================================
// HandleChat Tests
// =============================================================================

func TestHandleChat_FullTurn(t *testing.T) {
	mockLLM := &MockLLMClient{Reply: "That sounds stressful. What's weighing on you most?"}
	deps := newTestDeps(mockLLM)
	router := newChatRouter(deps)

	w := postChat(router, `{"message":"I'm feeling overwhelmed by finals"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, mockLLM.Reply, resp.Response)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "TheraBot", resp.Personality)
	assert.Equal(t, 2, resp.MessageCount, "user message plus assistant reply")

	_, err := uuid.Parse(resp.SessionID)
	assert.NoError(t, err, "fresh session id should be a UUID")

	history := deps.Store.History(resp.SessionID)
	require.Len(t, history, 2)
	assert.Equal(t, datatypes.RoleUser, history[0].Role)
	assert.Equal(t, "I'm feeling overwhelmed by finals", history[0].Content)
	assert.Equal(t, datatypes.RoleAssistant, history[1].Role)
}

func TestAppendMessage_ReregistersEvictedSession(t *testing.T) {
	deps := newTestDeps(&MockLLMClient{})
	sessionID := deps.Store.Create()

	// Everything is idle relative to a cutoff an hour from now, so the
	// session disappears the way a sweep mid-request would remove it.
	deps.Store.EvictIdle(time.Now().Add(time.Hour))
	require.Empty(t, deps.Store.History(sessionID))

	appendMessage(deps, sessionID, datatypes.RoleUser, "still here")

	history := deps.Store.History(sessionID)
	require.Len(t, history, 1)
	assert.Equal(t, "still here", history[0].Content)
}

func TestHandleChat_PrefersStreamedReconstruction(t *testing.T) {
	mockLLM := &MockLLMClient{
		StreamTokens: []string{"I ", "understand"},
		Reply:        "should not be used",
	}
	deps := newTestDeps(mockLLM)
	router := newChatRouter(deps)

	w := postChat(router, `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "I understand", resp.Response)
	assert.Equal(t, 0, mockLLM.GenerateCallCount,
		"a non-empty stream needs no blocking retry")
}

func TestHandleChat_PromptExcludesCurrentMessage(t *testing.T) {
	mockLLM := &MockLLMClient{Reply: "ok"}
	deps := newTestDeps(mockLLM)
	router := newChatRouter(deps)

	sessionID := deps.Store.Create()
	deps.Store.Append(sessionID, datatypes.RoleUser, "earlier question")
	deps.Store.Append(sessionID, datatypes.RoleAssistant, "earlier answer")

	w := postChat(router, `{"message":"new question","session_id":"`+sessionID+`"}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Contains(t, mockLLM.LastPrompt, "user: earlier question")
	assert.Contains(t, mockLLM.LastPrompt, "assistant: earlier answer")
	// The new message belongs in the User slot, not the history block.
	assert.NotContains(t, mockLLM.LastPrompt, "user: new question")
	assert.True(t, strings.Contains(mockLLM.LastPrompt, "User: new question"))
}

func TestHandleChat_SanitizesBeforeStoring(t *testing.T) {
	mockLLM := &MockLLMClient{Reply: "ok"}
	deps := newTestDeps(mockLLM)
	router := newChatRouter(deps)

	w := postChat(router, `{"message":"  hello   there\n\n  friend  "}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	history := deps.Store.History(resp.SessionID)
	require.NotEmpty(t, history)
	assert.Equal(t, "hello there friend", history[0].Content)
}

func TestHandleChat_MissingMessage(t *testing.T) {
	deps := newTestDeps(&MockLLMClient{})
	router := newChatRouter(deps)

	w := postChat(router, `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp datatypes.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, datatypes.ErrorTypeValidation, resp.ErrorType)
}

func TestHandleChat_RejectsInjection(t *testing.T) {
	deps := newTestDeps(&MockLLMClient{})
	router := newChatRouter(deps)

	w := postChat(router, `{"message":"hi <script>alert(1)</script>"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp datatypes.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, datatypes.ErrorTypeValidation, resp.ErrorType)
	assert.Equal(t, 0, deps.Store.Count(), "no session mutation on rejected input")
}

func TestHandleChat_AutoRegistersWellFormedSession(t *testing.T) {
	mockLLM := &MockLLMClient{Reply: "hello"}
	deps := newTestDeps(mockLLM)
	router := newChatRouter(deps)

	unknownID := uuid.New().String()
	w := postChat(router, `{"message":"hi","session_id":"`+unknownID+`"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, unknownID, resp.SessionID)
	assert.True(t, deps.Store.Info(unknownID).Exists)
}

func TestHandleChat_RejectsMalformedSessionID(t *testing.T) {
	deps := newTestDeps(&MockLLMClient{})
	router := newChatRouter(deps)

	w := postChat(router, `{"message":"hi","session_id":"not-a-uuid"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp datatypes.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, datatypes.ErrorTypeValidation, resp.ErrorType)
}

func TestHandleChat_EmptyGenerationYieldsApology(t *testing.T) {
	mockLLM := &MockLLMClient{GenerateError: llm.ErrEmptyGeneration}
	deps := newTestDeps(mockLLM)
	router := newChatRouter(deps)

	w := postChat(router, `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, llm.Apology, resp.Response)

	history := deps.Store.History(resp.SessionID)
	require.Len(t, history, 2)
	assert.Equal(t, llm.Apology, history[1].Content)
}

func TestHandleChat_ConnectionRefusedIsServerError(t *testing.T) {
	mockLLM := &MockLLMClient{GenerateError: llm.ErrConnectionRefused}
	deps := newTestDeps(mockLLM)
	router := newChatRouter(deps)

	w := postChat(router, `{"message":"hi"}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var resp datatypes.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, datatypes.ErrorTypeServer, resp.ErrorType)
	assert.Contains(t, resp.Message, "Could not connect to AI model")

	// The user's message stays recorded with no assistant entry.
	ids := deps.Store.ListIDs()
	require.Len(t, ids, 1)
	history := deps.Store.History(ids[0])
	require.Len(t, history, 1)
	assert.Equal(t, datatypes.RoleUser, history[0].Role)
}

func TestHandleChat_TimeoutMessage(t *testing.T) {
	mockLLM := &MockLLMClient{GenerateError: llm.ErrTimeout}
	deps := newTestDeps(mockLLM)
	router := newChatRouter(deps)

	w := postChat(router, `{"message":"hi"}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var resp datatypes.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Message, "timed out")
}

func TestHandleChat_MultiTurnMemory(t *testing.T) {
	mockLLM := &MockLLMClient{Reply: "reply"}
	deps := newTestDeps(mockLLM)
	router := newChatRouter(deps)

	w := postChat(router, `{"message":"turn one"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var first datatypes.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))

	w = postChat(router, `{"message":"turn two","session_id":"`+first.SessionID+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var second datatypes.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))

	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, 4, second.MessageCount)
	assert.Contains(t, mockLLM.LastPrompt, "user: turn one",
		"second prompt should carry first turn in history")
}
