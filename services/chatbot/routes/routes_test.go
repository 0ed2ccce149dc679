// Copyright (C) 2025 MindCare AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindcare-ai/mindcare/services/chatbot/conversation"
	"github.com/mindcare-ai/mindcare/services/chatbot/datatypes"
	"github.com/mindcare-ai/mindcare/services/chatbot/handlers"
	"github.com/mindcare-ai/mindcare/services/chatbot/prompt"
	"github.com/mindcare-ai/mindcare/services/chatbot/security"
	"github.com/mindcare-ai/mindcare/services/llm"
)

// ============================================================================
// Test Setup
// ============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

// mockLLMClient is a minimal mock for llm.Client.
type mockLLMClient struct{}

func (m *mockLLMClient) Generate(_ context.Context, _ string) (string, error) {
	return "mock response", nil
}

func (m *mockLLMClient) GenerateStream(_ context.Context, _ string, callback llm.StreamCallback) error {
	return callback("mock stream")
}

func newTestRouter(maxRequests int) *gin.Engine {
	store := conversation.NewStore()
	router := gin.New()
	SetupRoutes(router, Deps{
		Chat: handlers.ChatDeps{
			Store:              store,
			Validator:          security.NewValidator(),
			Composer:           prompt.NewComposer(store),
			Client:             &mockLLMClient{},
			FallbackToBlocking: true,
		},
		Limiter:     security.NewRateLimiter(maxRequests, time.Minute),
		Personality: handlers.NewPersonalityRegistry(),
	})
	return router
}

// ============================================================================
// SetupRoutes Tests
// ============================================================================

func TestSetupRoutes_RegistersAllEndpoints(t *testing.T) {
	router := newTestRouter(100)

	expected := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"POST", "/chat"},
		{"POST", "/ai-chat"},
		{"POST", "/new-session"},
		{"GET", "/conversation/:sessionId"},
		{"GET", "/status"},
		{"GET", "/resources"},
		{"GET", "/personality"},
		{"POST", "/personality"},
		{"POST", "/crisis-check"},
	}

	registered := router.Routes()
	for _, want := range expected {
		found := false
		for _, r := range registered {
			if r.Method == want.method && r.Path == want.path {
				found = true
				break
			}
		}
		assert.True(t, found, "route %s %s should be registered", want.method, want.path)
	}
}

func TestSetupRoutes_ChatPipelineEndToEnd(t *testing.T) {
	router := newTestRouter(100)

	body := bytes.NewBufferString(`{"message":"hello"}`)
	req := httptest.NewRequest(http.MethodPost, "/chat", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "mock stream", resp.Response)

	// The streamed endpoint shares the pipeline and the session store.
	body = bytes.NewBufferString(`{"message":"again","session_id":"` + resp.SessionID + `"}`)
	req = httptest.NewRequest(http.MethodPost, "/ai-chat", body)
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "mock stream")
}

func TestSetupRoutes_RateLimiterGuardsGenerationOnly(t *testing.T) {
	router := newTestRouter(1)

	post := func(path string) int {
		body := bytes.NewBufferString(`{"message":"hello"}`)
		req := httptest.NewRequest(http.MethodPost, path, body)
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "10.1.2.3:5555"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	require.Equal(t, http.StatusOK, post("/chat"))
	assert.Equal(t, http.StatusTooManyRequests, post("/chat"))

	// A throttled client can still reach resources and session reads.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/resources", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSetupRoutes_CORSRespectsAllowedOrigins(t *testing.T) {
	store := conversation.NewStore()
	router := gin.New()
	SetupRoutes(router, Deps{
		Chat: handlers.ChatDeps{
			Store:     store,
			Validator: security.NewValidator(),
			Composer:  prompt.NewComposer(store),
			Client:    &mockLLMClient{},
		},
		Limiter:      security.NewRateLimiter(100, time.Minute),
		Personality:  handlers.NewPersonalityRegistry(),
		AllowOrigins: []string{"http://localhost:8080"},
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:8080")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://localhost:8080", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSetupRoutes_MetricsEndpointServesPrometheus(t *testing.T) {
	router := newTestRouter(100)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines",
		"default registry collectors should be exposed")
}
