// Copyright (C) 2025 MindCare AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindcare-ai/mindcare/services/chatbot/datatypes"
)

func newStaticRouter(registry *PersonalityRegistry) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/resources", HandleResources())
	router.GET("/personality", HandleGetPersonality(registry))
	router.POST("/personality", HandleSetPersonality(registry))
	router.POST("/crisis-check", HandleCrisisCheck())
	router.GET("/health", HandleHealth())
	return router
}

func TestHandleResources(t *testing.T) {
	router := newStaticRouter(NewPersonalityRegistry())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/resources", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp["status"])

	contacts, ok := resp["emergency_contacts"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "988", contacts["national_suicide_prevention_lifeline"])
	assert.Equal(t, "911", contacts["emergency_services"])

	tips, ok := resp["self_care_tips"].([]any)
	require.True(t, ok)
	assert.Len(t, tips, 7)
}

func TestPersonalityEndpoints(t *testing.T) {
	registry := NewPersonalityRegistry()
	router := newStaticRouter(registry)

	t.Run("default is supportive", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/personality", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "supportive", resp["personality"])
		available, ok := resp["available"].([]any)
		require.True(t, ok)
		assert.Len(t, available, 3)
	})

	t.Run("update to known label", func(t *testing.T) {
		body := bytes.NewBufferString(`{"personality":"Mindfulness"}`)
		req := httptest.NewRequest(http.MethodPost, "/personality", body)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		assert.Equal(t, "mindfulness", registry.Current(), "labels are case-folded")
	})

	t.Run("unknown label rejected", func(t *testing.T) {
		body := bytes.NewBufferString(`{"personality":"sarcastic"}`)
		req := httptest.NewRequest(http.MethodPost, "/personality", body)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusBadRequest, w.Code)

		var resp datatypes.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, datatypes.ErrorTypeValidation, resp.ErrorType)
		assert.Contains(t, resp.Message, "sarcastic")
		assert.Equal(t, "mindfulness", registry.Current(), "failed update leaves label unchanged")
	})

	t.Run("missing label rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/personality", bytes.NewBufferString(`{}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleCrisisCheck(t *testing.T) {
	router := newStaticRouter(NewPersonalityRegistry())

	check := func(t *testing.T, message string) map[string]any {
		t.Helper()
		payload, err := json.Marshal(map[string]string{"message": message})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/crisis-check", bytes.NewBuffer(payload))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		return resp
	}

	t.Run("flags crisis language", func(t *testing.T) {
		resp := check(t, "lately I feel like there's no reason to live")
		assert.Equal(t, true, resp["crisis_detected"])

		contacts, ok := resp["emergency_contacts"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "988", contacts["national_suicide_prevention_lifeline"])
	})

	t.Run("case insensitive matching", func(t *testing.T) {
		resp := check(t, "I keep thinking about SUICIDE")
		assert.Equal(t, true, resp["crisis_detected"])
	})

	t.Run("ordinary stress is not flagged", func(t *testing.T) {
		resp := check(t, "finals week is killing my sleep schedule")
		assert.Equal(t, false, resp["crisis_detected"])
		_, present := resp["emergency_contacts"]
		assert.False(t, present)
	})
}

func TestHandleHealth(t *testing.T) {
	router := newStaticRouter(NewPersonalityRegistry())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
