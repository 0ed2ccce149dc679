// Copyright (C) 2025 MindCare AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mindcare-ai/mindcare/services/chatbot/conversation"
	"github.com/mindcare-ai/mindcare/services/chatbot/datatypes"
	"github.com/mindcare-ai/mindcare/services/chatbot/observability"
	"github.com/mindcare-ai/mindcare/services/chatbot/security"
)

// HandleNewSession returns the POST /new-session handler. It registers an
// empty session and hands the identifier to the client for use on
// subsequent chat calls.
func HandleNewSession(store *conversation.Store, metrics *observability.ChatMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := store.Create()
		slog.Info("Created new session", "session_id", sessionID)

		if metrics != nil {
			metrics.RecordSessionCreated(observability.OriginExplicit)
			metrics.SetActiveSessions(store.Count())
		}

		c.JSON(http.StatusOK, datatypes.NewSessionResponse{
			SessionID:   sessionID,
			Message:     "New conversation started! I'm TheraBot, here to support you through your thoughts and emotions.",
			Personality: personaLabel,
			Status:      "success",
		})
	}
}

// HandleGetConversation returns the GET /conversation/:sessionId handler.
// Unknown identifiers are reported with exists=false and an empty log
// rather than an error; malformed identifiers are rejected.
func HandleGetConversation(store *conversation.Store, validator *security.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")

		if ok, msg := validator.ValidateSessionID(sessionID); !ok {
			c.JSON(http.StatusBadRequest, datatypes.NewValidationError(msg))
			return
		}

		info := store.Info(sessionID)
		c.JSON(http.StatusOK, datatypes.ConversationResponse{
			SessionID:    sessionID,
			Exists:       info.Exists,
			MessageCount: info.MessageCount,
			Conversation: store.History(sessionID),
			Status:       "success",
		})
	}
}

// HandleStatus returns the GET /status handler with aggregate counters
// and feature flags.
func HandleStatus(store *conversation.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":            "running",
			"active_sessions":   store.Count(),
			"evicted_sessions":  store.EvictedTotal(),
			"therapeutic_focus": "College student mental health support",
			"crisis_detection":  "Enabled with automatic referral suggestions",
			"security_features": gin.H{
				"rate_limiting":    true,
				"input_validation": true,
				"spam_detection":   true,
			},
			"version": "2.0.0 - Therapy Assistant",
		})
	}
}
