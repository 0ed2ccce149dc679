// Copyright (C) 2025 MindCare AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the HTTP endpoints of the chatbot service.
//
// Each handler is a closure over its dependencies, returned as a
// gin.HandlerFunc. The chat pipeline runs validation before any session
// mutation or upstream call; once the user message is stored, upstream
// failures leave it in history with no assistant entry.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mindcare-ai/mindcare/services/chatbot/conversation"
	"github.com/mindcare-ai/mindcare/services/chatbot/datatypes"
	"github.com/mindcare-ai/mindcare/services/chatbot/observability"
	"github.com/mindcare-ai/mindcare/services/chatbot/prompt"
	"github.com/mindcare-ai/mindcare/services/chatbot/security"
	"github.com/mindcare-ai/mindcare/services/llm"
)

var chatTracer = otel.Tracer("mindcare.chatbot.handlers")

// personaLabel is the label echoed in chat responses. It identifies the
// assistant, not the prompt content; see the personality registry.
const personaLabel = "TheraBot"

// ChatDeps bundles the pipeline dependencies shared by the blocking and
// streaming chat handlers.
type ChatDeps struct {
	Store     *conversation.Store
	Validator *security.Validator
	Composer  *prompt.Composer
	Client    llm.Client
	Metrics   *observability.ChatMetrics

	// FallbackToBlocking retries an empty or failed stream with one
	// blocking request when reconstructing a full reply.
	FallbackToBlocking bool
}

// resolveSession validates an explicit session id or mints a fresh one.
// Returns the id to use, or a validation message when the supplied id is
// malformed. Unknown but well-formed ids are registered rather than
// rejected, so clients may carry ids across restarts.
func resolveSession(deps ChatDeps, supplied string) (string, string) {
	if supplied == "" {
		id := deps.Store.Create()
		if deps.Metrics != nil {
			deps.Metrics.RecordSessionCreated(observability.OriginExplicit)
			deps.Metrics.SetActiveSessions(deps.Store.Count())
		}
		return id, ""
	}

	if ok, msg := deps.Validator.ValidateSessionID(supplied); !ok {
		return "", msg
	}

	if deps.Store.Ensure(supplied) {
		slog.Info("Auto-created session", "session_id", supplied)
		if deps.Metrics != nil {
			deps.Metrics.RecordSessionCreated(observability.OriginAuto)
			deps.Metrics.SetActiveSessions(deps.Store.Count())
		}
	}
	return supplied, ""
}

// appendMessage writes one turn entry, re-registering the session first
// when the idle sweeper evicted it between validation and the write.
func appendMessage(deps ChatDeps, sessionID, role, content string) {
	if deps.Store.Append(sessionID, role, content) {
		return
	}
	slog.Warn("Session evicted mid-request, re-registering", "session_id", sessionID)
	deps.Store.Ensure(sessionID)
	if !deps.Store.Append(sessionID, role, content) {
		slog.Error("Dropped a turn entry for evicted session", "session_id", sessionID)
	}
}

// generationErrorMessage maps a gateway failure to the user-facing message
// of the server error envelope. Internal detail (addresses, payloads) never
// reaches the caller.
func generationErrorMessage(err error) string {
	switch {
	case errors.Is(err, llm.ErrTimeout):
		return "AI model response timed out. Please try again."
	case errors.Is(err, llm.ErrConnectionRefused):
		return "Could not connect to AI model. Please ensure the model server is running."
	case errors.Is(err, llm.ErrMalformedResponse):
		return "Invalid response from AI model."
	default:
		return "AI model request failed."
	}
}

// HandleChat returns the POST /chat handler: full pipeline with
// conversation memory, security checks and blocking generation.
func HandleChat(deps ChatDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleChat")
		defer span.End()
		start := time.Now()

		var req datatypes.ChatRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if deps.Metrics != nil {
				deps.Metrics.RecordRejection(observability.EndpointChat, observability.ReasonValidation)
			}
			c.JSON(http.StatusBadRequest,
				datatypes.NewValidationError("Message is required"))
			return
		}

		if ok, msg := deps.Validator.ValidateMessage(req.Message); !ok {
			if deps.Metrics != nil {
				deps.Metrics.RecordRejection(observability.EndpointChat, observability.ReasonValidation)
			}
			c.JSON(http.StatusBadRequest, datatypes.NewValidationError(msg))
			return
		}
		cleanMessage := deps.Validator.Sanitize(req.Message)

		sessionID, msg := resolveSession(deps, req.SessionID)
		if msg != "" {
			if deps.Metrics != nil {
				deps.Metrics.RecordRejection(observability.EndpointChat, observability.ReasonValidation)
			}
			c.JSON(http.StatusBadRequest, datatypes.NewValidationError(msg))
			return
		}
		span.SetAttributes(attribute.String("chat.session_id", sessionID))

		// The prompt is composed before the new message is stored so the
		// history section holds prior turns only.
		enhancedPrompt := deps.Composer.Compose(sessionID, cleanMessage)
		appendMessage(deps, sessionID, datatypes.RoleUser, cleanMessage)

		reply, err := llm.Complete(ctx, deps.Client, enhancedPrompt, deps.FallbackToBlocking)
		if err != nil && !errors.Is(err, llm.ErrEmptyGeneration) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Generation failed", "session_id", sessionID, "error", err)
			if deps.Metrics != nil {
				deps.Metrics.RecordRequest(observability.EndpointChat, false)
			}
			c.JSON(http.StatusInternalServerError,
				datatypes.NewServerError(generationErrorMessage(err)))
			return
		}
		if err != nil || reply == "" {
			// Silent empty output degrades to the apology rather than an
			// error envelope, and the turn still completes.
			reply = llm.Apology
		}

		appendMessage(deps, sessionID, datatypes.RoleAssistant, reply)

		if deps.Metrics != nil {
			deps.Metrics.RecordRequest(observability.EndpointChat, true)
			deps.Metrics.ObserveGeneration(observability.EndpointChat,
				observability.ModeBlocking, time.Since(start).Seconds())
		}

		c.JSON(http.StatusOK, datatypes.ChatResponse{
			Response:     reply,
			SessionID:    sessionID,
			MessageCount: deps.Store.Info(sessionID).MessageCount,
			Personality:  personaLabel,
			Status:       "success",
		})
	}
}
