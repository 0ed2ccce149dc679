// Copyright (C) 2025 MindCare AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mindcare-ai/mindcare/services/chatbot/datatypes"
	"github.com/mindcare-ai/mindcare/services/chatbot/observability"
	"github.com/mindcare-ai/mindcare/services/llm"
)

// heartbeatInterval is how often an SSE comment is sent to keep the
// connection open through proxies with idle timeouts (Nginx default 60s).
const heartbeatInterval = 15 * time.Second

// HandleChatStream returns the POST /ai-chat handler: same pipeline as
// POST /chat, but upstream fragments are relayed to the caller as SSE
// token events as they arrive.
//
// # Event Sequence
//
//	event: token
//	data: {"type":"token","content":"Hel","id":"...","created_at":...}
//
//	event: done
//	data: {"type":"done","session_id":"...","id":"...","created_at":...}
//
// A mid-stream failure emits an error event before the done sentinel, so
// the client always observes a terminated stream. Fragments delivered
// before the failure stand; the stored history keeps whatever was relayed.
//
// # Limitations
//
//   - Errors after the SSE handshake are events, not HTTP statuses
func HandleChatStream(deps ChatDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		ctx, span := chatTracer.Start(c.Request.Context(), "HandleChatStream")
		defer span.End()

		var req datatypes.ChatRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid request body")
			if deps.Metrics != nil {
				deps.Metrics.RecordRejection(observability.EndpointAIChat, observability.ReasonValidation)
			}
			c.JSON(http.StatusBadRequest,
				datatypes.NewValidationError("Message is required"))
			return
		}

		if ok, msg := deps.Validator.ValidateMessage(req.Message); !ok {
			if deps.Metrics != nil {
				deps.Metrics.RecordRejection(observability.EndpointAIChat, observability.ReasonValidation)
			}
			c.JSON(http.StatusBadRequest, datatypes.NewValidationError(msg))
			return
		}
		cleanMessage := deps.Validator.Sanitize(req.Message)

		sessionID, msg := resolveSession(deps, req.SessionID)
		if msg != "" {
			if deps.Metrics != nil {
				deps.Metrics.RecordRejection(observability.EndpointAIChat, observability.ReasonValidation)
			}
			c.JSON(http.StatusBadRequest, datatypes.NewValidationError(msg))
			return
		}
		span.SetAttributes(attribute.String("chat.session_id", sessionID))

		// Stream accounting starts only after validation so rejected
		// requests never touch the active-stream gauge or the
		// request counters.
		if deps.Metrics != nil {
			deps.Metrics.StreamStarted()
			defer deps.Metrics.StreamEnded()
		}

		success := false
		defer func() {
			if deps.Metrics != nil {
				deps.Metrics.RecordRequest(observability.EndpointAIChat, success)
				deps.Metrics.ObserveGeneration(observability.EndpointAIChat,
					observability.ModeStreaming, time.Since(start).Seconds())
			}
		}()

		enhancedPrompt := deps.Composer.Compose(sessionID, cleanMessage)
		appendMessage(deps, sessionID, datatypes.RoleUser, cleanMessage)

		// Validation errors above are HTTP statuses; from here on the SSE
		// handshake is done and failures become stream events.
		SetSSEHeaders(c.Writer)
		writer, err := NewSSEWriter(c.Writer)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "SSE setup failed")
			slog.Error("Failed to create SSE writer", "error", err)
			c.JSON(http.StatusInternalServerError,
				datatypes.NewServerError("Streaming not supported"))
			return
		}

		heartbeatDone := make(chan struct{})
		go runHeartbeat(ctx, writer, heartbeatDone)

		var reply strings.Builder
		streamErr := deps.Client.GenerateStream(ctx, enhancedPrompt, func(fragment string) error {
			if err := writer.WriteToken(fragment); err != nil {
				return err
			}
			reply.WriteString(fragment)
			if deps.Metrics != nil {
				deps.Metrics.RecordFragment()
			}
			return nil
		})

		close(heartbeatDone)

		if streamErr != nil {
			span.RecordError(streamErr)
			span.SetStatus(codes.Error, "streaming generation failed")

			switch {
			case errors.Is(streamErr, context.Canceled) || c.Request.Context().Err() != nil:
				slog.Info("Client disconnected mid-stream", "session_id", sessionID)
				if deps.Metrics != nil {
					deps.Metrics.RecordClientDisconnect()
				}
			case deps.FallbackToBlocking && reply.Len() == 0:
				// Nothing reached the client yet, so one blocking retry
				// can still produce a seamless reply.
				slog.Warn("Stream failed before first fragment, retrying blocking",
					"session_id", sessionID,
					"error", streamErr,
				)
				fallbackReply, fbErr := deps.Client.Generate(ctx, enhancedPrompt)
				if fbErr != nil || strings.TrimSpace(fallbackReply) == "" {
					if err := writer.WriteError(generationErrorMessage(streamErr)); err != nil {
						slog.Debug("Failed to write error event", "error", err)
					}
				} else {
					if err := writer.WriteToken(fallbackReply); err != nil {
						slog.Debug("Failed to write fallback token", "error", err)
					}
					reply.WriteString(fallbackReply)
					streamErr = nil
				}
			default:
				slog.Error("Streaming generation failed",
					"session_id", sessionID,
					"error", streamErr,
				)
				if err := writer.WriteError(generationErrorMessage(streamErr)); err != nil {
					slog.Debug("Failed to write error event", "error", err)
				}
			}
		}

		// Whatever reached the client is what the conversation remembers.
		finalReply := strings.TrimSpace(reply.String())
		if finalReply == "" && streamErr == nil {
			finalReply = llm.Apology
			if err := writer.WriteToken(finalReply); err != nil {
				slog.Debug("Failed to write apology token", "error", err)
			}
		}
		if finalReply != "" {
			appendMessage(deps, sessionID, datatypes.RoleAssistant, finalReply)
		}

		if err := writer.WriteDone(sessionID); err != nil {
			slog.Debug("Failed to write done event", "error", err)
		}

		success = streamErr == nil
	}
}

// runHeartbeat emits keepalive comments until done is closed or the
// request context ends. Write failures stop the heartbeat; the main
// relay loop notices the dead connection on its own.
func runHeartbeat(ctx context.Context, writer SSEWriter, done <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writer.WriteKeepAlive(); err != nil {
				slog.Debug("Failed to write keepalive", "error", err)
				return
			}
		}
	}
}
