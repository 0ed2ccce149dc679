// Copyright (C) 2025 MindCare AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes wires the chatbot HTTP surface onto a gin router.
package routes

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mindcare-ai/mindcare/services/chatbot/handlers"
	"github.com/mindcare-ai/mindcare/services/chatbot/middleware"
	"github.com/mindcare-ai/mindcare/services/chatbot/security"
)

// Deps holds everything the route table needs.
type Deps struct {
	Chat        handlers.ChatDeps
	Limiter     *security.RateLimiter
	TrustProxy  bool
	Personality *handlers.PersonalityRegistry
	// AllowOrigins enables CORS for the listed origins; empty disables it.
	AllowOrigins []string
}

// SetupRoutes registers every endpoint. The rate limiter guards the two
// generation endpoints only; session reads and static content stay
// unmetered so a throttled client can still fetch crisis resources.
func SetupRoutes(router *gin.Engine, deps Deps) {
	if len(deps.AllowOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = deps.AllowOrigins
		router.Use(cors.New(corsConfig))
	}

	router.GET("/health", handlers.HandleHealth())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limited := router.Group("/",
		middleware.RateLimitMiddleware(deps.Limiter, deps.TrustProxy))
	{
		limited.POST("/chat", handlers.HandleChat(deps.Chat))
		limited.POST("/ai-chat", handlers.HandleChatStream(deps.Chat))
	}

	router.POST("/new-session", handlers.HandleNewSession(deps.Chat.Store, deps.Chat.Metrics))
	router.GET("/conversation/:sessionId", handlers.HandleGetConversation(deps.Chat.Store, deps.Chat.Validator))
	router.GET("/status", handlers.HandleStatus(deps.Chat.Store))

	router.GET("/resources", handlers.HandleResources())
	router.GET("/personality", handlers.HandleGetPersonality(deps.Personality))
	router.POST("/personality", handlers.HandleSetPersonality(deps.Personality))
	router.POST("/crisis-check", handlers.HandleCrisisCheck())
}
