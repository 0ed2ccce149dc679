// Copyright (C) 2025 MindCare AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the chatbot service.
//
// This package contains middleware for per-client rate limiting and
// client identification. The rate limiter runs before validation and
// generation so that abusive clients are rejected cheaply.
//
// # Request Flow
//
//	Request
//	   │
//	   ▼
//	RateLimitMiddleware
//	   │
//	   ├─► ClientID(c) (X-Forwarded-For, else peer address)
//	   │
//	   ├─► limiter.Check(clientID)
//	   │
//	   └─► 429 with retry_after on rejection, else Next()
package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mindcare-ai/mindcare/services/chatbot/datatypes"
	"github.com/mindcare-ai/mindcare/services/chatbot/security"
)

// clientIDKey is the context key for the resolved client identity.
// Using a namespaced key prevents collisions with other context values.
const clientIDKey = "mindcare_client_id"

// =============================================================================
// Client Identification
// =============================================================================

// ClientID resolves the identity used for rate accounting.
//
// # Description
//
// When trustProxy is true and an X-Forwarded-For header is present, the
// first entry in the header is used. Otherwise the transport peer address
// is used with the port stripped. If neither source yields a value the
// client is bucketed as "unknown".
//
// # Inputs
//
//   - c: Gin context. Must not be nil.
//   - trustProxy: Whether to honor X-Forwarded-For. Only enable when the
//     service sits behind a proxy that overwrites the header, since
//     clients can otherwise spoof their way out of their own bucket.
//
// # Outputs
//
//   - string: Stable identity for this client, never empty.
func ClientID(c *gin.Context, trustProxy bool) string {
	if trustProxy {
		if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
			first := strings.TrimSpace(strings.SplitN(forwarded, ",", 2)[0])
			if first != "" {
				return first
			}
		}
	}
	// The peer address is read directly rather than through c.ClientIP,
	// which consults forwarding headers on its own trusted-proxy rules.
	if host, _, err := net.SplitHostPort(c.Request.RemoteAddr); err == nil && host != "" {
		return host
	}
	if addr := strings.TrimSpace(c.Request.RemoteAddr); addr != "" {
		return addr
	}
	return "unknown"
}

// GetClientID retrieves the identity stored by RateLimitMiddleware.
// Returns "unknown" when the middleware has not run for this request.
func GetClientID(c *gin.Context) string {
	if v, exists := c.Get(clientIDKey); exists {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return "unknown"
}

// =============================================================================
// Rate Limit Middleware
// =============================================================================

// RateLimitMiddleware creates a Gin middleware enforcing the per-client
// request budget.
//
// # Description
//
// Resolves the client identity, asks the limiter whether this request
// fits the sliding window, and rejects with 429 when it does not. The
// rejection body is the standard error envelope with error_type
// "rate_limit" and a retry_after hint in seconds. Allowed requests get
// the resolved identity stored in the context and proceed.
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently; the
// limiter serializes its own state.
func RateLimitMiddleware(limiter *security.RateLimiter, trustProxy bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := ClientID(c, trustProxy)
		c.Set(clientIDKey, clientID)

		allowed, message := limiter.Check(clientID)
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				datatypes.NewRateLimitError(message, limiter.RetryAfter()))
			return
		}

		c.Next()
	}
}
