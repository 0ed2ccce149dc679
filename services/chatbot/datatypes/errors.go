// Copyright (C) 2025 MindCare AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// Error type discriminators. These are part of the API contract: clients
// switch on error_type, not on the human-readable message.
const (
	ErrorTypeValidation = "validation"
	ErrorTypeRateLimit  = "rate_limit"
	ErrorTypeServer     = "server"
)

// ErrorResponse is the uniform error envelope for every failing endpoint.
//
// RetryAfter is only set for rate_limit errors and is a hint in seconds.
// Internal failure detail (upstream addresses, stack traces) must never
// reach Message; handlers sanitize before building the envelope.
type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	ErrorType  string `json:"error_type"`
	Timestamp  string `json:"timestamp"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// NewValidationError builds the envelope for rejected input.
func NewValidationError(message string) ErrorResponse {
	return ErrorResponse{
		Error:     "Validation Error",
		Message:   message,
		ErrorType: ErrorTypeValidation,
		Timestamp: Timestamp(),
	}
}

// NewRateLimitError builds the envelope for an exhausted quota.
// retryAfter is the suggested wait in seconds.
func NewRateLimitError(message string, retryAfter int) ErrorResponse {
	return ErrorResponse{
		Error:      "Rate Limit Exceeded",
		Message:    message,
		ErrorType:  ErrorTypeRateLimit,
		Timestamp:  Timestamp(),
		RetryAfter: retryAfter,
	}
}

// NewServerError builds the envelope for upstream or internal failures.
func NewServerError(message string) ErrorResponse {
	return ErrorResponse{
		Error:     "Server Error",
		Message:   message,
		ErrorType: ErrorTypeServer,
		Timestamp: Timestamp(),
	}
}
