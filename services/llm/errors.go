// Copyright (C) 2025 MindCare AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// Failure taxonomy surfaced to the chat pipeline. Handlers match with
// errors.Is and convert to the uniform server-error response; none of
// these propagate raw to the caller.
var (
	// ErrTimeout indicates the upstream service did not answer in time.
	ErrTimeout = errors.New("generation request timed out")

	// ErrConnectionRefused indicates the upstream service is unreachable.
	ErrConnectionRefused = errors.New("could not connect to generation service")

	// ErrRequestFailed covers other transport or protocol failures.
	ErrRequestFailed = errors.New("generation request failed")

	// ErrMalformedResponse indicates an undecodable upstream payload.
	ErrMalformedResponse = errors.New("malformed response from generation service")

	// ErrEmptyGeneration indicates the upstream answered but produced no text.
	ErrEmptyGeneration = errors.New("generation produced no output")
)

// classifyTransportError maps a raw http.Client error onto the taxonomy.
// The original cause stays wrapped for logging; callers only match the
// sentinel.
func classifyTransportError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("%w: %v", ErrConnectionRefused, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrRequestFailed, err)
}
