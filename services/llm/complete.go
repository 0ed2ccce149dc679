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
	"log/slog"
	"strings"
)

// Apology is the fixed reply substituted when generation yields nothing
// through every configured mode. It is user-facing text, not an error.
const Apology = "I apologize, but I couldn't generate a proper response. Please try again."

// Complete reconstructs a full reply from the streaming mode by
// concatenating extracted fragments in arrival order.
//
// If the stream completes with an empty reconstruction, or the streaming
// request fails before any fragment is read, one blocking request is tried
// before giving up. When fallback is false the streaming outcome stands,
// since doubling upstream load on failure is a policy choice the caller
// must pick explicitly.
func Complete(ctx context.Context, client Client, prompt string, fallback bool) (string, error) {
	var b strings.Builder
	streamErr := client.GenerateStream(ctx, prompt, func(fragment string) error {
		b.WriteString(fragment)
		return nil
	})

	reply := strings.TrimSpace(b.String())
	if streamErr == nil && reply != "" {
		return reply, nil
	}

	if streamErr != nil && b.Len() > 0 {
		// The stream died mid-reply. A blocking retry would answer a
		// question the user already saw half an answer to; surface the
		// failure instead.
		return "", streamErr
	}

	if !fallback {
		if streamErr != nil {
			return "", streamErr
		}
		return "", ErrEmptyGeneration
	}

	if streamErr != nil {
		slog.Warn("Streaming generation failed, falling back to blocking mode", "error", streamErr)
	} else {
		slog.Warn("Streaming generation was empty, falling back to blocking mode")
	}

	reply, err := client.Generate(ctx, prompt)
	if err != nil {
		if errors.Is(err, ErrEmptyGeneration) {
			return "", ErrEmptyGeneration
		}
		return "", err
	}
	return reply, nil
}
