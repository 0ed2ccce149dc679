// Copyright (C) 2025 MindCare AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides the generation gateway: clients for upstream text
// generation services, in blocking and streaming modes, with a shared
// failure taxonomy.
package llm

import "context"

// Options is the fixed generation parameter set sent verbatim with every
// request. It is configured once per client and not negotiable per call.
type Options struct {
	Temperature float32
	NumCtx      int
	NumPredict  int
	TopP        float32
}

// DefaultOptions are the tuned values for therapeutic responses.
func DefaultOptions() Options {
	return Options{
		Temperature: 0.6,
		NumCtx:      3000,
		NumPredict:  300,
		TopP:        0.7,
	}
}

// StreamCallback receives each non-empty extracted fragment during
// streaming, in arrival order. Returning an error aborts the stream.
type StreamCallback func(fragment string) error

// Client is the standard interface for any generation backend.
type Client interface {
	// Generate issues one blocking request and returns the full reply.
	// An absent or empty reply fails with ErrEmptyGeneration.
	Generate(ctx context.Context, prompt string) (string, error)

	// GenerateStream issues a streaming request and forwards each
	// extracted fragment to callback as it arrives, with no buffering
	// beyond a single fragment.
	GenerateStream(ctx context.Context, prompt string, callback StreamCallback) error
}
