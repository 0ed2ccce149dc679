// Copyright (C) 2025 MindCare AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("mindcare.llm.ollama")

// OllamaClient talks to a local Ollama-compatible server over
// /api/generate, in both blocking and NDJSON streaming modes.
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
	options    Options
}

// NewOllamaClient creates a client for the given base URL and model.
// timeout bounds every blocking and streaming request end to end.
func NewOllamaClient(baseURL, model string, options Options, timeout time.Duration) *OllamaClient {
	baseURL = strings.TrimSuffix(baseURL, "/")
	slog.Info("Initializing Ollama client",
		"base_url", baseURL,
		"model", model,
		"timeout", timeout.String(),
	)
	return &OllamaClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		model:      model,
		options:    options,
	}
}

// Ollama API request structure.
type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
	Error     string `json:"error"`
}

// optionsMap renders the fixed parameter set in Ollama's options shape.
func (o *OllamaClient) optionsMap() map[string]any {
	return map[string]any{
		"temperature": o.options.Temperature,
		"num_ctx":     o.options.NumCtx,
		"num_predict": o.options.NumPredict,
		"top_p":       o.options.TopP,
	}
}

func (o *OllamaClient) newGenerateRequest(ctx context.Context, prompt string, stream bool) (*http.Request, error) {
	payload := ollamaGenerateRequest{
		Model:   o.model,
		Prompt:  prompt,
		Stream:  stream,
		Options: o.optionsMap(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request to Ollama: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.baseURL+"/api/generate", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request to Ollama: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "application/x-ndjson")
	}
	return req, nil
}

// Generate implements Client in blocking mode: one request, one JSON
// payload, the generated-text field extracted from it.
func (o *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "OllamaClient.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.model))

	req, err := o.newGenerateRequest(ctx, prompt, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		err = classifyTransportError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Ollama generate call failed", "error", err)
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		err = classifyTransportError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		slog.Error("Ollama returned an error",
			"status_code", resp.StatusCode,
			"response", string(body),
		)
		err = fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	var ollamaResp ollamaGenerateResponse
	if err := json.Unmarshal(body, &ollamaResp); err != nil {
		slog.Error("Failed to parse JSON response from Ollama", "error", err)
		wrapped := fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		span.RecordError(wrapped)
		span.SetStatus(codes.Error, wrapped.Error())
		return "", wrapped
	}
	if ollamaResp.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrRequestFailed, ollamaResp.Error)
	}

	text := strings.TrimSpace(ollamaResp.Response)
	if text == "" {
		return "", ErrEmptyGeneration
	}
	return text, nil
}

// GenerateStream implements Client in streaming mode. The response body is
// a sequence of newline-delimited fragments; each extracted fragment is
// forwarded to callback immediately, in arrival order.
func (o *OllamaClient) GenerateStream(ctx context.Context, prompt string, callback StreamCallback) error {
	ctx, span := tracer.Start(ctx, "OllamaClient.GenerateStream")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.model))

	req, err := o.newGenerateRequest(ctx, prompt, true)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		err = classifyTransportError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Ollama stream call failed", "error", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		slog.Error("Ollama stream returned an error",
			"status_code", resp.StatusCode,
			"response", string(body),
		)
		err = fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fragments := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return classifyTransportError(err)
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		frag := parseFragment(line)
		if frag.err != "" {
			return fmt.Errorf("%w: %s", ErrRequestFailed, frag.err)
		}
		if frag.text == "" {
			continue
		}
		fragments++
		if err := callback(frag.text); err != nil {
			return fmt.Errorf("stream callback aborted: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		err = classifyTransportError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetAttributes(attribute.Int("llm.fragments", fragments))
	return nil
}

// fragment is the closed variant a stream line resolves to at the parsing
// boundary: extracted text, an upstream error, or nothing of interest.
type fragment struct {
	text string
	err  string
}

// deltaPayload is the object form of a "delta" field.
type deltaPayload struct {
	Content  string `json:"content"`
	Response string `json:"response"`
}

type rawFragment struct {
	Response string          `json:"response"`
	Content  string          `json:"content"`
	Delta    json.RawMessage `json:"delta"`
	Error    string          `json:"error"`
	Done     bool            `json:"done"`
}

// parseFragment resolves one stream line. JSON objects yield text from the
// first present field in priority order response, content, delta (where
// delta is either a plain string or an object with content/response).
// Anything that is not a JSON object is treated as raw text.
func parseFragment(line []byte) fragment {
	if len(line) == 0 || line[0] != '{' {
		return fragment{text: string(line)}
	}

	var raw rawFragment
	if err := json.Unmarshal(line, &raw); err != nil {
		// An object that won't decode is dropped rather than killing
		// the stream.
		slog.Warn("Skipping undecodable stream fragment", "error", err)
		return fragment{}
	}
	if raw.Error != "" {
		return fragment{err: raw.Error}
	}
	if raw.Response != "" {
		return fragment{text: raw.Response}
	}
	if raw.Content != "" {
		return fragment{text: raw.Content}
	}
	if len(raw.Delta) > 0 {
		var s string
		if err := json.Unmarshal(raw.Delta, &s); err == nil {
			return fragment{text: s}
		}
		var d deltaPayload
		if err := json.Unmarshal(raw.Delta, &d); err == nil {
			if d.Content != "" {
				return fragment{text: d.Content}
			}
			return fragment{text: d.Response}
		}
	}
	return fragment{}
}
