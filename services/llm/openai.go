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
	"io"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var openaiTracer = otel.Tracer("mindcare.llm.openai")

// OpenAIClient is the alternate generation backend for OpenAI-compatible
// servers (including local ones exposing that API). Selected with
// llm.backend=openai.
type OpenAIClient struct {
	client  *openai.Client
	model   string
	options Options
}

// NewOpenAIClient creates a client against baseURL with the given model.
// An empty baseURL means the hosted OpenAI endpoint.
func NewOpenAIClient(apiKey, baseURL, model string, options Options) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai backend requires an API key")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	slog.Info("Initializing OpenAI-compatible client", "model", model, "custom_base_url", baseURL != "")
	return &OpenAIClient{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		options: options,
	}, nil
}

func (c *OpenAIClient) chatRequest(prompt string, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.options.Temperature,
		MaxTokens:   c.options.NumPredict,
		TopP:        c.options.TopP,
		Stream:      stream,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
}

// Generate implements Client in blocking mode.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := openaiTracer.Start(ctx, "OpenAIClient.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", c.model))

	resp, err := c.client.CreateChatCompletion(ctx, c.chatRequest(prompt, false))
	if err != nil {
		err = classifyTransportError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyGeneration
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyGeneration
	}
	return text, nil
}

// GenerateStream implements Client in streaming mode over the chat
// completions delta stream.
func (c *OpenAIClient) GenerateStream(ctx context.Context, prompt string, callback StreamCallback) error {
	ctx, span := openaiTracer.Start(ctx, "OpenAIClient.GenerateStream")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", c.model))

	stream, err := c.client.CreateChatCompletionStream(ctx, c.chatRequest(prompt, true))
	if err != nil {
		err = classifyTransportError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			err = classifyTransportError(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if err := callback(delta); err != nil {
			return fmt.Errorf("stream callback aborted: %w", err)
		}
	}
}
