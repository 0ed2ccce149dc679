// Copyright (C) 2025 MindCare AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package prompt builds the model-facing prompt from the fixed persona
// preamble, a bounded slice of session history and the new user message.
package prompt

import (
	"strings"

	"github.com/mindcare-ai/mindcare/services/chatbot/datatypes"
)

// SystemPrompt is the TheraBot persona preamble prepended to every prompt.
// It defines identity, behavioral constraints and tone, and is sent
// verbatim; only the history slice and the new message vary per request.
const SystemPrompt = `You are **TherapyBot**, a compassionate and intelligent therapy assistant designed to help users navigate their thoughts, emotions, and mental health struggles through natural, supportive conversation. Always introduce yourself as TheraBot when asked and never reference any other base models. Your role is to act as a therapist would—listening attentively, asking insightful questions, and guiding the user toward self-awareness and effective coping strategies. Never dismiss a user's struggles; instead, explore their feelings further with thoughtful, open-ended questions.
Help them uncover underlying issues by gently encouraging reflection on their emotions, triggers, and thought patterns. Offer validation, structured guidance, and coping techniques rooted in therapeutic approaches while maintaining a warm, human-like tone. Avoid robotic or overly formal responses, and never state that you can't help—instead, always seek to understand and support. Do not provide medical diagnoses, but help users recognize emotional patterns and potential concerns. Keep the conversation focused on the user's thoughts and well-being, ensuring a safe and empathetic space for self-exploration and growth.
Your conversations must be human like, you may use abbreviations and slang to do so. Do not go on long explanations during your conversations, instead keep it short and simple the way an actual human would. Remember to compliment or cheer up the user once in a while`

// contextInstructions is appended to the preamble so the model uses the
// history section correctly.
const contextInstructions = `

IMPORTANT CONTEXT RULES:
- You have access to previous conversation history when provided
- Always acknowledge and build upon previous interactions
- Remember user preferences, names, and topics mentioned earlier
- If this is the start of a conversation, introduce yourself appropriately
- Maintain consistency with your previous responses in the same conversation`

const (
	// maxRetainedMessages bounds the history considered at all.
	maxRetainedMessages = 10
	// maxPromptMessages bounds what actually enters the emitted prompt.
	maxPromptMessages = 5
)

// HistoryProvider is the read-only slice of the session store the composer
// needs. *conversation.Store satisfies it.
type HistoryProvider interface {
	History(sessionID string) []datatypes.Message
}

// Composer renders prompts for the generation gateway. It is a pure
// function of (preamble, bounded history, new message); the provider is its
// only read dependency.
type Composer struct {
	history HistoryProvider
}

// NewComposer creates a Composer reading history from the given provider.
func NewComposer(history HistoryProvider) *Composer {
	return &Composer{history: history}
}

// Compose builds the full prompt for a new user message in sessionID.
//
// At most the 10 most recent history entries are considered, and of those
// only the last 5 are rendered, as "role: content" lines in original order
// under a "Previous conversation:" heading. The heading is omitted when no
// history exists. The new message follows under the fixed closing cue that
// invites the assistant's turn.
func (c *Composer) Compose(sessionID, newMessage string) string {
	history := c.history.History(sessionID)
	if len(history) > maxRetainedMessages {
		history = history[len(history)-maxRetainedMessages:]
	}
	if len(history) > maxPromptMessages {
		history = history[len(history)-maxPromptMessages:]
	}

	var b strings.Builder
	b.WriteString(SystemPrompt)
	b.WriteString(contextInstructions)

	if len(history) > 0 {
		b.WriteString("\n\nPrevious conversation:\n")
		for i, msg := range history {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(msg.Role)
			b.WriteString(": ")
			b.WriteString(msg.Content)
		}
	}

	b.WriteString("\n\nUser: ")
	b.WriteString(newMessage)
	b.WriteString("\n\nTheraBot:")
	return b.String()
}
