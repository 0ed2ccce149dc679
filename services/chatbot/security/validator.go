// Copyright (C) 2025 MindCare AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package security

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxMessageLength   = 1000
	minMessageLength   = 1
	maxSessionIDLength = 100
)

// Injection-style patterns rejected outright. Kept deliberately small:
// this is a first line of defense, not an HTML sanitizer.
var harmfulPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script\b.*?</script>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)vbscript:`),
	regexp.MustCompile(`(?i)on\w+\s*=`),
}

var (
	uuidPattern   = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// Validator checks chat messages and session identifiers before they touch
// any state. Rules are applied in order; the first failure wins.
type Validator struct{}

// NewValidator returns a Validator. It holds no mutable state and is safe
// for concurrent use.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateMessage checks a chat message for length, injection patterns and
// spam heuristics. Returns (false, reason) on the first failing rule.
func (v *Validator) ValidateMessage(message string) (bool, string) {
	if message == "" {
		return false, "Message must be a non-empty string"
	}
	// Length bounds count characters, not bytes, so multibyte text is not
	// penalized for its encoding.
	length := utf8.RuneCountInString(message)
	if length < minMessageLength {
		return false, "Message too short (minimum 1 character)"
	}
	if length > maxMessageLength {
		return false, "Message too long (maximum 1000 characters)"
	}
	for _, pattern := range harmfulPatterns {
		if pattern.MatchString(message) {
			return false, "Message contains potentially harmful content"
		}
	}
	if isSpam(message) {
		return false, "Message appears to be spam (excessive repetition)"
	}
	return true, ""
}

// ValidateSessionID checks that id is a non-empty, bounded, UUID-shaped
// string (8-4-4-4-12 hex groups, case-insensitive).
func (v *Validator) ValidateSessionID(id string) (bool, string) {
	if id == "" {
		return false, "Session ID must be a non-empty string"
	}
	if len(id) > maxSessionIDLength {
		return false, "Session ID too long (maximum 100 characters)"
	}
	if !uuidPattern.MatchString(id) {
		return false, "Invalid session ID format"
	}
	return true, ""
}

// Sanitize collapses whitespace runs to a single space, trims the ends and
// strips null bytes. It runs after validation and does not re-validate.
func (v *Validator) Sanitize(message string) string {
	message = whitespaceRun.ReplaceAllString(strings.TrimSpace(message), " ")
	return strings.ReplaceAll(message, "\x00", "")
}

// isSpam flags messages where a single character repeats ten or more times
// in a row, or where one case-folded token makes up more than half of a
// message with more than three tokens.
func isSpam(message string) bool {
	if hasLongRun(message, 10) {
		return true
	}

	words := strings.Fields(message)
	if len(words) > 3 {
		counts := make(map[string]int, len(words))
		for _, word := range words {
			folded := strings.ToLower(word)
			counts[folded]++
			if float64(counts[folded]) > float64(len(words))*0.5 {
				return true
			}
		}
	}
	return false
}

// hasLongRun reports whether any rune occurs at least n times consecutively.
// Go's regexp has no backreferences, so the run check is a plain scan.
func hasLongRun(s string, n int) bool {
	var prev rune
	run := 0
	for _, r := range s {
		if r == prev {
			run++
		} else {
			prev = r
			run = 1
		}
		if run >= n {
			return true
		}
	}
	return false
}
