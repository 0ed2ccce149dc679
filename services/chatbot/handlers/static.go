// Copyright (C) 2025 MindCare AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/mindcare-ai/mindcare/services/chatbot/datatypes"
)

// =============================================================================
// Personality Registry
// =============================================================================

// Therapeutic approach labels accepted by POST /personality.
var knownPersonalities = map[string]string{
	"supportive":  "Warm, validating support focused on active listening",
	"cognitive":   "Gentle reframing of unhelpful thought patterns",
	"mindfulness": "Grounding and present-moment awareness techniques",
}

// PersonalityRegistry holds the mutable default approach label. The label
// is echoed in responses only; the persona preamble is fixed.
type PersonalityRegistry struct {
	mu      sync.RWMutex
	current string
}

// NewPersonalityRegistry creates a registry with the default approach.
func NewPersonalityRegistry() *PersonalityRegistry {
	return &PersonalityRegistry{current: "supportive"}
}

// Current returns the active approach label.
func (r *PersonalityRegistry) Current() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Set switches the active approach. Returns false for labels outside the
// known set.
func (r *PersonalityRegistry) Set(label string) bool {
	if _, ok := knownPersonalities[label]; !ok {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = label
	return true
}

// availablePersonalities lists the accepted labels in stable order.
func availablePersonalities() []string {
	labels := make([]string, 0, len(knownPersonalities))
	for label := range knownPersonalities {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// HandleGetPersonality returns the GET /personality handler.
func HandleGetPersonality(registry *PersonalityRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		current := registry.Current()
		c.JSON(http.StatusOK, gin.H{
			"personality": current,
			"description": knownPersonalities[current],
			"available":   availablePersonalities(),
			"status":      "success",
		})
	}
}

// HandleSetPersonality returns the POST /personality handler. Labels
// outside the known set are a validation error.
func HandleSetPersonality(registry *PersonalityRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.PersonalityUpdateRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest,
				datatypes.NewValidationError("Personality is required"))
			return
		}

		label := strings.ToLower(strings.TrimSpace(req.Personality))
		if !registry.Set(label) {
			c.JSON(http.StatusBadRequest, datatypes.NewValidationError(
				fmt.Sprintf("Unknown personality %q. Available: %s",
					req.Personality, strings.Join(availablePersonalities(), ", "))))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"personality": label,
			"description": knownPersonalities[label],
			"status":      "success",
		})
	}
}

// =============================================================================
// Crisis Check
// =============================================================================

// crisisKeywords trigger the referral flag. Matching is case-insensitive
// substring search; this is a coarse heuristic, not a diagnosis.
var crisisKeywords = []string{
	"suicide",
	"suicidal",
	"kill myself",
	"end my life",
	"self-harm",
	"self harm",
	"hurt myself",
	"overdose",
	"no reason to live",
	"want to die",
}

// crisisResources are the contacts surfaced whenever the flag trips.
var crisisResources = gin.H{
	"national_suicide_prevention_lifeline": "988",
	"crisis_text_line":                     "Text HOME to 741741",
	"emergency_services":                   "911",
	"crisis_chat":                          "https://suicidepreventionlifeline.org/chat/",
}

// HandleCrisisCheck returns the POST /crisis-check handler: a keyword
// heuristic over the message with referral contacts when flagged.
func HandleCrisisCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.CrisisCheckRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest,
				datatypes.NewValidationError("Message is required"))
			return
		}

		lowered := strings.ToLower(req.Message)
		var matched []string
		for _, keyword := range crisisKeywords {
			if strings.Contains(lowered, keyword) {
				matched = append(matched, keyword)
			}
		}

		resp := gin.H{
			"crisis_detected": len(matched) > 0,
			"status":          "success",
		}
		if len(matched) > 0 {
			resp["matched_indicators"] = matched
			resp["emergency_contacts"] = crisisResources
			resp["message"] = "If you're in crisis, please reach out now. You don't have to go through this alone."
		}
		c.JSON(http.StatusOK, resp)
	}
}

// =============================================================================
// Resources + Health
// =============================================================================

// HandleResources returns the GET /resources handler: a fixed listing of
// mental health resources and emergency contacts for college students.
func HandleResources() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"emergency_contacts": gin.H{
				"national_suicide_prevention_lifeline": "988",
				"crisis_text_line":                     "Text HOME to 741741",
				"emergency_services":                   "911",
			},
			"college_resources": gin.H{
				"counseling_center":     "Contact your college counseling center during business hours",
				"student_health_center": "Many colleges offer mental health services through student health",
				"resident_advisor":      "RAs are trained to help connect students with resources",
				"academic_advisor":      "Can help with academic stress and accommodations",
			},
			"online_resources": gin.H{
				"mental_health_america":  "https://www.mhanational.org/",
				"nami_college_resources": "https://www.nami.org/Your-Journey/Kids-Teens-and-Young-Adults/College-Students",
				"crisis_chat":            "https://suicidepreventionlifeline.org/chat/",
			},
			"self_care_tips": []string{
				"Maintain regular sleep schedule (7-9 hours)",
				"Practice deep breathing exercises",
				"Stay connected with friends and family",
				"Engage in regular physical activity",
				"Limit caffeine and alcohol",
				"Take breaks from social media",
				"Practice mindfulness or meditation",
			},
			"when_to_seek_help": []string{
				"Persistent feelings of sadness or hopelessness",
				"Difficulty concentrating on academics",
				"Changes in sleep or eating patterns",
				"Increased irritability or anxiety",
				"Thoughts of self-harm or suicide",
				"Substance use as coping mechanism",
				"Social isolation lasting more than a few days",
			},
			"status": "success",
		})
	}
}

// HandleHealth returns the GET /health handler used by container probes.
func HandleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
