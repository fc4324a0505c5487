// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the orchestrator service.
//
// This file contains the chat request, response and message types shared by
// the HTTP and WebSocket surfaces. Composer output types live in rag.go.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single chat message.
	MaxMessageContentBytes = 16 * 1024

	// MaxIdentifierLength bounds client-supplied session and user ids.
	MaxIdentifierLength = 128
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
// Initialized in init() with custom validators.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()

	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes checks byte length, not rune count, against
// MaxMessageContentBytes.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// =============================================================================
// Enumerations
// =============================================================================

// ChatMode selects the response pipeline.
type ChatMode string

const (
	// ModeComposer runs the retrieval composer. It is the default.
	ModeComposer ChatMode = "rag"

	// ModeMock answers from the keyword responder without grounding.
	ModeMock ChatMode = "mock"
)

// Role identifies who authored a ChatMessage.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DataType tells clients whether the numbers shown came from live
// upstream data or were synthesized.
type DataType string

const (
	DataTypeReal DataType = "real"
	DataTypeDemo DataType = "demo"
)

// Complexity is the coarse difficulty label attached to responses.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// =============================================================================
// Requests
// =============================================================================

// ChatRequest is the body of POST /v1/chat and of each WebSocket frame.
//
// # Fields
//
//   - SessionID: Optional. Continues an existing session; a new one is
//     created when empty.
//   - UserID: Optional. Binds the session to a profile shared across
//     sessions.
//   - Message: Required. The user text, at most 16KB.
//   - Mode: Optional. "rag" (default) or "mock".
//
// # Examples
//
//	req := datatypes.ChatRequest{Message: "Temperatura del mare oggi"}
//	if err := req.Validate(); err != nil {
//	    return fmt.Errorf("invalid request: %w", err)
//	}
type ChatRequest struct {
	SessionID string   `json:"session_id,omitempty" validate:"omitempty,max=128,printascii"`
	UserID    string   `json:"user_id,omitempty" validate:"omitempty,max=128"`
	Message   string   `json:"message" validate:"required,maxbytes"`
	Mode      ChatMode `json:"mode,omitempty" validate:"omitempty,oneof=rag mock"`
}

// Validate validates the ChatRequest fields.
func (r *ChatRequest) Validate() error {
	return chatValidate.Struct(r)
}

// EnsureDefaults fills the mode when the client omitted it.
func (r *ChatRequest) EnsureDefaults() {
	if r.Mode == "" {
		r.Mode = ModeComposer
	}
}

// FeedbackRequest is the body of POST /v1/sessions/:sessionId/feedback.
type FeedbackRequest struct {
	TurnID   string `json:"turn_id" validate:"required,max=128"`
	Feedback string `json:"feedback" validate:"required,oneof=positive negative neutral"`
}

// Validate validates the FeedbackRequest fields.
func (r *FeedbackRequest) Validate() error {
	return chatValidate.Struct(r)
}

// =============================================================================
// Messages
// =============================================================================

// ChatMessage is one entry of a session's message log.
//
// User messages carry only ID, Role, Content and Timestamp. Assistant
// messages carry the remaining fields.
type ChatMessage struct {
	ID             string              `json:"id"`
	Role           Role                `json:"role"`
	Content        string              `json:"content"`
	Timestamp      time.Time           `json:"timestamp"`
	Confidence     *float64            `json:"confidence,omitempty"`
	Sources        []string            `json:"sources,omitempty"`
	Suggestions    []string            `json:"suggestions,omitempty"`
	DataType       DataType            `json:"data_type,omitempty"`
	ContainsData   bool                `json:"contains_data,omitempty"`
	Citations      []CitationInfo      `json:"citations,omitempty"`
	Visualizations []VisualizationSpec `json:"visualizations,omitempty"`
	Metadata       *ResponseMetadata   `json:"metadata,omitempty"`
}

// ResponseMetadata describes how an assistant message was produced.
type ResponseMetadata struct {
	ProcessingTimeMs       int64      `json:"processing_time_ms"`
	DataSourcesUsed        int        `json:"data_sources_used"`
	KnowledgeNodesAccessed int        `json:"knowledge_nodes_accessed"`
	ConversationTurns      int        `json:"conversation_turns"`
	QueryComplexity        Complexity `json:"query_complexity"`
	CacheHit               bool       `json:"cache_hit"`
	Enhanced               bool       `json:"enhanced"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (m ChatMessage) Clone() ChatMessage {
	out := m
	if m.Confidence != nil {
		c := *m.Confidence
		out.Confidence = &c
	}
	out.Sources = cloneStrings(m.Sources)
	out.Suggestions = cloneStrings(m.Suggestions)
	if m.Citations != nil {
		out.Citations = append([]CitationInfo{}, m.Citations...)
	}
	if m.Visualizations != nil {
		out.Visualizations = append([]VisualizationSpec{}, m.Visualizations...)
	}
	if m.Metadata != nil {
		md := *m.Metadata
		out.Metadata = &md
	}
	return out
}

// ChatResponse is returned by POST /v1/chat.
type ChatResponse struct {
	SessionID string      `json:"session_id"`
	TurnID    string      `json:"turn_id,omitempty"`
	Message   ChatMessage `json:"message"`
}

// =============================================================================
// Helpers
// =============================================================================

// NewID returns a random UUID string.
func NewID() string {
	return uuid.NewString()
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string{}, in...)
}
