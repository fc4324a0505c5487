// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conversation

import (
	"errors"
	"time"
)

// Sentinel errors.
var (
	ErrSessionNotFound = errors.New("conversation session not found")
	ErrTurnNotFound    = errors.New("conversation turn not found")
	ErrInvalidFeedback = errors.New("invalid feedback value")
)

// QueryType is the coarse classification of a user message.
type QueryType string

const (
	QueryData       QueryType = "data"
	QueryEducation  QueryType = "education"
	QueryNavigation QueryType = "navigation"
	QueryMERProject QueryType = "mer_project"
)

// Feedback is the optional user verdict on a turn.
type Feedback string

const (
	FeedbackPositive Feedback = "positive"
	FeedbackNegative Feedback = "negative"
	FeedbackNeutral  Feedback = "neutral"
)

// Valid reports whether f is one of the known values.
func (f Feedback) Valid() bool {
	switch f {
	case FeedbackPositive, FeedbackNegative, FeedbackNeutral:
		return true
	}
	return false
}

// Expertise is the user tier. It only moves forward.
type Expertise string

const (
	ExpertiseTourist    Expertise = "tourist"
	ExpertiseStudent    Expertise = "student"
	ExpertiseResearcher Expertise = "researcher"
)

// next returns the tier one step above e, or e at the top.
func (e Expertise) next() Expertise {
	switch e {
	case ExpertiseTourist:
		return ExpertiseStudent
	case ExpertiseStudent:
		return ExpertiseResearcher
	default:
		return e
	}
}

// RecordInput carries what the caller knows about an exchange. Detected
// parameters, citations and the query type are derived by the store.
type RecordInput struct {
	UserMessage       string
	AssistantResponse string
	SourceNames       []string
	Confidence        float64
}

// TurnContext is what the store derived from one exchange.
type TurnContext struct {
	DetectedParameters []string `json:"detected_parameters"`
	DataUsed           []string `json:"data_used"`
	Citations          []string `json:"citations"`
	Confidence         float64  `json:"confidence"`
}

// TurnMetadata describes the turn within its session.
type TurnMetadata struct {
	SessionDurationMs int64        `json:"session_duration_ms"`
	QueryType         QueryType    `json:"query_type"`
	UserProfile       *UserProfile `json:"user_profile,omitempty"`
}

// ConversationTurn is one user/assistant exchange. Only Feedback may
// change after creation.
type ConversationTurn struct {
	ID                string       `json:"id"`
	Timestamp         time.Time    `json:"timestamp"`
	UserMessage       string       `json:"user_message"`
	AssistantResponse string       `json:"assistant_response"`
	Context           TurnContext  `json:"context"`
	Feedback          Feedback     `json:"user_feedback,omitempty"`
	Metadata          TurnMetadata `json:"metadata"`
}

// ConversationSession holds the bounded turn history of one conversation.
type ConversationSession struct {
	SessionID    string             `json:"session_id"`
	UserID       string             `json:"user_id,omitempty"`
	StartTime    time.Time          `json:"start_time"`
	EndTime      *time.Time         `json:"end_time,omitempty"`
	Turns        []ConversationTurn `json:"turns"`
	Summary      string             `json:"summary"`
	KeyTopics    []string           `json:"key_topics"`
	TotalQueries int                `json:"total_queries"`
}

// UserProfile is shared by all sessions of one user id.
type UserProfile struct {
	ID              string      `json:"id"`
	Interests       []string    `json:"interests"`
	ExpertiseLevel  Expertise   `json:"expertise_level"`
	FrequentQueries []QueryType `json:"frequent_queries"`
	Language        string      `json:"language"`
	LastActive      time.Time   `json:"last_active"`
}

// SearchResult is returned by Store.Search.
type SearchResult struct {
	RelevantTurns []ConversationTurn `json:"relevant_turns"`
	Patterns      []string           `json:"patterns"`
	Suggestions   []string           `json:"suggestions"`
	Confidence    float64            `json:"confidence"`
}

// Analytics summarizes a session.
type Analytics struct {
	SessionID        string   `json:"session_id"`
	DurationMs       int64    `json:"duration_ms"`
	TotalQueries     int      `json:"total_queries"`
	AvgConfidence    float64  `json:"avg_confidence"`
	UniqueParameters []string `json:"unique_parameters"`
	KeyTopics        []string `json:"key_topics"`
	Summary          string   `json:"summary"`
}

// ExportSchemaVersion tags the export document layout.
const ExportSchemaVersion = "1"

// ExportDocument is the downloadable session dump.
type ExportDocument struct {
	SchemaVersion   string              `json:"schema_version"`
	Session         ConversationSession `json:"session"`
	Analytics       Analytics           `json:"analytics"`
	ExportTimestamp time.Time           `json:"export_timestamp"`
}
