// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianProteo/services/orchestrator/conversation"
	"github.com/AleutianAI/AleutianProteo/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianProteo/services/orchestrator/services"
)

func sessionRouter(svc ChatService) *gin.Engine {
	router := gin.New()
	sessions := router.Group("/v1/sessions")
	sessions.GET("/:sessionId/messages", GetSessionMessages(svc))
	sessions.GET("/:sessionId/metrics", GetSessionMetrics(svc))
	sessions.GET("/:sessionId/export", ExportSession(svc))
	sessions.POST("/:sessionId/feedback", PostFeedback(svc))
	sessions.DELETE("/:sessionId", DeleteSession(svc))
	return router
}

// =============================================================================
// Messages and Metrics
// =============================================================================

func TestGetSessionMessages(t *testing.T) {
	svc := newFakeChatService()
	svc.messages["sess-1"] = []datatypes.ChatMessage{
		{ID: "user-1", Role: datatypes.RoleUser, Content: "ciao"},
		{ID: "bot-1", Role: datatypes.RoleAssistant, Content: "🌊 ciao"},
	}
	router := sessionRouter(svc)

	t.Run("known session", func(t *testing.T) {
		w := performRequest(router, "GET", "/v1/sessions/sess-1/messages", nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "sess-1", body["session_id"])
		assert.Len(t, body["messages"], 2)
	})

	t.Run("unknown session", func(t *testing.T) {
		w := performRequest(router, "GET", "/v1/sessions/missing/messages", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestGetSessionMetrics(t *testing.T) {
	svc := newFakeChatService()
	svc.metrics["sess-1"] = services.SessionMetrics{TotalMessages: 4, AvgConfidence: 0.65, SourcesUsed: 2}
	router := sessionRouter(svc)

	w := performRequest(router, "GET", "/v1/sessions/sess-1/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.EqualValues(t, 4, body["total_messages"])
	assert.InDelta(t, 0.65, body["avg_confidence"], 1e-9)

	w = performRequest(router, "GET", "/v1/sessions/other/metrics", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// =============================================================================
// Export
// =============================================================================

func TestExportSession(t *testing.T) {
	svc := newFakeChatService()
	svc.exports["sess-1"] = []byte(`{"schema_version":"1","session_id":"sess-1"}`)
	router := sessionRouter(svc)

	w := performRequest(router, "GET", "/v1/sessions/sess-1/export", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="proteo-conversation-sess-1.json"`, w.Header().Get("Content-Disposition"))
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	assert.JSONEq(t, `{"schema_version":"1","session_id":"sess-1"}`, w.Body.String())
}

func TestExportSession_NotFound(t *testing.T) {
	router := sessionRouter(newFakeChatService())
	w := performRequest(router, "GET", "/v1/sessions/nope/export", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, w.Header().Get("Content-Disposition"))
}

// =============================================================================
// Delete
// =============================================================================

func TestDeleteSession(t *testing.T) {
	svc := newFakeChatService()
	router := sessionRouter(svc)

	w := performRequest(router, "DELETE", "/v1/sessions/sess-1", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "sess-1", body["deleted_session_id"])
	assert.Equal(t, []string{"sess-1"}, svc.cleared)
}

func TestDeleteSession_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("clear: %w", services.ErrSessionNotFound), http.StatusNotFound},
		{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeChatService()
			svc.clearErr = tt.err
			w := performRequest(sessionRouter(svc), "DELETE", "/v1/sessions/sess-1", nil)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

// =============================================================================
// Feedback
// =============================================================================

func TestPostFeedback(t *testing.T) {
	svc := newFakeChatService()
	router := sessionRouter(svc)

	w := performRequest(router, "POST", "/v1/sessions/sess-1/feedback", datatypes.FeedbackRequest{
		TurnID:   "turn-7",
		Feedback: "positive",
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"sess-1/turn-7/positive"}, svc.feedback)
}

func TestPostFeedback_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   any
		svcErr error
		want   int
	}{
		{"missing turn", datatypes.FeedbackRequest{Feedback: "positive"}, nil, http.StatusBadRequest},
		{"bad value", datatypes.FeedbackRequest{TurnID: "t", Feedback: "great"}, nil, http.StatusBadRequest},
		{"unknown turn", datatypes.FeedbackRequest{TurnID: "t", Feedback: "neutral"},
			fmt.Errorf("feedback: %w", conversation.ErrTurnNotFound), http.StatusNotFound},
		{"unknown session", datatypes.FeedbackRequest{TurnID: "t", Feedback: "negative"},
			fmt.Errorf("feedback: %w", services.ErrSessionNotFound), http.StatusNotFound},
		{"rejected value", datatypes.FeedbackRequest{TurnID: "t", Feedback: "negative"},
			fmt.Errorf("feedback: %w", conversation.ErrInvalidFeedback), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeChatService()
			svc.feedbackErr = tt.svcErr
			w := performRequest(sessionRouter(svc), "POST", "/v1/sessions/sess-1/feedback", tt.body)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
