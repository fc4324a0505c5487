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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianProteo/services/orchestrator/conversation"
	"github.com/AleutianAI/AleutianProteo/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianProteo/services/orchestrator/services"
)

// sessionError writes the response for a session lookup failure.
func sessionError(c *gin.Context, sessionID string, err error) {
	switch {
	case errors.Is(err, services.ErrSessionNotFound), errors.Is(err, conversation.ErrTurnNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, conversation.ErrInvalidFeedback):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		slog.Error("session operation failed", "sessionId", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session operation failed"})
	}
}

// GetSessionMessages serves GET /v1/sessions/:sessionId/messages.
func GetSessionMessages(svc ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		messages, err := svc.Messages(sessionID)
		if err != nil {
			sessionError(c, sessionID, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "messages": messages})
	}
}

// GetSessionMetrics serves GET /v1/sessions/:sessionId/metrics.
func GetSessionMetrics(svc ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		metrics, err := svc.Metrics(sessionID)
		if err != nil {
			sessionError(c, sessionID, err)
			return
		}
		c.JSON(http.StatusOK, metrics)
	}
}

// ExportSession serves GET /v1/sessions/:sessionId/export as a JSON
// attachment.
func ExportSession(svc ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		data, err := svc.Export(sessionID)
		if err != nil {
			sessionError(c, sessionID, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", services.ExportFilename(sessionID)))
		c.Data(http.StatusOK, "application/json", data)
	}
}

// DeleteSession serves DELETE /v1/sessions/:sessionId.
func DeleteSession(svc ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		slog.Info("Received a request to delete a session", "sessionId", sessionID)
		if err := svc.Clear(sessionID); err != nil {
			sessionError(c, sessionID, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "deleted_session_id": sessionID})
	}
}

// PostFeedback serves POST /v1/sessions/:sessionId/feedback.
func PostFeedback(svc ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")

		var req datatypes.FeedbackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := svc.Feedback(sessionID, req.TurnID, conversation.Feedback(req.Feedback)); err != nil {
			sessionError(c, sessionID, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	}
}
