// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the gin handlers of the Proteo HTTP API.
//
// Handlers depend on small interfaces rather than concrete services so
// tests can drive them with httptest and in-memory fakes.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianProteo/pkg/validation"
	"github.com/AleutianAI/AleutianProteo/services/orchestrator/conversation"
	"github.com/AleutianAI/AleutianProteo/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianProteo/services/orchestrator/services"
)

var chatTracer = otel.Tracer("proteo.orchestrator.handlers")

// ErrChatFailed is what clients see when a send fails for a reason other
// than bad input or a busy session. The cause is logged, never returned.
var ErrChatFailed = errors.New("failed to process the message, please try again")

// ChatService is the orchestrator surface used by the chat and session
// handlers. Implemented by *services.ChatOrchestrator.
type ChatService interface {
	SendMessage(ctx context.Context, sessionKey, userID, text string, mode datatypes.ChatMode) (datatypes.ChatResponse, error)
	Messages(sessionKey string) ([]datatypes.ChatMessage, error)
	Metrics(sessionKey string) (services.SessionMetrics, error)
	Feedback(sessionKey, turnID string, feedback conversation.Feedback) error
	Clear(sessionKey string) error
	Export(sessionKey string) ([]byte, error)
	Health(ctx context.Context) services.HealthReport
}

// HandleChat serves POST /v1/chat.
//
// # Responses
//
//   - 200: datatypes.ChatResponse
//   - 400: malformed body, failed validation or blank message
//   - 409: the session is already processing a message
//   - 500: ErrChatFailed; the cause is only logged
func HandleChat(svc ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleChat")
		defer span.End()

		var req datatypes.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Warn("Failed to parse the chat request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		resp, status, err := processChat(ctx, svc, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		span.SetAttributes(attribute.String("session.id", resp.SessionID))
		c.JSON(http.StatusOK, resp)
	}
}

// processChat validates req and runs it through svc. It is shared by the
// HTTP and WebSocket transports and returns the HTTP status for errors.
// The returned error is safe to show to clients.
func processChat(ctx context.Context, svc ChatService, req datatypes.ChatRequest) (datatypes.ChatResponse, int, error) {
	req.EnsureDefaults()
	if err := req.Validate(); err != nil {
		return datatypes.ChatResponse{}, http.StatusBadRequest, err
	}

	text, err := validation.SanitizeMessage(req.Message)
	if err != nil {
		return datatypes.ChatResponse{}, http.StatusBadRequest, err
	}

	resp, err := svc.SendMessage(ctx, req.SessionID, req.UserID, text, req.Mode)
	switch {
	case err == nil:
		return resp, http.StatusOK, nil
	case errors.Is(err, services.ErrEmptyMessage):
		return datatypes.ChatResponse{}, http.StatusBadRequest, services.ErrEmptyMessage
	case errors.Is(err, services.ErrSessionBusy):
		return datatypes.ChatResponse{}, http.StatusConflict, services.ErrSessionBusy
	default:
		trace.SpanFromContext(ctx).RecordError(err)
		slog.Error("chat request failed", "session_id", req.SessionID, "error", err)
		return datatypes.ChatResponse{}, http.StatusInternalServerError, ErrChatFailed
	}
}
