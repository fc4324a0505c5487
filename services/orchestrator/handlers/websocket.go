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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianProteo/services/orchestrator/datatypes"
)

// WSResponse is one reply frame. Exactly one of the embedded response or
// Error is set.
type WSResponse struct {
	*datatypes.ChatResponse
	Error  string `json:"error,omitempty"`
	Status int    `json:"status,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// maxFrameBytes bounds a single inbound frame.
const maxFrameBytes = 64 * 1024

func sendJSON(ws *websocket.Conn, v any) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// HandleChatWebSocket serves GET /v1/chat/ws.
//
// Every inbound frame is a datatypes.ChatRequest and is answered with one
// WSResponse. A frame without session_id continues the session of the
// previous frame on the same connection. Errors are reported in-band with
// their HTTP status and the same client-safe text as POST /v1/chat, and do
// not close the socket.
func HandleChatWebSocket(svc ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()
		ws.SetReadLimit(maxFrameBytes)
		slog.Info("Websocket client connected")

		var sessionID string
		for {
			var req datatypes.ChatRequest
			if err := ws.ReadJSON(&req); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					slog.Warn("Websocket read failed", "error", err)
				} else {
					slog.Info("Websocket client disconnected", "session_id", sessionID)
				}
				return
			}
			if req.SessionID == "" {
				req.SessionID = sessionID
			}

			resp, status, err := processChat(c.Request.Context(), svc, req)
			if err != nil {
				if sendJSON(ws, WSResponse{Error: err.Error(), Status: status}) != nil {
					return
				}
				continue
			}

			sessionID = resp.SessionID
			if sendJSON(ws, WSResponse{ChatResponse: &resp}) != nil {
				return
			}
		}
	}
}
