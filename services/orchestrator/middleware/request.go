// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the orchestrator service.
//
// # Request Flow
//
//	Request
//	   │
//	   ▼
//	RequestID
//	   │
//	   ├─► Reuse a well-formed "X-Request-ID" header, or mint a UUID
//	   │
//	   ├─► Store it in the Gin context and echo it in the response
//	   │
//	   ▼
//	AccessLog
//	   │
//	   └─► One structured slog line per request after the handler ran
//	           │
//	           ▼
//	       Handler (retrieves via GetRequestID)
package middleware

import (
	"log/slog"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// =============================================================================
// Context Keys
// =============================================================================

// requestIDKey is the Gin context key for the request id.
const requestIDKey = "proteo_request_id"

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// inboundIDPattern bounds client-supplied ids before they reach log lines.
var inboundIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// =============================================================================
// Context Helpers
// =============================================================================

// SetRequestID stores the request id in the Gin context.
func SetRequestID(c *gin.Context, id string) {
	c.Set(requestIDKey, id)
}

// GetRequestID returns the request id, or "" outside RequestID.
//
// # Thread Safety
//
// Safe to call concurrently (Gin context is request-scoped).
func GetRequestID(c *gin.Context) string {
	if v, exists := c.Get(requestIDKey); exists {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// =============================================================================
// Middleware
// =============================================================================

// RequestID assigns every request an id.
//
// # Description
//
// A client-supplied X-Request-ID is kept when it matches
// [A-Za-z0-9._-]{1,64}; anything else is replaced with a fresh UUID. The
// id is echoed in the response header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if !inboundIDPattern.MatchString(id) {
			id = uuid.NewString()
		}
		SetRequestID(c, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// AccessLog writes one structured line per request. Server errors log at
// error level, client errors at warn, the rest at info.
func AccessLog(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"request_id", GetRequestID(c),
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		switch {
		case status >= 500:
			logger.Error("request completed", attrs...)
		case status >= 400:
			logger.Warn("request completed", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}
	}
}
