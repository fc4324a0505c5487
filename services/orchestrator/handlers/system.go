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
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianProteo/pkg/validation"
	"github.com/AleutianAI/AleutianProteo/services/opendata"
	"github.com/AleutianAI/AleutianProteo/services/orchestrator/knowledge"
)

// DataService is the open-data surface exposed over HTTP. Implemented by
// *opendata.Gateway.
type DataService interface {
	Sources() []opendata.Source
	Fetch(ctx context.Context, q opendata.DataQuery) opendata.DataResponse
	CacheStats() opendata.CacheStats
}

// KnowledgeService exposes knowledge graph statistics. Implemented by
// *knowledge.Base.
type KnowledgeService interface {
	Stats() knowledge.Stats
}

// HealthCheck serves GET /health.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleSystemHealth serves GET /v1/system/health. The status is 503 when
// the subsystem quorum is not met.
func HandleSystemHealth(svc ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := svc.Health(c.Request.Context())
		status := http.StatusOK
		if !report.Overall {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, report)
	}
}

// GetKnowledgeStats serves GET /v1/knowledge/stats.
func GetKnowledgeStats(kb KnowledgeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, kb.Stats())
	}
}

// ListSources serves GET /v1/opendata/sources.
func ListSources(data DataService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"sources": data.Sources(),
			"cache":   data.CacheStats(),
		})
	}
}

// HandleDataFetch serves POST /v1/opendata/fetch.
//
// Identifiers and dates are validated before reaching the gateway. An
// unknown but well-formed source yields 200 with success=false, the same
// shape the composer sees.
func HandleDataFetch(data DataService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleDataFetch")
		defer span.End()

		var q opendata.DataQuery
		if err := c.ShouldBindJSON(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		for _, check := range []error{
			validation.ValidateSourceID(q.Source),
			validation.ValidateParameter(q.Parameter),
			validation.ValidateDate(q.DateFrom),
			validation.ValidateDate(q.DateTo),
		} {
			if check != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": check.Error()})
				return
			}
		}

		c.JSON(http.StatusOK, data.Fetch(ctx, q))
	}
}
