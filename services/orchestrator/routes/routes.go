// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianProteo/services/orchestrator/handlers"
)

// Dependencies are the services the routes are bound to.
type Dependencies struct {
	Chat      handlers.ChatService
	Data      handlers.DataService
	Knowledge handlers.KnowledgeService

	// Gatherer backs /metrics. Nil means prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

// SetupRoutes registers every endpoint on router.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/chat", handlers.HandleChat(deps.Chat))
		v1.GET("/chat/ws", handlers.HandleChatWebSocket(deps.Chat))

		sessions := v1.Group("/sessions")
		{
			sessions.GET("/:sessionId/messages", handlers.GetSessionMessages(deps.Chat))
			sessions.GET("/:sessionId/metrics", handlers.GetSessionMetrics(deps.Chat))
			sessions.GET("/:sessionId/export", handlers.ExportSession(deps.Chat))
			sessions.POST("/:sessionId/feedback", handlers.PostFeedback(deps.Chat))
			sessions.DELETE("/:sessionId", handlers.DeleteSession(deps.Chat))
		}

		v1.GET("/knowledge/stats", handlers.GetKnowledgeStats(deps.Knowledge))

		opendata := v1.Group("/opendata")
		{
			opendata.GET("/sources", handlers.ListSources(deps.Data))
			opendata.POST("/fetch", handlers.HandleDataFetch(deps.Data))
		}

		v1.GET("/system/health", handlers.HandleSystemHealth(deps.Chat))
	}
}
