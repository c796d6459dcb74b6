// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all analysis routes with the router.
//
// Description:
//
//	Registers all /v1/analysis/* endpoints with the given Gin router
//	group. The router group should already have any required middleware
//	applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/analysis/ask - Answer a natural-language expense question
//	GET  /v1/analysis/health - Health check
//	GET  /v1/analysis/ready - Readiness check
//
// Example:
//
//	svc, _ := analysis.NewService(cfg, db)
//	handlers := analysis.NewHandlers(svc)
//
//	v1 := router.Group("/v1")
//	analysis.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	analysis := rg.Group("/analysis")
	{
		// Question answering
		analysis.POST("/ask", handlers.HandleAsk)

		// Health checks
		analysis.GET("/health", handlers.HandleHealth)
		analysis.GET("/ready", handlers.HandleReady)
	}
}
