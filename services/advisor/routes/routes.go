// Copyright (C) 2026 Agronova AI (dev@agronova.ai)
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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AgronovaAI/AgronovaLocal/services/advisor/handlers"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/middleware"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/pipeline"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/rateguard"
	"github.com/AgronovaAI/AgronovaLocal/services/redaction"
)

func SetupRoutes(router *gin.Engine, p *pipeline.Pipeline, redactor *redaction.Engine,
	guard *rateguard.Guard) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.RateLimit(guard))
	{
		v1.POST("/turn", handlers.HandleTurn(p))
		v1.POST("/redaction/scan", handlers.HandleScan(redactor))
		v1.GET("/threads/:id", handlers.GetThread(p))
	}
}
