// Copyright (C) 2026 Agronova AI (dev@agronova.ai)
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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AgronovaAI/AgronovaLocal/services/redaction"
)

// ScanRequest asks for a redaction audit of arbitrary text.
type ScanRequest struct {
	Text string `json:"text" binding:"required"`
}

// ScanResponse reports matched spans without returning the matched
// substrings themselves.
type ScanResponse struct {
	Detections []redaction.Detection `json:"detections"`
	Redacted   string                `json:"redacted"`
}

// HandleScan audits text against the redaction patterns. Used by the
// transcript review tooling; the pipeline redacts inline.
func HandleScan(engine *redaction.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
			return
		}

		cleaned, detections := engine.Redact(req.Text)
		c.JSON(http.StatusOK, ScanResponse{
			Detections: detections,
			Redacted:   cleaned,
		})
	}
}
