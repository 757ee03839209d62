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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AgronovaAI/AgronovaLocal/services/advisor/checkpoint"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/pipeline"
)

// GetThread returns the stored conversation state for a thread. Turns in
// the returned history hold redacted text only.
func GetThread(p *pipeline.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		threadID := c.Param("id")

		state, err := p.LoadThread(c.Request.Context(), threadID)
		if err != nil {
			if errors.Is(err, checkpoint.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
				return
			}
			slog.Error("thread lookup failed", "thread_id", threadID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "thread lookup failed"})
			return
		}

		c.JSON(http.StatusOK, state)
	}
}
