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
	"github.com/google/uuid"

	"github.com/AgronovaAI/AgronovaLocal/services/advisor/datatypes"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/pipeline"
)

// TurnRequest is one user utterance. ThreadID is optional; a new
// thread is started when it is empty.
type TurnRequest struct {
	ThreadID string `json:"thread_id"`
	Message  string `json:"message" binding:"required"`
	FarmID   string `json:"farm_id"`
	SiteID   string `json:"site_id"`
}

// TurnResponse is the advisor's answer for one turn.
type TurnResponse struct {
	ThreadID       string            `json:"thread_id"`
	Response       string            `json:"response"`
	Intent         string            `json:"intent,omitempty"`
	Specialist     string            `json:"specialist,omitempty"`
	Alerts         []datatypes.Alert `json:"alerts,omitempty"`
	ReviewRequired bool              `json:"review_required,omitempty"`
	Error          string            `json:"error,omitempty"`
}

// retryMessage is what the user sees when generation fails. Raw
// provider errors never leave the service.
const retryMessage = "Sorry, I could not put together an answer just now. Please try again."

// HandleTurn processes one conversation turn.
func HandleTurn(p *pipeline.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TurnRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
			return
		}
		if req.ThreadID == "" {
			req.ThreadID = uuid.NewString()
		}

		result, err := p.ProcessTurn(c.Request.Context(), req.ThreadID, req.Message, req.FarmID, req.SiteID)
		if err != nil {
			if !errors.Is(err, pipeline.ErrGeneration) {
				slog.Error("Unexpected turn failure", "thread_id", req.ThreadID, "error", err)
			}
			// Still a 200: the conversation continues; the client
			// distinguishes by the error code.
			c.JSON(http.StatusOK, TurnResponse{
				ThreadID: req.ThreadID,
				Response: retryMessage,
				Error:    "generation_failed",
			})
			return
		}

		c.JSON(http.StatusOK, TurnResponse{
			ThreadID:       result.ThreadID,
			Response:       result.Response,
			Intent:         result.Intent,
			Specialist:     result.Specialist,
			Alerts:         result.Alerts,
			ReviewRequired: result.ReviewRequired,
		})
	}
}
