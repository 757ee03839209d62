// Copyright (C) 2026 Agronova AI (dev@agronova.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AgronovaAI/AgronovaLocal/services/advisor/rateguard"
)

// userHeader identifies an authenticated user, set by the auth layer in
// front of this service.
const userHeader = "X-Agronova-User"

// ClientIdentifier resolves the rate-limit key for a request: the
// authenticated user when present, then an API key, then the client IP.
func ClientIdentifier(c *gin.Context) string {
	if user := c.GetHeader(userHeader); user != "" {
		return "user:" + user
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		token := strings.TrimPrefix(auth, "Bearer ")
		if len(token) > 12 {
			token = token[:12]
		}
		return "key:" + token
	}
	return "ip:" + c.ClientIP()
}

// RateLimit rejects requests over the per-client budget with 429 and a
// Retry-After header.
func RateLimit(guard *rateguard.Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision := guard.Allow(c.Request.Context(), ClientIdentifier(c))
		if !decision.Allowed {
			seconds := int(math.Ceil(decision.RetryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": seconds,
			})
			return
		}
		c.Next()
	}
}
