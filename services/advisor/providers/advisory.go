// Copyright (C) 2026 Agronova AI (dev@agronova.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AgronovaAI/AgronovaLocal/services/advisor/datatypes"
)

// AdvisoryClient fetches regional weather and agronomy advisories. The
// upstream is the flakiest of the three providers, so calls go through
// a retry policy with an outbound rate cap.
type AdvisoryClient struct {
	httpClient HTTPClient
	baseURL    string
	retry      RetryPolicy
}

func NewAdvisoryClient(baseURL string, httpClient HTTPClient, retry RetryPolicy) *AdvisoryClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &AdvisoryClient{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		retry:      retry,
	}
}

var _ AdvisoryProvider = (*AdvisoryClient)(nil)

// FetchAdvisory implements AdvisoryProvider.
func (c *AdvisoryClient) FetchAdvisory(ctx context.Context, region string, crop string) (*datatypes.AdvisoryContext, error) {
	var advisory datatypes.AdvisoryContext

	endpoint := fmt.Sprintf("%s/v1/advisories?region=%s&crop=%s",
		c.baseURL, url.QueryEscape(region), url.QueryEscape(crop))

	err := c.retry.Do(ctx, "FetchAdvisory", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("failed to create the request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("advisory call failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read the advisory response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("advisory service returned status %d: %s", resp.StatusCode, string(body))
		}
		if err := json.Unmarshal(body, &advisory); err != nil {
			return fmt.Errorf("failed to unmarshal the advisory response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	advisory.Region = region
	advisory.FetchedAt = time.Now().UTC()
	return &advisory, nil
}
