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
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AgronovaAI/AgronovaLocal/services/advisor/datatypes"
)

// RegistryClient talks to the farm registry service, which serves both
// farm profiles and per-site sensor readings.
//
// # Thread Safety
//
// Safe for concurrent use. Concurrent fetches for the same key are
// coalesced into a single upstream request via singleflight.
type RegistryClient struct {
	httpClient HTTPClient
	baseURL    string
	flight     singleflight.Group
}

func NewRegistryClient(baseURL string, httpClient HTTPClient) *RegistryClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &RegistryClient{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

var _ ProfileProvider = (*RegistryClient)(nil)
var _ SiteProvider = (*RegistryClient)(nil)

// FetchProfile implements ProfileProvider.
func (c *RegistryClient) FetchProfile(ctx context.Context, farmID string) (*datatypes.ProfileContext, error) {
	key := "profile:" + farmID
	v, err, shared := c.flight.Do(key, func() (interface{}, error) {
		var profile datatypes.ProfileContext
		url := fmt.Sprintf("%s/v1/farms/%s", c.baseURL, farmID)
		if err := c.getJSON(ctx, url, &profile); err != nil {
			return nil, err
		}
		profile.FarmID = farmID
		profile.FetchedAt = time.Now().UTC()
		return &profile, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch the farm profile: %w", err)
	}
	if shared {
		slog.Debug("Coalesced concurrent profile fetch", "farm_id", farmID)
	}
	return v.(*datatypes.ProfileContext), nil
}

// FetchSite implements SiteProvider.
func (c *RegistryClient) FetchSite(ctx context.Context, siteID string) (*datatypes.SiteContext, error) {
	key := "site:" + siteID
	v, err, shared := c.flight.Do(key, func() (interface{}, error) {
		var site datatypes.SiteContext
		url := fmt.Sprintf("%s/v1/sites/%s", c.baseURL, siteID)
		if err := c.getJSON(ctx, url, &site); err != nil {
			return nil, err
		}
		site.SiteID = siteID
		site.FetchedAt = time.Now().UTC()
		return &site, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch the site readings: %w", err)
	}
	if shared {
		slog.Debug("Coalesced concurrent site fetch", "site_id", siteID)
	}
	return v.(*datatypes.SiteContext), nil
}

func (c *RegistryClient) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create the request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("registry call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read the registry response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("registry returned status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal the registry response: %w", err)
	}
	return nil
}
