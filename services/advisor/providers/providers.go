// Copyright (C) 2026 Agronova AI (dev@agronova.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package providers holds the clients for the external context sources
// the aggregator fans out to. Each provider may fail or hang; callers
// bound every fetch with a context deadline.
package providers

import (
	"context"
	"net/http"

	"github.com/AgronovaAI/AgronovaLocal/services/advisor/datatypes"
)

// HTTPClient interface allows injecting mock HTTP clients for testing
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ProfileProvider fetches the farm profile record for a farm.
type ProfileProvider interface {
	FetchProfile(ctx context.Context, farmID string) (*datatypes.ProfileContext, error)
}

// SiteProvider fetches sensor and soil readings for a site.
type SiteProvider interface {
	FetchSite(ctx context.Context, siteID string) (*datatypes.SiteContext, error)
}

// AdvisoryProvider fetches regional weather and agronomic advisories.
type AdvisoryProvider interface {
	FetchAdvisory(ctx context.Context, region string, crop string) (*datatypes.AdvisoryContext, error)
}
