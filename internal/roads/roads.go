// Package roads queries an external road-data source for the roads near a
// coordinate. The source is untrusted and rate limited; callers are expected
// to cache aggressively and to survive any failure mode here.
package roads

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Road describes one road returned by the data source.
type Road struct {
	// Class is the OSM highway classification (motorway, residential, ...).
	Class string

	// MaxSpeedTag is the raw posted-limit tag, empty when none is mapped.
	// It may carry a unit suffix ("30 mph") or a non-numeric value like "none".
	MaxSpeedTag string
}

// Querier finds roads within radiusMeters of a coordinate.
type Querier interface {
	NearbyRoads(ctx context.Context, lat, lng, radiusMeters float64) ([]Road, error)
}

// DefaultOverpassURL is the public Overpass API interpreter endpoint.
const DefaultOverpassURL = "https://overpass-api.de/api/interpreter"

// maxResponseBytes bounds how much of a response we are willing to decode.
const maxResponseBytes = 1 << 20

// OverpassClient implements Querier against an Overpass API endpoint.
type OverpassClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewOverpassClient returns a client for the given endpoint with the given
// per-request timeout. An empty baseURL selects the public endpoint.
func NewOverpassClient(baseURL string, timeout time.Duration) *OverpassClient {
	if baseURL == "" {
		baseURL = DefaultOverpassURL
	}
	return &OverpassClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type overpassResponse struct {
	Elements []struct {
		Type string            `json:"type"`
		Tags map[string]string `json:"tags"`
	} `json:"elements"`
}

// NearbyRoads queries for highway ways around the coordinate and returns
// their classifications and posted-limit tags, nearest-query order as
// returned by the source.
func (c *OverpassClient) NearbyRoads(ctx context.Context, lat, lng, radiusMeters float64) ([]Road, error) {
	query := fmt.Sprintf(
		`[out:json][timeout:5];way(around:%.0f,%.6f,%.6f)[highway];out tags 10;`,
		radiusMeters, lat, lng,
	)

	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build road query: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("road query failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("road query returned status %d", resp.StatusCode)
	}

	var parsed overpassResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode road query response: %w", err)
	}

	var out []Road
	for _, el := range parsed.Elements {
		if el.Type != "way" || el.Tags == nil {
			continue
		}
		class := el.Tags["highway"]
		if class == "" {
			continue
		}
		out = append(out, Road{
			Class:       class,
			MaxSpeedTag: el.Tags["maxspeed"],
		})
	}
	return out, nil
}
