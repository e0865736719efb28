// Package backend submits finalized trips to the trips service and spools
// them locally while the device is offline.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/banshee-data/trip.report/internal/trip"
)

// Submitter sends one finalized trip and returns the authoritative safety
// score computed by the service.
type Submitter interface {
	Submit(ctx context.Context, summary *trip.Summary) (float64, error)
}

// Client talks to the trips service REST API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a Client for the service at baseURL (for example
// "https://trips.example.net/api/trips").
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Wire payloads. Field names match the service's serializers.
type tripCreateRequest struct {
	StartLatitude  float64 `json:"start_latitude"`
	StartLongitude float64 `json:"start_longitude"`
}

type tripPatchRequest struct {
	EndLatitude             float64  `json:"end_latitude"`
	EndLongitude            float64  `json:"end_longitude"`
	EndTime                 string   `json:"end_time"`
	AverageSpeedKMH         float64  `json:"average_speed_kmh"`
	TotalDistanceKm         float64  `json:"total_distance_km"`
	HarshBrakingCount       int      `json:"harsh_braking_count"`
	HarshAccelerationCount  int      `json:"harsh_acceleration_count"`
	CrashDetected           bool     `json:"crash_detected"`
	CrashLatitude           *float64 `json:"crash_latitude,omitempty"`
	CrashLongitude          *float64 `json:"crash_longitude,omitempty"`
	SpeedingDurationSeconds int      `json:"speeding_duration_seconds"`
	SpeedingViolationsCount int      `json:"speeding_violations_count"`
	MaxSpeedOverLimit       float64  `json:"max_speed_over_limit"`
}

type tripResponse struct {
	ID          int64    `json:"id"`
	SafetyScore *float64 `json:"safety_score"`
}

type eventRequest struct {
	EventType       string  `json:"event_type"`
	Timestamp       string  `json:"timestamp"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	Severity        string  `json:"severity"`
	SpeedKMHAtEvent float64 `json:"speed_kmh_at_event"`
}

// Submit creates the trip record, uploads its harsh events, and patches the
// end-of-trip aggregates. The returned score is the service's authoritative
// recomputation from the same aggregates.
func (c *Client) Submit(ctx context.Context, summary *trip.Summary) (float64, error) {
	var created tripResponse
	err := c.do(ctx, http.MethodPost, c.BaseURL+"/", tripCreateRequest{
		StartLatitude:  summary.StartLat,
		StartLongitude: summary.StartLng,
	}, &created)
	if err != nil {
		return 0, fmt.Errorf("failed to create trip: %w", err)
	}

	for _, ev := range summary.Events {
		req := eventRequest{
			EventType:       string(ev.Kind),
			Timestamp:       ev.Time.UTC().Format(time.RFC3339),
			Latitude:        ev.Lat,
			Longitude:       ev.Lng,
			Severity:        string(ev.Severity),
			SpeedKMHAtEvent: ev.SpeedKMH,
		}
		url := fmt.Sprintf("%s/%d/events/", c.BaseURL, created.ID)
		if err := c.do(ctx, http.MethodPost, url, req, nil); err != nil {
			return 0, fmt.Errorf("failed to post event: %w", err)
		}
	}

	patch := tripPatchRequest{
		EndLatitude:             summary.EndLat,
		EndLongitude:            summary.EndLng,
		EndTime:                 summary.EndTime.UTC().Format(time.RFC3339),
		AverageSpeedKMH:         summary.AverageSpeedKMH,
		TotalDistanceKm:         summary.TotalDistanceKm,
		HarshBrakingCount:       summary.HarshBrakingCount,
		HarshAccelerationCount:  summary.HarshAccelerationCount,
		CrashDetected:           summary.CrashDetected,
		SpeedingDurationSeconds: int(summary.SpeedingSeconds),
		SpeedingViolationsCount: summary.SpeedingViolations,
		MaxSpeedOverLimit:       summary.MaxExcessKMH,
	}
	if summary.CrashDetected {
		patch.CrashLatitude = &summary.CrashLat
		patch.CrashLongitude = &summary.CrashLng
	}

	var patched tripResponse
	url := fmt.Sprintf("%s/%d/", c.BaseURL, created.ID)
	if err := c.do(ctx, http.MethodPatch, url, patch, &patched); err != nil {
		return 0, fmt.Errorf("failed to finalize trip: %w", err)
	}

	if patched.SafetyScore == nil {
		return 0, fmt.Errorf("service returned no safety score for trip %d", created.ID)
	}
	return *patched.SafetyScore, nil
}

func (c *Client) do(ctx context.Context, method, url string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s returned status %d: %s", method, url, resp.StatusCode, snippet)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
