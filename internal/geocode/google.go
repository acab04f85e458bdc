// Package geocode adapts the Google Geocoding JSON API behind a small
// Geocoder interface so the location cache never talks HTTP directly.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/bandmate/bandmate/internal/errors"
	"github.com/bandmate/bandmate/internal/telemetry"
)

// Result is one geocoding candidate for a free-text address query.
type Result struct {
	FormattedAddress string
	Lat              float64
	Lng              float64
	PlaceID          string
}

// Geocoder resolves a free-text address into coordinate candidates.
// An empty result slice with a nil error means the address is
// legitimately unresolvable, not that the provider failed.
type Geocoder interface {
	Geocode(ctx context.Context, address string) ([]Result, error)
}

const defaultBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

// statusZeroResults is the provider's business-level "no match" signal,
// distinct from transport failure.
const statusZeroResults = "ZERO_RESULTS"

// GoogleClient calls the Google Geocoding API.
type GoogleClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// GoogleOption configures a GoogleClient.
type GoogleOption func(*GoogleClient)

// WithHTTPClient overrides the HTTP client (tests point it at a stub).
func WithHTTPClient(client *http.Client) GoogleOption {
	return func(g *GoogleClient) { g.client = client }
}

// WithBaseURL overrides the provider endpoint.
func WithBaseURL(baseURL string) GoogleOption {
	return func(g *GoogleClient) { g.baseURL = baseURL }
}

// NewGoogleClient creates a Google Geocoding client.
func NewGoogleClient(apiKey string, opts ...GoogleOption) *GoogleClient {
	g := &GoogleClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type googleResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		PlaceID          string `json:"place_id"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode resolves an address through the provider.
func (g *GoogleClient) Geocode(ctx context.Context, address string) ([]Result, error) {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation": "geocode",
		"service":   "google_geocoding",
	})

	if g.apiKey == "" {
		return nil, apperrors.NewUpstreamError("google_geocoding", "geocode",
			fmt.Errorf("geocoding API key is not configured"))
	}

	params := url.Values{}
	params.Set("address", address)
	params.Set("key", g.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, apperrors.NewUpstreamError("google_geocoding", "geocode", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		logger.WithError(err).Error("Geocoding request failed")
		return nil, apperrors.NewUpstreamError("google_geocoding", "geocode", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.WithField("status_code", resp.StatusCode).Error("Geocoding request returned non-OK status")
		return nil, apperrors.NewUpstreamError("google_geocoding", "geocode",
			fmt.Errorf("unexpected HTTP status %d", resp.StatusCode))
	}

	var payload googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apperrors.NewUpstreamError("google_geocoding", "geocode", err)
	}

	if payload.Status == statusZeroResults || (payload.Status == "OK" && len(payload.Results) == 0) {
		logger.Debug("Geocoding returned zero results")
		return nil, nil
	}
	if payload.Status != "OK" {
		logger.WithFields(map[string]interface{}{
			"provider_status": payload.Status,
			"provider_error":  payload.ErrorMessage,
		}).Error("Geocoding returned error status")
		return nil, apperrors.NewUpstreamError("google_geocoding", "geocode",
			fmt.Errorf("provider status %s: %s", payload.Status, payload.ErrorMessage))
	}

	results := make([]Result, 0, len(payload.Results))
	for _, r := range payload.Results {
		results = append(results, Result{
			FormattedAddress: r.FormattedAddress,
			Lat:              r.Geometry.Location.Lat,
			Lng:              r.Geometry.Location.Lng,
			PlaceID:          r.PlaceID,
		})
	}
	return results, nil
}
