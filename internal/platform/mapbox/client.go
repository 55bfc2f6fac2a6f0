// Package mapbox implements the route distance provider on top of the
// Mapbox Directions API.
package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brunovh/grainalloc/internal/domain"
)

// DefaultBaseURL is the public Mapbox API endpoint.
const DefaultBaseURL = "https://api.mapbox.com"

// Client is an HTTP client for the Mapbox Directions API, used to compute
// driving distances between origin and destination coordinates.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new Mapbox Directions client. baseURL falls back to
// DefaultBaseURL when empty; timeout falls back to 15 seconds when zero.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   strings.TrimSpace(token),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// directionsResponse is the subset of the Directions API response we need.
type directionsResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
	} `json:"routes"`
	Message string `json:"message"`
}

// DrivingDistance returns the driving distance in kilometers between two
// coordinate pairs, each given as [longitude, latitude].
func (c *Client) DrivingDistance(ctx context.Context, from, to domain.Coords) (float64, error) {
	endpoint := fmt.Sprintf("%s/directions/v5/mapbox/driving/%f,%f;%f,%f",
		c.baseURL, from[0], from[1], to[0], to[1])

	q := url.Values{}
	q.Set("access_token", c.token)
	q.Set("overview", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("mapbox: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("mapbox: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("mapbox: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("mapbox: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var dr directionsResponse
	if err := json.Unmarshal(body, &dr); err != nil {
		return 0, fmt.Errorf("mapbox: decode response: %w", err)
	}

	if dr.Code != "Ok" {
		return 0, fmt.Errorf("mapbox: directions error: %s %s", dr.Code, dr.Message)
	}
	if len(dr.Routes) == 0 {
		return 0, fmt.Errorf("mapbox: no route between %v and %v", from, to)
	}

	// The API reports meters; the engine works in kilometers.
	return dr.Routes[0].Distance / 1000.0, nil
}

// Compile-time interface check.
var _ domain.Router = (*Client)(nil)
