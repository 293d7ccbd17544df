// Package weather fetches the current conditions from Open-Meteo.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultBaseURL = "https://api.open-meteo.com/v1"

// ErrDataUnavailable is returned when the payload carries no current block.
var ErrDataUnavailable = errors.New("weather data unavailable")

// Client talks to the Open-Meteo forecast API. No key is required.
type Client struct {
	httpClient *http.Client
	// BaseURL is exported for testing with httptest.
	BaseURL string
}

// NewClient creates a Client with a 10 second timeout.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		BaseURL:    defaultBaseURL,
	}
}

// Reading is the rendered current weather.
type Reading struct {
	TemperatureC int       `json:"temperature_c"`
	Code         int       `json:"code"`
	Description  string    `json:"description"`
	Icon         string    `json:"icon"`
	FetchedAt    time.Time `json:"fetched_at"`
}

type forecastResponse struct {
	Current *struct {
		Temperature float64 `json:"temperature_2m"`
		WeatherCode int     `json:"weather_code"`
	} `json:"current"`
}

// Current fetches the current temperature and condition for a location.
func (c *Client) Current(ctx context.Context, lat, lon float64, timezone string) (*Reading, error) {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("current", "temperature_2m,weather_code")
	if timezone != "" {
		params.Set("timezone", timezone)
	}
	reqURL := fmt.Sprintf("%s/forecast?%s", c.BaseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build weather request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("weather API returned status %d: %s", resp.StatusCode, string(body))
	}

	var fr forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return nil, fmt.Errorf("failed to decode weather response: %w", err)
	}
	if fr.Current == nil {
		return nil, fmt.Errorf("%w: response has no current block", ErrDataUnavailable)
	}

	cond := Lookup(fr.Current.WeatherCode)
	return &Reading{
		TemperatureC: roundHalfUp(fr.Current.Temperature),
		Code:         fr.Current.WeatherCode,
		Description:  cond.Description,
		Icon:         cond.Icon,
		FetchedAt:    time.Now(),
	}, nil
}

// roundHalfUp rounds .5 towards positive infinity, so -2.5 becomes -2.
func roundHalfUp(f float64) int {
	return int(math.Floor(f + 0.5))
}
