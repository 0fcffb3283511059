package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
)

const defaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"

// SourceError reports a non-success response from the weather API for one
// city. It aborts the whole batch: the pipeline has no partial-batch mode.
type SourceError struct {
	City       string
	StatusCode int
	Body       string
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("openweather: fetch %q failed: status %d: %s", e.City, e.StatusCode, e.Body)
}

// Client fetches current observations from OpenWeatherMap.
// Calls are fresh every time: no retries, no caching. A circuit breaker
// fails fast while the upstream is down so scheduled runs abort cheaply.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

// NewClient creates an OpenWeatherMap client using the given HTTP client.
// The HTTP client's timeout bounds each per-city call.
func NewClient(client *http.Client, apiKey string) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openweather",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		client:  client,
		circuit: cb,
	}
}

// FetchAll fetches one observation per city, preserving input order.
// It fails fast on the first per-city error; nothing is returned for a
// partially successful batch.
func (c *Client) FetchAll(ctx context.Context, cities []string) ([]Observation, error) {
	observations := make([]Observation, 0, len(cities))
	for _, city := range cities {
		obs, err := c.Fetch(ctx, city)
		if err != nil {
			return nil, err
		}
		observations = append(observations, obs)
	}
	return observations, nil
}

// Fetch retrieves the current observation for a single city.
func (c *Client) Fetch(ctx context.Context, city string) (Observation, error) {
	if c.apiKey == "" {
		return Observation{}, fmt.Errorf("openweather api key is not configured")
	}

	values := url.Values{}
	values.Set("q", city)
	values.Set("units", "metric")
	values.Set("appid", c.apiKey)

	u := fmt.Sprintf("%s?%s", c.baseURL, values.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Observation{}, err
	}

	result, err := c.circuit.Execute(func() (interface{}, error) {
		resp, execErr := c.client.Do(req)
		if execErr != nil {
			return nil, execErr
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
			return nil, &SourceError{
				City:       city,
				StatusCode: resp.StatusCode,
				Body:       string(body),
			}
		}

		var payload struct {
			Dt   int64  `json:"dt"`
			ID   int64  `json:"id"`
			Name string `json:"name"`
			Main struct {
				Temp     *float64 `json:"temp"`
				Humidity *int64   `json:"humidity"`
			} `json:"main"`
			Wind struct {
				Speed *float64 `json:"speed"`
			} `json:"wind"`
		}
		if decErr := json.NewDecoder(resp.Body).Decode(&payload); decErr != nil {
			return nil, fmt.Errorf("openweather: decode payload for %q: %w", city, decErr)
		}

		return Observation{
			StationID:   payload.ID,
			City:        payload.Name,
			Timestamp:   payload.Dt,
			Temperature: payload.Main.Temp,
			Humidity:    payload.Main.Humidity,
			WindSpeed:   payload.Wind.Speed,
		}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Observation{}, fmt.Errorf("openweather: circuit open for %q: %w", city, err)
		}
		return Observation{}, err
	}

	obs, ok := result.(Observation)
	if !ok {
		return Observation{}, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return obs, nil
}
