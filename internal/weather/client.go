// Package weather fetches short forecasts for a grower's location.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// DefaultBaseURL is the weatherapi.com v1 API root.
const DefaultBaseURL = "http://api.weatherapi.com/v1"

// Condition describes the sky at one point in time.
type Condition struct {
	Text string `json:"text"`
	Icon string `json:"icon"`
	Code int    `json:"code"`
}

// Current holds the present conditions.
type Current struct {
	TempC     float64   `json:"temp_c"`
	Humidity  int       `json:"humidity"`
	WindKph   float64   `json:"wind_kph"`
	Condition Condition `json:"condition"`
}

// Day is one forecast day.
type Day struct {
	Date string `json:"date"`
	Day  struct {
		MaxTempC          float64   `json:"maxtemp_c"`
		MinTempC          float64   `json:"mintemp_c"`
		DailyChanceOfRain int       `json:"daily_chance_of_rain"`
		Condition         Condition `json:"condition"`
	} `json:"day"`
}

// Location names the place a forecast is for.
type Location struct {
	Name    string `json:"name"`
	Region  string `json:"region"`
	Country string `json:"country"`
}

// Forecast is the forecast.json response.
type Forecast struct {
	Location Location `json:"location"`
	Current  Current  `json:"current"`
	Forecast struct {
		ForecastDay []Day `json:"forecastday"`
	} `json:"forecast"`
}

// Client talks to the weather API.
type Client struct {
	BaseURL    string
	APIKey     string
	Days       int
	HTTPClient *http.Client
}

// NewClient returns a three-day forecast client.
func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		Days:       3,
		HTTPClient: http.DefaultClient,
	}
}

// Forecast fetches the forecast for a latitude/longitude pair.
func (c *Client) Forecast(ctx context.Context, lat, lon float64) (*Forecast, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("weather API key is not configured")
	}

	q := url.Values{}
	q.Set("key", c.APIKey)
	q.Set("q", strconv.FormatFloat(lat, 'f', -1, 64)+","+strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("days", strconv.Itoa(c.Days))
	q.Set("aqi", "no")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/forecast.json?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build weather request: %w", err)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch weather: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("weather API returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var f Forecast
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode weather response: %w", err)
	}
	return &f, nil
}

// IconName maps a weatherapi.com condition code to the icon shown on the dashboard.
func IconName(code int) string {
	switch code {
	case 1000:
		return "sunny"
	case 1003:
		return "partly-sunny"
	case 1006:
		return "cloud"
	case 1009:
		return "cloudy"
	case 1063, 1180, 1183, 1186, 1189, 1192, 1195:
		return "rainy"
	case 1087:
		return "thunderstorm"
	case 1114, 1210, 1213, 1216:
		return "snow"
	case 1030:
		return "water"
	default:
		return "help-circle-outline"
	}
}
