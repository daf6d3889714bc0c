// Package weather fetches current conditions from wttr.in, a keyless
// weather endpoint. Lookups never fail from the caller's point of view:
// any transport or parse error degrades to a canned report.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://wttr.in"
	defaultTimeout = 15 * time.Second
)

// Report is the small slice of conditions the assistant cares about.
// WindSpeed is in m/s.
type Report struct {
	Temp        int     `json:"temp"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
	Humidity    int     `json:"humidity"`
	WindSpeed   float64 `json:"windSpeed"`
}

// Client queries wttr.in's JSON endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a weather client against the public wttr.in endpoint.
func NewClient() *Client {
	return NewClientWithBaseURL(defaultBaseURL)
}

// NewClientWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewClientWithBaseURL(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: slog.Default(),
	}
}

// Fallback is the report served when the upstream is unreachable or
// returns something unparseable.
func Fallback() Report {
	return Report{
		Temp:        22,
		Description: "partly cloudy",
		Icon:        "116",
		Humidity:    65,
		WindSpeed:   3.5,
	}
}

// wttr.in format=j1 response, reduced to the fields used.
type wttrResponse struct {
	CurrentCondition []struct {
		TempC       string `json:"temp_C"`
		Humidity    string `json:"humidity"`
		WeatherCode string `json:"weatherCode"`
		WindKmph    string `json:"windspeedKmph"`
		WeatherDesc []struct {
			Value string `json:"value"`
		} `json:"weatherDesc"`
	} `json:"current_condition"`
}

// Current returns the conditions for a city. It never returns an error;
// failures are logged and yield the fallback report.
func (c *Client) Current(ctx context.Context, city string) Report {
	report, err := c.fetch(ctx, city)
	if err != nil {
		c.logger.Warn("weather lookup failed, using fallback", "city", city, "error", err)
		return Fallback()
	}
	return report
}

func (c *Client) fetch(ctx context.Context, city string) (Report, error) {
	u := c.baseURL + "/" + url.PathEscape(city) + "?format=j1"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Report{}, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Report{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Report{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var parsed wttrResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Report{}, fmt.Errorf("decoding response: %w", err)
	}
	if len(parsed.CurrentCondition) == 0 {
		return Report{}, fmt.Errorf("response has no current conditions")
	}

	cur := parsed.CurrentCondition[0]
	temp, err := strconv.Atoi(cur.TempC)
	if err != nil {
		return Report{}, fmt.Errorf("parsing temperature %q: %w", cur.TempC, err)
	}
	humidity, _ := strconv.Atoi(cur.Humidity)
	windKmph, _ := strconv.ParseFloat(cur.WindKmph, 64)

	desc := ""
	if len(cur.WeatherDesc) > 0 {
		desc = strings.ToLower(cur.WeatherDesc[0].Value)
	}

	return Report{
		Temp:        temp,
		Description: desc,
		Icon:        cur.WeatherCode,
		Humidity:    humidity,
		WindSpeed:   windKmph / 3.6,
	}, nil
}

// Suggestion returns a clothing hint for the report's temperature band.
func Suggestion(r Report) string {
	switch {
	case r.Temp < 10:
		return "It's cold outside! Consider wearing warm layers and a jacket."
	case r.Temp < 20:
		return "The weather is mild. A light jacket should be perfect."
	case r.Temp < 30:
		return "Nice weather! Light clothing should be comfortable."
	default:
		return "It's hot outside! Stay hydrated and wear light, breathable clothing."
	}
}
