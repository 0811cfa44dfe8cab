// Package airquality provides per-city air quality reports and comparisons.
package airquality

import (
	"errors"
	"fmt"
	"net/http"
)

// Provider errors.
var (
	ErrProviderUnavailable = errors.New("air quality provider unavailable")
)

// RateLimitError is returned when the provider kept answering 429 until the
// attempt budget was spent.
type RateLimitError struct {
	Attempts int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited after %d attempts", e.Attempts)
}

// HTTPError is a non-success HTTP status from the provider.
type HTTPError struct {
	StatusCode int

	// Message is the provider's error message, if the body carried one.
	Message string
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// StatusError is a well-formed provider payload whose status is not "success".
type StatusError struct {
	// Status is the payload status, e.g. "fail".
	Status string

	// StatusCode is the HTTP status the payload arrived with.
	StatusCode int

	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "provider status " + e.Status
}

// RequestError is a transport-level failure (connection, timeout, open circuit).
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Location identifies a city as the provider names it.
type Location struct {
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
}

// Weather is the provider's current weather block.
type Weather struct {
	Timestamp     string  `json:"ts,omitempty"`
	Temperature   float64 `json:"tp"`
	Pressure      float64 `json:"pr"`
	Humidity      float64 `json:"hu"`
	WindSpeed     float64 `json:"ws"`
	WindDirection float64 `json:"wd"`
	Icon          string  `json:"ic,omitempty"`
}

// Pollution is the provider's current pollution block.
type Pollution struct {
	Timestamp     string
	AqiUS         *int
	MainPollutant *string
}

// History holds hourly readings as parallel arrays of UTC timestamps and AQI (US) values.
type History struct {
	Timestamps []string
	AqiUS      []int
}

// ForecastDay is a single daily forecast reading.
type ForecastDay struct {
	Timestamp string
	AqiUS     *int
}

// Forecast holds daily forecast readings.
type Forecast struct {
	Daily []ForecastDay
}

// CityData is the normalized provider payload for one city.
type CityData struct {
	Location  Location
	Pollution Pollution
	Weather   Weather

	// History and Forecast are nil when the provider omits them.
	History  *History
	Forecast *Forecast
}

// DailyAqiEntry is one day of the reconciled AQI series.
type DailyAqiEntry struct {
	Date  string `json:"date"`
	Label string `json:"label"`
	AQI   *int   `json:"aqi"`
}

// Report is the successful part of a city result.
type Report struct {
	City            string          `json:"city"`
	Country         string          `json:"country"`
	State           string          `json:"state"`
	AqiUS           *int            `json:"aqi_us"`
	MainPollutant   *string         `json:"main_pollutant"`
	Weather         Weather         `json:"weather"`
	DailyAqiSummary []DailyAqiEntry `json:"daily_aqi_summary"`
}

// Result is the uniform outcome of a city lookup. On success the Report
// fields are inlined; on failure only Error is set.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	*Report
}

// Comparison is the outcome of comparing two cities.
type Comparison struct {
	City1      Result `json:"city1"`
	City2      Result `json:"city2"`
	Conclusion string `json:"conclusion,omitempty"`
}

func success(r *Report) Result {
	return Result{Success: true, Report: r}
}

func failure(msg string) Result {
	return Result{Success: false, Error: msg}
}
