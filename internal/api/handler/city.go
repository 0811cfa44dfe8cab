package handler

import (
	"context"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/cityair/cityair/internal/airquality"
	"github.com/cityair/cityair/internal/api/models"
	"github.com/cityair/cityair/internal/api/response"
	"github.com/cityair/cityair/internal/catalog"
)

const (
	// minQueryLength is the shortest query, in characters, that is matched.
	minQueryLength = 3

	maxSuggestions = 20
)

// CityReporter looks up air quality for one or two cities.
type CityReporter interface {
	CityReport(ctx context.Context, city, state, country string) airquality.Result
	Compare(ctx context.Context, a, b airquality.Location) airquality.Comparison
}

// Suggester ranks catalog cities against a free-text query.
type Suggester interface {
	Match(query string, limit int) []catalog.CityRecord
}

// CityHandler handles the city lookup endpoints.
type CityHandler struct {
	reporter  CityReporter
	suggester Suggester
}

// NewCityHandler creates a new CityHandler.
func NewCityHandler(reporter CityReporter, suggester Suggester) *CityHandler {
	return &CityHandler{
		reporter:  reporter,
		suggester: suggester,
	}
}

// Autocomplete handles GET /api/autocomplete.
func (h *CityHandler) Autocomplete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("query")

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxSuggestions {
			response.BadRequest(w, r, "limit must be an integer between 1 and 20.")
			return
		}
		limit = n
	}

	suggestions := []catalog.CityRecord{}
	if utf8.RuneCountInString(query) >= minQueryLength {
		if matched := h.suggester.Match(query, limit); matched != nil {
			suggestions = matched
		}
	}

	response.JSON(w, r, http.StatusOK, models.AutocompleteResponse{Suggestions: suggestions})
}

// CityResume handles GET /api/city_resume. Upstream failures are reported
// in the body with status 200.
func (h *CityHandler) CityResume(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	city, state, country := q.Get("city"), q.Get("state"), q.Get("country")
	if city == "" || state == "" || country == "" {
		response.BadRequest(w, r, "City, state, and country are required.")
		return
	}

	response.JSON(w, r, http.StatusOK, h.reporter.CityReport(r.Context(), city, state, country))
}

// CompareCities handles GET /api/compare_cities.
func (h *CityHandler) CompareCities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	a := airquality.Location{City: q.Get("c1_city"), State: q.Get("c1_state"), Country: q.Get("c1_country")}
	b := airquality.Location{City: q.Get("c2_city"), State: q.Get("c2_state"), Country: q.Get("c2_country")}
	if !complete(a) || !complete(b) {
		response.BadRequest(w, r, "All city, state, and country fields for both cities are required.")
		return
	}

	response.JSON(w, r, http.StatusOK, h.reporter.Compare(r.Context(), a, b))
}

func complete(l airquality.Location) bool {
	return l.City != "" && l.State != "" && l.Country != ""
}
