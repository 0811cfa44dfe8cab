package airquality

import (
	"math"
	"sort"
	"strings"
	"time"
)

// DateLayout is the calendar date format used as series key.
const DateLayout = "2006-01-02"

// CurrentLabel labels the entry holding the instantaneous reading.
const CurrentLabel = "Current AQI"

// Reconcile merges history averages, forecast days and the current reading
// into one series ordered by date. History wins over forecast for the same
// date; a present current reading always replaces the entry for today.
func Reconcile(history *History, forecast *Forecast, currentAqi *int, today string) []DailyAqiEntry {
	byDate := make(map[string]DailyAqiEntry)

	for _, e := range DailyHistoryAverages(history) {
		byDate[e.Date] = e
	}

	for _, e := range DailyForecast(forecast) {
		if _, ok := byDate[e.Date]; !ok {
			byDate[e.Date] = e
		}
	}

	if currentAqi != nil {
		v := *currentAqi
		byDate[today] = DailyAqiEntry{Date: today, Label: CurrentLabel, AQI: &v}
	}

	entries := make([]DailyAqiEntry, 0, len(byDate))
	for _, e := range byDate {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Date < entries[j].Date
	})
	return entries
}

// DailyHistoryAverages groups history readings by UTC date and averages each
// day, rounding half to even. Unequal array lengths are truncated to the shorter.
func DailyHistoryAverages(history *History) []DailyAqiEntry {
	if history == nil || len(history.Timestamps) == 0 || len(history.AqiUS) == 0 {
		return nil
	}

	n := min(len(history.Timestamps), len(history.AqiUS))
	sums := make(map[string]int)
	counts := make(map[string]int)
	for i := 0; i < n; i++ {
		date := datePart(history.Timestamps[i])
		sums[date] += history.AqiUS[i]
		counts[date]++
	}

	dates := make([]string, 0, len(sums))
	for d := range sums {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	entries := make([]DailyAqiEntry, 0, len(dates))
	for _, d := range dates {
		avg := int(math.RoundToEven(float64(sums[d]) / float64(counts[d])))
		entries = append(entries, DailyAqiEntry{
			Date:  d,
			Label: "Avg. AQI (" + d + ")",
			AQI:   &avg,
		})
	}
	return entries
}

// DailyForecast keys each forecast day by its date. Missing values stay null.
func DailyForecast(forecast *Forecast) []DailyAqiEntry {
	if forecast == nil {
		return nil
	}

	entries := make([]DailyAqiEntry, 0, len(forecast.Daily))
	for _, day := range forecast.Daily {
		d := datePart(day.Timestamp)
		var aqi *int
		if day.AqiUS != nil {
			v := *day.AqiUS
			aqi = &v
		}
		entries = append(entries, DailyAqiEntry{
			Date:  d,
			Label: "Forecast AQI (" + d + ")",
			AQI:   aqi,
		})
	}
	return entries
}

// datePart returns the UTC calendar date of an RFC 3339 timestamp, or the
// text before "T" when the timestamp does not parse.
func datePart(ts string) string {
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		return t.UTC().Format(DateLayout)
	}
	d, _, _ := strings.Cut(ts, "T")
	return d
}
