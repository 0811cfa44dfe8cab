package iqair

import (
	"encoding/json"
	"strings"

	"github.com/cityair/cityair/internal/airquality"
)

// statusSuccess is the payload status of a successful call.
const statusSuccess = "success"

// envelope is the outer shape of every AirVisual v2 response.
type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

// message extracts the provider's explanation from a failed payload, whose
// data is either {"message": "..."} or a bare string.
func (e *envelope) message() string {
	if len(e.Data) == 0 {
		return ""
	}
	var withMessage struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(e.Data, &withMessage); err == nil && withMessage.Message != "" {
		return withMessage.Message
	}
	var text string
	if err := json.Unmarshal(e.Data, &text); err == nil {
		return text
	}
	return strings.TrimSpace(string(e.Data))
}

type cityResponse struct {
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
	Current struct {
		Pollution pollutionData      `json:"pollution"`
		Weather   airquality.Weather `json:"weather"`
	} `json:"current"`
	History  *historyData  `json:"history"`
	Forecast *forecastData `json:"forecast"`
}

type pollutionData struct {
	Timestamp string  `json:"ts"`
	AqiUS     *int    `json:"aqius"`
	MainUS    *string `json:"mainus"`
}

type historyData struct {
	Pollution *struct {
		Timestamps []string `json:"ts"`
		AqiUS      []int    `json:"aqius"`
	} `json:"pollution"`
}

type forecastData struct {
	Daily []struct {
		Timestamp string `json:"ts"`
		AqiUS     *int   `json:"aqius"`
	} `json:"daily"`
}

type stateEntry struct {
	State string `json:"state"`
}

type cityEntry struct {
	City string `json:"city"`
}

func (r *cityResponse) toCityData() *airquality.CityData {
	data := &airquality.CityData{
		Location: airquality.Location{
			City:    r.City,
			State:   r.State,
			Country: r.Country,
		},
		Pollution: airquality.Pollution{
			Timestamp:     r.Current.Pollution.Timestamp,
			AqiUS:         r.Current.Pollution.AqiUS,
			MainPollutant: r.Current.Pollution.MainUS,
		},
		Weather: r.Current.Weather,
	}

	if r.History != nil && r.History.Pollution != nil {
		data.History = &airquality.History{
			Timestamps: r.History.Pollution.Timestamps,
			AqiUS:      r.History.Pollution.AqiUS,
		}
	}

	if r.Forecast != nil {
		days := make([]airquality.ForecastDay, 0, len(r.Forecast.Daily))
		for _, d := range r.Forecast.Daily {
			days = append(days, airquality.ForecastDay{Timestamp: d.Timestamp, AqiUS: d.AqiUS})
		}
		data.Forecast = &airquality.Forecast{Daily: days}
	}

	return data
}
