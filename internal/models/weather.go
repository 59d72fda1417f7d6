package models

import "time"

// Location is a named point for which the forecast is queried.
type Location struct {
	Name      string  `json:"name" yaml:"name" validate:"required"`
	Latitude  float64 `json:"latitude" yaml:"lat" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" yaml:"lon" validate:"gte=-180,lte=180"`
}

// ForecastPoint is one hour of the upstream timeseries. Nil pointers mean the
// upstream omitted the value for that hour.
type ForecastPoint struct {
	Time                  time.Time `json:"time"`
	AirTemperature        *float64  `json:"airTemperature,omitempty"`
	PrecipitationNextHour *float64  `json:"precipitationNextHour,omitempty"`
	SymbolCode            string    `json:"symbolCode,omitempty"`
}

type Forecast struct {
	Location  Location        `json:"location"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Points    []ForecastPoint `json:"points"`
}

// PrecipitationStats summarizes precipitation over the forecast period.
type PrecipitationStats struct {
	MaxPerHour   float64 `json:"maxPerHour"`
	Total24h     float64 `json:"total24h"`
	TotalPeriod  float64 `json:"totalPeriod"`
	HoursCovered int     `json:"hoursCovered"`
}

// TemperatureStats summarizes temperature over the whole period and the first 24 hours.
type TemperatureStats struct {
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Swing        float64 `json:"swing"`
	Min24h       float64 `json:"min24h"`
	Max24h       float64 `json:"max24h"`
	Swing24h     float64 `json:"swing24h"`
	HoursCovered int     `json:"hoursCovered"`
}

type Analysis struct {
	Precipitation PrecipitationStats `json:"precipitation"`
	Temperature   TemperatureStats   `json:"temperature"`
}

// WeatherResult is the per-location output of a fetch.
type WeatherResult struct {
	Location    Location  `json:"location"`
	Temperature float64   `json:"temperature"`
	Condition   string    `json:"condition"`
	FetchedAt   time.Time `json:"fetchedAt"`
	Cached      bool      `json:"cached,omitempty"`
	Analysis    Analysis  `json:"analysis"`
}

// HazardAlert is a national weather warning from MetAlerts.
type HazardAlert struct {
	Event       string `json:"event"`
	Severity    string `json:"severity"`
	Onset       string `json:"onset"`
	Area        string `json:"area"`
	Description string `json:"description"`
}
