// Package analysis reduces forecast timeseries to precipitation and temperature
// statistics and evaluates them against alert thresholds.
package analysis

import (
	"sort"

	"github.com/kjstillabower/weather-monitor/internal/models"
)

// window is the number of leading hourly points treated as "next 24 hours".
const window = 24

// Thresholds are the alert criteria. A value at or above the threshold triggers.
type Thresholds struct {
	PrecipitationHourly float64 // mm in a single hour
	PrecipitationDaily  float64 // mm over the first 24 points
	TemperatureSwing    float64 // °C between min and max
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		PrecipitationHourly: 5.0,
		PrecipitationDaily:  30.0,
		TemperatureSwing:    15.0,
	}
}

// Precipitation scans every point that carries a next-hour amount.
func Precipitation(points []models.ForecastPoint) models.PrecipitationStats {
	var st models.PrecipitationStats
	for i, p := range points {
		if p.PrecipitationNextHour == nil {
			continue
		}
		mm := *p.PrecipitationNextHour
		if mm > st.MaxPerHour {
			st.MaxPerHour = mm
		}
		st.TotalPeriod += mm
		st.HoursCovered++
		if i < window {
			st.Total24h += mm
		}
	}
	return st
}

// Temperature computes min/max/swing over the period and over the first 24 points.
// A series with no temperatures yields the zero value.
func Temperature(points []models.ForecastPoint) models.TemperatureStats {
	var st models.TemperatureStats
	var seenAll, seen24 bool
	for i, p := range points {
		if p.AirTemperature == nil {
			continue
		}
		t := *p.AirTemperature
		if !seenAll || t < st.Min {
			st.Min = t
		}
		if !seenAll || t > st.Max {
			st.Max = t
		}
		seenAll = true
		st.HoursCovered++
		if i < window {
			if !seen24 || t < st.Min24h {
				st.Min24h = t
			}
			if !seen24 || t > st.Max24h {
				st.Max24h = t
			}
			seen24 = true
		}
	}
	if seenAll {
		st.Swing = st.Max - st.Min
	}
	if seen24 {
		st.Swing24h = st.Max24h - st.Min24h
	}
	return st
}

// Analyze combines Precipitation and Temperature.
func Analyze(points []models.ForecastPoint) models.Analysis {
	return models.Analysis{
		Precipitation: Precipitation(points),
		Temperature:   Temperature(points),
	}
}

// ValueFinding is a location whose value met a threshold.
type ValueFinding struct {
	Location models.Location
	Value    float64
}

// SwingFinding is a location whose temperature swing met the threshold.
// Min and Max come from the same window as Swing.
type SwingFinding struct {
	Location models.Location
	Min      float64
	Max      float64
	Swing    float64
}

// Findings groups triggered locations per criterion, each sorted by value descending.
type Findings struct {
	HeavyHourly []ValueFinding
	HeavyDaily  []ValueFinding
	Swings      []SwingFinding
}

// Empty reports whether no criterion triggered.
func (f Findings) Empty() bool {
	return len(f.HeavyHourly) == 0 && len(f.HeavyDaily) == 0 && len(f.Swings) == 0
}

// Evaluate checks each result against th. For the swing criterion the larger
// of the 24h swing and the period swing is used; ties go to the 24h window.
func Evaluate(results []models.WeatherResult, th Thresholds) Findings {
	var f Findings
	for _, r := range results {
		p := r.Analysis.Precipitation
		if p.MaxPerHour >= th.PrecipitationHourly {
			f.HeavyHourly = append(f.HeavyHourly, ValueFinding{Location: r.Location, Value: p.MaxPerHour})
		}
		if p.Total24h >= th.PrecipitationDaily {
			f.HeavyDaily = append(f.HeavyDaily, ValueFinding{Location: r.Location, Value: p.Total24h})
		}

		t := r.Analysis.Temperature
		sw := SwingFinding{Location: r.Location, Min: t.Min24h, Max: t.Max24h, Swing: t.Swing24h}
		if t.Swing > t.Swing24h {
			sw = SwingFinding{Location: r.Location, Min: t.Min, Max: t.Max, Swing: t.Swing}
		}
		if sw.Swing >= th.TemperatureSwing {
			f.Swings = append(f.Swings, sw)
		}
	}
	sort.SliceStable(f.HeavyHourly, func(i, j int) bool { return f.HeavyHourly[i].Value > f.HeavyHourly[j].Value })
	sort.SliceStable(f.HeavyDaily, func(i, j int) bool { return f.HeavyDaily[i].Value > f.HeavyDaily[j].Value })
	sort.SliceStable(f.Swings, func(i, j int) bool { return f.Swings[i].Swing > f.Swings[j].Swing })
	return f
}
