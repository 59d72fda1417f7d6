package analysis

import (
	"math"
	"testing"
	"time"

	"github.com/kjstillabower/weather-monitor/internal/models"
)

func f(v float64) *float64 { return &v }

func series(temps []float64, precip []float64) []models.ForecastPoint {
	n := len(temps)
	if len(precip) > n {
		n = len(precip)
	}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pts := make([]models.ForecastPoint, n)
	for i := range pts {
		pts[i].Time = start.Add(time.Duration(i) * time.Hour)
		if i < len(temps) {
			pts[i].AirTemperature = f(temps[i])
		}
		if i < len(precip) {
			pts[i].PrecipitationNextHour = f(precip[i])
		}
	}
	return pts
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// TestPrecipitation verifies max, 24h total, period total and coverage, including
// points past the 24h window and points with no precipitation value.
func TestPrecipitation(t *testing.T) {
	precip := make([]float64, 30)
	precip[0] = 1.5
	precip[10] = 6.0
	precip[25] = 2.0
	pts := series(nil, precip)
	pts[5].PrecipitationNextHour = nil

	got := Precipitation(pts)
	if !approx(got.MaxPerHour, 6.0) {
		t.Errorf("MaxPerHour = %v, want 6.0", got.MaxPerHour)
	}
	if !approx(got.Total24h, 7.5) {
		t.Errorf("Total24h = %v, want 7.5", got.Total24h)
	}
	if !approx(got.TotalPeriod, 9.5) {
		t.Errorf("TotalPeriod = %v, want 9.5", got.TotalPeriod)
	}
	if got.HoursCovered != 29 {
		t.Errorf("HoursCovered = %d, want 29", got.HoursCovered)
	}
}

func TestPrecipitation_Empty(t *testing.T) {
	got := Precipitation(nil)
	if got != (models.PrecipitationStats{}) {
		t.Errorf("Precipitation(nil) = %+v, want zero", got)
	}
}

// TestTemperature verifies min/max/swing over the full period and the first 24 points.
func TestTemperature(t *testing.T) {
	temps := make([]float64, 40)
	for i := range temps {
		temps[i] = 2
	}
	temps[3] = -4
	temps[20] = 8
	temps[35] = 20

	got := Temperature(series(temps, nil))
	if got.Min != -4 || got.Max != 20 || got.Swing != 24 {
		t.Errorf("period = (%v, %v, %v), want (-4, 20, 24)", got.Min, got.Max, got.Swing)
	}
	if got.Min24h != -4 || got.Max24h != 8 || got.Swing24h != 12 {
		t.Errorf("24h = (%v, %v, %v), want (-4, 8, 12)", got.Min24h, got.Max24h, got.Swing24h)
	}
	if got.HoursCovered != 40 {
		t.Errorf("HoursCovered = %d, want 40", got.HoursCovered)
	}
}

func TestTemperature_AllNegative(t *testing.T) {
	got := Temperature(series([]float64{-10, -3, -7}, nil))
	if got.Min != -10 || got.Max != -3 || got.Swing != 7 {
		t.Errorf("got (%v, %v, %v), want (-10, -3, 7)", got.Min, got.Max, got.Swing)
	}
}

func TestTemperature_NoData(t *testing.T) {
	got := Temperature(series(nil, []float64{1, 2}))
	if got != (models.TemperatureStats{}) {
		t.Errorf("Temperature() = %+v, want zero value", got)
	}
}

func result(name string, a models.Analysis) models.WeatherResult {
	return models.WeatherResult{Location: models.Location{Name: name}, Analysis: a}
}

// TestEvaluate verifies threshold inclusivity, descending sort and the swing window choice.
func TestEvaluate(t *testing.T) {
	th := DefaultThresholds()
	results := []models.WeatherResult{
		result("A", models.Analysis{
			Precipitation: models.PrecipitationStats{MaxPerHour: 5.0, Total24h: 10},
			Temperature:   models.TemperatureStats{Min: -5, Max: 12, Swing: 17, Min24h: 0, Max24h: 10, Swing24h: 10},
		}),
		result("B", models.Analysis{
			Precipitation: models.PrecipitationStats{MaxPerHour: 8.2, Total24h: 31},
			Temperature:   models.TemperatureStats{Min: 0, Max: 16, Swing: 16, Min24h: 0, Max24h: 16, Swing24h: 16},
		}),
		result("C", models.Analysis{
			Precipitation: models.PrecipitationStats{MaxPerHour: 4.99, Total24h: 29.9},
			Temperature:   models.TemperatureStats{Swing: 3, Swing24h: 3},
		}),
	}

	got := Evaluate(results, th)

	if len(got.HeavyHourly) != 2 || got.HeavyHourly[0].Location.Name != "B" || got.HeavyHourly[1].Location.Name != "A" {
		t.Errorf("HeavyHourly = %+v, want [B A]", got.HeavyHourly)
	}
	if len(got.HeavyDaily) != 1 || got.HeavyDaily[0].Location.Name != "B" {
		t.Errorf("HeavyDaily = %+v, want [B]", got.HeavyDaily)
	}
	if len(got.Swings) != 2 {
		t.Fatalf("Swings = %+v, want 2 entries", got.Swings)
	}
	if got.Swings[0].Location.Name != "A" || got.Swings[0].Swing != 17 || got.Swings[0].Min != -5 || got.Swings[0].Max != 12 {
		t.Errorf("Swings[0] = %+v, want A period swing 17 (-5..12)", got.Swings[0])
	}
	if got.Swings[1].Location.Name != "B" || got.Swings[1].Min != 0 || got.Swings[1].Max != 16 {
		t.Errorf("Swings[1] = %+v, want B 24h swing 16 (0..16)", got.Swings[1])
	}
	if got.Empty() {
		t.Error("Empty() = true, want false")
	}
}

func TestEvaluate_NoResults(t *testing.T) {
	if got := Evaluate(nil, DefaultThresholds()); !got.Empty() {
		t.Errorf("Evaluate(nil) = %+v, want empty", got)
	}
}
