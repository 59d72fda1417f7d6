package notify

import (
	"strings"
	"testing"

	"github.com/kjstillabower/weather-monitor/internal/analysis"
	"github.com/kjstillabower/weather-monitor/internal/models"
)

var (
	oslo     = models.Location{Name: "Oslo", Latitude: 59.9139, Longitude: 10.7522}
	eidsvoll = models.Location{Name: "Eidsvoll", Latitude: 60.3345, Longitude: 11.2525}
)

func TestFormatSummary_Oslo(t *testing.T) {
	msg, ok := FormatSummary([]models.WeatherResult{{Location: oslo, Temperature: 5.0, Condition: "cloudy"}})
	if !ok {
		t.Fatal("FormatSummary() ok = false")
	}
	text := msg.Title + "\n" + msg.Body
	for _, want := range []string{"Oslo", "5.0", "cloudy"} {
		if !strings.Contains(text, want) {
			t.Errorf("message %q does not contain %q", text, want)
		}
	}
	if msg.Body != "Oslo: 5.0°C, cloudy" {
		t.Errorf("Body = %q", msg.Body)
	}
	if msg.Link() != "https://www.yr.no/nb/v%C3%A6rvarsel/daglig-tabell/59.9139,10.7522" {
		t.Errorf("Link() = %q", msg.Link())
	}
}

func TestFormatSummary_ManyAndEmpty(t *testing.T) {
	if _, ok := FormatSummary(nil); ok {
		t.Error("FormatSummary(nil) ok = true, want false")
	}
	msg, ok := FormatSummary([]models.WeatherResult{
		{Location: oslo, Temperature: 5, Condition: "cloudy"},
		{Location: eidsvoll, Temperature: -1.4, Condition: "snow"},
	})
	if !ok {
		t.Fatal("FormatSummary() ok = false")
	}
	lines := strings.Split(msg.Body, "\n")
	if len(lines) != 2 || lines[1] != "Eidsvoll: -1.4°C, snow" {
		t.Errorf("lines = %q", lines)
	}
	if msg.Link() != "" {
		t.Errorf("multi-location summary should carry no link, got %q", msg.Link())
	}
}

func TestFormatFindings(t *testing.T) {
	th := analysis.DefaultThresholds()
	f := analysis.Findings{
		HeavyHourly: []analysis.ValueFinding{{Location: eidsvoll, Value: 8.4}, {Location: oslo, Value: 5.0}},
		Swings:      []analysis.SwingFinding{{Location: oslo, Min: -3, Max: 14, Swing: 17}},
	}
	msgs := FormatFindings(f, th)
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2", len(msgs))
	}

	hourly := msgs[0]
	if hourly.Severity != SeverityWarning {
		t.Errorf("Severity = %q", hourly.Severity)
	}
	if !strings.Contains(hourly.Body, "• Eidsvoll: 8.4 mm/hour\n• Oslo: 5.0 mm/hour") {
		t.Errorf("hourly body = %q", hourly.Body)
	}
	if !strings.HasSuffix(hourly.Body, "Threshold: 5.0 mm/hour") {
		t.Errorf("hourly body missing threshold: %q", hourly.Body)
	}
	if hourly.Latitude != eidsvoll.Latitude {
		t.Errorf("link should point at the worst location, got lat %v", hourly.Latitude)
	}

	swing := msgs[1]
	if !strings.Contains(swing.Body, "• Oslo: -3.0°C → 14.0°C (Δ 17.0°C)") {
		t.Errorf("swing body = %q", swing.Body)
	}
	if !strings.HasSuffix(swing.Body, "Threshold: 15.0°C") {
		t.Errorf("swing body missing threshold: %q", swing.Body)
	}
}

func TestFormatFindings_Empty(t *testing.T) {
	if msgs := FormatFindings(analysis.Findings{}, analysis.DefaultThresholds()); len(msgs) != 0 {
		t.Errorf("FormatFindings() = %v, want none", msgs)
	}
}

func TestFormatHazards(t *testing.T) {
	if _, ok := FormatHazards(nil); ok {
		t.Error("FormatHazards(nil) ok = true, want false")
	}
	msg, ok := FormatHazards([]models.HazardAlert{
		{Event: "gale", Severity: "Severe", Area: "Oslofjorden", Description: "Strong wind expected"},
		{Event: "Tsunami", Severity: "Unknown"},
	})
	if !ok {
		t.Fatal("FormatHazards() ok = false")
	}
	if msg.Severity != SeverityDanger {
		t.Errorf("Severity = %q", msg.Severity)
	}
	want := "Gale (severe)\n   Area: Oslofjorden\n   Strong wind expected\n\nTsunami (Unknown)"
	if msg.Body != want {
		t.Errorf("Body = %q, want %q", msg.Body, want)
	}
	if msg.Link() != "" {
		t.Errorf("Link() = %q, want empty", msg.Link())
	}
}
