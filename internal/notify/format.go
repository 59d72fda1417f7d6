package notify

import (
	"fmt"
	"strings"

	"github.com/kjstillabower/weather-monitor/internal/analysis"
	"github.com/kjstillabower/weather-monitor/internal/models"
)

// FormatSummary renders one line per result: "Oslo: 5.0°C, cloudy". It returns
// false when there is nothing to report.
func FormatSummary(results []models.WeatherResult) (Message, bool) {
	if len(results) == 0 {
		return Message{}, false
	}
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("%s: %.1f°C, %s", r.Location.Name, r.Temperature, r.Condition))
	}
	msg := Message{
		Title:    "Weather summary",
		Body:     strings.Join(lines, "\n"),
		Severity: SeverityInfo,
	}
	if len(results) == 1 {
		msg.Title = "Weather: " + results[0].Location.Name
		msg.Latitude = results[0].Location.Latitude
		msg.Longitude = results[0].Location.Longitude
	}
	return msg, true
}

// FormatFindings renders one grouped message per triggered criterion. Each message
// links to the forecast of the worst-affected location.
func FormatFindings(f analysis.Findings, th analysis.Thresholds) []Message {
	var out []Message
	if len(f.HeavyHourly) > 0 {
		out = append(out, valueMessage("Heavy precipitation", "Heavy precipitation forecast",
			f.HeavyHourly, "mm/hour", th.PrecipitationHourly))
	}
	if len(f.HeavyDaily) > 0 {
		out = append(out, valueMessage("High precipitation", "High precipitation over the next 24 hours",
			f.HeavyDaily, "mm/24h", th.PrecipitationDaily))
	}
	if len(f.Swings) > 0 {
		lines := make([]string, 0, len(f.Swings))
		for _, s := range f.Swings {
			lines = append(lines, fmt.Sprintf("• %s: %.1f°C → %.1f°C (Δ %.1f°C)", s.Location.Name, s.Min, s.Max, s.Swing))
		}
		out = append(out, Message{
			Title:     "Temperature swings",
			Body:      groupedBody("Large temperature swings forecast", lines, fmt.Sprintf("%.1f°C", th.TemperatureSwing)),
			Severity:  SeverityWarning,
			Latitude:  f.Swings[0].Location.Latitude,
			Longitude: f.Swings[0].Location.Longitude,
		})
	}
	return out
}

func valueMessage(title, heading string, findings []analysis.ValueFinding, unit string, threshold float64) Message {
	lines := make([]string, 0, len(findings))
	for _, v := range findings {
		lines = append(lines, fmt.Sprintf("• %s: %.1f %s", v.Location.Name, v.Value, unit))
	}
	return Message{
		Title:     title,
		Body:      groupedBody(heading, lines, fmt.Sprintf("%.1f %s", threshold, unit)),
		Severity:  SeverityWarning,
		Latitude:  findings[0].Location.Latitude,
		Longitude: findings[0].Location.Longitude,
	}
}

func groupedBody(heading string, lines []string, threshold string) string {
	return heading + "\n\n" + strings.Join(lines, "\n") + "\n\nThreshold: " + threshold
}

var eventLabels = map[string]string{
	"gale":       "Gale",
	"wind":       "Strong wind",
	"rain":       "Heavy rain",
	"snow":       "Heavy snow",
	"ice":        "Ice",
	"icing":      "Icing",
	"avalanches": "Avalanche danger",
	"forestfire": "Forest fire danger",
	"flood":      "Flood",
	"lightning":  "Lightning",
}

var severityLabels = map[string]string{
	"Extreme":  "extreme",
	"Severe":   "severe",
	"Moderate": "moderate",
	"Minor":    "minor",
}

// FormatHazards renders all national alerts as a single message. It returns
// false when there are none.
func FormatHazards(alerts []models.HazardAlert) (Message, bool) {
	if len(alerts) == 0 {
		return Message{}, false
	}
	entries := make([]string, 0, len(alerts))
	for _, a := range alerts {
		event := eventLabels[strings.ToLower(a.Event)]
		if event == "" {
			event = a.Event
		}
		if event == "" {
			event = "Unknown event"
		}
		severity := severityLabels[a.Severity]
		if severity == "" {
			severity = a.Severity
		}
		entry := event
		if severity != "" {
			entry += " (" + severity + ")"
		}
		if a.Area != "" {
			entry += "\n   Area: " + a.Area
		}
		if a.Description != "" {
			entry += "\n   " + a.Description
		}
		entries = append(entries, entry)
	}
	return Message{
		Title:    "Weather warnings for Norway",
		Body:     strings.Join(entries, "\n\n"),
		Severity: SeverityDanger,
	}, true
}
