package notify

import (
	"fmt"
	"strconv"
)

// Severity grades a message. Sinks may render it (Slack colour, email subject tag).
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
)

// Message is one notification, rendered as plain text. Latitude/Longitude locate
// the forecast page that Link points to; both zero means no link.
type Message struct {
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Severity  Severity `json:"severity"`
	Latitude  float64  `json:"latitude,omitempty"`
	Longitude float64  `json:"longitude,omitempty"`
}

const yrDailyTable = "https://www.yr.no/nb/v%%C3%%A6rvarsel/daglig-tabell/%s,%s"

// Link returns the yr.no daily table for the message coordinates, or "".
func (m Message) Link() string {
	if m.Latitude == 0 && m.Longitude == 0 {
		return ""
	}
	return fmt.Sprintf(yrDailyTable,
		strconv.FormatFloat(m.Latitude, 'f', -1, 64),
		strconv.FormatFloat(m.Longitude, 'f', -1, 64))
}
