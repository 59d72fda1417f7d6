package config

import "github.com/kjstillabower/weather-monitor/internal/models"

// DefaultLocations returns the built-in list: the Romerike municipalities.
// A fresh slice is returned on every call.
func DefaultLocations() []models.Location {
	return []models.Location{
		{Name: "Aurskog-Høland", Latitude: 59.8831, Longitude: 11.5617},
		{Name: "Eidsvoll", Latitude: 60.3345, Longitude: 11.2525},
		{Name: "Enebakk", Latitude: 59.7631, Longitude: 11.1542},
		{Name: "Hurdal", Latitude: 60.4674, Longitude: 11.0514},
		{Name: "Gjerdrum", Latitude: 60.0833, Longitude: 11.0333},
		{Name: "Lillestrøm", Latitude: 59.9500, Longitude: 11.2000},
		{Name: "Lørenskog", Latitude: 59.9294, Longitude: 10.9574},
		{Name: "Nannestad", Latitude: 60.2261, Longitude: 11.0236},
		{Name: "Nes (Akershus)", Latitude: 60.1333, Longitude: 11.4667},
		{Name: "Nittedal", Latitude: 60.0500, Longitude: 10.8667},
		{Name: "Ullensaker", Latitude: 60.1333, Longitude: 11.1667},
		{Name: "Rælingen", Latitude: 59.9333, Longitude: 11.0833},
	}
}
