package models

import "github.com/kjstillabower/dewpoint/internal/units"

// Location is a geocoded place.
type Location struct {
	Name    string          `json:"name"`
	Lat     units.Latitude  `json:"lat"`
	Lon     units.Longitude `json:"lon"`
	Country string          `json:"country"`
	State   string          `json:"state,omitempty"`
}
