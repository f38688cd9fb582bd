package models

import "time"

// Reading is one recorded sample of a room's climate values.
type Reading struct {
	RoomID       int       `json:"room_id"`
	RoomName     string    `json:"room_name"`
	RecordedAt   time.Time `json:"recorded_at"`
	TemperatureC float64   `json:"temperature_c"`
	HumidityPct  float64   `json:"humidity_pct"`
	CO2PPM       *float64  `json:"co2_ppm,omitempty"`
	AQI          *float64  `json:"aqi,omitempty"`
	VOCPPM       *float64  `json:"voc_ppm,omitempty"`
}
