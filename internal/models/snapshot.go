package models

import "time"

// DeviceSnapshot is the result of one successful poll. It is never mutated after
// it has been published; a new poll builds a new value.
type DeviceSnapshot struct {
	Serial         string      `json:"serial"`
	Description    string      `json:"description"`
	WarrantyNumber string      `json:"warranty_number"`
	GlobalAQI      *float64    `json:"global_aqi,omitempty"`
	Rooms          []RoomState `json:"rooms"` // ascending room_id
	FetchedAt      time.Time   `json:"fetched_at"`
}

// Room returns the room with the given id.
func (s DeviceSnapshot) Room(roomID int) (RoomState, bool) {
	for _, r := range s.Rooms {
		if r.RoomID == roomID {
			return r, true
		}
	}
	return RoomState{}, false
}

// RoomIDs lists the room ids in snapshot order.
func (s DeviceSnapshot) RoomIDs() []int {
	ids := make([]int, 0, len(s.Rooms))
	for _, r := range s.Rooms {
		ids = append(ids, r.RoomID)
	}
	return ids
}

type RoomState struct {
	RoomID                 int         `json:"room_id"`
	Name                   string      `json:"name"`
	Type                   string      `json:"type"`
	IndoorTemperature      float64     `json:"indoor_temperature"` // °C
	IndoorHumidity         float64     `json:"indoor_humidity"`    // %
	IndoorCO2Concentration *float64    `json:"indoor_co2_concentration,omitempty"`
	IndoorAQI              *float64    `json:"indoor_aqi,omitempty"`
	IndoorVOC              *float64    `json:"indoor_voc,omitempty"`
	ProfileName            *string     `json:"profile_name,omitempty"`
	AirflowVentilationRate *float64    `json:"airflow_ventilation_rate,omitempty"` // 0..1 of nominal
	Boost                  *BoostState `json:"boost,omitempty"`
}

type BoostState struct {
	Level     float64 `json:"level"`
	Enabled   bool    `json:"enabled"`
	Remaining int     `json:"remaining"` // seconds
}
