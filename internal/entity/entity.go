package entity

import (
	"fmt"

	"healthbox_bridge/internal/models"
)

const (
	PlatformSensor       = "sensor"
	PlatformBinarySensor = "binary_sensor"

	stateClassMeasurement = "measurement"
)

// Description is one exposed value. Room entities carry a non-zero RoomID and
// read their value from whatever room has that id in the snapshot passed to
// Resolve, so a description outlives the snapshot it was built from.
type Description struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Platform    string `json:"platform"`
	DeviceClass string `json:"device_class,omitempty"`
	StateClass  string `json:"state_class,omitempty"`
	Unit        string `json:"unit,omitempty"`
	Icon        string `json:"icon,omitempty"`
	RoomID      int    `json:"room_id,omitempty"`

	room   func(r models.RoomState) (any, bool)
	device func(s models.DeviceSnapshot) (any, bool)
}

// State is a description together with its current value.
type State struct {
	Description
	Value     any  `json:"value"`
	Available bool `json:"available"`
}

// Resolve reads the description's value from snap. It reports false when the
// room is gone or no longer reports the value.
func (d Description) Resolve(snap models.DeviceSnapshot) (any, bool) {
	if d.RoomID != 0 {
		if d.room == nil {
			return nil, false
		}
		r, ok := snap.Room(d.RoomID)
		if !ok {
			return nil, false
		}
		return d.room(r)
	}
	if d.device == nil {
		return nil, false
	}
	return d.device(snap)
}

// Build returns the descriptions for snap. Every call returns a new slice;
// optional values only get a description when the room reports them.
func Build(snap models.DeviceSnapshot) []Description {
	out := make([]Description, 0, 1+len(snap.Rooms)*10)
	out = append(out, Description{
		Key:         "global_aqi",
		Name:        "Global Air Quality Index",
		Platform:    PlatformSensor,
		DeviceClass: "aqi",
		StateClass:  stateClassMeasurement,
		Icon:        "mdi:leaf",
		device: func(s models.DeviceSnapshot) (any, bool) {
			return deref(s.GlobalAQI)
		},
	})
	for _, r := range snap.Rooms {
		out = append(out, roomDescriptions(r)...)
	}
	return out
}

// States resolves every description against snap.
func States(descs []Description, snap models.DeviceSnapshot) []State {
	out := make([]State, 0, len(descs))
	for _, d := range descs {
		v, ok := d.Resolve(snap)
		out = append(out, State{Description: d, Value: v, Available: ok})
	}
	return out
}

func roomDescriptions(r models.RoomState) []Description {
	id := r.RoomID
	room := func(key, name string) Description {
		return Description{
			Key:        fmt.Sprintf("room_%d_%s", id, key),
			Name:       r.Name + " " + name,
			Platform:   PlatformSensor,
			StateClass: stateClassMeasurement,
			RoomID:     id,
		}
	}

	temp := room("temperature", "Temperature")
	temp.DeviceClass, temp.Unit, temp.Icon = "temperature", "°C", "mdi:thermometer"
	temp.room = func(r models.RoomState) (any, bool) { return r.IndoorTemperature, true }

	hum := room("humidity", "Humidity")
	hum.DeviceClass, hum.Unit, hum.Icon = "humidity", "%", "mdi:water-percent"
	hum.room = func(r models.RoomState) (any, bool) { return r.IndoorHumidity, true }

	out := []Description{temp, hum}

	if r.IndoorCO2Concentration != nil {
		d := room("co2_concentration", "CO2 Concentration")
		d.DeviceClass, d.Unit, d.Icon = "carbon_dioxide", "ppm", "mdi:molecule-co2"
		d.room = func(r models.RoomState) (any, bool) { return deref(r.IndoorCO2Concentration) }
		out = append(out, d)
	}
	if r.IndoorAQI != nil {
		d := room("aqi", "Air Quality Index")
		d.DeviceClass, d.Icon = "aqi", "mdi:leaf"
		d.room = func(r models.RoomState) (any, bool) { return deref(r.IndoorAQI) }
		out = append(out, d)
	}
	if r.IndoorVOC != nil {
		d := room("voc", "Volatile Organic Compounds")
		d.DeviceClass, d.Unit, d.Icon = "volatile_organic_compounds_parts", "ppm", "mdi:leaf"
		d.room = func(r models.RoomState) (any, bool) { return deref(r.IndoorVOC) }
		out = append(out, d)
	}
	if r.AirflowVentilationRate != nil {
		d := room("airflow_ventilation_rate", "Airflow Ventilation Rate")
		d.Unit, d.Icon = "%", "mdi:fan"
		d.room = func(r models.RoomState) (any, bool) {
			if r.AirflowVentilationRate == nil {
				return nil, false
			}
			return *r.AirflowVentilationRate * 100, true
		}
		out = append(out, d)
	}
	if r.ProfileName != nil {
		d := room("profile", "Profile")
		d.StateClass, d.Icon = "", "mdi:account-box"
		d.room = func(r models.RoomState) (any, bool) {
			if r.ProfileName == nil {
				return nil, false
			}
			return *r.ProfileName, true
		}
		out = append(out, d)
	}
	if r.Boost != nil {
		level := room("boost_level", "Boost Level")
		level.Unit, level.Icon = "%", "mdi:fan"
		level.room = func(r models.RoomState) (any, bool) {
			if r.Boost == nil {
				return nil, false
			}
			return r.Boost.Level, true
		}

		remaining := room("boost_remaining", "Boost Remaining")
		remaining.DeviceClass, remaining.Unit, remaining.Icon = "duration", "s", "mdi:clock-time-five-outline"
		remaining.room = func(r models.RoomState) (any, bool) {
			if r.Boost == nil {
				return nil, false
			}
			return r.Boost.Remaining, true
		}

		status := room("boost_status", "Boost Status")
		status.Platform, status.StateClass, status.Icon = PlatformBinarySensor, "", "mdi:fan-plus"
		status.room = func(r models.RoomState) (any, bool) {
			if r.Boost == nil {
				return nil, false
			}
			return r.Boost.Enabled, true
		}

		out = append(out, level, remaining, status)
	}
	return out
}

func deref(v *float64) (any, bool) {
	if v == nil {
		return nil, false
	}
	return *v, true
}
