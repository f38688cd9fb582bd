package homeassistant

const manufacturer = "Renson"

type deviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model,omitempty"`
	SerialNumber string   `json:"serial_number,omitempty"`
}

// discoveryConfig is the retained document Home Assistant reads from
// <discovery_prefix>/<platform>/<node>/<key>/config.
type discoveryConfig struct {
	UniqueID          string     `json:"unique_id"`
	ObjectID          string     `json:"object_id,omitempty"`
	Name              string     `json:"name"`
	DeviceClass       string     `json:"device_class,omitempty"`
	StateClass        string     `json:"state_class,omitempty"`
	UnitOfMeasurement string     `json:"unit_of_measurement,omitempty"`
	Icon              string     `json:"icon,omitempty"`
	StateTopic        string     `json:"state_topic"`
	AvailabilityTopic string     `json:"availability_topic,omitempty"`
	PayloadOn         string     `json:"payload_on,omitempty"`
	PayloadOff        string     `json:"payload_off,omitempty"`
	Device            deviceInfo `json:"device"`
}

// boostCommand is the JSON payload accepted on a room's boost/set topic.
type boostCommand struct {
	Level          int `json:"level"`
	TimeoutMinutes int `json:"timeout_minutes"`
}
