package healthbox

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// CurrentData is the document served at /v2/api/data/current.
type CurrentData struct {
	DeviceType     string          `json:"device_type"`
	Description    string          `json:"description"`
	Serial         string          `json:"serial"`
	WarrantyNumber string          `json:"warranty_number"`
	Room           map[string]Room `json:"room"`
	Sensor         []Sensor        `json:"sensor"`
}

type Room struct {
	Name      string               `json:"name"`
	Type      string               `json:"type"`
	Parameter map[string]Parameter `json:"parameter"`
	Sensor    []Sensor             `json:"sensor"`
	Actuator  []Sensor             `json:"actuator"`
}

// Sensor is also the shape of an actuator entry.
type Sensor struct {
	Name      string               `json:"name"`
	Type      string               `json:"type"`
	Parameter map[string]Parameter `json:"parameter"`
}

type Parameter struct {
	Unit  string          `json:"unit"`
	Value json.RawMessage `json:"value"`
}

// Float decodes a numeric value. Numbers sent as strings are accepted.
func (p Parameter) Float() (float64, bool) {
	raw := strings.TrimSpace(string(p.Value))
	if raw == "" || raw == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(p.Value, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(p.Value, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func (p Parameter) String() (string, bool) {
	var s string
	if err := json.Unmarshal(p.Value, &s); err != nil {
		return "", false
	}
	return s, true
}

// BoostStatus is the document served at /v2/api/boost/{room_id}.
type BoostStatus struct {
	Level     float64 `json:"level"`
	Enable    bool    `json:"enable"`
	Remaining float64 `json:"remaining"`
}

type boostRequest struct {
	Enable  bool `json:"enable"`
	Level   *int `json:"level,omitempty"`
	Timeout *int `json:"timeout,omitempty"`
}

type apiKeyStatus struct {
	State string `json:"state"`
}
