package healthbox

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"healthbox_bridge/internal/models"
)

const (
	globalAQISensorType = "global air quality index"

	paramTemperature   = "temperature"
	paramHumidity      = "humidity"
	paramConcentration = "concentration"
	paramIndex         = "index"
	paramVOC           = "voc"
	paramProfileName   = "profile_name"
	paramNominal       = "nominal"
	paramFlowRate      = "flow_rate"

	opBuildSnapshot = "build snapshot"
)

// BuildSnapshot reshapes a current-data document. Rooms are keyed by the ids
// the device uses in its "room" object and returned in ascending id order;
// boost state is left empty for the caller to fill in.
func BuildSnapshot(data CurrentData, fetchedAt time.Time) (models.DeviceSnapshot, error) {
	snap := models.DeviceSnapshot{
		Serial:         data.Serial,
		Description:    data.Description,
		WarrantyNumber: data.WarrantyNumber,
		GlobalAQI:      globalAQI(data.Sensor),
		Rooms:          make([]models.RoomState, 0, len(data.Room)),
		FetchedAt:      fetchedAt.UTC(),
	}

	seen := make(map[int]string, len(data.Room))
	for key, raw := range data.Room {
		id, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil || id < 1 {
			return models.DeviceSnapshot{}, unknownError(opBuildSnapshot, "malformed payload", fmt.Errorf("room key %q is not a positive integer", key))
		}
		if prev, dup := seen[id]; dup {
			return models.DeviceSnapshot{}, unknownError(opBuildSnapshot, "malformed payload", fmt.Errorf("room keys %q and %q share id %d", prev, key, id))
		}
		seen[id] = key

		room, err := buildRoom(id, raw)
		if err != nil {
			return models.DeviceSnapshot{}, unknownError(opBuildSnapshot, "malformed payload", err)
		}
		snap.Rooms = append(snap.Rooms, room)
	}

	sort.Slice(snap.Rooms, func(i, j int) bool { return snap.Rooms[i].RoomID < snap.Rooms[j].RoomID })
	return snap, nil
}

// ToBoostState converts a boost document into the snapshot representation.
func ToBoostState(b BoostStatus) *models.BoostState {
	return &models.BoostState{
		Level:     b.Level,
		Enabled:   b.Enable,
		Remaining: int(math.Round(b.Remaining)),
	}
}

func buildRoom(id int, raw Room) (models.RoomState, error) {
	room := models.RoomState{
		RoomID: id,
		Name:   raw.Name,
		Type:   raw.Type,
	}

	temp, ok := sensorValue(raw.Sensor, paramTemperature)
	if !ok {
		return models.RoomState{}, fmt.Errorf("room %d has no temperature sensor", id)
	}
	humidity, ok := sensorValue(raw.Sensor, paramHumidity)
	if !ok {
		return models.RoomState{}, fmt.Errorf("room %d has no humidity sensor", id)
	}
	room.IndoorTemperature = *temp
	room.IndoorHumidity = *humidity

	room.IndoorCO2Concentration, _ = sensorValue(raw.Sensor, paramConcentration)
	room.IndoorAQI, _ = sensorValue(raw.Sensor, paramIndex)
	room.IndoorVOC, _ = sensorValue(raw.Sensor, paramVOC)

	if p, ok := raw.Parameter[paramProfileName]; ok {
		if name, ok := p.String(); ok {
			room.ProfileName = &name
		}
	}
	room.AirflowVentilationRate = airflowRate(raw)

	return room, nil
}

// sensorValue returns the first sensor reporting the parameter.
func sensorValue(sensors []Sensor, param string) (*float64, bool) {
	for _, s := range sensors {
		p, ok := s.Parameter[param]
		if !ok {
			continue
		}
		v, ok := p.Float()
		if !ok {
			continue
		}
		return &v, true
	}
	return nil, false
}

func globalAQI(sensors []Sensor) *float64 {
	for _, s := range sensors {
		if s.Type != globalAQISensorType {
			continue
		}
		if p, ok := s.Parameter[paramIndex]; ok {
			if v, ok := p.Float(); ok {
				return &v
			}
		}
	}
	return nil
}

// airflowRate is the first actuator's flow rate over the room's nominal flow.
func airflowRate(raw Room) *float64 {
	nominalParam, ok := raw.Parameter[paramNominal]
	if !ok || len(raw.Actuator) == 0 {
		return nil
	}
	nominal, ok := nominalParam.Float()
	if !ok || nominal <= 0 {
		return nil
	}
	flowParam, ok := raw.Actuator[0].Parameter[paramFlowRate]
	if !ok {
		return nil
	}
	flow, ok := flowParam.Float()
	if !ok {
		return nil
	}
	rate := flow / nominal
	return &rate
}
