package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"healthbox_bridge/internal/healthbox"
	"healthbox_bridge/internal/models"
)

func param(raw string) healthbox.Parameter {
	return healthbox.Parameter{Value: json.RawMessage(raw)}
}

func climateRoom(name, temp, humidity string) healthbox.Room {
	return healthbox.Room{
		Name: name,
		Parameter: map[string]healthbox.Parameter{
			"profile_name": param(`"Health"`),
		},
		Sensor: []healthbox.Sensor{
			{Parameter: map[string]healthbox.Parameter{"temperature": param(temp)}},
			{Parameter: map[string]healthbox.Parameter{"humidity": param(humidity)}},
		},
	}
}

func currentData() healthbox.CurrentData {
	return healthbox.CurrentData{
		Serial:      "250424P0031",
		Description: "Healthbox 3.0",
		Room: map[string]healthbox.Room{
			"1": climateRoom("Kitchen", "20.5", "45"),
			"2": climateRoom("Bathroom", "22", "60"),
		},
	}
}

func deviceErr(kind healthbox.Kind) error {
	return &healthbox.Error{Kind: kind, Op: "GET /v2/api/data/current", Msg: "test failure"}
}

// fakeDevice is a hand-written DeviceAPI with call counters.
type fakeDevice struct {
	mu sync.Mutex

	data     healthbox.CurrentData
	dataErr  error
	boost    map[int]healthbox.BoostStatus
	boostErr map[int]error

	activateErr error
	actionErr   error

	// When gate is set FetchCurrentData signals entered and waits on gate.
	gate    chan struct{}
	entered chan struct{}

	fetchCalls    int
	boostCalls    int
	activatedKeys []string
	actions       []string
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		data: currentData(),
		boost: map[int]healthbox.BoostStatus{
			1: {Level: 100, Enable: false, Remaining: 900},
			2: {Level: 150, Enable: true, Remaining: 300},
		},
		boostErr: map[int]error{},
	}
}

func (f *fakeDevice) FetchCurrentData(ctx context.Context) (healthbox.CurrentData, error) {
	f.mu.Lock()
	f.fetchCalls++
	gate, entered := f.gate, f.entered
	data, err := f.data, f.dataErr
	f.mu.Unlock()

	if gate != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return healthbox.CurrentData{}, ctx.Err()
		}
	}
	return data, err
}

func (f *fakeDevice) FetchRoomBoost(ctx context.Context, roomID int) (healthbox.BoostStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boostCalls++
	if err := f.boostErr[roomID]; err != nil {
		return healthbox.BoostStatus{}, err
	}
	return f.boost[roomID], nil
}

func (f *fakeDevice) StartRoomBoost(ctx context.Context, roomID, level, timeoutSeconds int) error {
	return f.action("start", roomID, level, timeoutSeconds)
}

func (f *fakeDevice) StopRoomBoost(ctx context.Context, roomID int) error {
	return f.action("stop", roomID)
}

func (f *fakeDevice) ChangeRoomProfile(ctx context.Context, roomID int, profileName string) error {
	return f.action("profile", roomID, profileName)
}

func (f *fakeDevice) ActivateAPIKey(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activatedKeys = append(f.activatedKeys, key)
	return f.activateErr
}

func (f *fakeDevice) action(args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, _ := json.Marshal(args)
	f.actions = append(f.actions, string(b))
	return f.actionErr
}

func (f *fakeDevice) set(fn func(f *fakeDevice)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeDevice) fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

// recordingEventRepo keeps appended events in memory and filters them on
// List the way the sqlite repository does.
type recordingEventRepo struct {
	mu     sync.Mutex
	events []models.Event
	err    error

	listErr   error
	listCalls int
	listArgs  struct {
		from, to time.Time
		typ      string
	}
}

func (r *recordingEventRepo) Append(ctx context.Context, e models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *recordingEventRepo) List(ctx context.Context, from, to time.Time, typ string) ([]models.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	r.listArgs.from, r.listArgs.to, r.listArgs.typ = from, to, typ
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []models.Event
	for _, e := range r.events {
		if !from.IsZero() && e.OccurredAt.Before(from) {
			continue
		}
		if !to.IsZero() && e.OccurredAt.After(to) {
			continue
		}
		if typ != "" && e.Type != typ {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *recordingEventRepo) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// fakeReadingRepo records batches and prune cutoffs.
type fakeReadingRepo struct {
	mu        sync.Mutex
	batches   [][]models.Reading
	appendErr error
	cutoffs   []time.Time
	deleted   int64

	listArgs struct {
		roomID   int
		from, to time.Time
		limit    int
	}
	listResp []models.Reading
}

func (r *fakeReadingRepo) AppendBatch(ctx context.Context, readings []models.Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	r.batches = append(r.batches, readings)
	return nil
}

func (r *fakeReadingRepo) List(ctx context.Context, roomID int, from, to time.Time, limit int) ([]models.Reading, error) {
	r.listArgs.roomID, r.listArgs.from, r.listArgs.to, r.listArgs.limit = roomID, from, to, limit
	return r.listResp, nil
}

func (r *fakeReadingRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cutoffs = append(r.cutoffs, cutoff)
	return r.deleted, nil
}
