package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"healthbox_bridge/internal/entity"
	"healthbox_bridge/internal/models"
	"healthbox_bridge/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(ctx context.Context, username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(ctx context.Context, username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockControl struct {
	startErr   error
	stopErr    error
	profileErr error

	lastBoost    service.BoostParams
	lastStopRoom int
	lastProfile  string
	startCalls   int
	stopCalls    int
	profileCalls int
}

func (m *mockControl) StartRoomBoost(ctx context.Context, p service.BoostParams) error {
	m.startCalls++
	m.lastBoost = p
	return m.startErr
}
func (m *mockControl) StopRoomBoost(ctx context.Context, roomID int) error {
	m.stopCalls++
	m.lastStopRoom = roomID
	return m.stopErr
}
func (m *mockControl) ChangeRoomProfile(ctx context.Context, roomID int, profileName string) error {
	m.profileCalls++
	m.lastProfile = profileName
	return m.profileErr
}

// mockMonitoring is read from the websocket goroutine, hence the mutex.
type mockMonitoring struct {
	mu          sync.Mutex
	snap        models.DeviceSnapshot
	snapErr     error
	status      service.CoordinatorStatus
	refreshErr  error
	entities    []entity.State
	refreshCall int
}

func (m *mockMonitoring) GetSnapshot(ctx context.Context) (models.DeviceSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap, m.snapErr
}
func (m *mockMonitoring) GetRoom(ctx context.Context, roomID int) (models.RoomState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapErr != nil {
		return models.RoomState{}, m.snapErr
	}
	room, ok := m.snap.Room(roomID)
	if !ok {
		return models.RoomState{}, service.ErrRoomNotFound
	}
	return room, nil
}
func (m *mockMonitoring) GetStatus(ctx context.Context) service.CoordinatorStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}
func (m *mockMonitoring) Refresh(ctx context.Context) (models.DeviceSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshCall++
	return m.snap, m.refreshErr
}
func (m *mockMonitoring) Entities(ctx context.Context) ([]entity.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entities, m.snapErr
}

type mockEventLog struct {
	resp     []models.Event
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.Event, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	return m.resp, m.err
}

type mockHistory struct {
	resp       []models.Reading
	err        error
	lastFilter service.ReadingFilter
	recorded   int
}

func (m *mockHistory) Record(ctx context.Context, snap models.DeviceSnapshot) { m.recorded++ }
func (m *mockHistory) Readings(ctx context.Context, f service.ReadingFilter) ([]models.Reading, error) {
	m.lastFilter = f
	return m.resp, m.err
}

type mockSetup struct {
	code       string
	reauthErr  error
	lastHost   string
	lastKey    string
	reauthKeys []string
}

func (m *mockSetup) Validate(ctx context.Context, host, apiKey string) string {
	m.lastHost, m.lastKey = host, apiKey
	return m.code
}
func (m *mockSetup) Reauthenticate(ctx context.Context, apiKey string) error {
	m.reauthKeys = append(m.reauthKeys, apiKey)
	return m.reauthErr
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

func ptr[T any](v T) *T { return &v }

func testSnapshot() models.DeviceSnapshot {
	return models.DeviceSnapshot{
		Serial:      "250424P0031",
		Description: "Healthbox 3.0",
		GlobalAQI:   ptr(4.2),
		Rooms: []models.RoomState{
			{RoomID: 1, Name: "Kitchen", IndoorTemperature: 20.5, IndoorHumidity: 45, ProfileName: ptr("Health")},
			{RoomID: 2, Name: "Bathroom", IndoorTemperature: 22, IndoorHumidity: 60,
				Boost: &models.BoostState{Level: 150, Enabled: true, Remaining: 300}},
		},
	}
}
