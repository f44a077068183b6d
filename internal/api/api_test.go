package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinste/airzone-local/db"
	"github.com/vinste/airzone-local/internal/airzone"
	"github.com/vinste/airzone-local/internal/climate"
	"github.com/vinste/airzone-local/internal/model"
)

type fakeController struct {
	mu       sync.Mutex
	response string
	status   int
	puts     []map[string]any
}

func (f *fakeController) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.status != 0 {
		w.WriteHeader(f.status)
		return
	}

	switch r.Method {
	case http.MethodPost:
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(f.response))
	case http.MethodPut:
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.puts = append(f.puts, body)
		w.Write([]byte(`{}`))
	}
}

func (f *fakeController) setStatus(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = code
}

func (f *fakeController) lastPut(t *testing.T) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.puts, "expected at least one mutation request")
	return f.puts[len(f.puts)-1]
}

const twoZoneState = `{"data":[
	{"systemID":1,"zoneID":1,"name":"Salon","roomTemp":21.2,"setpoint":20,"minTemp":16,"maxTemp":30,"mode":3,"on":1},
	{"systemID":1,"zoneID":2,"name":"Dormitorio","roomTemp":19.3,"humidity":45,"setpoint":19.5,"minTemp":16,"maxTemp":30,"mode":3,"on":0}
]}`

func newTestServer(t *testing.T, database *sql.DB) (*fakeController, *Server) {
	fake := &fakeController{response: twoZoneState}
	controller := httptest.NewServer(fake)
	t.Cleanup(controller.Close)

	u, err := url.Parse(controller.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	client := airzone.New(u.Hostname(), port, 1, 5*time.Second)
	require.NoError(t, client.Refresh(context.Background()))

	devices := []*climate.Device{
		climate.NewDevice(client, 0, "Living Room", model.UnitCelsius),
		climate.NewDevice(client, 1, "Bedroom", model.UnitCelsius),
	}
	system := climate.NewSystem(client, 0)

	return fake, NewServer(devices, system, database)
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestGetZones(t *testing.T) {
	_, server := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/zones", nil)
	rec := httptest.NewRecorder()
	server.handleZones(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	zones := decodeBody[[]ZoneResponse](t, rec)
	require.Len(t, zones, 2)

	assert.Equal(t, "Living Room", zones[0].Name)
	assert.Equal(t, "zone_1_1", zones[0].UniqueID)
	assert.Equal(t, 21.2, zones[0].CurrentTemp)
	assert.Equal(t, 20.0, zones[0].TargetTemp)
	assert.Equal(t, "heat", zones[0].Mode)
	assert.True(t, zones[0].On)
	assert.Nil(t, zones[0].Humidity)

	assert.Equal(t, "Bedroom", zones[1].Name)
	assert.Equal(t, "off", zones[1].Mode, "powered-off zone reports off")
	require.NotNil(t, zones[1].Humidity)
	assert.Equal(t, 45.0, *zones[1].Humidity)
	assert.Equal(t, 0.5, zones[1].Step)
}

func TestGetZoneByIndex(t *testing.T) {
	_, server := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/zones/1", nil)
	rec := httptest.NewRecorder()
	server.handleZoneOperations(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	zone := decodeBody[ZoneResponse](t, rec)
	assert.Equal(t, "Bedroom", zone.Name)
	assert.Equal(t, 19.3, zone.CurrentTemp)
}

func TestGetZoneUnknownIndex(t *testing.T) {
	_, server := newTestServer(t, nil)

	for _, path := range []string{"/api/zones/5", "/api/zones/-1", "/api/zones/abc"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		server.handleZoneOperations(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestPutZoneMode(t *testing.T) {
	fake, server := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPut, "/api/zones/1/mode", strings.NewReader(`{"mode":"cool"}`))
	rec := httptest.NewRecorder()
	server.handleZoneOperations(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := fake.lastPut(t)
	assert.Equal(t, 2.0, body["zoneid"])
	assert.Equal(t, 2.0, body["mode"])
}

func TestPutZoneModeInvalid(t *testing.T) {
	_, server := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPut, "/api/zones/0/mode", strings.NewReader(`{"mode":"auto"}`))
	rec := httptest.NewRecorder()
	server.handleZoneOperations(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Contains(t, resp.Error, "Invalid mode")
}

func TestPutZoneSetpoint(t *testing.T) {
	fake, server := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPut, "/api/zones/0/setpoint", strings.NewReader(`{"setpoint":21.5}`))
	rec := httptest.NewRecorder()
	server.handleZoneOperations(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 21.5, fake.lastPut(t)["setpoint"])
}

func TestPutZoneSetpointOutOfBounds(t *testing.T) {
	_, server := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPut, "/api/zones/0/setpoint", strings.NewReader(`{"setpoint":40}`))
	rec := httptest.NewRecorder()
	server.handleZoneOperations(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPutZoneSetpointControllerDown(t *testing.T) {
	fake, server := newTestServer(t, nil)
	fake.setStatus(http.StatusInternalServerError)

	req := httptest.NewRequest(http.MethodPut, "/api/zones/0/setpoint", strings.NewReader(`{"setpoint":21}`))
	rec := httptest.NewRecorder()
	server.handleZoneOperations(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestPutZonePower(t *testing.T) {
	fake, server := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPut, "/api/zones/1/power", strings.NewReader(`{"on":true}`))
	rec := httptest.NewRecorder()
	server.handleZoneOperations(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", fake.lastPut(t)["on"])
}

func TestSystemModeEndpoint(t *testing.T) {
	fake, server := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/system/mode", nil)
	rec := httptest.NewRecorder()
	server.handleSystemMode(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[SystemModeResponse](t, rec)
	assert.Equal(t, "heat", resp.Mode)
	assert.Len(t, resp.Modes, 5)

	req = httptest.NewRequest(http.MethodPut, "/api/system/mode", strings.NewReader(`{"mode":"off"}`))
	rec = httptest.NewRecorder()
	server.handleSystemMode(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := fake.lastPut(t)
	assert.Equal(t, 1.0, body["zoneid"], "system mode writes go to the master zone")
	assert.Equal(t, 1.0, body["mode"])
}

func TestZoneHistoryEndpoint(t *testing.T) {
	database, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	_, server := newTestServer(t, database)

	humidity := 45.0
	zones := []airzone.Zone{
		{SystemID: 1, ZoneID: 1, RoomTemp: 21.2, Setpoint: 20, Mode: 3, On: 1},
		{SystemID: 1, ZoneID: 2, RoomTemp: 19.3, Humidity: &humidity, Setpoint: 19.5, Mode: 3, On: 0},
	}
	require.NoError(t, db.RecordSnapshot(database, time.Now().UTC(), zones))

	req := httptest.NewRequest(http.MethodGet, "/api/zones/0/history?hours=2", nil)
	rec := httptest.NewRecorder()
	server.handleZoneOperations(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	readings := decodeBody[[]db.Reading](t, rec)
	require.Len(t, readings, 1)
	assert.Equal(t, 21.2, readings[0].RoomTemp)
}

func TestZoneHistoryDisabled(t *testing.T) {
	_, server := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/zones/0/history", nil)
	rec := httptest.NewRecorder()
	server.handleZoneOperations(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestZoneHistoryBadHours(t *testing.T) {
	database, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	_, server := newTestServer(t, database)

	req := httptest.NewRequest(http.MethodGet, "/api/zones/0/history?hours=zero", nil)
	rec := httptest.NewRecorder()
	server.handleZoneOperations(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
