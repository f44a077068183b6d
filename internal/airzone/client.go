package airzone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultPort is the fixed port the local controller listens on.
const DefaultPort = 3000

const hvacPath = "/api/v1/hvac"

// Zone is one entry of the controller's full-state response. The array index
// of a zone is stable across refreshes and identifies the physical zone.
type Zone struct {
	SystemID int                 `json:"systemID"`
	ZoneID   int                 `json:"zoneID"`
	Name     string              `json:"name,omitempty"`
	RoomTemp float64             `json:"roomTemp"`
	Humidity *float64            `json:"humidity,omitempty"`
	Setpoint float64             `json:"setpoint"`
	MinTemp  float64             `json:"minTemp"`
	MaxTemp  float64             `json:"maxTemp"`
	Mode     int                 `json:"mode"`
	On       int                 `json:"on"`
	Errors   []map[string]string `json:"errors,omitempty"`
}

// FaultCodes flattens the controller's error entries into readable strings.
func (z Zone) FaultCodes() []string {
	var codes []string
	for _, e := range z.Errors {
		for k, v := range e {
			codes = append(codes, k+": "+v)
		}
	}
	return codes
}

// Client owns the HTTP conversation with one local Airzone controller and the
// current zone snapshot. The snapshot is replaced wholesale on every
// successful refresh; a failed refresh leaves the previous snapshot in place.
type Client struct {
	endpoint   string
	masterID   int
	httpClient *http.Client

	mu    sync.RWMutex
	zones []Zone
}

// New constructs a client for the controller at the given host. masterID is
// the 1-based id of the zone whose mode field is authoritative for the whole
// system. The snapshot starts empty; call Refresh to populate it.
func New(host string, port int, masterID int, timeout time.Duration) *Client {
	if port == 0 {
		port = DefaultPort
	}
	return &Client{
		endpoint:   fmt.Sprintf("http://%s:%d%s", host, port, hvacPath),
		masterID:   masterID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Refresh fetches the state of every zone and replaces the snapshot. The
// request body {"systemid":1,"zoneid":0} means "all zones". On any failure
// the previous snapshot is retained untouched.
func (c *Client) Refresh(ctx context.Context) error {
	body, err := json.Marshal(map[string]int{"systemid": 1, "zoneid": 0})
	if err != nil {
		return fmt.Errorf("%w: encode request: %v", ErrProtocol, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: controller returned status %d", ErrTransport, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}

	var payload struct {
		Data *[]Zone `json:"data"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrProtocol, err)
	}
	if payload.Data == nil {
		return fmt.Errorf("%w: response missing data field", ErrProtocol)
	}
	if len(*payload.Data) == 0 {
		return fmt.Errorf("%w: response contains no zones", ErrProtocol)
	}

	c.mu.Lock()
	c.zones = *payload.Data
	c.mu.Unlock()

	log.Debug().Int("zones", len(*payload.Data)).Msg("Zone snapshot refreshed")
	return nil
}

// SetMode writes a raw mode code for the given zone index. Controller-side
// only; the local snapshot does not change until the next refresh.
func (c *Client) SetMode(ctx context.Context, zoneIdx int, mode int) error {
	return c.put(ctx, zoneIdx, "mode", mode)
}

// SetTemperature writes a setpoint for the given zone index. The value is
// expected to already be rounded by the caller.
func (c *Client) SetTemperature(ctx context.Context, zoneIdx int, value float64) error {
	return c.put(ctx, zoneIdx, "setpoint", value)
}

// SetPower switches a zone on or off. The controller expects the power flag
// as the string "true"/"false" rather than a JSON boolean.
func (c *Client) SetPower(ctx context.Context, zoneIdx int, on bool) error {
	return c.put(ctx, zoneIdx, "on", strconv.FormatBool(on))
}

// put issues a single-field mutation. Mutations are fire-and-forget: the
// controller sends no confirmation payload worth consuming, so success only
// becomes observable on the next refresh.
func (c *Client) put(ctx context.Context, zoneIdx int, field string, value any) error {
	if _, err := c.zone(zoneIdx); err != nil {
		return err
	}

	body, err := json.Marshal(map[string]any{
		"systemid": 1,
		"zoneid":   zoneIdx + 1,
		field:      value,
	})
	if err != nil {
		return fmt.Errorf("%w: encode request: %v", ErrProtocol, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: controller returned status %d", ErrTransport, resp.StatusCode)
	}

	log.Debug().
		Int("zone_idx", zoneIdx).
		Str("field", field).
		Interface("value", value).
		Msg("Zone mutation sent")
	return nil
}

// ZoneCount returns the number of zones in the current snapshot.
func (c *Client) ZoneCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.zones)
}

// Snapshot returns a copy of the current zone snapshot.
func (c *Client) Snapshot() []Zone {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Zone, len(c.zones))
	copy(out, c.zones)
	return out
}

// Zone returns a copy of one zone's state by snapshot index.
func (c *Client) Zone(zoneIdx int) (Zone, error) {
	return c.zone(zoneIdx)
}

func (c *Client) zone(zoneIdx int) (Zone, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if zoneIdx < 0 || zoneIdx >= len(c.zones) {
		return Zone{}, fmt.Errorf("%w: index %d with %d zones", ErrInvalidZone, zoneIdx, len(c.zones))
	}
	return c.zones[zoneIdx], nil
}

// Temperature returns the measured room temperature for a zone, rounded to
// one decimal place.
func (c *Client) Temperature(zoneIdx int) (float64, error) {
	z, err := c.zone(zoneIdx)
	if err != nil {
		return 0, err
	}
	return roundTenth(z.RoomTemp), nil
}

// Humidity returns the relative humidity for a zone, or nil when the
// controller does not report one.
func (c *Client) Humidity(zoneIdx int) (*float64, error) {
	z, err := c.zone(zoneIdx)
	if err != nil {
		return nil, err
	}
	return z.Humidity, nil
}

// Setpoint returns the target temperature for a zone.
func (c *Client) Setpoint(zoneIdx int) (float64, error) {
	z, err := c.zone(zoneIdx)
	if err != nil {
		return 0, err
	}
	return z.Setpoint, nil
}

// MinTemp returns the lower setpoint bound for a zone, in Celsius.
func (c *Client) MinTemp(zoneIdx int) (float64, error) {
	z, err := c.zone(zoneIdx)
	if err != nil {
		return 0, err
	}
	return z.MinTemp, nil
}

// MaxTemp returns the upper setpoint bound for a zone, in Celsius.
func (c *Client) MaxTemp(zoneIdx int) (float64, error) {
	z, err := c.zone(zoneIdx)
	if err != nil {
		return 0, err
	}
	return z.MaxTemp, nil
}

// IsOn reports the power state of a zone.
func (c *Client) IsOn(zoneIdx int) (bool, error) {
	z, err := c.zone(zoneIdx)
	if err != nil {
		return false, err
	}
	return z.On != 0, nil
}

// FaultCodes returns the controller-reported fault codes for a zone.
func (c *Client) FaultCodes(zoneIdx int) ([]string, error) {
	z, err := c.zone(zoneIdx)
	if err != nil {
		return nil, err
	}
	return z.FaultCodes(), nil
}

// Mode returns the system-wide raw mode code. The controller duplicates the
// value on every zone but only the master zone's copy is authoritative.
func (c *Client) Mode() (int, error) {
	z, err := c.zone(c.masterID - 1)
	if err != nil {
		return 0, err
	}
	return z.Mode, nil
}

// roundTenth rounds half away from zero to one decimal place.
func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
