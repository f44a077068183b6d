package climate

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/vinste/airzone-local/internal/airzone"
	"github.com/vinste/airzone-local/internal/model"
)

// TargetTemperatureStep is the setpoint granularity the controller accepts.
const TargetTemperatureStep = 0.5

// Device adapts one zone of the shared snapshot to a climate-device view.
// It reads by fixed snapshot index and never caches state of its own.
type Device struct {
	client  *airzone.Client
	zoneIdx int
	name    string
	unit    model.TemperatureUnit
}

// NewDevice builds the adapter for the zone at the given snapshot index.
// Display names come from configuration, not from the controller.
func NewDevice(client *airzone.Client, zoneIdx int, name string, unit model.TemperatureUnit) *Device {
	return &Device{client: client, zoneIdx: zoneIdx, name: name, unit: unit}
}

func (d *Device) Name() string {
	return d.name
}

func (d *Device) ZoneIndex() int {
	return d.zoneIdx
}

// UniqueID is stable across restarts: the controller's system and zone ids.
func (d *Device) UniqueID() string {
	z, err := d.client.Zone(d.zoneIdx)
	if err != nil {
		return fmt.Sprintf("zone_idx_%d", d.zoneIdx)
	}
	return fmt.Sprintf("zone_%d_%d", z.SystemID, z.ZoneID)
}

func (d *Device) TemperatureUnit() model.TemperatureUnit {
	return d.unit
}

// HVACMode returns the normalized operating mode. The zone's power flag is
// evaluated first; the raw mode code is the system-wide one read from the
// master zone, not this zone's copy.
func (d *Device) HVACMode() model.HVACMode {
	on, err := d.client.IsOn(d.zoneIdx)
	if err != nil {
		log.Warn().Err(err).Int("zone_idx", d.zoneIdx).Msg("Cannot read zone power state")
		return model.ModeOff
	}
	code, err := d.client.Mode()
	if err != nil {
		log.Warn().Err(err).Int("zone_idx", d.zoneIdx).Msg("Cannot read system mode")
		return model.ModeOff
	}
	return model.ModeFromCode(code, on)
}

func (d *Device) HVACModes() []model.HVACMode {
	return model.AllModes()
}

// CurrentTemperature returns the measured room temperature in the display unit.
func (d *Device) CurrentTemperature() (float64, error) {
	t, err := d.client.Temperature(d.zoneIdx)
	if err != nil {
		return 0, err
	}
	return model.ConvertTemperature(t, d.unit), nil
}

// TargetTemperature returns the current setpoint in the display unit.
func (d *Device) TargetTemperature() (float64, error) {
	t, err := d.client.Setpoint(d.zoneIdx)
	if err != nil {
		return 0, err
	}
	return model.ConvertTemperature(t, d.unit), nil
}

// CurrentHumidity returns relative humidity, or nil when not reported.
func (d *Device) CurrentHumidity() (*float64, error) {
	return d.client.Humidity(d.zoneIdx)
}

// MinTemp returns the lower setpoint bound in the display unit. The stored
// Celsius value is unchanged; conversion is presentation only.
func (d *Device) MinTemp() (float64, error) {
	t, err := d.client.MinTemp(d.zoneIdx)
	if err != nil {
		return 0, err
	}
	return model.ConvertTemperature(t, d.unit), nil
}

// MaxTemp returns the upper setpoint bound in the display unit.
func (d *Device) MaxTemp() (float64, error) {
	t, err := d.client.MaxTemp(d.zoneIdx)
	if err != nil {
		return 0, err
	}
	return model.ConvertTemperature(t, d.unit), nil
}

func (d *Device) IsOn() (bool, error) {
	return d.client.IsOn(d.zoneIdx)
}

// Faults returns controller-reported fault codes for this zone, if any.
func (d *Device) Faults() []string {
	codes, err := d.client.FaultCodes(d.zoneIdx)
	if err != nil {
		return nil
	}
	return codes
}

// Features lists the supported optional capabilities of this device.
func (d *Device) Features() []string {
	return []string{"target_temperature"}
}

// SetHVACMode maps the normalized mode back to a raw controller code and
// writes it. The effect becomes visible on the next refresh.
func (d *Device) SetHVACMode(ctx context.Context, mode model.HVACMode) error {
	code, ok := model.CodeForMode(mode)
	if !ok {
		return fmt.Errorf("unknown hvac mode %q", mode)
	}

	log.Info().
		Str("zone", d.name).
		Str("mode", string(mode)).
		Int("code", code).
		Msg("Setting zone hvac mode")
	return d.client.SetMode(ctx, d.zoneIdx, code)
}

// SetTargetTemperature takes a display-unit value, validates it against the
// zone bounds, rounds half-up to one decimal place and writes the setpoint
// in Celsius.
func (d *Device) SetTargetTemperature(ctx context.Context, value float64) error {
	z, err := d.client.Zone(d.zoneIdx)
	if err != nil {
		return err
	}

	celsius := model.ConvertToCelsius(value, d.unit)
	if celsius < z.MinTemp || celsius > z.MaxTemp {
		return fmt.Errorf("setpoint %.1f outside bounds [%.1f, %.1f]", value,
			model.ConvertTemperature(z.MinTemp, d.unit), model.ConvertTemperature(z.MaxTemp, d.unit))
	}

	rounded := math.Round(celsius*10) / 10
	log.Info().
		Str("zone", d.name).
		Float64("setpoint", rounded).
		Msg("Setting zone target temperature")
	return d.client.SetTemperature(ctx, d.zoneIdx, rounded)
}

func (d *Device) TurnOn(ctx context.Context) error {
	log.Info().Str("zone", d.name).Msg("Turning zone on")
	return d.client.SetPower(ctx, d.zoneIdx, true)
}

func (d *Device) TurnOff(ctx context.Context) error {
	log.Info().Str("zone", d.name).Msg("Turning zone off")
	return d.client.SetPower(ctx, d.zoneIdx, false)
}

// Update refreshes the shared snapshot. Failures are logged and swallowed so
// the previous snapshot keeps serving reads; stale data beats no data.
func (d *Device) Update(ctx context.Context) {
	if err := d.client.Refresh(ctx); err != nil {
		log.Warn().Err(err).Str("zone", d.name).Msg("Zone refresh failed, keeping previous snapshot")
	}
}
