package model

// HVACMode is the normalized operating mode exposed to climate consumers.
type HVACMode string

const (
	ModeOff     HVACMode = "off"
	ModeHeat    HVACMode = "heat"
	ModeCool    HVACMode = "cool"
	ModeDry     HVACMode = "dry"
	ModeFanOnly HVACMode = "fan_only"
)

// Raw mode codes reported and accepted by the Airzone local controller.
const (
	CodeStop    = 1
	CodeCool    = 2
	CodeHeat    = 3
	CodeFanOnly = 4
	CodeDry     = 5
)

// AllModes lists every mode a zone device can be commanded into.
func AllModes() []HVACMode {
	return []HVACMode{ModeOff, ModeHeat, ModeCool, ModeDry, ModeFanOnly}
}

// ModeFromCode maps a raw controller mode code to the normalized mode.
// Power state wins: a powered-off zone is always off. Unknown codes map to off.
func ModeFromCode(code int, on bool) HVACMode {
	if !on {
		return ModeOff
	}
	switch code {
	case CodeCool:
		return ModeCool
	case CodeHeat:
		return ModeHeat
	case CodeFanOnly:
		return ModeFanOnly
	case CodeDry:
		return ModeDry
	default:
		return ModeOff
	}
}

// CodeForMode maps a normalized mode back to the raw controller code.
// The second return is false for modes the controller does not accept.
func CodeForMode(mode HVACMode) (int, bool) {
	switch mode {
	case ModeOff:
		return CodeStop, true
	case ModeCool:
		return CodeCool, true
	case ModeHeat:
		return CodeHeat, true
	case ModeFanOnly:
		return CodeFanOnly, true
	case ModeDry:
		return CodeDry, true
	default:
		return 0, false
	}
}

// ValidMode reports whether the given string names a known HVAC mode.
func ValidMode(mode HVACMode) bool {
	_, ok := CodeForMode(mode)
	return ok
}

// TemperatureUnit is the display unit for temperatures. The controller always
// reports Celsius; conversion happens at the presentation boundary only.
type TemperatureUnit string

const (
	UnitCelsius    TemperatureUnit = "celsius"
	UnitFahrenheit TemperatureUnit = "fahrenheit"
)

// ConvertTemperature converts a Celsius value into the given display unit.
// The stored value is never altered; this is presentation only.
func ConvertTemperature(celsius float64, to TemperatureUnit) float64 {
	if to == UnitFahrenheit {
		return celsius*9.0/5.0 + 32.0
	}
	return celsius
}

// ConvertToCelsius converts a display-unit value back to Celsius, the only
// unit the controller speaks.
func ConvertToCelsius(value float64, from TemperatureUnit) float64 {
	if from == UnitFahrenheit {
		return (value - 32.0) * 5.0 / 9.0
	}
	return value
}
