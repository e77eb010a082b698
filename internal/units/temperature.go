package units

// TemperatureUnit selects how temperatures are displayed. It is decided by the
// caller (from the viewer's country) and only consulted when formatting.
type TemperatureUnit int

const (
	UnitCelsius TemperatureUnit = iota
	UnitFahrenheit
)

func (u TemperatureUnit) String() string {
	switch u {
	case UnitFahrenheit:
		return "fahrenheit"
	default:
		return "celsius"
	}
}

// Symbol returns the unit glyph appended to formatted temperatures.
func (u TemperatureUnit) Symbol() string {
	if u == UnitFahrenheit {
		return "°F"
	}
	return "°C"
}
