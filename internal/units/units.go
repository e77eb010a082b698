// Package units holds the unit-tagged scalar types a forecast is built from.
// Each physical quantity is its own named type so values of different kinds
// cannot be mixed up, and each type knows how to render itself for display.
package units

import (
	"fmt"
	"math"
)

// Kelvin is an absolute temperature as reported by the upstream provider.
type Kelvin float64

// Celsius is a temperature in degrees Celsius.
type Celsius float64

// Fahrenheit is a temperature in degrees Fahrenheit.
type Fahrenheit float64

// HPa is atmospheric pressure in hectopascals.
type HPa int32

// Percent is an integral percentage such as humidity or cloud cover.
type Percent uint8

// UVIndex is the dimensionless ultraviolet index.
type UVIndex float64

// Metres is a distance, used for visibility.
type Metres float64

// MetresPerSecond is a wind speed.
type MetresPerSecond float64

// Millimetres is a precipitation volume.
type Millimetres float64

// Degrees is a meteorological direction (0 = north, clockwise).
type Degrees uint16

// Probability is a chance in the range 0..1.
type Probability float64

// MoonPhase is a value in 0..1 where 0 and 1 are new moon and 0.5 is full moon.
type MoonPhase float64

// Latitude in decimal degrees.
type Latitude float64

// Longitude in decimal degrees.
type Longitude float64

// WeatherConditionID is the provider's numeric weather condition code.
type WeatherConditionID uint16

// Icon is the provider's icon identifier (e.g. "10d").
type Icon string

// ToCelsius converts an absolute temperature to Celsius.
func (k Kelvin) ToCelsius() Celsius {
	return Celsius(float64(k) - 273.15)
}

// ToFahrenheit converts an absolute temperature to Fahrenheit via Celsius.
func (k Kelvin) ToFahrenheit() Fahrenheit {
	return Fahrenheit(float64(k.ToCelsius())*1.8 + 32)
}

// Format renders the temperature in the requested unit.
func (k Kelvin) Format(unit TemperatureUnit) string {
	if unit == UnitFahrenheit {
		return k.ToFahrenheit().String()
	}
	return k.ToCelsius().String()
}

func (c Celsius) String() string {
	return fmt.Sprintf("%.1f°C", float64(c))
}

func (f Fahrenheit) String() string {
	return fmt.Sprintf("%.1f°F", float64(f))
}

func (p HPa) String() string {
	return fmt.Sprintf("%d hPa", int32(p))
}

func (p Percent) String() string {
	return fmt.Sprintf("%d%%", uint8(p))
}

func (u UVIndex) String() string {
	return fmt.Sprintf("%.1f", float64(u))
}

func (m Metres) String() string {
	if m >= 1000 {
		return fmt.Sprintf("%.1f km", float64(m)/1000)
	}
	return fmt.Sprintf("%.0f m", float64(m))
}

func (s MetresPerSecond) String() string {
	return fmt.Sprintf("%.1f m/s", float64(s))
}

// String rounds the volume to the nearest whole millimetre.
func (mm Millimetres) String() string {
	return fmt.Sprintf("%dmm", int64(math.Round(float64(mm))))
}

// String renders the probability as a rounded percentage.
func (p Probability) String() string {
	return fmt.Sprintf("%d%%", int64(math.Round(float64(p)*100)))
}

func (d Degrees) String() string {
	return fmt.Sprintf("%d°", uint16(d))
}

var compassPoints = [...]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// Cardinal returns the nearest of the eight compass points.
func (d Degrees) Cardinal() string {
	idx := int(math.Round(float64(d%360)/45)) % len(compassPoints)
	return compassPoints[idx]
}

func (m MoonPhase) String() string {
	return fmt.Sprintf("%.2f", float64(m))
}

func (l Latitude) String() string {
	return formatCoordinate(float64(l))
}

func (l Longitude) String() string {
	return formatCoordinate(float64(l))
}

// formatCoordinate fixes a coordinate to four decimals. Values that round to zero print
// as "0.0000" whatever their sign, so equal positions format identically.
func formatCoordinate(v float64) string {
	r := math.Round(v*1e4) / 1e4
	if r == 0 {
		r = 0
	}
	return fmt.Sprintf("%.4f", r)
}
