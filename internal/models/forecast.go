package models

import (
	"github.com/kjstillabower/dewpoint/internal/units"
)

// Forecast is one fetched One Call snapshot: current conditions plus the daily outlook
// for a single coordinate pair. Values are treated as immutable once stored; use Clone
// before handing a stored snapshot to code that may modify it.
type Forecast struct {
	Lat            units.Latitude       `json:"lat"`
	Lon            units.Longitude      `json:"lon"`
	Timezone       string               `json:"timezone"`
	TimezoneOffset units.TimezoneOffset `json:"timezone_offset"`
	Current        Current              `json:"current"`
	Daily          []Daily              `json:"daily"`
}

// Current holds the conditions at observation time Dt.
type Current struct {
	Dt         units.UnixTimestamp   `json:"dt"`
	Sunrise    units.UnixTimestamp   `json:"sunrise"`
	Sunset     units.UnixTimestamp   `json:"sunset"`
	Temp       units.Kelvin          `json:"temp"`
	FeelsLike  units.Kelvin          `json:"feels_like"`
	Pressure   units.HPa             `json:"pressure"`
	Humidity   units.Percent         `json:"humidity"`
	DewPoint   units.Kelvin          `json:"dew_point"`
	UVI        units.UVIndex         `json:"uvi"`
	Clouds     units.Percent         `json:"clouds"`
	Visibility units.Metres          `json:"visibility"`
	WindSpeed  units.MetresPerSecond `json:"wind_speed"`
	WindDeg    units.Degrees         `json:"wind_deg"`
	Weather    []Condition           `json:"weather"`
}

// Condition is one weather condition entry (a snapshot may report several).
type Condition struct {
	ID          units.WeatherConditionID `json:"id"`
	Main        string                   `json:"main"`
	Description string                   `json:"description"`
	Icon        units.Icon               `json:"icon"`
}

// Daily is the forecast for one day.
type Daily struct {
	Dt        units.UnixTimestamp   `json:"dt"`
	Sunrise   units.UnixTimestamp   `json:"sunrise"`
	Sunset    units.UnixTimestamp   `json:"sunset"`
	Moonrise  units.UnixTimestamp   `json:"moonrise"`
	Moonset   units.UnixTimestamp   `json:"moonset"`
	MoonPhase units.MoonPhase       `json:"moon_phase"`
	Temp      DayTemp               `json:"temp"`
	FeelsLike FeelsLike             `json:"feels_like"`
	Pressure  units.HPa             `json:"pressure"`
	Humidity  units.Percent         `json:"humidity"`
	DewPoint  units.Kelvin          `json:"dew_point"`
	WindSpeed units.MetresPerSecond `json:"wind_speed"`
	WindDeg   units.Degrees         `json:"wind_deg"`
	WindGust  units.MetresPerSecond `json:"wind_gust"`
	Weather   []Condition           `json:"weather"`
	Clouds    units.Percent         `json:"clouds"`
	Pop       units.Probability     `json:"pop"`
	Rain      *units.Millimetres    `json:"rain,omitempty"`
	Snow      *units.Millimetres    `json:"snow,omitempty"`
	UVI       units.UVIndex         `json:"uvi"`
}

// DayTemp is the temperature across the parts of a day.
type DayTemp struct {
	Day   units.Kelvin `json:"day"`
	Min   units.Kelvin `json:"min"`
	Max   units.Kelvin `json:"max"`
	Night units.Kelvin `json:"night"`
	Eve   units.Kelvin `json:"eve"`
	Morn  units.Kelvin `json:"morn"`
}

// FeelsLike is the apparent temperature across the parts of a day.
type FeelsLike struct {
	Day   units.Kelvin `json:"day"`
	Night units.Kelvin `json:"night"`
	Eve   units.Kelvin `json:"eve"`
	Morn  units.Kelvin `json:"morn"`
}

// ObservedAt is the provider-reported observation time of the snapshot.
// Cache freshness is measured from this, not from when the snapshot was stored.
func (f Forecast) ObservedAt() units.UnixTimestamp {
	return f.Current.Dt
}

// Summary returns the description of the first reported condition, or "".
func (c Current) Summary() string {
	return summary(c.Weather)
}

// Summary returns the description of the first reported condition, or "".
func (d Daily) Summary() string {
	return summary(d.Weather)
}

func summary(conds []Condition) string {
	if len(conds) == 0 {
		return ""
	}
	if conds[0].Description != "" {
		return conds[0].Description
	}
	return conds[0].Main
}

// Precipitation returns the expected precipitation for the day. ok is false when the
// provider reported neither rain nor snow. If both are present the larger volume wins,
// with rain taking ties.
func (d Daily) Precipitation() (p units.Precipitation, ok bool) {
	switch {
	case d.Rain != nil && (d.Snow == nil || *d.Rain >= *d.Snow):
		return units.NewRain(*d.Rain, d.Pop), true
	case d.Snow != nil:
		return units.NewSnow(*d.Snow, d.Pop), true
	default:
		return units.Precipitation{}, false
	}
}

// Clone returns a deep copy so callers cannot alias stored slices or pointers.
func (f Forecast) Clone() Forecast {
	out := f
	out.Current.Weather = cloneConditions(f.Current.Weather)
	if f.Daily != nil {
		out.Daily = make([]Daily, len(f.Daily))
		for i, d := range f.Daily {
			d.Weather = cloneConditions(d.Weather)
			if d.Rain != nil {
				v := *d.Rain
				d.Rain = &v
			}
			if d.Snow != nil {
				v := *d.Snow
				d.Snow = &v
			}
			out.Daily[i] = d
		}
	}
	return out
}

func cloneConditions(in []Condition) []Condition {
	if in == nil {
		return nil
	}
	out := make([]Condition, len(in))
	copy(out, in)
	return out
}
