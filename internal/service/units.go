package service

import (
	"strings"

	"github.com/kjstillabower/dewpoint/internal/units"
)

// fahrenheitCountries use Fahrenheit for everyday temperatures.
var fahrenheitCountries = map[string]struct{}{
	"US": {}, // United States
	"BS": {}, // Bahamas
	"KY": {}, // Cayman Islands
	"LR": {}, // Liberia
	"PW": {}, // Palau
	"FM": {}, // Micronesia
	"MH": {}, // Marshall Islands
}

// UnitForCountry returns the temperature unit for an ISO 3166-1 alpha-2 country code.
// Unknown and empty codes get Celsius.
func UnitForCountry(country string) units.TemperatureUnit {
	if _, ok := fahrenheitCountries[strings.ToUpper(strings.TrimSpace(country))]; ok {
		return units.UnitFahrenheit
	}
	return units.UnitCelsius
}
