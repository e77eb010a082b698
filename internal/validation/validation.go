package validation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/kjstillabower/dewpoint/internal/units"
)

// Locality length bounds in runes.
const (
	MinLocalityLen = 1
	MaxLocalityLen = 100
)

// ErrLocalityEmpty is returned when locality is empty or whitespace-only after trim.
var ErrLocalityEmpty = errors.New("locality is required")

// ErrLocalityTooShort is returned when locality length is below the minimum.
var ErrLocalityTooShort = errors.New("locality too short")

// ErrLocalityTooLong is returned when locality length exceeds the maximum.
var ErrLocalityTooLong = errors.New("locality too long")

// ErrLocalityInvalidChars is returned when locality contains disallowed characters.
var ErrLocalityInvalidChars = errors.New("locality contains invalid characters")

// ErrCountryInvalid is returned for anything but an ISO 3166-1 alpha-2 code.
var ErrCountryInvalid = errors.New("country must be an ISO 3166-1 alpha-2 code")

// ErrCoordinatesInvalid is returned for unparsable or out-of-range coordinates.
var ErrCoordinatesInvalid = errors.New("invalid coordinates")

var validate = validator.New()

type coordinates struct {
	Lat float64 `validate:"gte=-90,lte=90"`
	Lon float64 `validate:"gte=-180,lte=180"`
}

// ValidateLocality trims the input, enforces length bounds (minLen, maxLen in runes),
// and restricts to allowed characters: letters (Unicode), digits, space, comma, hyphen,
// period and apostrophe. Returns the trimmed string. Case is left to the service layer.
func ValidateLocality(input string, minLen, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrLocalityEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrLocalityTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrLocalityTooLong
	}
	for _, c := range r {
		if !isAllowedLocalityRune(c) {
			return "", ErrLocalityInvalidChars
		}
	}
	return s, nil
}

// isAllowedLocalityRune covers names like "St. John's" and "Baden-Baden".
func isAllowedLocalityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}

// ValidateCountry trims and upper-cases code and checks it is an assigned ISO 3166-1
// alpha-2 code. The empty string is accepted and returned as-is.
func ValidateCountry(code string) (string, error) {
	cc := strings.ToUpper(strings.TrimSpace(code))
	if err := validate.Var(cc, "omitempty,iso3166_1_alpha2"); err != nil {
		return "", fmt.Errorf("%w: %q", ErrCountryInvalid, code)
	}
	return cc, nil
}

// ValidateCoordinates parses decimal-degree strings and checks their ranges.
func ValidateCoordinates(lat, lon string) (units.Latitude, units.Longitude, error) {
	latF, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: latitude %q", ErrCoordinatesInvalid, lat)
	}
	lonF, err := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: longitude %q", ErrCoordinatesInvalid, lon)
	}
	if err := validate.Struct(coordinates{Lat: latF, Lon: lonF}); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return 0, 0, fmt.Errorf("%w: %s out of range", ErrCoordinatesInvalid, strings.ToLower(verrs[0].Field()))
		}
		return 0, 0, fmt.Errorf("%w: %v", ErrCoordinatesInvalid, err)
	}
	return units.Latitude(latF), units.Longitude(lonF), nil
}
