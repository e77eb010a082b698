package units

import "fmt"

// PrecipitationKind distinguishes rain from snow.
type PrecipitationKind int

const (
	Rain PrecipitationKind = iota + 1
	Snow
)

func (k PrecipitationKind) String() string {
	switch k {
	case Rain:
		return "Rain"
	case Snow:
		return "Snow"
	default:
		return "Unknown"
	}
}

// Precipitation is the expected rain or snow for a day together with its probability.
type Precipitation struct {
	kind   PrecipitationKind
	volume Millimetres
	chance Probability
}

// NewRain returns a rain precipitation of the given volume and probability.
func NewRain(volume Millimetres, chance Probability) Precipitation {
	return Precipitation{kind: Rain, volume: volume, chance: chance}
}

// NewSnow returns a snow precipitation of the given volume and probability.
func NewSnow(volume Millimetres, chance Probability) Precipitation {
	return Precipitation{kind: Snow, volume: volume, chance: chance}
}

func (p Precipitation) Kind() PrecipitationKind { return p.kind }

// Name is the display name of the precipitation kind.
func (p Precipitation) Name() string { return p.kind.String() }

// Emoji is a single glyph for the precipitation kind.
func (p Precipitation) Emoji() string {
	switch p.kind {
	case Snow:
		return "🌨️"
	case Rain:
		return "🌧️"
	default:
		return ""
	}
}

func (p Precipitation) Volume() Millimetres { return p.volume }

func (p Precipitation) Probability() Probability { return p.chance }

// String renders e.g. "Rain 4mm (60%)".
func (p Precipitation) String() string {
	return fmt.Sprintf("%s %s (%s)", p.Name(), p.volume, p.chance)
}
