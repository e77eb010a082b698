package http

import (
	"github.com/kjstillabower/dewpoint/internal/models"
	"github.com/kjstillabower/dewpoint/internal/service"
	"github.com/kjstillabower/dewpoint/internal/units"
)

// ForecastView is the forecast page: every measurement pre-formatted for display in the
// viewer's temperature unit and the location's timezone.
type ForecastView struct {
	Title    string       `json:"title"`
	Location LocationView `json:"location"`
	Unit     string       `json:"unit"`
	Timezone string       `json:"timezone"`
	Current  CurrentView  `json:"current"`
	Daily    []DailyView  `json:"daily"`
}

// LocationView is a geocoded place.
type LocationView struct {
	Name    string `json:"name"`
	State   string `json:"state,omitempty"`
	Country string `json:"country,omitempty"`
	Lat     string `json:"lat"`
	Lon     string `json:"lon"`
}

// CurrentView holds the current conditions.
type CurrentView struct {
	Date       string `json:"date"`
	Time       string `json:"time"`
	Summary    string `json:"summary"`
	Icon       string `json:"icon,omitempty"`
	Temp       string `json:"temp"`
	FeelsLike  string `json:"feelsLike"`
	DewPoint   string `json:"dewPoint"`
	Pressure   string `json:"pressure"`
	Humidity   string `json:"humidity"`
	Clouds     string `json:"clouds"`
	UVI        string `json:"uvi"`
	Visibility string `json:"visibility"`
	Wind       string `json:"wind"`
	Sunrise    string `json:"sunrise"`
	Sunset     string `json:"sunset"`
}

// DailyView is one row of the daily outlook.
type DailyView struct {
	Date          string `json:"date"`
	Summary       string `json:"summary"`
	Icon          string `json:"icon,omitempty"`
	High          string `json:"high"`
	Low           string `json:"low"`
	Morning       string `json:"morning"`
	Day           string `json:"day"`
	Evening       string `json:"evening"`
	Night         string `json:"night"`
	Humidity      string `json:"humidity"`
	UVI           string `json:"uvi"`
	Wind          string `json:"wind"`
	Gust          string `json:"gust"`
	Sunrise       string `json:"sunrise"`
	Sunset        string `json:"sunset"`
	MoonPhase     string `json:"moonPhase"`
	Chance        string `json:"chanceOfPrecipitation"`
	Precipitation string `json:"precipitation,omitempty"`
	Emoji         string `json:"emoji,omitempty"`
}

func newLocationView(l models.Location) LocationView {
	return LocationView{
		Name:    l.Name,
		State:   l.State,
		Country: l.Country,
		Lat:     l.Lat.String(),
		Lon:     l.Lon.String(),
	}
}

func newForecastView(f service.Forecast) ForecastView {
	s := f.Snapshot
	tz := s.TimezoneOffset
	c := s.Current
	v := ForecastView{
		Title:    f.Title,
		Location: newLocationView(f.Location),
		Unit:     f.Unit.String(),
		Timezone: s.Timezone,
		Current: CurrentView{
			Date:       c.Dt.DayDate(tz),
			Time:       c.Dt.Time12h(tz),
			Summary:    c.Summary(),
			Icon:       firstIcon(c.Weather),
			Temp:       c.Temp.Format(f.Unit),
			FeelsLike:  c.FeelsLike.Format(f.Unit),
			DewPoint:   c.DewPoint.Format(f.Unit),
			Pressure:   c.Pressure.String(),
			Humidity:   c.Humidity.String(),
			Clouds:     c.Clouds.String(),
			UVI:        c.UVI.String(),
			Visibility: c.Visibility.String(),
			Wind:       wind(c.WindSpeed, c.WindDeg),
			Sunrise:    c.Sunrise.Time12h(tz),
			Sunset:     c.Sunset.Time12h(tz),
		},
		Daily: make([]DailyView, 0, len(s.Daily)),
	}
	for _, d := range s.Daily {
		row := DailyView{
			Date:      d.Dt.DayDate(tz),
			Summary:   d.Summary(),
			Icon:      firstIcon(d.Weather),
			High:      d.Temp.Max.Format(f.Unit),
			Low:       d.Temp.Min.Format(f.Unit),
			Morning:   d.Temp.Morn.Format(f.Unit),
			Day:       d.Temp.Day.Format(f.Unit),
			Evening:   d.Temp.Eve.Format(f.Unit),
			Night:     d.Temp.Night.Format(f.Unit),
			Humidity:  d.Humidity.String(),
			UVI:       d.UVI.String(),
			Wind:      wind(d.WindSpeed, d.WindDeg),
			Gust:      d.WindGust.String(),
			Sunrise:   d.Sunrise.Time12h(tz),
			Sunset:    d.Sunset.Time12h(tz),
			MoonPhase: d.MoonPhase.String(),
			Chance:    d.Pop.String(),
		}
		if p, ok := d.Precipitation(); ok {
			row.Precipitation = p.String()
			row.Emoji = p.Emoji()
		}
		v.Daily = append(v.Daily, row)
	}
	return v
}

func wind(speed units.MetresPerSecond, deg units.Degrees) string {
	return speed.String() + " " + deg.Cardinal()
}

func firstIcon(conds []models.Condition) string {
	if len(conds) == 0 {
		return ""
	}
	return string(conds[0].Icon)
}
