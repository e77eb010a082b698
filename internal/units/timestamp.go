package units

import "time"

// UnixTimestamp is a point in time in seconds since the Unix epoch, UTC.
type UnixTimestamp int64

// TimezoneOffset is a shift from UTC in seconds.
type TimezoneOffset int32

const (
	dayDateLayout = "Monday, 2 January"
	time12hLayout = "03:04 PM"
)

// FromTime converts t to a UnixTimestamp, dropping sub-second precision.
func FromTime(t time.Time) UnixTimestamp {
	return UnixTimestamp(t.Unix())
}

// Time returns the timestamp as a UTC time.Time.
func (t UnixTimestamp) Time() time.Time {
	return time.Unix(int64(t), 0).UTC()
}

// In returns the timestamp shifted into the given offset.
func (t UnixTimestamp) In(offset TimezoneOffset) time.Time {
	return time.Unix(int64(t), 0).In(offset.Location())
}

// DayDate renders the timestamp as e.g. "Tuesday, 7 March" in the given offset.
func (t UnixTimestamp) DayDate(offset TimezoneOffset) string {
	return t.In(offset).Format(dayDateLayout)
}

// Time12h renders the timestamp as a 12-hour clock, e.g. "05:42 AM", in the given offset.
func (t UnixTimestamp) Time12h(offset TimezoneOffset) string {
	return t.In(offset).Format(time12hLayout)
}

// Location returns a fixed zone for the offset.
func (o TimezoneOffset) Location() *time.Location {
	return time.FixedZone("", int(o))
}
