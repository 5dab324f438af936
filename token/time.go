package token

import (
	"strconv"
	"time"
)

// expiryLayout renders UTC instants with an explicit +00:00 offset.
const expiryLayout = "2006-01-02T15:04:05-07:00"

// NumericDate represents a JWT NumericDate: whole seconds since Unix epoch (UTC).
type NumericDate time.Time

// NewNumericDate truncates t to whole seconds in UTC.
func NewNumericDate(t time.Time) NumericDate {
	return NumericDate(time.Unix(t.Unix(), 0).UTC())
}

// MarshalJSON implements the json.Marshaler interface for NumericDate.
// It marshals the time into a Unix timestamp in seconds.
func (t NumericDate) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, t.Unix(), 10), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface for NumericDate.
func (t *NumericDate) UnmarshalJSON(data []byte) error {
	sec, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return err
	}
	*t = NumericDate(time.Unix(sec, 0).UTC())
	return nil
}

// Unix returns the number of seconds since Unix epoch.
func (t NumericDate) Unix() int64 {
	return time.Time(t).Unix()
}

// Time returns the NumericDate as a standard time.Time.
func (t NumericDate) Time() time.Time {
	return time.Time(t)
}

// Equal reports whether t and u represent the same second.
func (t NumericDate) Equal(u NumericDate) bool {
	return t.Unix() == u.Unix()
}

// String returns the NumericDate in UTC as "YYYY-MM-DDTHH:MM:SS+00:00".
func (t NumericDate) String() string {
	return time.Time(t).UTC().Format(expiryLayout)
}
