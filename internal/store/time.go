package store

import "time"

// TimeLayout is the on-disk timestamp format. It is fixed width and UTC,
// so comparing the stored text orders rows chronologically.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// timeNow is a package-level variable for testability.
var timeNow = time.Now

// Now returns the current time in UTC.
func Now() time.Time {
	return timeNow().UTC()
}

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a stored timestamp. RFC 3339 values (as found in
// hand-edited exports) are accepted too.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err == nil {
		return t, nil
	}
	if t, rfcErr := time.Parse(time.RFC3339Nano, s); rfcErr == nil {
		return t.UTC(), nil
	}
	return time.Time{}, err
}
