package api

import (
	"fmt"
	"strings"
	"time"
)

// Time is an ISO-8601 timestamp as emitted by the screener backend. The
// backend serializes naive UTC datetimes, so values arrive with or without a
// zone offset and with or without fractional seconds; bare values are taken
// as UTC. Marshals back out as RFC 3339 UTC.
type Time struct {
	time.Time
}

// NewTime wraps a time.Time for use in request/response structs.
func NewTime(t time.Time) Time { return Time{Time: t} }

// Go's parser accepts fractional seconds after the seconds field even when
// the layout omits them, so two bare layouts cover the backend's variants.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func (t *Time) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timeLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.UTC().Format(time.RFC3339Nano) + `"`), nil
}
