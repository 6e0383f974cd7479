package announcement

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the offset-less yyyyMMdd'T'HHmmss form used on the wire.
const TimestampLayout = "20060102T150405"

const (
	ResultSuccess = "SUCCESS"
	ResultFailure = "FAILURE"
)

var ErrInvalidTimestamp = errors.New("invalid announcement timestamp")

type Payload struct {
	ResultCode    string `json:"resultCode"`
	Announcements []Wire `json:"announcements"`
}

type Wire struct {
	Message string `json:"message"`
	Start   string `json:"start"`
	End     string `json:"end"`
	State   string `json:"state,omitempty"`
}

func FormatTimestamp(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(TimestampLayout)
}

func ParseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, ErrInvalidTimestamp
	}
	ts, err := time.ParseInLocation(TimestampLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, value)
	}
	return ts, nil
}

func (a Announcement) ToWire(loc *time.Location) Wire {
	return Wire{
		Message: a.Message,
		Start:   FormatTimestamp(a.Start, loc),
		End:     FormatTimestamp(a.End, loc),
		State:   string(a.State),
	}
}

// FromWire decodes the bounds of w. Any state carried by w is dropped; it is
// derived again by Evaluate.
func FromWire(w Wire, loc *time.Location) (Announcement, error) {
	start, err := ParseTimestamp(w.Start, loc)
	if err != nil {
		return Announcement{}, fmt.Errorf("start: %w", err)
	}
	end, err := ParseTimestamp(w.End, loc)
	if err != nil {
		return Announcement{}, fmt.Errorf("end: %w", err)
	}
	return Announcement{
		Message: w.Message,
		Start:   start,
		End:     end,
	}, nil
}

func NewPayload(items []Announcement, loc *time.Location) Payload {
	wires := make([]Wire, 0, len(items))
	for _, item := range items {
		wires = append(wires, item.ToWire(loc))
	}
	return Payload{
		ResultCode:    ResultSuccess,
		Announcements: wires,
	}
}

func FailurePayload() Payload {
	return Payload{
		ResultCode:    ResultFailure,
		Announcements: []Wire{},
	}
}
