package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Millis is a point in time as epoch milliseconds. Zero means "not set".
//
// Documents coming from the remote store carry timestamps either as raw epoch
// millis, as RFC 3339 strings, or as {seconds, nanoseconds} objects (with or
// without leading underscores). All of them are normalized here, once, when
// the document is decoded.
type Millis int64

const MillisPerDay = 86_400_000

func MillisFromTime(t time.Time) Millis {
	if t.IsZero() {
		return 0
	}
	return Millis(t.UnixMilli())
}

func Now() Millis {
	return Millis(time.Now().UnixMilli())
}

func (m Millis) IsZero() bool {
	return m == 0
}

func (m Millis) Time() time.Time {
	if m == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(m)).UTC()
}

func (m Millis) MarshalJSON() ([]byte, error) {
	if m == 0 {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(int64(m), 10)), nil
}

type structuredTimestamp struct {
	Seconds          *int64 `json:"seconds"`
	Nanoseconds      int64  `json:"nanoseconds"`
	UnderSeconds     *int64 `json:"_seconds"`
	UnderNanoseconds int64  `json:"_nanoseconds"`
}

func (m *Millis) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = 0
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*m = 0
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("invalid timestamp string %q: %w", s, err)
		}
		*m = MillisFromTime(t)
		return nil

	case '{':
		var st structuredTimestamp
		if err := json.Unmarshal(data, &st); err != nil {
			return err
		}
		switch {
		case st.Seconds != nil:
			*m = Millis(*st.Seconds*1000 + st.Nanoseconds/1_000_000)
		case st.UnderSeconds != nil:
			*m = Millis(*st.UnderSeconds*1000 + st.UnderNanoseconds/1_000_000)
		default:
			return fmt.Errorf("timestamp object without seconds: %s", string(data))
		}
		return nil

	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("invalid timestamp %s: %w", string(data), err)
		}
		*m = Millis(int64(f))
		return nil
	}
}
