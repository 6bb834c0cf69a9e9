// Package payload holds the decoding helpers shared by the upstream adapters.
// Upstream payloads are loosely typed: identifiers arrive as strings or
// numbers and optional fields may be null or missing.
package payload

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/oapi-codegen/runtime"
)

// Text decodes a JSON string, number or boolean into its textual form. null and
// missing values stay empty.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
		*t = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
	case data[0] == '{', data[0] == '[':
		*t = ""
	default:
		*t = Text(data)
	}
	return nil
}

func (t Text) String() string { return strings.TrimSpace(string(t)) }

// FirstText returns the first non-empty value.
func FirstText(values ...Text) string {
	for _, v := range values {
		if s := v.String(); s != "" {
			return s
		}
	}
	return ""
}

// Count decodes a JSON number (or numeric string) into an int. Anything else is absent.
type Count struct {
	Value int
	Valid bool
}

func (c *Count) UnmarshalJSON(data []byte) error {
	var raw Text
	if err := raw.UnmarshalJSON(data); err != nil {
		return err
	}
	f, err := strconv.ParseFloat(raw.String(), 64)
	if err != nil {
		*c = Count{}
		return nil
	}
	*c = Count{Value: int(f), Valid: true}
	return nil
}

// FirstNonZero mirrors the upstreams' "first truthy value" fallbacks.
func FirstNonZero(values ...Count) int {
	for _, v := range values {
		if v.Valid && v.Value != 0 {
			return v.Value
		}
	}
	return 0
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// Time parses a timestamp, falling back to now when it is missing or invalid.
func Time(raw Text, now func() time.Time) time.Time {
	s := raw.String()
	if s != "" {
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC()
			}
		}
		if millis, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(millis).UTC()
		}
	}
	return now().UTC()
}

// IsArray reports whether body is a JSON array.
func IsArray(body []byte) bool {
	body = bytes.TrimSpace(body)
	return len(body) > 0 && body[0] == '['
}

// IsObject reports whether body is a JSON object.
func IsObject(body []byte) bool {
	body = bytes.TrimSpace(body)
	return len(body) > 0 && body[0] == '{'
}

// Path builds a resource path with id encoded as a simple-style path parameter.
func Path(prefix, name, id string) (string, error) {
	encoded, err := runtime.StyleParamWithLocation("simple", false, name, runtime.ParamLocationPath, id)
	if err != nil {
		return "", err
	}
	return prefix + "/" + encoded, nil
}
