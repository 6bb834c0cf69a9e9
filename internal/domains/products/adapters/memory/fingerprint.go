package memory

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

const (
	canonicalAbsent     = "undefined"
	canonicalNull       = "null"
	canonicalUnhashable = "unhashable"
)

// Fingerprint hashes a request body for duplicate detection. Object keys are
// sorted at the top level only; nested values keep their original key order.
// Numbers are compared by value, so 10 and 10.0 hash alike.
func Fingerprint(body any) string {
	sum := sha256.Sum256([]byte(canonicalize(body)))
	return hex.EncodeToString(sum[:])
}

func canonicalize(body any) string {
	var raw []byte
	switch v := body.(type) {
	case nil:
		return canonicalAbsent
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	case string:
		return v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return canonicalUnhashable
		}
		raw = encoded
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return canonicalAbsent
	}
	canonical, err := canonicalizeJSON(raw)
	if err != nil {
		return canonicalUnhashable
	}
	return canonical
}

func canonicalizeJSON(raw []byte) (string, error) {
	switch raw[0] {
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return "", err
		}
		return joinSorted(fields)
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return "", err
		}
		fields := make(map[string]json.RawMessage, len(items))
		for i, item := range items {
			fields[strconv.Itoa(i)] = item
		}
		return joinSorted(fields)
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	default:
		var scalar any
		if err := json.Unmarshal(raw, &scalar); err != nil {
			return "", err
		}
		if scalar == nil {
			return canonicalNull, nil
		}
		return normalize(raw)
	}
}

func joinSorted(fields map[string]json.RawMessage) (string, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		name, err := json.Marshal(k)
		if err != nil {
			return "", err
		}
		b.Write(name)
		b.WriteByte(':')
		value, err := normalize(fields[k])
		if err != nil {
			return "", err
		}
		b.WriteString(value)
	}
	b.WriteByte('}')
	return b.String(), nil
}

type container struct {
	object bool
	items  int
}

// normalize compacts one JSON value, keeping key order and rewriting numbers
// in their shortest form.
func normalize(raw []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var (
		b     strings.Builder
		stack []container
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		if d, ok := tok.(json.Delim); ok && (d == '}' || d == ']') {
			stack = stack[:len(stack)-1]
			b.WriteRune(rune(d))
			continue
		}
		if n := len(stack); n > 0 {
			top := &stack[n-1]
			switch {
			case top.object && top.items%2 == 1:
				b.WriteByte(':')
			case top.items > 0:
				b.WriteByte(',')
			}
			top.items++
		}
		switch v := tok.(type) {
		case json.Delim:
			b.WriteRune(rune(v))
			stack = append(stack, container{object: v == '{'})
		case json.Number:
			b.WriteString(formatNumber(v))
		case string:
			encoded, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			b.Write(encoded)
		case bool:
			b.WriteString(strconv.FormatBool(v))
		case nil:
			b.WriteString(canonicalNull)
		}
	}
	return b.String(), nil
}

func formatNumber(n json.Number) string {
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return string(n)
	}
	if f == 0 {
		return "0"
	}
	if abs := math.Abs(f); abs >= 1e21 || abs < 1e-6 {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
