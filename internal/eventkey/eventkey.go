package eventkey

import (
	"fmt"
	"strings"
)

// Category is the one-letter event classification appended to an
// event key.
type Category byte

const (
	CategoryStatus Category = 'S'
	CategoryPerf   Category = 'P'
	CategoryLog    Category = 'L'
)

func (c Category) valid() bool {
	switch c {
	case CategoryStatus, CategoryPerf, CategoryLog:
		return true
	default:
		return false
	}
}

// digits is the canonical encode alphabet: 0-9, then a-k, then uppercase
// L, then m-z. Index in this string is the digit's numeric value.
const digits = "0123456789abcdefghijkLmnopqrstuvwxyz"

const base = 36

// decodeValue maps any byte accepted on decode (case-insensitive for every
// letter, though only 'L' is ever produced uppercase by Encode) to its
// numeric value, or -1 if not a valid digit.
func decodeValue(b byte) int {
	switch {
	case b >= '0' && b <= '9':
		return int(b - '0')
	case b >= 'A' && b <= 'Z':
		b = b - 'A' + 'a'
		fallthrough
	case b >= 'a' && b <= 'z':
		lower := int(b - 'a')
		switch {
		case lower < 11: // a..k
			return 10 + lower
		case lower == 11: // l / L
			return 21
		default: // m..z
			return 22 + (lower - 12)
		}
	default:
		return -1
	}
}

// Encode renders ts as base-36 digits (canonical casing) followed by cat.
func Encode(ts int64, cat Category) (string, error) {
	if !cat.valid() {
		return "", fmt.Errorf("eventkey: invalid category %q", byte(cat))
	}
	if ts == 0 {
		return "0" + string(cat), nil
	}

	neg := ts < 0
	u := uint64(ts)
	if neg {
		u = uint64(-ts)
	}

	var b []byte
	for u > 0 {
		d := u % base
		b = append([]byte{digits[d]}, b...)
		u /= base
	}
	if neg {
		b = append([]byte{'-'}, b...)
	}
	return string(b) + string(cat), nil
}

// Decode parses an event key produced by Encode (or any case-insensitive
// variant of it) back into its timestamp and category.
func Decode(key string) (int64, Category, error) {
	if len(key) < 2 {
		return 0, 0, fmt.Errorf("eventkey: key %q too short", key)
	}
	cat := Category(strings.ToUpper(key[len(key)-1:])[0])
	if !cat.valid() {
		return 0, 0, fmt.Errorf("eventkey: invalid category suffix in %q", key)
	}

	digitsPart := key[:len(key)-1]
	neg := false
	if strings.HasPrefix(digitsPart, "-") {
		neg = true
		digitsPart = digitsPart[1:]
	}
	if digitsPart == "" {
		return 0, 0, fmt.Errorf("eventkey: key %q has no timestamp digits", key)
	}

	var u uint64
	for i := 0; i < len(digitsPart); i++ {
		v := decodeValue(digitsPart[i])
		if v < 0 {
			return 0, 0, fmt.Errorf("eventkey: invalid digit %q in %q", digitsPart[i], key)
		}
		u = u*base + uint64(v)
	}

	ts := int64(u)
	if neg {
		ts = -ts
	}
	return ts, cat, nil
}
