package leasestore

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	// ticksPerSecond is the number of 100ns ticks in one second.
	ticksPerSecond = int64(time.Second / 100)

	// unixEpochSeconds is the distance from 0001-01-01T00:00:00Z, where
	// tick zero sits, to the Unix epoch.
	unixEpochSeconds = int64(62135596800)

	// maxTicks is 9999-12-31T23:59:59.9999999Z.
	maxTicks = int64(3155378975999999999)
)

var (
	// ErrCorrupt is returned when marker content is not a valid tick count.
	ErrCorrupt = errors.New("marker content is not a valid tick count")

	// ErrOutOfRange is returned when an expiry has no tick representation.
	ErrOutOfRange = errors.New("expiry outside 0001-01-01..9999-12-31")
)

var (
	minExpiry = FromTicks(0)
	maxExpiry = FromTicks(maxTicks)
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ToTicks converts t to 100ns ticks since 0001-01-01 UTC.
func ToTicks(t time.Time) int64 {
	t = t.UTC()
	return (t.Unix()+unixEpochSeconds)*ticksPerSecond + int64(t.Nanosecond())/100
}

// FromTicks converts a tick count back to a UTC time.
func FromTicks(ticks int64) time.Time {
	return time.Unix(ticks/ticksPerSecond-unixEpochSeconds, (ticks%ticksPerSecond)*100).UTC()
}

// Encode renders expiry as marker file content: decimal digits, no
// newline. Expiries Decode would reject fail with ErrOutOfRange.
func Encode(expiry time.Time) ([]byte, error) {
	if expiry.Before(minExpiry) || expiry.After(maxExpiry) {
		return nil, fmt.Errorf("%w: %s", ErrOutOfRange, expiry.UTC().Format(time.RFC3339))
	}

	return strconv.AppendInt(nil, ToTicks(expiry), 10), nil
}

// Decode parses marker file content. A leading UTF-8 byte order mark and
// surrounding whitespace are ignored.
func Decode(data []byte) (time.Time, error) {
	text := bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))
	if len(text) == 0 {
		return time.Time{}, fmt.Errorf("%w: empty", ErrCorrupt)
	}

	ticks, err := strconv.ParseInt(string(text), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrCorrupt, text)
	}

	if ticks < 0 || ticks > maxTicks {
		return time.Time{}, fmt.Errorf("%w: %d out of range", ErrCorrupt, ticks)
	}

	return FromTicks(ticks), nil
}
