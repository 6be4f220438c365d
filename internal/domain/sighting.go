package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Sighting is one observed BLE advertisement from a field scanner.
// ObservedAt comes from the scanner's local clock and may be a ghost date
// (1970/2000) when the device rebooted before NTP sync; IngestedAt is always
// the server clock.
type Sighting struct {
	DeviceAddr string // MAC address, required
	DeviceName string // advertised name, may be empty
	RSSI       *int
	Channel    string // radio channel tag from the firmware ("BLE")
	Security   string // advertisement security flag
	ObservedAt time.Time
	ScannerID  string // which node produced the record, required
	IngestedAt time.Time
	Repaired   bool // set when the ghost-date shift rewrote ObservedAt
}

// ErrInvalidSighting marks records that fail minimal schema validation.
var ErrInvalidSighting = errors.New("invalid sighting")

// Validate checks the minimal schema the receiver enforces: identity fields
// must be present. A missing or ghost timestamp is not an error; repair
// happens downstream.
func (s *Sighting) Validate() error {
	if strings.TrimSpace(s.DeviceAddr) == "" {
		return fmt.Errorf("%w: empty device addr", ErrInvalidSighting)
	}
	if strings.TrimSpace(s.ScannerID) == "" {
		return fmt.Errorf("%w: empty scanner id", ErrInvalidSighting)
	}
	return nil
}

// Key builds the dedup key: (scanner, addr, observed-at-resolution). Two
// records with the same key are the same logical sighting no matter how many
// times they were uploaded.
func (s *Sighting) Key(resolution time.Duration) string {
	if resolution <= 0 {
		resolution = time.Second
	}
	return s.ScannerID + "|" + s.DeviceAddr + "|" + strconv.FormatInt(s.ObservedAt.Truncate(resolution).Unix(), 10)
}

// TruncateObserved rounds ObservedAt down to the dedup resolution so the
// canonical store's unique index sees the same key the pipeline used.
func (s *Sighting) TruncateObserved(resolution time.Duration) {
	if resolution <= 0 {
		resolution = time.Second
	}
	s.ObservedAt = s.ObservedAt.Truncate(resolution)
}

// SanitizeName strips characters that would corrupt the flat-file format.
// The firmware does the same replacement before logging.
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, ",", " ")
	name = strings.ReplaceAll(name, "\n", " ")
	name = strings.ReplaceAll(name, "\r", " ")
	return strings.TrimSpace(name)
}

// Timestamp layouts emitted by scanner firmware generations.
const (
	tsLayout       = "2006-01-02 15:04:05"
	tsLayoutMillis = "2006-01-02 15:04:05.000"
)

// ParseTimestamp accepts the formats seen across firmware versions: the
// standard "2006-01-02 15:04:05" (optionally with millis), RFC3339, or raw
// epoch seconds. Empty input yields the zero time (timestamp absent).
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}

	// Epoch seconds: all digits, at least 9 of them.
	if len(raw) >= 9 && isDigits(raw) {
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err == nil {
			return time.Unix(secs, 0).UTC(), nil
		}
	}

	if strings.Contains(raw, "-") && strings.Contains(raw, ":") {
		if strings.Contains(raw, "T") {
			if t, err := time.Parse(time.RFC3339, raw); err == nil {
				return t.UTC(), nil
			}
		}
		layout := tsLayout
		if strings.Contains(raw, ".") {
			layout = tsLayoutMillis
		}
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
}

// FormatTimestamp renders a timestamp in the canonical flat-file format.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(tsLayout)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
