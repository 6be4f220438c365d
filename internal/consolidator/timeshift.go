package consolidator

import (
	"time"

	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/domain"
)

// Scanners report in whole seconds; anything further ahead of the ingest
// clock than this is a broken clock, not skew.
const clockSkewTolerance = time.Hour

// ghostBase returns where a faulty scanner clock started counting. Picos
// boot at 2000-01-01, ESP32s at the Unix epoch; anything else implausible is
// assumed to have started at midnight of its own day.
func ghostBase(observed time.Time) time.Time {
	switch observed.Year() {
	case 2000:
		return time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	case 1970:
		return time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		y, m, d := observed.UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
}

// shift maps a ghost timeline onto the anchor, preserving time-since-boot so
// relative ordering within the batch survives the repair.
func shift(observed, anchor time.Time) time.Time {
	return anchor.Add(observed.Sub(ghostBase(observed)))
}

// repairTimestamp rewrites implausible observed times in place and reports
// whether a repair happened. The anchor is the ingest time minus the
// configured offset; fallbackAnchor covers legacy rows with no ingest stamp.
func repairTimestamp(s *domain.Sighting, floor time.Time, offset time.Duration, fallbackAnchor time.Time) bool {
	anchor := fallbackAnchor
	if !s.IngestedAt.IsZero() {
		anchor = s.IngestedAt.Add(-offset)
	}

	switch {
	case s.ObservedAt.IsZero():
		// Timestamp absent: the ingest clock is all we have.
		s.ObservedAt = anchor
	case s.ObservedAt.Before(floor):
		s.ObservedAt = shift(s.ObservedAt, anchor)
	case !s.IngestedAt.IsZero() && s.ObservedAt.After(s.IngestedAt.Add(clockSkewTolerance)):
		s.ObservedAt = anchor
	default:
		return false
	}

	s.Repaired = true
	return true
}
