package capture

import (
	"strconv"
	"strings"

	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/domain"
)

// Header is the first line of every raw capture partition. It extends the
// firmware's 7-column layout with the server-side ingest stamp.
const Header = "ingested,timestamp,addr,id,rssi,channel,security,device"

// legacyColumns is the firmware file layout (no ingested column).
const (
	legacyColumns = 7
	columns       = 8
)

// FormatLine renders one sighting as a raw capture line. Names were already
// sanitized at intake, so plain joining is safe.
func FormatLine(s *domain.Sighting) string {
	rssi := ""
	if s.RSSI != nil {
		rssi = strconv.Itoa(*s.RSSI)
	}
	fields := []string{
		domain.FormatTimestamp(s.IngestedAt),
		domain.FormatTimestamp(s.ObservedAt),
		s.DeviceAddr,
		s.DeviceName,
		rssi,
		s.Channel,
		s.Security,
		s.ScannerID,
	}
	return strings.Join(fields, ",")
}

// StampLegacyLine prepends the ingest timestamp to a raw line from a legacy
// 7-column client. The line itself is not validated here; defect handling is
// the consolidator's job.
func StampLegacyLine(line string, ingested string) string {
	return ingested + "," + line
}
