package domain

import (
	"fmt"
	"time"
)

// UploadRecord is one element of a JSON upload batch. Field names follow the
// firmware's CSV header (timestamp,addr,id,rssi,channel,security,device).
// The decode is deliberately permissive: optional fields default instead of
// rejecting, so firmware generations with and without rssi/name coexist.
type UploadRecord struct {
	Timestamp string `json:"timestamp"`
	Addr      string `json:"addr"`
	ID        string `json:"id"`
	RSSI      *int   `json:"rssi"`
	Channel   string `json:"channel"`
	Security  string `json:"security"`
	Device    string `json:"device"`
}

// ToSighting validates and converts an upload record. fallbackScanner covers
// legacy clients that only identify themselves via the X-Pico-Device header.
// The caller stamps IngestedAt.
func (u *UploadRecord) ToSighting(fallbackScanner string) (*Sighting, error) {
	observed, err := ParseTimestamp(u.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSighting, err)
	}

	scanner := u.Device
	if scanner == "" {
		scanner = fallbackScanner
	}

	channel := u.Channel
	if channel == "" {
		channel = "BLE"
	}

	s := &Sighting{
		DeviceAddr: u.Addr,
		DeviceName: SanitizeName(u.ID),
		RSSI:       u.RSSI,
		Channel:    channel,
		Security:   u.Security,
		ObservedAt: observed,
		ScannerID:  scanner,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// BatchToSightings converts a whole upload batch, rejecting the batch on the
// first invalid record. Partial batches never reach the raw capture store.
func BatchToSightings(records []UploadRecord, fallbackScanner string, ingestedAt time.Time) ([]*Sighting, error) {
	out := make([]*Sighting, 0, len(records))
	for i := range records {
		s, err := records[i].ToSighting(fallbackScanner)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		s.IngestedAt = ingestedAt
		out = append(out, s)
	}
	return out, nil
}
