package service

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/capture"
	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/domain"

	"go.uber.org/zap"
)

// Intake is the single write path into the raw capture store. Both the HTTP
// handler and the MQTT bridge go through it, so validation and stamping
// cannot diverge between transports. It never reads the canonical store:
// dedup and repair are the consolidator's job.
type Intake struct {
	writer *capture.PartitionWriter
	logger *zap.Logger

	rejected int64
}

func NewIntake(writer *capture.PartitionWriter, logger *zap.Logger) *Intake {
	return &Intake{writer: writer, logger: logger}
}

// AcceptJSON validates and appends a JSON batch. Any invalid record rejects
// the whole batch with ErrInvalidSighting wrapped; nothing is appended
// (partial batches would corrupt dedup keys).
func (i *Intake) AcceptJSON(body []byte, fallbackScanner string) (int, error) {
	var records []domain.UploadRecord
	if err := json.Unmarshal(body, &records); err != nil {
		atomic.AddInt64(&i.rejected, 1)
		return 0, fmt.Errorf("%w: bad JSON body: %v", domain.ErrInvalidSighting, err)
	}

	sightings, err := domain.BatchToSightings(records, fallbackScanner, time.Now().UTC())
	if err != nil {
		atomic.AddInt64(&i.rejected, 1)
		return 0, err
	}

	lines := make([]string, len(sightings))
	for n, s := range sightings {
		lines[n] = capture.FormatLine(s)
	}
	if err := i.writer.Append(lines); err != nil {
		return 0, err
	}
	return len(lines), nil
}

// AcceptLegacyCSV stamps and appends a raw CSV chunk from a legacy client
// (X-Pico-Device firmware). Lines are appended verbatim minus header; defect
// handling stays with the consolidator, matching the original receiver's
// dump-bytes contract.
func (i *Intake) AcceptLegacyCSV(body []byte) (int, error) {
	if len(body) == 0 {
		atomic.AddInt64(&i.rejected, 1)
		return 0, fmt.Errorf("%w: empty body", domain.ErrInvalidSighting)
	}

	stamp := domain.FormatTimestamp(time.Now().UTC())
	var lines []string
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		first := strings.ToLower(strings.SplitN(trimmed, ",", 2)[0])
		if strings.Contains(first, "timestamp") || strings.Contains(first, "datetime") || strings.Contains(first, "utc") {
			continue
		}
		lines = append(lines, capture.StampLegacyLine(line, stamp))
	}
	if len(lines) == 0 {
		atomic.AddInt64(&i.rejected, 1)
		return 0, fmt.Errorf("%w: no data lines", domain.ErrInvalidSighting)
	}

	if err := i.writer.Append(lines); err != nil {
		return 0, err
	}
	return len(lines), nil
}

// Stats reports intake counters for the /stats endpoint.
func (i *Intake) Stats() (batches, records, rejected int64, partition string) {
	batches, records = i.writer.Stats()
	return batches, records, atomic.LoadInt64(&i.rejected), i.writer.ActivePartition()
}
