package capture

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/domain"
)

// ParseResult summarizes one partition parse. Defects are counted, never
// fatal: a single malformed row must not block the rest of the batch.
type ParseResult struct {
	Records []*domain.Sighting
	Defects int
	Headers int
	Blank   int
}

// layout is the column layout of the rows being parsed. Raw capture
// partitions always start with the 8-column header the writer emits, so the
// header is authoritative; rows seen before any header fall back to per-row
// detection.
type layout int

const (
	layoutAuto layout = iota
	layoutLegacy
	layoutStamped
)

// ParseFile reads a raw capture partition or legacy export.
func ParseFile(path string) (*ParseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open partition: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads flat records line by line, tolerating the defects seen in the
// field: repeated header lines (files concatenated by old clients), blank
// lines, trailing garbage commas, comma spillover inside device names, and
// both the 8-column (with ingest stamp) and legacy 7-column layouts.
func Parse(r io.Reader) (*ParseResult, error) {
	res := &ParseResult{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	cur := layoutAuto
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			res.Blank++
			continue
		}

		parts := strings.Split(line, ",")
		if isHeader(parts[0]) {
			res.Headers++
			cur = headerLayout(parts[0])
			continue
		}

		// Tail trimmer: old SD-card logs grew empty trailing columns.
		for len(parts) > 1 && strings.TrimSpace(parts[len(parts)-1]) == "" {
			parts = parts[:len(parts)-1]
		}

		s, ok := parseLine(parts, cur)
		if !ok {
			res.Defects++
			continue
		}
		res.Records = append(res.Records, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read partition: %w", err)
	}
	return res, nil
}

func isHeader(first string) bool {
	f := strings.ToLower(strings.TrimSpace(first))
	return strings.Contains(f, "datetime") ||
		strings.Contains(f, "timestamp") ||
		strings.Contains(f, "ingested") ||
		strings.Contains(f, "utc")
}

func headerLayout(first string) layout {
	if strings.Contains(strings.ToLower(first), "ingested") {
		return layoutStamped
	}
	return layoutLegacy
}

// parseLine handles one data row. Unparseable timestamps become the zero
// time and are left for ghost-date repair; missing identity fields make the
// row a defect.
func parseLine(parts []string, hint layout) (*domain.Sighting, bool) {
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	expected, offset := legacyColumns, 0
	switch hint {
	case layoutStamped:
		expected, offset = columns, 1
	case layoutLegacy:
	default:
		// No header seen: a row starting with two timestamp fields carries
		// an ingest stamp, a legacy row's second field is the MAC. An empty
		// second field is an absent observed timestamp, which only the
		// stamped layout produces.
		if len(parts) >= 2 && parts[0] != "" {
			_, err0 := domain.ParseTimestamp(parts[0])
			_, err1 := domain.ParseTimestamp(parts[1])
			if err0 == nil && err1 == nil {
				expected, offset = columns, 1
			}
		}
	}

	if len(parts) < expected {
		return nil, false
	}

	// Comma spillover: extra fields belong to the device name column.
	nameIdx := offset + 2
	if len(parts) > expected {
		extra := len(parts) - expected
		merged := strings.Join(parts[nameIdx:nameIdx+1+extra], " ")
		rebuilt := append([]string{}, parts[:nameIdx]...)
		rebuilt = append(rebuilt, merged)
		rebuilt = append(rebuilt, parts[nameIdx+1+extra:]...)
		parts = rebuilt
	}

	ingested := ""
	if offset == 1 {
		ingested = parts[0]
	}

	ingestedAt, _ := domain.ParseTimestamp(ingested)
	observedAt, _ := domain.ParseTimestamp(parts[offset])

	s := &domain.Sighting{
		DeviceAddr: parts[offset+1],
		DeviceName: domain.SanitizeName(parts[offset+2]),
		Channel:    parts[offset+4],
		Security:   parts[offset+5],
		ObservedAt: observedAt,
		ScannerID:  parts[offset+6],
		IngestedAt: ingestedAt,
	}
	if rssi, err := strconv.Atoi(parts[offset+3]); err == nil {
		s.RSSI = &rssi
	}

	if s.Validate() != nil {
		return nil, false
	}
	return s, true
}
