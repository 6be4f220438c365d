package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/domain"

	"github.com/go-resty/resty/v2"
)

// ziggy-probe posts a synthetic sighting batch to a receiver, with the same
// retry behavior as the firmware's buffer-and-blast uploads. Used as a
// deploy smoke check: exit 0 means the receiver accepted the batch.
func main() {
	var (
		serverURL = flag.String("url", "http://localhost:5001/upload_log", "receiver upload endpoint")
		scanner   = flag.String("scanner", "PROBE01", "scanner identity to report")
		prefix    = flag.String("prefix", "GAT", "advertised-name prefix for generated devices")
		count     = flag.Int("count", 3, "number of sightings in the batch")
		ghost     = flag.Bool("ghost", false, "send one epoch (1970) timestamp to exercise repair")
	)
	flag.Parse()

	now := time.Now().UTC()
	batch := make([]domain.UploadRecord, 0, *count)
	for i := 0; i < *count; i++ {
		ts := now.Add(-time.Duration(i) * time.Second)
		if *ghost && i == 0 {
			ts = time.Unix(0, 0).UTC()
		}
		rssi := -40 - i
		batch = append(batch, domain.UploadRecord{
			Timestamp: domain.FormatTimestamp(ts),
			Addr:      fmt.Sprintf("AA:BB:CC:DD:EE:%02X", i),
			ID:        fmt.Sprintf("%s%02d", *prefix, i+1),
			RSSI:      &rssi,
			Channel:   "BLE",
			Security:  "open",
			Device:    *scanner,
		})
	}

	client := resty.New().
		SetTimeout(20 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "Ziggy-Probe/1.0")

	resp, err := client.R().
		SetHeader("X-Pico-Device", fmt.Sprintf("%s_ble_log_probe.csv", *scanner)).
		SetBody(batch).
		Post(*serverURL)
	if err != nil {
		log.Fatalf("upload failed: %v", err)
	}
	if resp.IsError() {
		log.Printf("receiver rejected batch: %s: %s", resp.Status(), resp.String())
		os.Exit(1)
	}

	fmt.Printf("receiver accepted %d sightings (%s)\n", *count, resp.Status())
}
