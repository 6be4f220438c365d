package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/capture"
	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.uber.org/zap"
)

type receiverFixture struct {
	router   *Router
	incoming string
}

func newReceiverFixture(t *testing.T) *receiverFixture {
	t.Helper()
	incoming := t.TempDir()
	writer, err := capture.NewPartitionWriter(incoming, time.Hour, 1<<20, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { writer.Close() })

	intake := service.NewIntake(writer, zap.NewNop())
	router := NewRouter(zap.NewNop())
	router.RegisterReceiverRoutes(NewUploadHandler(intake, zap.NewNop()))
	return &receiverFixture{router: router, incoming: incoming}
}

func (f *receiverFixture) post(t *testing.T, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/upload_log", strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// capturedLines returns all data lines written to the incoming dir, header
// excluded.
func (f *receiverFixture) capturedLines(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.incoming)
	require.NoError(t, err)
	var lines []string
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(f.incoming, e.Name()))
		require.NoError(t, err)
		for _, l := range strings.Split(strings.TrimSpace(string(data)), "\n") {
			if l == "" || l == capture.Header {
				continue
			}
			lines = append(lines, l)
		}
	}
	return lines
}

func TestUploadLog_JSONBatch(t *testing.T) {
	f := newReceiverFixture(t)

	body := `[
		{"timestamp":"2025-06-01 12:00:00","addr":"AA:01","id":"GAT01","rssi":-61,"channel":"BLE","security":"open","device":"node-A"},
		{"timestamp":"2025-06-01 12:00:01","addr":"AA:02","id":"GAT02","rssi":-70,"channel":"BLE","security":"open","device":"node-A"}
	]`
	rec := f.post(t, body, map[string]string{"Content-Type": "application/json"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Log received for background processing.\n", rec.Body.String())

	lines := f.capturedLines(t)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "AA:01,GAT01,-61,BLE,open,node-A")
}

func TestUploadLog_OneBadRecordRejectsWholeBatch(t *testing.T) {
	f := newReceiverFixture(t)

	records := make([]map[string]any, 0, 10)
	for i := 0; i < 10; i++ {
		addr := "AA:0" + string(rune('0'+i))
		if i == 4 {
			addr = "" // invalid
		}
		records = append(records, map[string]any{
			"timestamp": "2025-06-01 12:00:00",
			"addr":      addr,
			"device":    "node-A",
		})
	}
	body, err := json.Marshal(records)
	require.NoError(t, err)

	rec := f.post(t, string(body), map[string]string{"Content-Type": "application/json"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.capturedLines(t), "nothing from a rejected batch reaches the capture store")
}

func TestUploadLog_MalformedJSON(t *testing.T) {
	f := newReceiverFixture(t)
	rec := f.post(t, "{not json", map[string]string{"Content-Type": "application/json"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadLog_LegacyCSVStamped(t *testing.T) {
	f := newReceiverFixture(t)

	body := strings.Join([]string{
		"timestamp,addr,id,rssi,channel,security,device",
		"2025-06-01 12:00:00,AA:01,GAT01,-61,BLE,open,node-A",
		"2025-06-01 12:00:01,AA:02,GAT02,-70,BLE,open,node-A",
	}, "\n")
	rec := f.post(t, body, map[string]string{"X-Pico-Device": "node-A_ble_log_0042.csv"})

	assert.Equal(t, http.StatusOK, rec.Code)

	lines := f.capturedLines(t)
	require.Len(t, lines, 2, "the client's header row is dropped")
	// Each line gained a leading ingest stamp.
	assert.True(t, strings.HasSuffix(lines[0], "2025-06-01 12:00:00,AA:01,GAT01,-61,BLE,open,node-A"))
	assert.Equal(t, 8, len(strings.SplitN(lines[0], ",", 8)))
	stamp := strings.SplitN(lines[0], ",", 2)[0]
	_, err := time.Parse("2006-01-02 15:04:05", stamp)
	assert.NoError(t, err, "stamp %q is a server-side timestamp", stamp)
}

func TestUploadLog_MissingDeviceHeader(t *testing.T) {
	f := newReceiverFixture(t)
	rec := f.post(t, "2025-06-01 12:00:00,AA:01,GAT01,-61,BLE,open,node-A", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Missing X-Pico-Device Header")
}

func TestUploadLog_EmptyLegacyBody(t *testing.T) {
	f := newReceiverFixture(t)
	rec := f.post(t, "", map[string]string{"X-Pico-Device": "node-A_ble_log.csv"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadLog_MethodNotAllowed(t *testing.T) {
	f := newReceiverFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/upload_log", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthz(t *testing.T) {
	f := newReceiverFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestStats(t *testing.T) {
	f := newReceiverFixture(t)

	f.post(t, `[{"timestamp":"2025-06-01 12:00:00","addr":"AA:01","device":"node-A"}]`,
		map[string]string{"Content-Type": "application/json"})
	f.post(t, "{bad", map[string]string{"Content-Type": "application/json"})

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["accepted_batches"])
	assert.Equal(t, float64(1), body["accepted_records"])
	assert.Equal(t, float64(1), body["rejected_batches"])
	assert.NotEmpty(t, body["active_partition"])
}

func TestScannerFromDeviceFile(t *testing.T) {
	tests := map[string]string{
		"GAT01_ble_log_0042.csv": "GAT01",
		"node-A_log_7.csv":       "node-A",
		"node-B.csv":             "node-B",
		"":                       "",
	}
	for in, want := range tests {
		assert.Equal(t, want, scannerFromDeviceFile(in), "in=%q", in)
	}
}
