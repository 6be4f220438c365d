package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/domain"
	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/service"

	"go.uber.org/zap"
)

// UploadHandler accepts sighting batches from field scanners. Two client
// generations exist: JSON batches, and legacy clients that POST a whole CSV
// chunk with the target filename in the X-Pico-Device header.
type UploadHandler struct {
	intake *service.Intake
	logger *zap.Logger
}

func NewUploadHandler(intake *service.Intake, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{intake: intake, logger: logger}
}

// UploadLog handles POST /upload_log. Success means the batch is durably in
// the raw capture store; consolidation happens later and never blocks this
// path.
func (h *UploadHandler) UploadLog(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	deviceFile := r.Header.Get("X-Pico-Device")
	contentType := r.Header.Get("Content-Type")

	var accepted int
	switch {
	case strings.Contains(contentType, "application/json"):
		accepted, err = h.intake.AcceptJSON(body, scannerFromDeviceFile(deviceFile))
	case deviceFile != "":
		accepted, err = h.intake.AcceptLegacyCSV(body)
	default:
		http.Error(w, "Missing X-Pico-Device Header", http.StatusBadRequest)
		return
	}

	if err != nil {
		if errors.Is(err, domain.ErrInvalidSighting) {
			h.logger.Warn("Rejected upload batch",
				zap.String("device_file", deviceFile),
				zap.Error(err))
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("Failed to append upload batch", zap.Error(err))
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Batch received",
		zap.String("device_file", deviceFile),
		zap.Int("records", accepted))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Log received for background processing.\n"))
}

// Health handles GET /healthz.
func (h *UploadHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Stats handles GET /stats.
func (h *UploadHandler) Stats(w http.ResponseWriter, r *http.Request) {
	batches, records, rejected, partition := h.intake.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"accepted_batches": batches,
		"accepted_records": records,
		"rejected_batches": rejected,
		"active_partition": partition,
	})
}

// scannerFromDeviceFile extracts the node name from a legacy device file
// name like "GAT01_ble_log_0042.csv".
func scannerFromDeviceFile(name string) string {
	if name == "" {
		return ""
	}
	if i := strings.Index(name, "_ble_log"); i > 0 {
		return name[:i]
	}
	if i := strings.Index(name, "_log"); i > 0 {
		return name[:i]
	}
	return strings.TrimSuffix(name, ".csv")
}
