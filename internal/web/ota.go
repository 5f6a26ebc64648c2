package web

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/Xylopyrographer/CabinMonitor/internal/log"
)

// ChecksumHeader optionally carries the hex SHA-256 of an uploaded image.
const ChecksumHeader = "X-Firmware-SHA256"

// OTA accepts one firmware image over HTTP and stages it at a fixed path
// for the service manager to install on restart. It is a device.Transport
// that goes inactive once an image has been staged.
type OTA struct {
	path     string
	maxBytes int64
	log      zerolog.Logger

	mu     sync.Mutex
	active bool
	staged bool
}

// NewOTA returns an inactive OTA staging images at path.
func NewOTA(path string, maxBytes int64) *OTA {
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	return &OTA{path: path, maxBytes: maxBytes, log: log.WithComponent("ota")}
}

// Start opens the firmware route.
func (o *OTA) Start() error {
	o.mu.Lock()
	o.active, o.staged = true, false
	o.mu.Unlock()
	o.log.Info().Str("path", o.path).Msg("firmware update open")
	return nil
}

// Stop closes the firmware route without staging anything.
func (o *OTA) Stop() error {
	o.mu.Lock()
	o.active = false
	o.mu.Unlock()
	return nil
}

// Active reports whether the route still accepts an image.
func (o *OTA) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// Staged reports whether an image was written since the last Start.
func (o *OTA) Staged() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.staged
}

// Poll does nothing; uploads are served on the HTTP goroutines.
func (o *OTA) Poll(time.Time) {}

func (o *OTA) handleFirmware(w http.ResponseWriter, r *http.Request) {
	if !o.Active() {
		writeError(w, http.StatusConflict, "firmware update is not active")
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, o.maxBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "firmware image too large")
			return
		}
		writeError(w, http.StatusBadRequest, "read firmware: "+err.Error())
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty firmware image")
		return
	}

	sum := sha256.Sum256(data)
	got := hex.EncodeToString(sum[:])
	if want := strings.ToLower(strings.TrimSpace(r.Header.Get(ChecksumHeader))); want != "" && want != got {
		writeError(w, http.StatusBadRequest, "checksum mismatch")
		return
	}

	if err := renameio.WriteFile(o.path, data, 0o755); err != nil {
		o.log.Error().Err(err).Msg("stage firmware")
		writeError(w, http.StatusInternalServerError, "stage firmware: "+err.Error())
		return
	}

	o.mu.Lock()
	o.active, o.staged = false, true
	o.mu.Unlock()
	o.log.Info().Int("bytes", len(data)).Str("sha256", got).Msg("firmware staged")
	writeJSON(w, http.StatusOK, map[string]any{"bytes": len(data), "sha256": got})
}
