package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Xylopyrographer/CabinMonitor/internal/log"
	"github.com/Xylopyrographer/CabinMonitor/internal/notify"
	"github.com/Xylopyrographer/CabinMonitor/internal/settings"
	"github.com/Xylopyrographer/CabinMonitor/internal/upload"
)

var baseFilenamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{2,8}$`)

// Provisioning accepts upload credentials and device settings over HTTP.
// It is a device.Transport: the orchestrator starts it and restarts the
// daemon once it reports inactive with usable credentials.
type Provisioning struct {
	store           *settings.Store
	credentialsFile string
	now             func() time.Time
	log             zerolog.Logger

	mu     sync.Mutex
	active bool
}

// NewProvisioning returns an inactive Provisioning writing to store and
// credentialsFile.
func NewProvisioning(store *settings.Store, credentialsFile string) *Provisioning {
	return &Provisioning{
		store:           store,
		credentialsFile: credentialsFile,
		now:             time.Now,
		log:             log.WithComponent("provisioning"),
	}
}

// Start opens the provisioning routes.
func (p *Provisioning) Start() error {
	p.mu.Lock()
	p.active = true
	p.mu.Unlock()
	p.log.Info().Msg("provisioning open")
	return nil
}

// Stop closes the provisioning routes.
func (p *Provisioning) Stop() error {
	p.mu.Lock()
	p.active = false
	p.mu.Unlock()
	return nil
}

// Active reports whether provisioning is still open.
func (p *Provisioning) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Poll does nothing; requests are served on the HTTP goroutines.
func (p *Provisioning) Poll(time.Time) {}

// SettingsRequest updates device settings. Absent fields are unchanged.
type SettingsRequest struct {
	Phone          *string           `json:"phone,omitempty"`
	Messages       map[string]string `json:"messages,omitempty"`
	BaseFilename   *string           `json:"base_filename,omitempty"`
	LightThreshold *int              `json:"light_threshold,omitempty"`
}

// SettingsResponse is the stored device settings.
type SettingsResponse struct {
	Phone          string            `json:"phone"`
	Messages       map[string]string `json:"messages"`
	BaseFilename   string            `json:"base_filename,omitempty"`
	LightThreshold *int              `json:"light_threshold,omitempty"`
	Credentials    bool              `json:"credentials"`
}

func (p *Provisioning) current() SettingsResponse {
	msgs := notify.Load(p.store)
	resp := SettingsResponse{
		Phone:        msgs.Phone,
		Messages:     make(map[string]string, len(notify.Kinds)),
		BaseFilename: p.store.String(settings.Storage, settings.KeyBaseFilename, ""),
	}
	for _, k := range notify.Kinds {
		resp.Messages[string(k)] = msgs.Text(k)
	}
	var level int
	if ok, err := p.store.Get(settings.Sensors, settings.KeyLightThreshold, &level); ok && err == nil {
		resp.LightThreshold = &level
	}
	_, err := upload.LoadCredentials(p.credentialsFile)
	resp.Credentials = err == nil
	return resp
}

// requireActive rejects requests while provisioning is closed.
func (p *Provisioning) requireActive(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !p.Active() {
			writeError(w, http.StatusConflict, "provisioning is not active")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (p *Provisioning) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, p.current())
}

func (p *Provisioning) handleCredentials(w http.ResponseWriter, r *http.Request) {
	var c upload.Credentials
	if err := decodeJSON(w, r, &c); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := upload.SaveCredentials(p.credentialsFile, c); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := p.store.Put(settings.Uploader, settings.KeyConfiguredAt, p.now()); err != nil {
		p.log.Warn().Err(err).Msg("record credentials time")
	}
	p.log.Info().Str("endpoint", c.Endpoint).Str("folder", c.Folder).Msg("upload credentials stored")
	w.WriteHeader(http.StatusNoContent)
}

func (p *Provisioning) handleSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := p.apply(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p.current())
}

// apply validates the whole request before writing any of it.
func (p *Provisioning) apply(req SettingsRequest) error {
	var errs []error

	var msgs notify.Messages
	smsChanged := req.Phone != nil || len(req.Messages) > 0
	if smsChanged {
		msgs = notify.Load(p.store)
		if req.Phone != nil {
			msgs.Phone = *req.Phone
		}
		for name, text := range req.Messages {
			if !knownKind(name) {
				errs = append(errs, fmt.Errorf("unknown message %q", name))
				continue
			}
			msgs.Texts[notify.Kind(name)] = text
		}
		if err := msgs.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if req.BaseFilename != nil && !baseFilenamePattern.MatchString(*req.BaseFilename) {
		errs = append(errs, fmt.Errorf("base_filename must be 2-8 letters, digits, '-' or '_', got %q", *req.BaseFilename))
	}
	if req.LightThreshold != nil && (*req.LightThreshold < 0 || *req.LightThreshold > 100) {
		errs = append(errs, fmt.Errorf("light_threshold must be 0-100, got %d", *req.LightThreshold))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	if smsChanged {
		if err := notify.Save(p.store, msgs); err != nil {
			return err
		}
	}
	if req.BaseFilename != nil {
		if err := p.store.Put(settings.Storage, settings.KeyBaseFilename, *req.BaseFilename); err != nil {
			return err
		}
	}
	if req.LightThreshold != nil {
		if err := p.store.Put(settings.Sensors, settings.KeyLightThreshold, *req.LightThreshold); err != nil {
			return err
		}
	}
	p.log.Info().Bool("sms", smsChanged).Msg("settings stored")
	return nil
}

func knownKind(name string) bool {
	for _, k := range notify.Kinds {
		if string(k) == name {
			return true
		}
	}
	return false
}

// handleComplete marks the device provisioned and closes provisioning.
// Credentials must be stored first.
func (p *Provisioning) handleComplete(w http.ResponseWriter, _ *http.Request) {
	if _, err := upload.LoadCredentials(p.credentialsFile); err != nil {
		writeError(w, http.StatusConflict, "upload credentials are not configured")
		return
	}
	if err := p.store.Put(settings.Monitoring, settings.KeyProvisioned, true); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = p.Stop()
	p.log.Info().Msg("provisioning complete")
	writeJSON(w, http.StatusOK, map[string]string{"result": "restarting"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
