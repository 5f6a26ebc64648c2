package upload

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/renameio/v2"
)

// ErrNotConfigured means no usable credentials file exists.
var ErrNotConfigured = errors.New("upload credentials not configured")

// Credentials identify the upload server and the destination folder.
type Credentials struct {
	Endpoint string `json:"endpoint"`
	Folder   string `json:"folder"`
	Token    string `json:"token"`
}

// Validate reports missing fields.
func (c Credentials) Validate() error {
	var missing []string
	if c.Endpoint == "" {
		missing = append(missing, "endpoint")
	} else if !strings.HasPrefix(c.Endpoint, "http://") && !strings.HasPrefix(c.Endpoint, "https://") {
		return fmt.Errorf("endpoint must be an http(s) URL, got %q", c.Endpoint)
	}
	if c.Folder == "" {
		missing = append(missing, "folder")
	}
	if c.Token == "" {
		missing = append(missing, "token")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing credential fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// LoadCredentials reads path. Any absent, empty, malformed or incomplete
// file is reported as ErrNotConfigured.
func LoadCredentials(path string) (Credentials, error) {
	var c Credentials
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && len(data) == 0) {
		return c, ErrNotConfigured
	}
	if err != nil {
		return c, fmt.Errorf("read credentials: %w", err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("%w: %w", ErrNotConfigured, err)
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("%w: %w", ErrNotConfigured, err)
	}
	c.Endpoint = strings.TrimRight(c.Endpoint, "/")
	return c, nil
}

// SaveCredentials validates c and replaces path atomically.
func SaveCredentials(path string, c Credentials) error {
	if err := c.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// DeleteCredentials removes path. A missing file is not an error.
func DeleteCredentials(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}
