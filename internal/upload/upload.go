// Package upload sends captured images to the upload server, either as
// HTTP over the cellular modem or directly over the host network.
package upload

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// Uploader is the transfer half of an upload cycle.
type Uploader interface {
	// Probe checks that the server is reachable with the stored token.
	Probe(ctx context.Context) error
	// Upload sends one file.
	Upload(ctx context.Context, name string, data []byte) error
}

const contentType = "image/jpeg"

// HTTPClient is the modem's HTTP surface. *modem.Engine implements it.
type HTTPClient interface {
	HTTPGet(ctx context.Context, url string) ([]byte, error)
	HTTPPost(ctx context.Context, url, contentType string, body []byte) ([]byte, error)
}

// ModemUploader uploads through the modem's HTTP stack. The modem cannot
// set request headers, so the token travels as a query parameter.
type ModemUploader struct {
	http  HTTPClient
	creds Credentials
	newID func() string
}

// NewModemUploader creates a ModemUploader.
func NewModemUploader(client HTTPClient, creds Credentials) *ModemUploader {
	return &ModemUploader{http: client, creds: creds, newID: uuid.NewString}
}

func (u *ModemUploader) url(path string, q url.Values) string {
	q.Set("token", u.creds.Token)
	q.Set("request_id", u.newID())
	return u.creds.Endpoint + path + "?" + q.Encode()
}

func (u *ModemUploader) Probe(ctx context.Context) error {
	if _, err := u.http.HTTPGet(ctx, u.url("/health", url.Values{})); err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	return nil
}

func (u *ModemUploader) Upload(ctx context.Context, name string, data []byte) error {
	q := url.Values{"folder": {u.creds.Folder}, "name": {name}}
	if _, err := u.http.HTTPPost(ctx, u.url("/files", q), contentType, data); err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	return nil
}

// DirectUploader uploads over the host network with resty.
type DirectUploader struct {
	client *resty.Client
	folder string
}

// NewDirectUploader creates a DirectUploader with the given per-request
// timeout.
func NewDirectUploader(creds Credentials, timeout time.Duration) *DirectUploader {
	client := resty.New().
		SetBaseURL(creds.Endpoint).
		SetTimeout(timeout).
		SetAuthToken(creds.Token).
		SetHeader("Accept", "application/json")
	return &DirectUploader{client: client, folder: creds.Folder}
}

func (u *DirectUploader) Probe(ctx context.Context) error {
	resp, err := u.client.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", uuid.NewString()).
		Get("/health")
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("probe: server returned %d", resp.StatusCode())
	}
	return nil
}

func (u *DirectUploader) Upload(ctx context.Context, name string, data []byte) error {
	resp, err := u.client.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", uuid.NewString()).
		SetHeader("Content-Type", contentType).
		SetQueryParams(map[string]string{"folder": u.folder, "name": name}).
		SetBody(data).
		Post("/files")
	if err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	if resp.IsError() {
		return fmt.Errorf("upload %s: server returned %d", name, resp.StatusCode())
	}
	return nil
}
