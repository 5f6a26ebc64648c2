package upload

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var creds = Credentials{Endpoint: "http://upload.example", Folder: "cabin", Token: "s3cret"}

func TestCredentialsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")

	_, err := LoadCredentials(path)
	assert.ErrorIs(t, err, ErrNotConfigured)

	c := creds
	c.Endpoint += "/"
	require.NoError(t, SaveCredentials(path, c))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := LoadCredentials(path)
	require.NoError(t, err)
	assert.Equal(t, creds, got, "trailing slash trimmed")

	require.NoError(t, DeleteCredentials(path))
	require.NoError(t, DeleteCredentials(path))
	_, err = LoadCredentials(path)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestLoadCredentialsRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"empty":     "",
		"malformed": "{",
		"partial":   `{"endpoint":"http://x","folder":"f"}`,
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		_, err := LoadCredentials(path)
		assert.ErrorIs(t, err, ErrNotConfigured, name)
	}
}

func TestSaveCredentialsValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	err := SaveCredentials(path, Credentials{Endpoint: "ftp://x", Folder: "f", Token: "t"})
	assert.ErrorContains(t, err, "http(s) URL")
	_, statErr := os.Stat(path)
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

type call struct {
	method, url, contentType string
	body                     []byte
}

type fakeHTTP struct {
	calls []call
	err   error
}

func (f *fakeHTTP) HTTPGet(_ context.Context, u string) ([]byte, error) {
	f.calls = append(f.calls, call{method: "GET", url: u})
	return nil, f.err
}

func (f *fakeHTTP) HTTPPost(_ context.Context, u, ct string, body []byte) ([]byte, error) {
	f.calls = append(f.calls, call{method: "POST", url: u, contentType: ct, body: body})
	return nil, f.err
}

func TestModemUploader(t *testing.T) {
	h := &fakeHTTP{}
	u := NewModemUploader(h, creds)
	u.newID = func() string { return "req-1" }

	ctx := context.Background()
	require.NoError(t, u.Probe(ctx))
	require.NoError(t, u.Upload(ctx, "capture_20260101_120000.jpg", []byte{0xFF, 0xD8}))
	require.Len(t, h.calls, 2)

	assert.Equal(t, "GET", h.calls[0].method)
	assert.Equal(t, "http://upload.example/health?request_id=req-1&token=s3cret", h.calls[0].url)

	post := h.calls[1]
	parsed, err := url.Parse(post.url)
	require.NoError(t, err)
	assert.Equal(t, "/files", parsed.Path)
	assert.Equal(t, "cabin", parsed.Query().Get("folder"))
	assert.Equal(t, "capture_20260101_120000.jpg", parsed.Query().Get("name"))
	assert.Equal(t, "image/jpeg", post.contentType)
	assert.Equal(t, []byte{0xFF, 0xD8}, post.body)
}

func TestModemUploaderWrapsErrors(t *testing.T) {
	boom := errors.New("no carrier")
	u := NewModemUploader(&fakeHTTP{err: boom}, creds)
	err := u.Upload(context.Background(), "a.jpg", nil)
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "upload a.jpg")
}

func TestDirectUploader(t *testing.T) {
	var got struct {
		auth, reqID, folder, name, ct string
		body                          []byte
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/files":
			got.auth = r.Header.Get("Authorization")
			got.reqID = r.Header.Get("X-Request-ID")
			got.folder = r.URL.Query().Get("folder")
			got.name = r.URL.Query().Get("name")
			got.ct = r.Header.Get("Content-Type")
			got.body, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusCreated)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := creds
	c.Endpoint = srv.URL
	u := NewDirectUploader(c, 5*time.Second)

	ctx := context.Background()
	require.NoError(t, u.Probe(ctx))
	require.NoError(t, u.Upload(ctx, "b.jpg", []byte("jpeg")))

	assert.Equal(t, "Bearer s3cret", got.auth)
	assert.NotEmpty(t, got.reqID)
	assert.Equal(t, "cabin", got.folder)
	assert.Equal(t, "b.jpg", got.name)
	assert.Equal(t, "image/jpeg", got.ct)
	assert.Equal(t, []byte("jpeg"), got.body)
}

func TestDirectUploaderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := creds
	c.Endpoint = srv.URL
	u := NewDirectUploader(c, 5*time.Second)
	assert.ErrorContains(t, u.Probe(context.Background()), "401")
	assert.ErrorContains(t, u.Upload(context.Background(), "c.jpg", []byte("x")), "401")
}
