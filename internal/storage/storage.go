// Package storage keeps captured images in a directory until they have
// been uploaded.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/renameio/v2"
)

// Ext is the extension of every stored capture.
const Ext = ".jpg"

// ErrLowSpace is returned by Save when free space is below the minimum.
var ErrLowSpace = errors.New("storage: free space below minimum")

// Dir is a capture directory.
type Dir struct {
	path     string
	minFree  uint64
	freeFunc func(string) (uint64, error)
}

// Open creates path if needed and checks that it is writable.
// minFreeMB of zero disables the free-space check.
func Open(path string, minFreeMB uint64) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create capture dir: %w", err)
	}
	probe, err := os.CreateTemp(path, ".probe-*")
	if err != nil {
		return nil, fmt.Errorf("capture dir not writable: %w", err)
	}
	probe.Close()
	os.Remove(probe.Name())

	return &Dir{path: path, minFree: minFreeMB << 20, freeFunc: freeBytes}, nil
}

// Path returns the directory path.
func (d *Dir) Path() string { return d.path }

// FileName builds the capture name "<base>_<yyyyMMdd_HHmmss>.jpg".
func FileName(base string, t time.Time) string {
	return base + "_" + t.Format("20060102_150405") + Ext
}

// Save writes data to name atomically. A partially written file is never
// visible under name.
func (d *Dir) Save(name string, data []byte) error {
	if d.minFree > 0 {
		free, err := d.freeFunc(d.path)
		if err == nil && free < d.minFree {
			return fmt.Errorf("save %s: %w (%d MB free)", name, ErrLowSpace, free>>20)
		}
	}

	pending, err := renameio.NewPendingFile(filepath.Join(d.path, filepath.Base(name)))
	if err != nil {
		return fmt.Errorf("create pending %s: %w", name, err)
	}
	defer pending.Cleanup()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

// List returns the stored capture names, oldest first.
func (d *Dir) List() ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("list captures: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), Ext) && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	// Names embed a sortable timestamp after the base prefix.
	sort.Slice(names, func(i, j int) bool {
		return stamp(names[i]) < stamp(names[j]) || (stamp(names[i]) == stamp(names[j]) && names[i] < names[j])
	})
	return names, nil
}

func stamp(name string) string {
	name = strings.TrimSuffix(name, Ext)
	if len(name) < 15 {
		return name
	}
	return name[len(name)-15:]
}

// Count returns the number of stored captures.
func (d *Dir) Count() (int, error) {
	names, err := d.List()
	return len(names), err
}

// Name returns the i-th capture in List order.
func (d *Dir) Name(i int) (string, error) {
	names, err := d.List()
	if err != nil {
		return "", err
	}
	if i < 0 || i >= len(names) {
		return "", fmt.Errorf("capture index %d out of range [0,%d)", i, len(names))
	}
	return names[i], nil
}

// Read returns the contents of a stored capture.
func (d *Dir) Read(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(d.path, filepath.Base(name)))
	if err != nil {
		return nil, fmt.Errorf("read capture: %w", err)
	}
	return data, nil
}

// Delete removes one capture.
func (d *Dir) Delete(name string) error {
	if err := os.Remove(filepath.Join(d.path, filepath.Base(name))); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete capture: %w", err)
	}
	return nil
}

// DeleteAll removes every stored capture.
func (d *Dir) DeleteAll() error {
	names, err := d.List()
	if err != nil {
		return err
	}
	var errs []error
	for _, n := range names {
		if err := d.Delete(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FreeBytes reports the space available to unprivileged writers.
func (d *Dir) FreeBytes() (uint64, error) {
	return d.freeFunc(d.path)
}
