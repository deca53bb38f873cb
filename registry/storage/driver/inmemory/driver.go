// Package inmemory implements storagedriver.StorageDriver backed by a
// process-local map, intended solely for tests, mirroring
// distribution/distribution/registry/storage/driver/inmemory.
package inmemory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	storagedriver "github.com/distribution-core/registry/registry/storage/driver"
	"github.com/distribution-core/registry/registry/storage/driver/base"
	"github.com/distribution-core/registry/registry/storage/driver/factory"
)

const driverName = "inmemory"

func init() {
	factory.Register(driverName, &inMemoryDriverFactory{})
}

type inMemoryDriverFactory struct{}

func (inMemoryDriverFactory) Create(parameters map[string]interface{}) (storagedriver.StorageDriver, error) {
	return New(), nil
}

type driver struct {
	mutex sync.RWMutex
	files map[string][]byte
	mtime map[string]time.Time
}

type baseEmbed struct {
	base.Base
}

// Driver is a storagedriver.StorageDriver backed by an in-process map.
// Not for production use.
type Driver struct {
	baseEmbed
}

var _ storagedriver.StorageDriver = &Driver{}

// New constructs an empty Driver.
func New() *Driver {
	return &Driver{
		baseEmbed: baseEmbed{
			Base: base.Base{
				StorageDriver: &driver{
					files: make(map[string][]byte),
					mtime: make(map[string]time.Time),
				},
			},
		},
	}
}

func (d *driver) Name() string { return driverName }

func (d *driver) GetContent(ctx context.Context, p string) ([]byte, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	data, ok := d.files[p]
	if !ok {
		return nil, storagedriver.PathNotFoundError{Path: p}
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (d *driver) PutContent(ctx context.Context, p string, contents []byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	data := make([]byte, len(contents))
	copy(data, contents)
	d.files[p] = data
	d.mtime[p] = time.Now()
	return nil
}

func (d *driver) Reader(ctx context.Context, p string, offset int64) (io.ReadCloser, error) {
	if offset < 0 {
		return nil, storagedriver.InvalidOffsetError{Path: p, Offset: offset}
	}

	d.mutex.RLock()
	defer d.mutex.RUnlock()

	data, ok := d.files[p]
	if !ok {
		return nil, storagedriver.PathNotFoundError{Path: p}
	}
	if offset > int64(len(data)) {
		return nil, storagedriver.InvalidOffsetError{Path: p, Offset: offset}
	}

	return io.NopCloser(bytes.NewReader(data[offset:])), nil
}

func (d *driver) Writer(ctx context.Context, p string, append bool) (storagedriver.FileWriter, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	var initial []byte
	if append {
		initial = append2(d.files[p])
	}

	return &writer{d: d, path: p, buffer: initial}, nil
}

func append2(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (d *driver) Stat(ctx context.Context, p string) (storagedriver.FileInfo, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	if data, ok := d.files[p]; ok {
		return fileInfo{path: p, size: int64(len(data)), mod: d.mtime[p]}, nil
	}

	prefix := strings.TrimSuffix(p, "/") + "/"
	for key := range d.files {
		if strings.HasPrefix(key, prefix) {
			return fileInfo{path: p, isDir: true, mod: d.mtime[key]}, nil
		}
	}

	return nil, storagedriver.PathNotFoundError{Path: p}
}

func (d *driver) List(ctx context.Context, p string) ([]string, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	prefix := strings.TrimSuffix(p, "/") + "/"
	if prefix == "//" {
		prefix = "/"
	}

	seen := map[string]bool{}
	var out []string
	for key := range d.files {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		child := strings.SplitN(rest, "/", 2)[0]
		childPath := path.Join(p, child)
		if !seen[childPath] {
			seen[childPath] = true
			out = append(out, childPath)
		}
	}

	if len(out) == 0 {
		if _, ok := d.files[p]; !ok {
			return nil, storagedriver.PathNotFoundError{Path: p}
		}
	}

	return out, nil
}

func (d *driver) Move(ctx context.Context, sourcePath, destPath string) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	data, ok := d.files[sourcePath]
	if !ok {
		return storagedriver.PathNotFoundError{Path: sourcePath}
	}

	d.files[destPath] = data
	d.mtime[destPath] = time.Now()
	delete(d.files, sourcePath)
	delete(d.mtime, sourcePath)
	return nil
}

func (d *driver) Delete(ctx context.Context, p string) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	prefix := strings.TrimSuffix(p, "/") + "/"
	found := false
	for key := range d.files {
		if key == p || strings.HasPrefix(key, prefix) {
			delete(d.files, key)
			delete(d.mtime, key)
			found = true
		}
	}

	if !found {
		return storagedriver.PathNotFoundError{Path: p}
	}
	return nil
}

type fileInfo struct {
	path  string
	size  int64
	isDir bool
	mod   time.Time
}

func (fi fileInfo) Path() string       { return fi.path }
func (fi fileInfo) Size() int64        { return fi.size }
func (fi fileInfo) ModTime() time.Time { return fi.mod }
func (fi fileInfo) IsDir() bool        { return fi.isDir }

type writer struct {
	d         *driver
	path      string
	buffer    []byte
	closed    bool
	committed bool
	cancelled bool
}

func (w *writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("inmemory: writer already closed")
	} else if w.committed {
		return 0, fmt.Errorf("inmemory: writer already committed")
	} else if w.cancelled {
		return 0, fmt.Errorf("inmemory: writer already cancelled")
	}
	w.buffer = append(w.buffer, p...)
	return len(p), nil
}

func (w *writer) Size() int64 { return int64(len(w.buffer)) }

func (w *writer) Close() error {
	if w.closed {
		return fmt.Errorf("inmemory: writer already closed")
	}
	w.closed = true
	return nil
}

func (w *writer) Cancel(ctx context.Context) error {
	if w.closed {
		return fmt.Errorf("inmemory: writer already closed")
	}
	w.cancelled = true
	return nil
}

func (w *writer) Commit(ctx context.Context) error {
	if w.closed {
		return fmt.Errorf("inmemory: writer already closed")
	} else if w.committed {
		return fmt.Errorf("inmemory: writer already committed")
	} else if w.cancelled {
		return fmt.Errorf("inmemory: writer already cancelled")
	}
	w.committed = true
	return w.d.PutContent(ctx, w.path, w.buffer)
}
