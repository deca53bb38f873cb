// Package base provides a base implementation of StorageDriver that adds
// path validation and debug-duration logging around an embedded driver,
// mirroring distribution/distribution/registry/storage/driver/base.
package base

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"time"

	"github.com/distribution-core/registry/internal/dcontext"
	storagedriver "github.com/distribution-core/registry/registry/storage/driver"
)

// PathRegexp is the regular expression each storage path must match.
var PathRegexp = regexp.MustCompile(`^(/[A-Za-z0-9._-]+)+$`)

// InvalidPathError is returned when a path fails PathRegexp.
type InvalidPathError struct {
	Path string
}

func (e InvalidPathError) Error() string {
	return fmt.Sprintf("storage: invalid path: %s", e.Path)
}

// Base wraps an embedded storagedriver.StorageDriver with common path
// validation and duration logging. Embed it in an exported Driver type
// via a private baseEmbed struct to avoid exporting the field.
type Base struct {
	storagedriver.StorageDriver
}

func durationLog(ctx context.Context, method string) func() {
	start := time.Now()
	return func() {
		dcontext.GetLogger(ctx).WithField("duration", time.Since(start)).Debugf("storage.%s", method)
	}
}

func (b *Base) checkPath(p string) error {
	if !PathRegexp.MatchString(p) {
		return InvalidPathError{Path: p}
	}
	return nil
}

func (b *Base) Name() string { return b.StorageDriver.Name() }

func (b *Base) GetContent(ctx context.Context, path string) ([]byte, error) {
	if err := b.checkPath(path); err != nil {
		return nil, err
	}
	defer durationLog(ctx, "GetContent")()
	return b.StorageDriver.GetContent(ctx, path)
}

func (b *Base) PutContent(ctx context.Context, path string, content []byte) error {
	if err := b.checkPath(path); err != nil {
		return err
	}
	defer durationLog(ctx, "PutContent")()
	return b.StorageDriver.PutContent(ctx, path, content)
}

func (b *Base) Reader(ctx context.Context, path string, offset int64) (io.ReadCloser, error) {
	if offset < 0 {
		return nil, storagedriver.InvalidOffsetError{Path: path, Offset: offset}
	}
	if err := b.checkPath(path); err != nil {
		return nil, err
	}
	defer durationLog(ctx, "Reader")()
	return b.StorageDriver.Reader(ctx, path, offset)
}

func (b *Base) Writer(ctx context.Context, path string, append bool) (storagedriver.FileWriter, error) {
	if err := b.checkPath(path); err != nil {
		return nil, err
	}
	defer durationLog(ctx, "Writer")()
	return b.StorageDriver.Writer(ctx, path, append)
}

func (b *Base) Stat(ctx context.Context, path string) (storagedriver.FileInfo, error) {
	if err := b.checkPath(path); err != nil {
		return nil, err
	}
	defer durationLog(ctx, "Stat")()
	return b.StorageDriver.Stat(ctx, path)
}

func (b *Base) List(ctx context.Context, path string) ([]string, error) {
	if err := b.checkPath(path); err != nil && path != "/" {
		return nil, err
	}
	defer durationLog(ctx, "List")()
	return b.StorageDriver.List(ctx, path)
}

func (b *Base) Move(ctx context.Context, sourcePath, destPath string) error {
	if err := b.checkPath(sourcePath); err != nil {
		return err
	}
	if err := b.checkPath(destPath); err != nil {
		return err
	}
	defer durationLog(ctx, "Move")()
	return b.StorageDriver.Move(ctx, sourcePath, destPath)
}

func (b *Base) Delete(ctx context.Context, path string) error {
	if err := b.checkPath(path); err != nil {
		return err
	}
	defer durationLog(ctx, "Delete")()
	return b.StorageDriver.Delete(ctx, path)
}

// Regulator limits the number of concurrent calls reaching the wrapped
// driver, the way distribution's filesystem driver bounds maxthreads.
type Regulator struct {
	storagedriver.StorageDriver
	limit chan struct{}
}

// NewRegulator wraps driver so that at most limit operations run
// concurrently against it.
func NewRegulator(d storagedriver.StorageDriver, limit uint64) *Regulator {
	return &Regulator{StorageDriver: d, limit: make(chan struct{}, limit)}
}

func (r *Regulator) enter() func() {
	r.limit <- struct{}{}
	return func() { <-r.limit }
}

func (r *Regulator) GetContent(ctx context.Context, path string) ([]byte, error) {
	defer r.enter()()
	return r.StorageDriver.GetContent(ctx, path)
}

func (r *Regulator) PutContent(ctx context.Context, path string, content []byte) error {
	defer r.enter()()
	return r.StorageDriver.PutContent(ctx, path, content)
}

func (r *Regulator) Reader(ctx context.Context, path string, offset int64) (io.ReadCloser, error) {
	defer r.enter()()
	return r.StorageDriver.Reader(ctx, path, offset)
}

func (r *Regulator) Writer(ctx context.Context, path string, append bool) (storagedriver.FileWriter, error) {
	defer r.enter()()
	return r.StorageDriver.Writer(ctx, path, append)
}

func (r *Regulator) Stat(ctx context.Context, path string) (storagedriver.FileInfo, error) {
	defer r.enter()()
	return r.StorageDriver.Stat(ctx, path)
}

func (r *Regulator) List(ctx context.Context, path string) ([]string, error) {
	defer r.enter()()
	return r.StorageDriver.List(ctx, path)
}

func (r *Regulator) Move(ctx context.Context, sourcePath, destPath string) error {
	defer r.enter()()
	return r.StorageDriver.Move(ctx, sourcePath, destPath)
}

func (r *Regulator) Delete(ctx context.Context, path string) error {
	defer r.enter()()
	return r.StorageDriver.Delete(ctx, path)
}

// GetLimitFromParameter parses a factory parameter into a thread limit,
// enforcing a minimum.
func GetLimitFromParameter(param interface{}, min, def uint64) (uint64, error) {
	if param == nil {
		return def, nil
	}

	var limit uint64
	switch v := param.(type) {
	case uint64:
		limit = v
	case int:
		if v < 0 {
			return 0, fmt.Errorf("negative limit %d", v)
		}
		limit = uint64(v)
	case string:
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, err
		}
		limit = parsed
	default:
		return 0, fmt.Errorf("invalid limit parameter: %v", param)
	}

	if limit < min {
		limit = min
	}
	return limit, nil
}
