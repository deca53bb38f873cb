// Package filesystem implements the storagedriver.StorageDriver interface
// on top of a local filesystem, mirroring
// distribution/distribution/registry/storage/driver/filesystem.
package filesystem

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/google/uuid"

	storagedriver "github.com/distribution-core/registry/registry/storage/driver"
	"github.com/distribution-core/registry/registry/storage/driver/base"
	"github.com/distribution-core/registry/registry/storage/driver/factory"
)

const (
	driverName           = "filesystem"
	defaultRootDirectory = "/var/lib/registry"
	defaultMaxThreads    = uint64(100)

	// minThreads is the minimum accepted value for the maxthreads
	// parameter; smaller values are rounded up to it.
	minThreads = uint64(25)
)

// DriverParameters holds the filesystem driver's configuration.
type DriverParameters struct {
	RootDirectory string
	MaxThreads    uint64
}

func init() {
	factory.Register(driverName, &filesystemDriverFactory{})
}

type filesystemDriverFactory struct{}

func (filesystemDriverFactory) Create(parameters map[string]interface{}) (storagedriver.StorageDriver, error) {
	return FromParameters(parameters)
}

type driver struct {
	rootDirectory string
}

type baseEmbed struct {
	base.Base
}

// Driver is a storagedriver.StorageDriver backed by a local filesystem.
// Every path given to it is resolved beneath RootDirectory.
type Driver struct {
	baseEmbed
}

// FromParameters constructs a Driver from a factory parameter bag.
// Recognized keys: "rootdirectory", "maxthreads".
func FromParameters(parameters map[string]interface{}) (*Driver, error) {
	var (
		err           error
		maxThreads    = defaultMaxThreads
		rootDirectory = defaultRootDirectory
	)

	if parameters != nil {
		if v, ok := parameters["rootdirectory"]; ok {
			rootDirectory = fmt.Sprint(v)
		}

		maxThreads, err = base.GetLimitFromParameter(parameters["maxthreads"], minThreads, defaultMaxThreads)
		if err != nil {
			return nil, fmt.Errorf("maxthreads config error: %w", err)
		}
	}

	return New(DriverParameters{RootDirectory: rootDirectory, MaxThreads: maxThreads}), nil
}

// New constructs a Driver rooted at params.RootDirectory.
func New(params DriverParameters) *Driver {
	fsDriver := &driver{rootDirectory: params.RootDirectory}

	return &Driver{
		baseEmbed: baseEmbed{
			Base: base.Base{
				StorageDriver: base.NewRegulator(fsDriver, params.MaxThreads),
			},
		},
	}
}

func (d *driver) Name() string { return driverName }

func (d *driver) GetContent(ctx context.Context, path string) ([]byte, error) {
	rc, err := d.Reader(ctx, path, 0)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

func (d *driver) PutContent(ctx context.Context, subPath string, contents []byte) error {
	tempPath := fmt.Sprintf("%s.%s.tmp", subPath, uuid.NewString())

	writer, err := d.Writer(ctx, tempPath, false)
	if err != nil {
		return err
	}
	defer writer.Close()

	if _, err := io.Copy(writer, bytes.NewReader(contents)); err != nil {
		if cErr := writer.Cancel(ctx); cErr != nil {
			return errors.Join(err, cErr)
		}
		return errors.Join(err, d.Delete(ctx, tempPath))
	}

	if err := writer.Commit(ctx); err != nil {
		return err
	}

	if err := d.Move(ctx, tempPath, subPath); err != nil {
		return errors.Join(err, d.Delete(ctx, tempPath))
	}

	return nil
}

func (d *driver) Reader(ctx context.Context, path string, offset int64) (io.ReadCloser, error) {
	file, err := os.OpenFile(d.fullPath(path), os.O_RDONLY, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storagedriver.PathNotFoundError{Path: path}
		}
		return nil, err
	}

	seekPos, err := file.Seek(offset, io.SeekStart)
	if err != nil {
		file.Close()
		return nil, err
	} else if seekPos < offset {
		file.Close()
		return nil, storagedriver.InvalidOffsetError{Path: path, Offset: offset}
	}

	return file, nil
}

func (d *driver) Writer(ctx context.Context, subPath string, append bool) (storagedriver.FileWriter, error) {
	fullPath := d.fullPath(subPath)
	if err := os.MkdirAll(path.Dir(fullPath), 0o777); err != nil {
		return nil, err
	}

	fp, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE, 0o666)
	if err != nil {
		return nil, err
	}

	var offset int64
	if !append {
		if err := fp.Truncate(0); err != nil {
			fp.Close()
			return nil, err
		}
	} else {
		n, err := fp.Seek(0, io.SeekEnd)
		if err != nil {
			fp.Close()
			return nil, err
		}
		offset = n
	}

	return newFileWriter(fp, offset), nil
}

func (d *driver) Stat(ctx context.Context, subPath string) (storagedriver.FileInfo, error) {
	fi, err := os.Stat(d.fullPath(subPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storagedriver.PathNotFoundError{Path: subPath}
		}
		return nil, err
	}

	return fileInfo{FileInfo: fi, path: subPath}, nil
}

func (d *driver) List(ctx context.Context, subPath string) ([]string, error) {
	dir, err := os.Open(d.fullPath(subPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storagedriver.PathNotFoundError{Path: subPath}
		}
		return nil, err
	}
	defer dir.Close()

	names, err := dir.Readdirnames(0)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(names))
	for _, name := range names {
		keys = append(keys, path.Join(subPath, name))
	}
	return keys, nil
}

func (d *driver) Move(ctx context.Context, sourcePath, destPath string) error {
	source := d.fullPath(sourcePath)
	dest := d.fullPath(destPath)

	if _, err := os.Stat(source); os.IsNotExist(err) {
		return storagedriver.PathNotFoundError{Path: sourcePath}
	}

	if err := os.MkdirAll(path.Dir(dest), 0o777); err != nil {
		return err
	}

	return os.Rename(source, dest)
}

func (d *driver) Delete(ctx context.Context, subPath string) error {
	fullPath := d.fullPath(subPath)

	if _, err := os.Stat(fullPath); err != nil {
		if os.IsNotExist(err) {
			return storagedriver.PathNotFoundError{Path: subPath}
		}
		return err
	}

	return os.RemoveAll(fullPath)
}

func (d *driver) fullPath(subPath string) string {
	return path.Join(d.rootDirectory, subPath)
}

type fileInfo struct {
	os.FileInfo
	path string
}

var _ storagedriver.FileInfo = fileInfo{}

func (fi fileInfo) Path() string { return fi.path }

func (fi fileInfo) Size() int64 {
	if fi.IsDir() {
		return 0
	}
	return fi.FileInfo.Size()
}

func (fi fileInfo) ModTime() time.Time { return fi.FileInfo.ModTime() }

func (fi fileInfo) IsDir() bool { return fi.FileInfo.IsDir() }

type fileWriter struct {
	file      *os.File
	size      int64
	bw        *bufio.Writer
	closed    bool
	committed bool
	cancelled bool
}

func newFileWriter(file *os.File, size int64) *fileWriter {
	return &fileWriter{file: file, size: size, bw: bufio.NewWriter(file)}
}

func (fw *fileWriter) Write(p []byte) (int, error) {
	if fw.closed {
		return 0, fmt.Errorf("filesystem: writer already closed")
	} else if fw.committed {
		return 0, fmt.Errorf("filesystem: writer already committed")
	} else if fw.cancelled {
		return 0, fmt.Errorf("filesystem: writer already cancelled")
	}

	n, err := fw.bw.Write(p)
	fw.size += int64(n)
	return n, err
}

func (fw *fileWriter) Size() int64 { return fw.size }

func (fw *fileWriter) Close() error {
	if fw.closed {
		return fmt.Errorf("filesystem: writer already closed")
	}
	if err := fw.bw.Flush(); err != nil {
		return err
	}
	if err := fw.file.Sync(); err != nil {
		return err
	}
	if err := fw.file.Close(); err != nil {
		return err
	}
	fw.closed = true
	return nil
}

func (fw *fileWriter) Cancel(ctx context.Context) error {
	if fw.closed {
		return fmt.Errorf("filesystem: writer already closed")
	}
	fw.cancelled = true
	fw.file.Close()
	return os.Remove(fw.file.Name())
}

func (fw *fileWriter) Commit(ctx context.Context) error {
	if fw.closed {
		return fmt.Errorf("filesystem: writer already closed")
	} else if fw.committed {
		return fmt.Errorf("filesystem: writer already committed")
	} else if fw.cancelled {
		return fmt.Errorf("filesystem: writer already cancelled")
	}

	if err := fw.bw.Flush(); err != nil {
		return err
	}
	if err := fw.file.Sync(); err != nil {
		return err
	}
	fw.committed = true
	return nil
}
