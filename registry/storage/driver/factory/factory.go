// Package factory lets storage driver implementations register themselves
// by name, mirroring
// distribution/distribution/registry/storage/driver/factory.
package factory

import (
	"context"
	"fmt"
	"sync"

	storagedriver "github.com/distribution-core/registry/registry/storage/driver"
)

// StorageDriverFactory constructs a storagedriver.StorageDriver from a
// parameter bag. Drivers call Register with one of these in an init().
type StorageDriverFactory interface {
	Create(parameters map[string]interface{}) (storagedriver.StorageDriver, error)
}

var (
	mu        sync.Mutex
	factories = make(map[string]StorageDriverFactory)
)

// Register makes a storage driver available by name. Panics if name is
// already registered.
func Register(name string, f StorageDriverFactory) {
	mu.Lock()
	defer mu.Unlock()

	if _, ok := factories[name]; ok {
		panic(fmt.Sprintf("factory: storage driver %q already registered", name))
	}
	factories[name] = f
}

// Create constructs the named storage driver with the given parameters.
func Create(ctx context.Context, name string, parameters map[string]interface{}) (storagedriver.StorageDriver, error) {
	mu.Lock()
	f, ok := factories[name]
	mu.Unlock()

	if !ok {
		return nil, InvalidStorageDriverError{Name: name}
	}

	return f.Create(parameters)
}

// InvalidStorageDriverError records an attempt to construct an unregistered
// storage driver.
type InvalidStorageDriverError struct {
	Name string
}

func (e InvalidStorageDriverError) Error() string {
	return fmt.Sprintf("factory: storage driver not registered: %s", e.Name)
}
