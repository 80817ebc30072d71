package qmt

import (
	"fmt"
	"sort"
	"sync"
)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// Register makes a vendor driver available under the given name.
// It panics on a duplicate name, like database/sql.
func Register(name string, d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if d == nil {
		panic("qmt: Register driver is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("qmt: Register called twice for driver " + name)
	}
	drivers[name] = d
}

// Open returns the registered driver with the given name.
func Open(name string) (Driver, error) {
	driversMu.RLock()
	d, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("qmt: unknown driver %q (registered: %v)", name, DriverNames())
	}
	return d, nil
}

// DriverNames lists registered drivers, sorted.
func DriverNames() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for n := range drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
