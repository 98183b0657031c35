// backend.go - Backend-Interface und Registrierung
// Dieses Modul definiert das Backend-Interface und die Backend-Factory-Funktionen.
package ml

import (
	"fmt"
	"maps"
	"slices"
)

// Backend represents a tensor execution backend (e.g., CPU).
type Backend interface {
	// Close frees all memory associated with this backend
	Close()

	NewContext() Context

	// Device is the device new contexts place their tensors on
	Device() DeviceID

	// Enumerate the devices available via this backend
	BackendDevices() []DeviceInfo
}

// BackendParams controls how the backend executes
type BackendParams struct {
	// DeviceID selects the device. The zero value selects the backend's default.
	DeviceID DeviceID

	// NumThreads sets the number of threads to use if running on the CPU
	NumThreads int
}

var backends = make(map[string]func(BackendParams) (Backend, error))

// RegisterBackend registers a backend factory function.
func RegisterBackend(name string, f func(BackendParams) (Backend, error)) {
	if _, ok := backends[name]; ok {
		panic("backend: backend already registered")
	}

	backends[name] = f
}

// NewBackend creates a new backend instance by name.
func NewBackend(name string, params BackendParams) (Backend, error) {
	if backend, ok := backends[name]; ok {
		return backend(params)
	}

	return nil, fmt.Errorf("unsupported backend %q", name)
}

// Backends gibt die Namen aller registrierten Backends sortiert zurueck
func Backends() []string {
	return slices.Sorted(maps.Keys(backends))
}
