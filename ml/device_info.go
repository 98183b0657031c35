// device_info.go
// Dieses Modul enthaelt die DeviceID/DeviceInfo-Strukturen und die
// Pruefung, ob Operanden auf demselben Geraet liegen.

package ml

import (
	"fmt"
	"log/slog"
	"reflect"
)

// DeviceID identifies a compute device within a library
type DeviceID struct {
	// ID is an identifier for the device for matching with system
	// management libraries.
	ID string `json:"id"`

	// Library identifies which library is used for the device (e.g. CPU)
	Library string `json:"backend,omitempty"`
}

func (d DeviceID) String() string {
	if d.Library == "" {
		return d.ID
	}
	return d.Library + ":" + d.ID
}

func (d DeviceID) LogValue() slog.Value {
	return slog.StringValue(d.String())
}

type DeviceInfo struct {
	DeviceID

	// Name is the name of the device as labeled by the backend.
	Name string `json:"name"`

	// Description is the longer user-friendly identification of the device
	Description string `json:"description"`

	// Integrated is set true for integrated GPUs and CPUs
	Integrated bool `json:"integration,omitempty"`

	// TotalMemory is the total amount of memory the device can use
	TotalMemory uint64 `json:"total_memory"`

	// FreeMemory is the amount of memory currently available on the device
	FreeMemory uint64 `json:"free_memory,omitempty"`
}

// Placed is implemented by anything that lives on a device, tensors and
// contexts alike.
type Placed interface {
	Device() DeviceID
}

// SameDevice prueft, ob alle Operanden auf demselben Geraet liegen.
// nil-Eintraege werden uebersprungen, auch typisierte nil-Zeiger.
func SameDevice(operands ...Placed) error {
	var first *DeviceID
	for _, o := range operands {
		if isNil(o) {
			continue
		}
		d := o.Device()
		if first == nil {
			first = &d
			continue
		}
		if d != *first {
			return fmt.Errorf("%w: %s and %s", ErrDeviceMismatch, *first, d)
		}
	}
	return nil
}

func isNil(o Placed) bool {
	if o == nil {
		return true
	}
	v := reflect.ValueOf(o)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}
