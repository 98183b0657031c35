// backend.go - Reines Go CPU-Backend
// Enthält: Backend struct, Registrierung als "cpu", Geraete-Auflistung
//
// Das Backend rechnet eager: jede Operation liefert sofort einen neuen
// Tensor. Es gibt keinen Graphen und kein Compute.

package cpu

import (
	"cmp"
	"log/slog"
	"runtime"

	"github.com/taskdrop/taskdrop/ml"
)

// Library ist der Bibliotheksname in jeder DeviceID dieses Backends
const Library = "cpu"

func init() {
	ml.RegisterBackend(Library, New)
}

// Backend haelt die Geraete-Identitaet und Thread-Einstellungen
type Backend struct {
	device  ml.DeviceID
	threads int
}

// New erzeugt ein CPU-Backend. Ohne DeviceID wird "cpu:0" verwendet.
func New(params ml.BackendParams) (ml.Backend, error) {
	device := params.DeviceID
	device.ID = cmp.Or(device.ID, "0")
	device.Library = cmp.Or(device.Library, Library)

	b := &Backend{
		device:  device,
		threads: cmp.Or(params.NumThreads, runtime.GOMAXPROCS(0)),
	}

	slog.Debug("cpu backend", "device", b.device, "threads", b.threads)
	return b, nil
}

// Close gibt Ressourcen frei (nichts zu tun fuer CPU)
func (b *Backend) Close() {}

// Device gibt das Geraet des Backends zurueck
func (b *Backend) Device() ml.DeviceID {
	return b.device
}

// NewContext erstellt einen neuen Kontext auf dem Geraet des Backends
func (b *Backend) NewContext() ml.Context {
	return &Context{b: b}
}

// BackendDevices listet die verfuegbaren Geraete
func (b *Backend) BackendDevices() []ml.DeviceInfo {
	return []ml.DeviceInfo{{
		DeviceID:    b.device,
		Name:        "CPU",
		Description: runtime.GOARCH,
		Integrated:  true,
	}}
}
