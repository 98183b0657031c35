// context.go - Compute-Kontext des CPU-Backends
// Enthält: Context struct, Tensor-Konstruktoren

package cpu

import (
	"fmt"
	"slices"

	"github.com/taskdrop/taskdrop/ml"
)

// Context erzeugt Tensoren auf dem Geraet seines Backends
type Context struct {
	b *Backend
}

// Device gibt das Geraet des Kontexts zurueck
func (c *Context) Device() ml.DeviceID {
	return c.b.device
}

// Close gibt den Kontext frei
func (c *Context) Close() {}

// Threads ist die Thread-Zahl des Backends, sie begrenzt parallele Arbeit
// auf diesem Kontext
func (c *Context) Threads() int {
	return c.b.threads
}

// Zeros erzeugt einen mit Nullen gefuellten Tensor
func (c *Context) Zeros(dtype ml.DType, shape ...int) ml.Tensor {
	t := c.newTensor(dtype, shape)
	if dtype == ml.DTypeI32 {
		t.ints = make([]int32, elements(shape))
	} else {
		t.floats = make([]float32, elements(shape))
	}
	return t
}

// Ones erzeugt einen mit Einsen gefuellten Tensor
func (c *Context) Ones(dtype ml.DType, shape ...int) ml.Tensor {
	t := c.Zeros(dtype, shape...).(*Tensor)
	for i := range t.floats {
		t.floats[i] = 1
	}
	for i := range t.ints {
		t.ints[i] = 1
	}
	return t
}

// FromFloats kopiert s in einen neuen F32-Tensor
func (c *Context) FromFloats(s []float32, shape ...int) ml.Tensor {
	if len(s) != elements(shape) {
		panic(fmt.Sprintf("cpu: %d values do not fill shape %v", len(s), shape))
	}
	t := c.newTensor(ml.DTypeF32, shape)
	t.floats = slices.Clone(s)
	if t.floats == nil {
		t.floats = []float32{}
	}
	return t
}

// FromInts kopiert s in einen neuen I32-Tensor
func (c *Context) FromInts(s []int32, shape ...int) ml.Tensor {
	if len(s) != elements(shape) {
		panic(fmt.Sprintf("cpu: %d values do not fill shape %v", len(s), shape))
	}
	t := c.newTensor(ml.DTypeI32, shape)
	t.ints = slices.Clone(s)
	if t.ints == nil {
		t.ints = []int32{}
	}
	return t
}

func (c *Context) newTensor(dtype ml.DType, shape []int) *Tensor {
	for _, d := range shape {
		if d < 0 {
			panic(fmt.Sprintf("cpu: negative dimension in shape %v", shape))
		}
	}
	return &Tensor{b: c.b, dtype: dtype, shape: slices.Clone(shape)}
}

// elements gibt die Anzahl Elemente einer Form zurueck
func elements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
