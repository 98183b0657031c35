// tensor.go - Tensor-Struktur und Basis-Methoden
// Enthält: Tensor struct, Shape, Floats, DType, Cast

package cpu

import (
	"fmt"
	"log/slog"
	"slices"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/taskdrop/taskdrop/ml"
)

// Tensor repräsentiert einen CPU-Tensor. Gleitkomma-Typen (F32, F16, BF16)
// liegen als float32 vor, F16/BF16 sind auf ihre Praezision gerundet.
type Tensor struct {
	b      *Backend
	dtype  ml.DType
	shape  []int
	floats []float32
	ints   []int32
}

// LogValue gibt den Tensor als slog-Wert zurück
func (t *Tensor) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("type", t.dtype.String()),
		slog.Any("shape", t.shape),
		slog.String("device", t.b.device.String()),
	)
}

// Dim gibt die Größe einer Dimension zurück
func (t *Tensor) Dim(n int) int {
	return t.shape[n]
}

// Shape gibt die Form des Tensors zurück
func (t *Tensor) Shape() []int {
	return slices.Clone(t.shape)
}

// DType gibt den Datentyp des Tensors zurück
func (t *Tensor) DType() ml.DType {
	return t.dtype
}

// Device gibt das Geraet des Tensors zurück
func (t *Tensor) Device() ml.DeviceID {
	return t.b.device
}

// Floats gibt die Tensor-Daten als Float32 zurück
func (t *Tensor) Floats() []float32 {
	if t.dtype == ml.DTypeI32 {
		data := make([]float32, len(t.ints))
		for i, v := range t.ints {
			data[i] = float32(v)
		}
		return data
	}
	return slices.Clone(t.floats)
}

// Ints gibt die Tensor-Daten als Int32 zurück
func (t *Tensor) Ints() []int32 {
	if t.dtype != ml.DTypeI32 {
		data := make([]int32, len(t.floats))
		for i, v := range t.floats {
			data[i] = int32(v)
		}
		return data
	}
	return slices.Clone(t.ints)
}

// Cast konvertiert den Tensor zu einem anderen Datentyp
func (t *Tensor) Cast(ctx ml.Context, dtype ml.DType) ml.Tensor {
	c := t.context(ctx)
	out := c.newTensor(dtype, t.shape)
	switch dtype {
	case ml.DTypeI32:
		out.ints = t.Ints()
	case ml.DTypeF32:
		out.floats = t.Floats()
	case ml.DTypeF16:
		out.floats = t.Floats()
		for i, v := range out.floats {
			out.floats[i] = float16.Fromfloat32(v).Float32()
		}
	case ml.DTypeBF16:
		out.floats = bfloat16.DecodeFloat32(bfloat16.EncodeFloat32(t.Floats()))
	default:
		panic(fmt.Sprintf("cpu: unsupported cast to %s", dtype))
	}
	return out
}

// duplicate kopiert den Tensor samt Daten
func (t *Tensor) duplicate(ctx ml.Context) *Tensor {
	out := t.context(ctx).newTensor(t.dtype, t.shape)
	out.floats = slices.Clone(t.floats)
	out.ints = slices.Clone(t.ints)
	return out
}

// context prueft, dass ctx auf dem Geraet des Tensors rechnet
func (t *Tensor) context(ctx ml.Context) *Context {
	c, ok := ctx.(*Context)
	if !ok {
		panic(fmt.Sprintf("cpu: foreign context %T", ctx))
	}
	if c.b.device != t.b.device {
		panic(fmt.Sprintf("cpu: %v: tensor on %s, context on %s", ml.ErrDeviceMismatch, t.b.device, c.b.device))
	}
	return c
}

// operand prueft Typ und Geraet eines zweiten Operanden
func (t *Tensor) operand(t2 ml.Tensor) *Tensor {
	o, ok := t2.(*Tensor)
	if !ok {
		panic(fmt.Sprintf("cpu: foreign tensor %T", t2))
	}
	if o.b.device != t.b.device {
		panic(fmt.Sprintf("cpu: %v: %s and %s", ml.ErrDeviceMismatch, t.b.device, o.b.device))
	}
	return o
}
