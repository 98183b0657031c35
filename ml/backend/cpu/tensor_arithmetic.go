// tensor_arithmetic.go - Elementweise Arithmetik
// Enthält: Add, Mul, Scale

package cpu

import (
	"fmt"
	"slices"

	"github.com/taskdrop/taskdrop/ml"
)

// Add addiert zwei Tensoren gleicher Form
func (t *Tensor) Add(ctx ml.Context, t2 ml.Tensor) ml.Tensor {
	return t.binary(ctx, t2, "add", func(a, b float32) float32 { return a + b })
}

// Mul multipliziert zwei Tensoren gleicher Form elementweise
func (t *Tensor) Mul(ctx ml.Context, t2 ml.Tensor) ml.Tensor {
	return t.binary(ctx, t2, "mul", func(a, b float32) float32 { return a * b })
}

// Scale multipliziert jedes Element mit s
func (t *Tensor) Scale(ctx ml.Context, s float64) ml.Tensor {
	out := t.context(ctx).newTensor(ml.DTypeF32, t.shape)
	out.floats = t.Floats()
	for i := range out.floats {
		out.floats[i] = float32(float64(out.floats[i]) * s)
	}
	return out
}

func (t *Tensor) binary(ctx ml.Context, t2 ml.Tensor, op string, fn func(a, b float32) float32) ml.Tensor {
	c := t.context(ctx)
	o := t.operand(t2)
	if !slices.Equal(t.shape, o.shape) {
		panic(fmt.Sprintf("cpu: %s: %v: %v and %v", op, ml.ErrShapeMismatch, t.shape, o.shape))
	}

	a, b := t.Floats(), o.Floats()
	out := c.newTensor(ml.DTypeF32, t.shape)
	out.floats = make([]float32, len(a))
	for i := range a {
		out.floats[i] = fn(a[i], b[i])
	}
	return out
}
