// tensor_shape.go - Form-Operationen
// Enthält: Reshape, Permute, Repeat, Scatter

package cpu

import (
	"fmt"
	"slices"

	"github.com/pdevine/tensor"

	"github.com/taskdrop/taskdrop/ml"
)

// Reshape aendert die Form bei gleicher Elementanzahl
func (t *Tensor) Reshape(ctx ml.Context, shape ...int) ml.Tensor {
	if elements(shape) != elements(t.shape) {
		panic(fmt.Sprintf("cpu: reshape: %v: %v to %v", ml.ErrShapeMismatch, t.shape, shape))
	}

	out := t.duplicate(ctx)
	out.shape = slices.Clone(shape)
	return out
}

// Permute vertauscht die Achsen: Achse i der Ausgabe ist Achse order[i] der Eingabe
func (t *Tensor) Permute(ctx ml.Context, order ...int) ml.Tensor {
	c := t.context(ctx)
	if len(order) != len(t.shape) {
		panic(fmt.Sprintf("cpu: permute: %v: order %v for shape %v", ml.ErrShapeMismatch, order, t.shape))
	}

	identity := true
	for i, o := range order {
		if i != o {
			identity = false
			break
		}
	}
	if identity || elements(t.shape) == 0 {
		out := c.newTensor(t.dtype, permuted(t.shape, order))
		out.floats = slices.Clone(t.floats)
		out.ints = slices.Clone(t.ints)
		return out
	}

	var backing any = slices.Clone(t.floats)
	if t.dtype == ml.DTypeI32 {
		backing = slices.Clone(t.ints)
	}

	n := tensor.New(tensor.WithShape(t.shape...), tensor.WithBacking(backing))
	if err := n.T(order...); err != nil {
		panic(err)
	}
	if err := n.Transpose(); err != nil {
		panic(err)
	}

	out := c.newTensor(t.dtype, permuted(t.shape, order))
	switch data := n.Data().(type) {
	case []float32:
		out.floats = data
	case []int32:
		out.ints = data
	}
	return out
}

// Repeat wiederholt den Tensor n-mal entlang Achse dim
func (t *Tensor) Repeat(ctx ml.Context, dim, n int) ml.Tensor {
	c := t.context(ctx)
	if dim < 0 || dim >= len(t.shape) || n < 0 {
		panic(fmt.Sprintf("cpu: repeat: dim %d n %d for shape %v", dim, n, t.shape))
	}

	shape := slices.Clone(t.shape)
	shape[dim] *= n
	out := c.newTensor(t.dtype, shape)

	outer := elements(t.shape[:dim])
	inner := elements(t.shape[dim:])
	if t.dtype == ml.DTypeI32 {
		out.ints = repeat(t.ints, outer, inner, n)
	} else {
		out.floats = repeat(t.floats, outer, inner, n)
	}
	return out
}

func repeat[S ~[]E, E any](s S, outer, inner, n int) S {
	out := make(S, 0, outer*inner*n)
	for o := range outer {
		block := s[o*inner : (o+1)*inner]
		for range n {
			out = append(out, block...)
		}
	}
	return out
}

// Scatter schreibt value an die Spalten idxs[r, k] jeder Zeile r einer Kopie von t
func (t *Tensor) Scatter(ctx ml.Context, idxs ml.Tensor, value float32) ml.Tensor {
	c := t.context(ctx)
	ix := t.operand(idxs)
	if len(t.shape) != 2 || len(ix.shape) != 2 || ix.shape[0] != t.shape[0] {
		panic(fmt.Sprintf("cpu: scatter: %v: %v into %v", ml.ErrShapeMismatch, ix.shape, t.shape))
	}

	cols, k := t.shape[1], ix.shape[1]
	out := c.newTensor(ml.DTypeF32, t.shape)
	out.floats = t.Floats()
	for i, col := range ix.Ints() {
		if col < 0 || int(col) >= cols {
			panic(fmt.Sprintf("cpu: scatter: index %d out of range [0,%d)", col, cols))
		}
		out.floats[(i/k)*cols+int(col)] = value
	}
	return out
}

func permuted(shape, order []int) []int {
	out := make([]int, len(order))
	for i, o := range order {
		out[i] = shape[o]
	}
	return out
}
