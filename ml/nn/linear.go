package nn

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/taskdrop/taskdrop/ml"
)

// Linear bildet [..., in] auf [..., out] ab
type Linear struct {
	Weight *Parameter // [in, out]
	Bias   *Parameter // [out]
}

// NewLinear initialisiert Weight Xavier-uniform und Bias mit Nullen
func NewLinear(ctx ml.Context, in, out int, src rand.Source) *Linear {
	a := math.Sqrt(6 / float64(in+out))
	dist := distuv.Uniform{Min: -a, Max: a, Src: src}

	w := make([]float32, in*out)
	for i := range w {
		w[i] = float32(dist.Rand())
	}

	return &Linear{
		Weight: NewParameter("weight", ctx.FromFloats(w, in, out)),
		Bias:   NewParameter("bias", ctx.Zeros(ml.DTypeF32, out)),
	}
}

func (m *Linear) Forward(ctx ml.Context, t ml.Tensor) ml.Tensor {
	shape := t.Shape()
	in, out := m.Weight.Tensor.Dim(0), m.Weight.Tensor.Dim(1)
	rows := elements(shape[:len(shape)-1])

	t = t.Reshape(ctx, 1, rows, in).Mulmat(ctx, m.Weight.Tensor.Reshape(ctx, 1, in, out))
	t = t.Add(ctx, m.Bias.Tensor.Reshape(ctx, 1, 1, out).Repeat(ctx, 1, rows))

	shape[len(shape)-1] = out
	return t.Reshape(ctx, shape...)
}

func (m *Linear) Parameters() *Parameters {
	return NewParameters(m.Weight, m.Bias)
}
