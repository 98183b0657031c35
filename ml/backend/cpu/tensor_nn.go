// tensor_nn.go - Neuronale Netzwerk Operationen
// Enthält: Softmax, LayerNorm (jeweils ueber die innerste Achse)

package cpu

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/taskdrop/taskdrop/ml"
)

// Softmax berechnet Softmax ueber die innerste Achse
func (t *Tensor) Softmax(ctx ml.Context) ml.Tensor {
	c := t.context(ctx)
	out := c.newTensor(ml.DTypeF32, t.shape)
	out.floats = t.Floats()

	width := t.innermost()
	row := make([]float64, width)
	for off := 0; off+width <= len(out.floats) && width > 0; off += width {
		for i := range row {
			row[i] = float64(out.floats[off+i])
		}
		lse := floats.LogSumExp(row)
		for i, v := range row {
			out.floats[off+i] = float32(math.Exp(v - lse))
		}
	}
	return out
}

// LayerNorm normalisiert ueber die innerste Achse:
// y = (x - mean) / sqrt(var + eps) * weight + bias
func (t *Tensor) LayerNorm(ctx ml.Context, weight, bias ml.Tensor, eps float32) ml.Tensor {
	c := t.context(ctx)
	width := t.innermost()

	var w, b []float32
	if weight != nil {
		w = t.operand(weight).Floats()
		if len(w) != width {
			panic(fmt.Sprintf("cpu: layernorm: %v: weight %d, width %d", ml.ErrShapeMismatch, len(w), width))
		}
	}
	if bias != nil {
		b = t.operand(bias).Floats()
		if len(b) != width {
			panic(fmt.Sprintf("cpu: layernorm: %v: bias %d, width %d", ml.ErrShapeMismatch, len(b), width))
		}
	}

	x := t.Floats()
	out := c.newTensor(ml.DTypeF32, t.shape)
	out.floats = make([]float32, len(x))
	for off := 0; off+width <= len(x) && width > 0; off += width {
		var mean float64
		for i := range width {
			mean += float64(x[off+i])
		}
		mean /= float64(width)

		var variance float64
		for i := range width {
			d := float64(x[off+i]) - mean
			variance += d * d
		}
		variance /= float64(width)

		invStd := 1 / math.Sqrt(variance+float64(eps))
		for i := range width {
			v := (float64(x[off+i]) - mean) * invStd
			if w != nil {
				v *= float64(w[i])
			}
			if b != nil {
				v += float64(b[i])
			}
			out.floats[off+i] = float32(v)
		}
	}
	return out
}

func (t *Tensor) innermost() int {
	if len(t.shape) == 0 {
		return 1
	}
	return t.shape[len(t.shape)-1]
}
