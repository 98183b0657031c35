package nn

import "github.com/taskdrop/taskdrop/ml"

// LayerNorm normalisiert ueber die Hidden-Achse mit lernbarem Scale und Shift
type LayerNorm struct {
	Weight *Parameter
	Bias   *Parameter
}

// NewLayerNorm initialisiert Weight mit Einsen und Bias mit Nullen
func NewLayerNorm(ctx ml.Context, size int) *LayerNorm {
	return &LayerNorm{
		Weight: NewParameter("weight", ctx.Ones(ml.DTypeF32, size)),
		Bias:   NewParameter("bias", ctx.Zeros(ml.DTypeF32, size)),
	}
}

func (m *LayerNorm) Forward(ctx ml.Context, t ml.Tensor, eps float32) ml.Tensor {
	return t.LayerNorm(ctx, m.Weight.Tensor, m.Bias.Tensor, eps)
}

func (m *LayerNorm) Parameters() *Parameters {
	return NewParameters(m.Weight, m.Bias)
}
