package sublayer

import (
	"fmt"

	"github.com/taskdrop/taskdrop/ml"
)

// PaddingPolicy passt eine gesampelte Maske [B,S] an die gueltigen Laengen an
type PaddingPolicy interface {
	Apply(ctx ml.Context, mask ml.Tensor, lengths []int32) (ml.Tensor, error)
}

// ZeroPadding setzt alle Positionen t >= lengths[b] auf 0
type ZeroPadding struct{}

func (ZeroPadding) Apply(ctx ml.Context, mask ml.Tensor, lengths []int32) (ml.Tensor, error) {
	batch, seqLen := mask.Dim(0), mask.Dim(1)
	if len(lengths) != batch {
		return nil, fmt.Errorf("padding: %w: %d lengths for batch of %d", ml.ErrShapeMismatch, len(lengths), batch)
	}

	valid := make([]float32, batch*seqLen)
	for b, l := range lengths {
		for t := range min(max(int(l), 0), seqLen) {
			valid[b*seqLen+t] = 1
		}
	}

	return mask.Mul(ctx, ctx.FromFloats(valid, batch, seqLen)), nil
}
