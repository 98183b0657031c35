// tensor_matrix.go - Matrix-Operationen
// Enthält: Mulmat (Batch-Matrixprodukt ueber gonum blas32)

package cpu

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/taskdrop/taskdrop/ml"
)

// Mulmat berechnet [..., M, K] x [..., K, N] -> [..., M, N]
func (t *Tensor) Mulmat(ctx ml.Context, t2 ml.Tensor) ml.Tensor {
	c := t.context(ctx)
	o := t.operand(t2)

	r := len(t.shape)
	if r < 2 || len(o.shape) != r ||
		!slices.Equal(t.shape[:r-2], o.shape[:r-2]) ||
		t.shape[r-1] != o.shape[r-2] {
		panic(fmt.Sprintf("cpu: mulmat: %v: %v x %v", ml.ErrShapeMismatch, t.shape, o.shape))
	}

	m, k, n := t.shape[r-2], t.shape[r-1], o.shape[r-1]
	batch := elements(t.shape[:r-2])

	shape := append(slices.Clone(t.shape[:r-2]), m, n)
	out := c.newTensor(ml.DTypeF32, shape)
	out.floats = make([]float32, batch*m*n)
	if m == 0 || n == 0 || k == 0 {
		return out
	}

	a, b := t.Floats(), o.Floats()
	for i := range batch {
		blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
			blas32.General{Rows: m, Cols: k, Stride: k, Data: a[i*m*k : (i+1)*m*k]},
			blas32.General{Rows: k, Cols: n, Stride: n, Data: b[i*k*n : (i+1)*k*n]},
			0,
			blas32.General{Rows: m, Cols: n, Stride: n, Data: out.floats[i*m*n : (i+1)*m*n]},
		)
	}
	return out
}
