package sublayer

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/taskdrop/taskdrop/ml"
	"github.com/taskdrop/taskdrop/ml/backend/cpu"
)

// newContext erzeugt einen CPU-Kontext auf Geraet id
func newContext(t *testing.T, id string) ml.Context {
	t.Helper()

	b, err := cpu.New(ml.BackendParams{DeviceID: ml.DeviceID{ID: id}})
	require.NoError(t, err)
	t.Cleanup(b.Close)

	ctx := b.NewContext()
	t.Cleanup(ctx.Close)
	return ctx
}

// randomTensor fuellt einen Tensor mit standardnormalen Werten
func randomTensor(ctx ml.Context, seed uint64, shape ...int) ml.Tensor {
	rng := rand.New(rand.NewSource(seed))

	n := 1
	for _, d := range shape {
		n *= d
	}

	s := make([]float32, n)
	for i := range s {
		s[i] = float32(rng.NormFloat64())
	}
	return ctx.FromFloats(s, shape...)
}

// zeroPositions zaehlt pro Beispiel die komplett maskierten Sequenzpositionen
// einer Maske [S,B,H] und prueft, dass jede Position ganz 0 oder ganz 1 ist.
func zeroPositions(t *testing.T, mask ml.Tensor) [][]int {
	t.Helper()

	seqLen, batch, hidden := mask.Dim(0), mask.Dim(1), mask.Dim(2)
	data := mask.Floats()

	zeros := make([][]int, batch)
	for s := range seqLen {
		for b := range batch {
			row := data[(s*batch+b)*hidden : (s*batch+b+1)*hidden]
			for _, v := range row {
				require.Contains(t, []float32{0, 1}, v, "mask value at seq %d batch %d", s, b)
				require.Equal(t, row[0], v, "mask row at seq %d batch %d is not uniform", s, b)
			}
			if hidden > 0 && row[0] == 0 {
				zeros[b] = append(zeros[b], s)
			}
		}
	}
	return zeros
}
