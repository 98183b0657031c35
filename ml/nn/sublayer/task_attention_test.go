package sublayer

import (
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/taskdrop/taskdrop/ml"
	"github.com/taskdrop/taskdrop/ml/backend/cpu"
)

func TestSampleCount(t *testing.T) {
	cases := []struct {
		rate   float64
		seqLen int
		want   int
	}{
		{0, 5, 1},
		{0.25, 4, 1},
		{0.1, 9, 1},
		{0.3, 10, 3},
		{0.7, 10, 7},
		{0.5, 7, 3},
		{0.99, 1, 1},
		{0.9, 100, 90},
	}

	for _, tt := range cases {
		t.Run(fmt.Sprintf("%v/%d", tt.rate, tt.seqLen), func(t *testing.T) {
			assert.Equal(t, tt.want, SampleCount(tt.rate, tt.seqLen))
		})
	}
}

func TestInverseProbabilities(t *testing.T) {
	ctx := newContext(t, "")
	p := InverseProbabilities(ctx, ctx.FromFloats([]float32{1, 2, 3, 5, 5, 5}, 2, 3)).Floats()

	// erste Zeile transformiert: [2, 1, 0]
	z := math.Exp(2) + math.Exp(1) + 1
	want := []float32{
		float32(math.Exp(2) / z), float32(math.Exp(1) / z), float32(1 / z),
		1. / 3, 1. / 3, 1. / 3,
	}
	if diff := cmp.Diff(want, p, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("probabilities mismatch (-want +got):\n%s", diff)
	}

	// die Position mit dem hoechsten Score bekommt die kleinste Wahrscheinlichkeit
	assert.Greater(t, p[0], p[1])
	assert.Greater(t, p[1], p[2])
}

func TestInverseProbabilitiesUnderflow(t *testing.T) {
	ctx := newContext(t, "")
	p := InverseProbabilities(ctx, ctx.FromFloats([]float32{0, 0, -1000}, 1, 3))
	assert.Equal(t, []float32{0, 0, 1}, p.Floats())
}

func TestThreads(t *testing.T) {
	b, err := cpu.New(ml.BackendParams{NumThreads: 3})
	require.NoError(t, err)

	ctx := b.NewContext()
	assert.Equal(t, 3, threads(ctx))

	// Kontexte ohne Thread-Einstellung fallen auf GOMAXPROCS zurueck
	assert.Equal(t, 0, threads(struct{ ml.Context }{ctx}))
}

func TestComputeMaskCount(t *testing.T) {
	ctx := newContext(t, "")
	ta := &TaskAttention{}

	for _, seqLen := range []int{1, 2, 3, 4, 7, 9} {
		for _, rate := range []float64{0, 0.1, 0.25, 0.5, 0.75, 0.9} {
			t.Run(fmt.Sprintf("seq=%d/rate=%v", seqLen, rate), func(t *testing.T) {
				const batch, hidden = 3, 4
				output := randomTensor(ctx, uint64(seqLen), seqLen, batch, hidden)
				task := randomTensor(ctx, 99, batch, hidden, 1)

				mask, err := ta.ComputeMask(ctx, output, task, rate, nil, rand.NewSource(1))
				require.NoError(t, err)
				require.Equal(t, output.Shape(), mask.Shape())

				n := SampleCount(rate, seqLen)
				for b, zeros := range zeroPositions(t, mask) {
					assert.Len(t, zeros, n, "batch %d", b)
				}
			})
		}
	}
}

func TestComputeMaskSinglePosition(t *testing.T) {
	ctx := newContext(t, "")

	output := randomTensor(ctx, 1, 1, 2, 3)
	task := randomTensor(ctx, 2, 2, 3, 1)

	mask, err := (&TaskAttention{}).ComputeMask(ctx, output, task, 0, nil, rand.NewSource(5))
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 6), mask.Floats())
}

func TestComputeMaskMasksLowestScore(t *testing.T) {
	ctx := newContext(t, "")

	// Scores [0, 0, -1000]: nur die Position mit dem niedrigsten Score hat
	// nach softmax(max - score) noch Wahrscheinlichkeitsmasse
	output := ctx.FromFloats([]float32{
		0, 0, 0,
		0, 0, 0,
		-1000, 0, 0,
	}, 3, 1, 3)
	task := ctx.FromFloats([]float32{1, 0, 0}, 1, 3, 1)

	for seed := range uint64(10) {
		mask, err := (&TaskAttention{}).ComputeMask(ctx, output, task, 0.25, nil, rand.NewSource(seed))
		require.NoError(t, err)
		assert.Equal(t, [][]int{{2}}, zeroPositions(t, mask))
	}

	// zwei Samples brauchen zwei Positionen mit Masse
	_, err := (&TaskAttention{}).ComputeMask(ctx, output, task, 0.7, nil, rand.NewSource(1))
	assert.ErrorIs(t, err, ml.ErrDegenerateSequence)
}

func TestComputeMaskDeterministic(t *testing.T) {
	ctx := newContext(t, "")

	output := randomTensor(ctx, 3, 8, 4, 5)
	task := randomTensor(ctx, 4, 4, 5, 1)

	compute := func(ta *TaskAttention, seed uint64) []float32 {
		mask, err := ta.ComputeMask(ctx, output, task, 0.25, nil, rand.NewSource(seed))
		require.NoError(t, err)
		return mask.Floats()
	}

	first := compute(&TaskAttention{}, 42)
	assert.Equal(t, first, compute(&TaskAttention{}, 42))
	assert.Equal(t, first, compute(&TaskAttention{Parallel: 1}, 42))
	assert.Equal(t, first, compute(&TaskAttention{Parallel: 16}, 42))

	distinct := false
	for seed := range uint64(20) {
		if !cmp.Equal(first, compute(&TaskAttention{}, seed+100)) {
			distinct = true
			break
		}
	}
	assert.True(t, distinct, "every seed produced the same mask")
}

func TestComputeMaskIgnoresLengthsWithoutPolicy(t *testing.T) {
	ctx := newContext(t, "")

	output := randomTensor(ctx, 5, 6, 2, 3)
	task := randomTensor(ctx, 6, 2, 3, 1)

	withLengths, err := (&TaskAttention{}).ComputeMask(ctx, output, task, 0.5, []int32{1, 2}, rand.NewSource(8))
	require.NoError(t, err)
	without, err := (&TaskAttention{}).ComputeMask(ctx, output, task, 0.5, nil, rand.NewSource(8))
	require.NoError(t, err)

	assert.Equal(t, without.Floats(), withLengths.Floats())
}

func TestComputeMaskZeroPadding(t *testing.T) {
	ctx := newContext(t, "")

	output := randomTensor(ctx, 7, 4, 2, 3)
	task := randomTensor(ctx, 8, 2, 3, 1)
	ta := &TaskAttention{Padding: ZeroPadding{}}

	mask, err := ta.ComputeMask(ctx, output, task, 0.25, []int32{4, 2}, rand.NewSource(3))
	require.NoError(t, err)

	zeros := zeroPositions(t, mask)
	assert.Len(t, zeros[0], 1)
	assert.Subset(t, zeros[1], []int{2, 3})
	assert.GreaterOrEqual(t, len(zeros[1]), 2)

	_, err = ta.ComputeMask(ctx, output, task, 0.25, []int32{4}, rand.NewSource(3))
	assert.ErrorIs(t, err, ml.ErrShapeMismatch)
}

func TestComputeMaskErrors(t *testing.T) {
	ctx := newContext(t, "")
	other := newContext(t, "1")

	output := randomTensor(ctx, 1, 4, 2, 3)
	task := randomTensor(ctx, 2, 2, 3, 1)

	cases := []struct {
		name   string
		output ml.Tensor
		task   ml.Tensor
		rate   float64
		err    error
	}{
		{"negative rate", output, task, -0.1, ml.ErrInvalidDropoutRate},
		{"rate one", output, task, 1, ml.ErrInvalidDropoutRate},
		{"rate nan", output, task, math.NaN(), ml.ErrInvalidDropoutRate},
		{"empty sequence", ctx.Zeros(ml.DTypeF32, 0, 2, 3), task, 0.5, ml.ErrDegenerateSequence},
		{"task shape", output, randomTensor(ctx, 3, 2, 3), 0.5, ml.ErrShapeMismatch},
		{"output rank", randomTensor(ctx, 4, 8, 3), task, 0.5, ml.ErrShapeMismatch},
		{"task device", output, randomTensor(other, 2, 2, 3, 1), 0.5, ml.ErrDeviceMismatch},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&TaskAttention{}).ComputeMask(ctx, tt.output, tt.task, tt.rate, nil, rand.NewSource(1))
			assert.ErrorIs(t, err, tt.err)
		})
	}

	_, err := (&TaskAttention{}).ComputeMask(ctx, output, task, 0.5, nil, nil)
	assert.ErrorIs(t, err, ml.ErrNoRandomSource)
}

func TestMaskedPositions(t *testing.T) {
	ctx := newContext(t, "")

	// [S=3, B=2, H=2]
	mask := ctx.FromFloats([]float32{
		0, 0, 1, 1,
		1, 1, 1, 1,
		1, 1, 0, 0,
	}, 3, 2, 2)
	assert.Equal(t, [][]int{{0}, {2}}, MaskedPositions(mask))

	assert.Equal(t, [][]int{{}, {}}, MaskedPositions(ctx.Zeros(ml.DTypeF32, 3, 2, 0)))
}
