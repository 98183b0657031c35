package nn

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/taskdrop/taskdrop/ml"
	"github.com/taskdrop/taskdrop/ml/backend/cpu"
)

func newContext(t *testing.T, id string) ml.Context {
	t.Helper()

	b, err := cpu.New(ml.BackendParams{DeviceID: ml.DeviceID{ID: id}})
	require.NoError(t, err)

	ctx := b.NewContext()
	t.Cleanup(ctx.Close)
	return ctx
}

func TestParameters(t *testing.T) {
	ctx := newContext(t, "")

	norm := NewLayerNorm(ctx, 2)
	params := NewParameters(NewParameter("a", ctx.Zeros(ml.DTypeF32, 1)))
	params.Merge("norm", norm.Parameters())

	frozen := NewParameter("frozen", ctx.Zeros(ml.DTypeF32, 1))
	frozen.Trainable = false
	params.Add(frozen)

	var names []string
	for name := range params.All() {
		names = append(names, name)
	}
	assert.Equal(t, []string{"a", "norm.weight", "norm.bias", "frozen"}, names)
	assert.Equal(t, 4, params.Len())
	assert.Len(t, params.Trainable(), 3)

	// Merge teilt die Parameter
	w, ok := params.Get("norm.weight")
	require.True(t, ok)
	assert.Same(t, norm.Weight, w)

	_, ok = params.Get("weight")
	assert.False(t, ok)

	assert.Panics(t, func() { params.Add(NewParameter("a", ctx.Zeros(ml.DTypeF32, 1))) })
}

func TestParameterUpdate(t *testing.T) {
	ctx := newContext(t, "")
	other := newContext(t, "1")

	p := NewParameter("w", ctx.Zeros(ml.DTypeF32, 2))
	assert.ErrorIs(t, p.Update(ctx.Zeros(ml.DTypeF32, 3)), ml.ErrShapeMismatch)
	assert.ErrorIs(t, p.Update(other.Zeros(ml.DTypeF32, 2)), ml.ErrDeviceMismatch)

	require.NoError(t, p.Update(ctx.Ones(ml.DTypeF32, 2)))
	assert.Equal(t, []float32{1, 1}, p.Tensor.Floats())
}

func TestLayerNorm(t *testing.T) {
	ctx := newContext(t, "")

	norm := NewLayerNorm(ctx, 4)
	assert.Equal(t, []float32{1, 1, 1, 1}, norm.Weight.Tensor.Floats())
	assert.Equal(t, []float32{0, 0, 0, 0}, norm.Bias.Tensor.Floats())

	out := norm.Forward(ctx, ctx.FromFloats([]float32{1, 2, 3, 4, 2, 2, 2, 2}, 2, 4), 1e-12).Floats()

	var mean, variance float32
	for _, v := range out[:4] {
		mean += v
	}
	for _, v := range out[:4] {
		variance += (v - mean/4) * (v - mean/4)
	}
	assert.InDelta(t, 0, mean/4, 1e-6)
	assert.InDelta(t, 1, variance/4, 1e-5)
	assert.Equal(t, []float32{0, 0, 0, 0}, out[4:])
}

func TestDropout(t *testing.T) {
	ctx := newContext(t, "")
	x := ctx.Ones(ml.DTypeF32, 1000)

	d := NewDropout(0.25)
	assert.InDelta(t, 0.25, d.P(), 0)

	// ausserhalb des Trainings unveraendert, src wird nicht gelesen
	assert.Same(t, x, d.Forward(ctx, x, false, nil))
	assert.Same(t, x, NewDropout(0).Forward(ctx, x, true, nil))
	assert.PanicsWithValue(t, "nn: dropout: no random source", func() { d.Forward(ctx, x, true, nil) })

	out := d.Forward(ctx, x, true, rand.NewSource(1)).Floats()
	var dropped int
	for _, v := range out {
		switch v {
		case 0:
			dropped++
		case float32(1 / 0.75):
		default:
			t.Fatalf("unexpected value %v", v)
		}
	}
	assert.InDelta(t, 250, dropped, 60)

	assert.Equal(t, out, d.Forward(ctx, x, true, rand.NewSource(1)).Floats())
	assert.Equal(t, make([]float32, 1000), NewDropout(1).Forward(ctx, x, true, rand.NewSource(1)).Floats())
}

func TestLinear(t *testing.T) {
	ctx := newContext(t, "")

	m := NewLinear(ctx, 3, 2, rand.NewSource(1))
	assert.Equal(t, []int{3, 2}, m.Weight.Tensor.Shape())
	for _, v := range m.Weight.Tensor.Floats() {
		assert.LessOrEqual(t, v, float32(1.1))
		assert.GreaterOrEqual(t, v, float32(-1.1))
	}

	require.NoError(t, m.Weight.Update(ctx.FromFloats([]float32{
		1, 0,
		0, 1,
		1, 1,
	}, 3, 2)))
	require.NoError(t, m.Bias.Update(ctx.FromFloats([]float32{10, 20}, 2)))

	out := m.Forward(ctx, ctx.FromFloats([]float32{1, 2, 3, 4, 5, 6}, 2, 1, 3))
	assert.Equal(t, []int{2, 1, 2}, out.Shape())
	if diff := cmp.Diff([]float32{14, 25, 20, 31}, out.Floats(), cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("linear mismatch (-want +got):\n%s", diff)
	}

	names := []string{}
	for name := range m.Parameters().All() {
		names = append(names, name)
	}
	assert.Equal(t, []string{"weight", "bias"}, names)
}
