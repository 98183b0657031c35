package ml_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskdrop/taskdrop/ml"
	"github.com/taskdrop/taskdrop/ml/backend/cpu"
)

func newContext(t *testing.T, id string) ml.Context {
	t.Helper()

	b, err := ml.NewBackend(cpu.Library, ml.BackendParams{DeviceID: ml.DeviceID{ID: id}})
	require.NoError(t, err)
	t.Cleanup(b.Close)

	ctx := b.NewContext()
	t.Cleanup(ctx.Close)
	return ctx
}

func TestNewBackendUnknown(t *testing.T) {
	_, err := ml.NewBackend("metal", ml.BackendParams{})
	assert.Error(t, err)
}

func TestRegisterBackendTwice(t *testing.T) {
	assert.Panics(t, func() {
		ml.RegisterBackend(cpu.Library, cpu.New)
	})
}

func TestDType(t *testing.T) {
	for _, d := range []ml.DType{ml.DTypeF32, ml.DTypeF16, ml.DTypeBF16, ml.DTypeI32} {
		assert.Equal(t, d, ml.ParseDType(d.String()))
	}
	assert.Equal(t, ml.DTypeOther, ml.ParseDType("q4_0"))
	assert.Equal(t, "other", ml.DTypeOther.String())
}

func TestParseFloatDType(t *testing.T) {
	cases := map[string]ml.DType{
		"":     ml.DTypeF32,
		"f32":  ml.DTypeF32,
		"f16":  ml.DTypeF16,
		"bf16": ml.DTypeBF16,
	}
	for in, want := range cases {
		d, err := ml.ParseFloatDType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, d, in)
	}

	for _, in := range []string{"i32", "q4_0", "F16"} {
		_, err := ml.ParseFloatDType(in)
		assert.ErrorIs(t, err, ml.ErrUnsupportedDType, in)
	}
}

func TestSameDevice(t *testing.T) {
	ctx0 := newContext(t, "0")
	ctx1 := newContext(t, "1")

	a := ctx0.Zeros(ml.DTypeF32, 1)
	b := ctx0.Zeros(ml.DTypeF32, 1)
	c := ctx1.Zeros(ml.DTypeF32, 1)

	assert.NoError(t, ml.SameDevice())
	assert.NoError(t, ml.SameDevice(ctx0, a, b, nil))
	assert.ErrorIs(t, ml.SameDevice(a, b, c), ml.ErrDeviceMismatch)
	assert.ErrorIs(t, ml.SameDevice(ctx1, a), ml.ErrDeviceMismatch)

	var typed *cpu.Tensor
	assert.NoError(t, ml.SameDevice(ctx0, typed, a))
	assert.NoError(t, ml.SameDevice(typed))
}

func TestDeviceID(t *testing.T) {
	assert.Equal(t, "cpu:1", ml.DeviceID{ID: "1", Library: "cpu"}.String())
	assert.Equal(t, "1", ml.DeviceID{ID: "1"}.String())
}

func TestDump(t *testing.T) {
	ctx := newContext(t, "")

	cases := []struct {
		name string
		t    ml.Tensor
		opts []ml.DumpOptions
		want string
	}{
		{
			name: "matrix",
			t:    ctx.FromFloats([]float32{1, -2, 3, 4}, 2, 2),
			opts: []ml.DumpOptions{ml.DumpWithPrecision(1)},
			want: "[[ 1.0, -2.0],\n [ 3.0,  4.0]]",
		},
		{
			name: "ints",
			t:    ctx.FromInts([]int32{1, 2, 3}, 3),
			want: "[ 1,  2,  3]",
		},
		{
			name: "edge items",
			t:    ctx.FromInts([]int32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, 10),
			opts: []ml.DumpOptions{ml.DumpWithThreshold(5), ml.DumpWithEdgeItems(2)},
			want: "[ 0,  1, ...,  8,  9]",
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ml.Dump(tt.t, tt.opts...))
		})
	}
}
