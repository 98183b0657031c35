package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskdrop/taskdrop/api"
	"github.com/taskdrop/taskdrop/ml"
)

func TestMaskCommandJSON(t *testing.T) {
	var out bytes.Buffer
	cmd := NewCLI()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"mask", "--seq", "4", "--batch", "2", "--hidden", "3", "--dropout", "0.25", "--seed", "1", "--json"})
	require.NoError(t, cmd.Execute())

	var resp api.MaskResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, [3]int{4, 2, 3}, resp.Shape)
	assert.Len(t, resp.Mask, 24)
	for _, m := range resp.Masked {
		assert.Len(t, m, 1)
	}

	// gleicher Seed, gleiche Ausgabe
	var again bytes.Buffer
	cmd = NewCLI()
	cmd.SetOut(&again)
	cmd.SetArgs([]string{"mask", "--seq", "4", "--batch", "2", "--hidden", "3", "--dropout", "0.25", "--seed", "1", "--json"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, out.String(), again.String())
}

func TestMaskCommandDType(t *testing.T) {
	for _, dtype := range []string{"f16", "bf16"} {
		t.Run(dtype, func(t *testing.T) {
			var out bytes.Buffer
			cmd := NewCLI()
			cmd.SetOut(&out)
			cmd.SetArgs([]string{"mask", "--seq", "8", "--batch", "2", "--hidden", "3", "--dropout", "0.25", "--dtype", dtype, "--json"})
			require.NoError(t, cmd.Execute())

			var resp api.MaskResponse
			require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
			for _, m := range resp.Masked {
				assert.Len(t, m, 2)
			}
		})
	}
}

func TestMaskCommandErrors(t *testing.T) {
	cases := map[string][]string{
		"rate":    {"mask", "--dropout", "1"},
		"padding": {"mask", "--batch", "2", "--padding", "--lengths", "3"},
		"shape":   {"mask", "--seq", "-1"},
		"dtype":   {"mask", "--dtype", "q4_0"},
	}

	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			cmd := NewCLI()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetArgs(append(args, "--json"))
			assert.Error(t, cmd.Execute())
		})
	}
}

func TestRenderMask(t *testing.T) {
	var b bytes.Buffer
	renderMask(&b, &api.MaskResponse{
		Shape:  [3]int{3, 2, 1},
		Masked: [][]int{{0}, {2}},
	})

	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"POS", "EXAMPLE", "0", "EXAMPLE", "1"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"0", "drop", "keep"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"1", "keep", "keep"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"2", "keep", "drop"}, strings.Fields(lines[3]))
}

func TestRunForward(t *testing.T) {
	cases := []struct {
		name   string
		opts   forwardOptions
		masked bool
	}{
		{"attention", forwardOptions{SeqLen: 4, Batch: 2, Hidden: 3, Dropout: 0.25, AttentionDropout: true, Seed: 1}, true},
		{"standard", forwardOptions{SeqLen: 4, Batch: 2, Hidden: 3, Dropout: 0.25, Seed: 1}, false},
		{"eval", forwardOptions{SeqLen: 4, Batch: 2, Hidden: 3, Dropout: 0.25, AttentionDropout: true, Eval: true, Seed: 1, Verbose: true}, false},
		{"bf16", forwardOptions{SeqLen: 4, Batch: 2, Hidden: 3, Dropout: 0.25, AttentionDropout: true, Seed: 1, DType: "bf16"}, true},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			var b bytes.Buffer
			require.NoError(t, runForward(&b, tt.opts))
			assert.Contains(t, b.String(), "shape:      [4 2 3]")
			assert.Equal(t, tt.masked, strings.Contains(b.String(), "masked:"))
		})
	}

	err := runForward(&bytes.Buffer{}, forwardOptions{SeqLen: 0, Batch: 2, Hidden: 3, Dropout: 0.3, AttentionDropout: true})
	assert.ErrorIs(t, err, ml.ErrDegenerateSequence)

	var b bytes.Buffer
	require.NoError(t, runForward(&b, forwardOptions{SeqLen: 4, Batch: 2, Hidden: 3, Seed: 1, DType: "f16"}))
	assert.Contains(t, b.String(), "dtype:      f16")

	err = runForward(&bytes.Buffer{}, forwardOptions{SeqLen: 4, Batch: 2, Hidden: 3, DType: "i32"})
	assert.ErrorIs(t, err, ml.ErrUnsupportedDType)
}

func TestMoments(t *testing.T) {
	mean, std := moments([]float32{1, 3})
	assert.InDelta(t, 2, mean, 1e-9)
	assert.InDelta(t, 1, std, 1e-9)

	mean, std = moments(nil)
	assert.Zero(t, mean)
	assert.Zero(t, std)
}
