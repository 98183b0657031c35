// cmd_forward.go - forward Command
// Hauptfunktionen: ForwardHandler, runForward
package cmd

import (
	"fmt"
	"io"
	"math"

	"github.com/spf13/cobra"
	"golang.org/x/exp/rand"

	"github.com/taskdrop/taskdrop/envconfig"
	"github.com/taskdrop/taskdrop/ml"
	"github.com/taskdrop/taskdrop/ml/backend/cpu"
	"github.com/taskdrop/taskdrop/ml/nn"
	"github.com/taskdrop/taskdrop/ml/nn/sublayer"
)

type forwardOptions struct {
	SeqLen, Batch, Hidden int

	Dropout          float64
	AttentionDropout bool
	Eval             bool
	Seed             uint64
	Lengths          []int32
	DType            string
	Verbose          bool
}

// recordingSampler merkt sich die zuletzt berechnete Maske
type recordingSampler struct {
	sublayer.MaskSampler
	mask ml.Tensor
}

func (r *recordingSampler) ComputeMask(ctx ml.Context, output, batchTask ml.Tensor, rate float64, lengths []int32, src rand.Source) (ml.Tensor, error) {
	mask, err := r.MaskSampler.ComputeMask(ctx, output, batchTask, rate, lengths, src)
	r.mask = mask
	return mask, err
}

// ForwardHandler - Fuehrt einen Residual-Block mit Linear-Sub-Layer aus
func ForwardHandler(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()

	var opts forwardOptions
	opts.SeqLen, _ = flags.GetInt("seq")
	opts.Batch, _ = flags.GetInt("batch")
	opts.Hidden, _ = flags.GetInt("hidden")
	opts.Dropout, _ = flags.GetFloat64("dropout")
	opts.Seed, _ = flags.GetUint64("seed")
	opts.Lengths, _ = flags.GetInt32Slice("lengths")
	opts.Eval, _ = flags.GetBool("eval")
	opts.Verbose, _ = flags.GetBool("verbose")
	opts.DType, _ = flags.GetString("dtype")

	noAttention, _ := flags.GetBool("no-attention-dropout")
	opts.AttentionDropout = envconfig.AttentionDropout(true) && !noAttention

	return runForward(cmd.OutOrStdout(), opts)
}

func runForward(w io.Writer, opts forwardOptions) error {
	if opts.SeqLen < 0 || opts.Batch < 0 || opts.Hidden <= 0 {
		return fmt.Errorf("%w: seq and batch must not be negative, hidden must be positive", ml.ErrShapeMismatch)
	}

	dtype, err := ml.ParseFloatDType(opts.DType)
	if err != nil {
		return err
	}

	backend, err := ml.NewBackend(cpu.Library, ml.BackendParams{NumThreads: int(envconfig.NumThreads())})
	if err != nil {
		return err
	}
	defer backend.Close()

	ctx := backend.NewContext()
	defer ctx.Close()

	src := rand.NewSource(opts.Seed)
	linear := nn.NewLinear(ctx, opts.Hidden, opts.Hidden, src)
	block := sublayer.New(ctx, opts.Hidden, opts.Dropout, opts.AttentionDropout, src)

	var rec *recordingSampler
	if opts.AttentionDropout {
		ta := &sublayer.TaskAttention{}
		if opts.Lengths != nil {
			ta.Padding = sublayer.ZeroPadding{}
		}
		rec = &recordingSampler{MaskSampler: ta}
		block.Sampler = rec
	}
	if opts.Eval {
		block.Eval()
	}

	params := block.Parameters()
	params.Merge("sublayer", linear.Parameters())

	x := ctx.FromFloats(normal(rand.New(src), opts.SeqLen*opts.Batch*opts.Hidden), opts.SeqLen, opts.Batch, opts.Hidden).Cast(ctx, dtype)
	out, err := block.Forward(ctx, x, linear.Forward, opts.Lengths, src)
	if err != nil {
		return err
	}

	mode := "standard dropout"
	switch {
	case opts.Eval:
		mode = "eval"
	case opts.AttentionDropout:
		mode = "attention dropout"
	}

	mean, std := moments(out.Floats())
	fmt.Fprintf(w, "shape:      %v\n", out.Shape())
	fmt.Fprintf(w, "mode:       %s (rate %v)\n", mode, opts.Dropout)
	fmt.Fprintf(w, "dtype:      %s\n", dtype)
	fmt.Fprintf(w, "parameters: %d\n", params.Len())
	fmt.Fprintf(w, "mean:       %.4f\n", mean)
	fmt.Fprintf(w, "std:        %.4f\n", std)
	if rec != nil && rec.mask != nil {
		fmt.Fprintf(w, "masked:     %v\n", sublayer.MaskedPositions(rec.mask))
	}

	if opts.Verbose {
		fmt.Fprintln(w, ml.Dump(out, ml.DumpWithPrecision(3)))
	}
	return nil
}

func moments(s []float32) (mean, std float64) {
	if len(s) == 0 {
		return 0, 0
	}

	for _, v := range s {
		mean += float64(v)
	}
	mean /= float64(len(s))

	for _, v := range s {
		d := float64(v) - mean
		std += d * d
	}
	return mean, math.Sqrt(std / float64(len(s)))
}

// newForwardCmd - Erstellt den forward Command
func newForwardCmd() *cobra.Command {
	forwardCmd := &cobra.Command{
		Use:   "forward",
		Short: "Run one residual block with a linear sub-layer on random input",
		Args:  cobra.ExactArgs(0),
		RunE:  ForwardHandler,
	}

	forwardCmd.Flags().Int("seq", 8, "Sequence length")
	forwardCmd.Flags().Int("batch", 2, "Batch size")
	forwardCmd.Flags().Int("hidden", 4, "Hidden size")
	forwardCmd.Flags().Float64("dropout", envconfig.Dropout(), "Dropout rate of the block")
	forwardCmd.Flags().Uint64("seed", envconfig.Seed(), "Seed for parameters, input and sampling")
	forwardCmd.Flags().Int32Slice("lengths", nil, "Valid length per example, enables zero padding")
	forwardCmd.Flags().Bool("eval", false, "Run in evaluation mode (no regularization)")
	forwardCmd.Flags().Bool("no-attention-dropout", false, "Use element-wise dropout instead of structured masking")
	forwardCmd.Flags().Bool("verbose", false, "Print the output tensor")
	forwardCmd.Flags().String("dtype", "f32", "Precision of the input activations (f32, f16, bf16)")
	return forwardCmd
}
