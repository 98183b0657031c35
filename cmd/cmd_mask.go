// cmd_mask.go - mask Command
// Hauptfunktionen: MaskHandler, renderMask
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/exp/rand"
	"golang.org/x/term"

	"github.com/taskdrop/taskdrop/api"
	"github.com/taskdrop/taskdrop/envconfig"
	"github.com/taskdrop/taskdrop/ml"
	"github.com/taskdrop/taskdrop/ml/backend/cpu"
	"github.com/taskdrop/taskdrop/ml/nn/sublayer"
)

// MaskHandler - Berechnet eine Strukturmaske fuer zufaellige Aktivierungen
func MaskHandler(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	seqLen, _ := flags.GetInt("seq")
	batch, _ := flags.GetInt("batch")
	hidden, _ := flags.GetInt("hidden")
	dropout, _ := flags.GetFloat64("dropout")
	seed, _ := flags.GetUint64("seed")
	lengths, _ := flags.GetInt32Slice("lengths")
	padding, _ := flags.GetBool("padding")
	remote, _ := flags.GetBool("remote")
	asJSON, _ := flags.GetBool("json")
	dtype, _ := flags.GetString("dtype")

	if seqLen < 0 || batch < 0 || hidden < 0 {
		return fmt.Errorf("%w: seq, batch and hidden must not be negative", ml.ErrShapeMismatch)
	}

	rng := rand.New(rand.NewSource(seed))
	req := api.MaskRequest{
		Output:        normal(rng, seqLen*batch*hidden),
		Shape:         [3]int{seqLen, batch, hidden},
		TaskEmbedding: normal(rng, batch*hidden),
		Dropout:       &dropout,
		Seed:          &seed,
		DType:         dtype,
	}
	if padding {
		if len(lengths) != batch {
			return fmt.Errorf("%w: --padding needs one length per example, got %d for batch %d", ml.ErrShapeMismatch, len(lengths), batch)
		}
		req.Lengths = lengths
	}

	var resp *api.MaskResponse
	var err error
	if remote {
		client, cerr := api.ClientFromEnvironment()
		if cerr != nil {
			return cerr
		}
		resp, err = client.Mask(cmd.Context(), &req)
	} else {
		resp, err = computeMask(&req)
	}
	if err != nil {
		return err
	}

	if asJSON || !term.IsTerminal(int(os.Stdout.Fd())) {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	renderMask(cmd.OutOrStdout(), resp)
	return nil
}

// computeMask rechnet lokal auf dem CPU-Backend
func computeMask(req *api.MaskRequest) (*api.MaskResponse, error) {
	dtype, err := ml.ParseFloatDType(req.DType)
	if err != nil {
		return nil, err
	}

	backend, err := ml.NewBackend(cpu.Library, ml.BackendParams{NumThreads: int(envconfig.NumThreads())})
	if err != nil {
		return nil, err
	}
	defer backend.Close()

	ctx := backend.NewContext()
	defer ctx.Close()

	ta := &sublayer.TaskAttention{}
	if req.Lengths != nil {
		ta.Padding = sublayer.ZeroPadding{}
	}

	batch, hidden := req.Shape[1], req.Shape[2]
	output := ctx.FromFloats(req.Output, req.Shape[:]...).Cast(ctx, dtype)
	task := ctx.FromFloats(req.TaskEmbedding, batch, hidden, 1).Cast(ctx, dtype)

	mask, err := ta.ComputeMask(ctx, output, task, *req.Dropout, req.Lengths, rand.NewSource(*req.Seed))
	if err != nil {
		return nil, err
	}

	return &api.MaskResponse{
		Mask:   mask.Floats(),
		Shape:  req.Shape,
		Masked: sublayer.MaskedPositions(mask),
	}, nil
}

// renderMask - Tabelle mit einer Zeile pro Sequenzposition und einer Spalte pro Beispiel
func renderMask(w io.Writer, resp *api.MaskResponse) {
	seqLen, batch := resp.Shape[0], resp.Shape[1]

	header := []string{"POS"}
	for b := range batch {
		header = append(header, "EXAMPLE "+strconv.Itoa(b))
	}

	data := make([][]string, seqLen)
	for s := range data {
		data[s] = append(data[s], strconv.Itoa(s))
		for range batch {
			data[s] = append(data[s], "keep")
		}
	}
	for b, positions := range resp.Masked {
		for _, s := range positions {
			data[s][b+1] = "drop"
		}
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

func normal(rng *rand.Rand, n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(rng.NormFloat64())
	}
	return s
}

// newMaskCmd - Erstellt den mask Command
func newMaskCmd() *cobra.Command {
	maskCmd := &cobra.Command{
		Use:   "mask",
		Short: "Sample a structured dropout mask for random activations",
		Args:  cobra.ExactArgs(0),
		RunE:  MaskHandler,
	}

	maskCmd.Flags().Int("seq", 8, "Sequence length")
	maskCmd.Flags().Int("batch", 2, "Batch size")
	maskCmd.Flags().Int("hidden", 4, "Hidden size")
	maskCmd.Flags().Float64("dropout", envconfig.Dropout(), "Fraction of sequence positions to drop")
	maskCmd.Flags().Uint64("seed", envconfig.Seed(), "Seed for activations and sampling")
	maskCmd.Flags().Int32Slice("lengths", nil, "Valid length per example (with --padding)")
	maskCmd.Flags().Bool("padding", false, "Zero positions beyond each example's length")
	maskCmd.Flags().Bool("remote", false, "Compute the mask on a running taskdrop server")
	maskCmd.Flags().Bool("json", false, "Print JSON even on a terminal")
	maskCmd.Flags().String("dtype", "f32", "Precision of the activations (f32, f16, bf16)")
	return maskCmd
}
