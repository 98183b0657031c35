// MODUL: task_attention
// ZWECK: Aufmerksamkeitsgesteuerte Strukturmaske fuer Residual-Bloecke
// INPUT: Sub-Layer-Ausgabe [S,B,H], Batch-Task-Embedding [B,H,1], Rate, Zufallsquelle
// OUTPUT: Binaere Maske [S,B,H], pro Beispiel n ganze Sequenzpositionen auf 0
// NEBENEFFEKTE: Liest Zufallszahlen aus der uebergebenen Quelle
// ABHAENGIGKEITEN: gonum sampleuv, x/exp/rand, x/sync/errgroup
// HINWEISE: Die Sampling-Verteilung ist softmax(rowMax - score), Positionen
//           mit hohem Score werden also seltener maskiert. Softmax ist
//           verschiebungsinvariant, daher reicht softmax(-score).

package sublayer

import (
	"cmp"
	"fmt"
	"math"
	"runtime"
	"slices"

	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/taskdrop/taskdrop/logutil"
	"github.com/taskdrop/taskdrop/ml"
)

// MaskSampler berechnet die Strukturmaske fuer einen Forward-Aufruf
type MaskSampler interface {
	ComputeMask(ctx ml.Context, output, batchTask ml.Tensor, rate float64, lengths []int32, src rand.Source) (ml.Tensor, error)
}

// TaskAttention ist der zustandslose Standard-MaskSampler
type TaskAttention struct {
	// Padding wird nach dem Sampling angewendet, nil ignoriert lengths
	Padding PaddingPolicy

	// Parallel begrenzt gleichzeitig gesampelte Batch-Zeilen. 0 nimmt die
	// Thread-Zahl des Backends, sonst GOMAXPROCS.
	Parallel int
}

// ComputeMask liefert eine {0,1}-Maske in der Form von output
func (ta *TaskAttention) ComputeMask(ctx ml.Context, output, batchTask ml.Tensor, rate float64, lengths []int32, src rand.Source) (ml.Tensor, error) {
	if err := ml.SameDevice(ctx, output, batchTask); err != nil {
		return nil, fmt.Errorf("task attention: %w", err)
	}

	shape := output.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("task attention: %w: output must be [seq, batch, hidden], got %v", ml.ErrShapeMismatch, shape)
	}

	seqLen, batch, hidden := shape[0], shape[1], shape[2]
	if want := []int{batch, hidden, 1}; !slices.Equal(batchTask.Shape(), want) {
		return nil, fmt.Errorf("task attention: %w: task embedding must be %v, got %v", ml.ErrShapeMismatch, want, batchTask.Shape())
	}

	if math.IsNaN(rate) || rate < 0 || rate >= 1 {
		return nil, fmt.Errorf("task attention: %w: %v not in [0,1)", ml.ErrInvalidDropoutRate, rate)
	}

	if seqLen == 0 {
		return nil, fmt.Errorf("task attention: %w: empty sequence", ml.ErrDegenerateSequence)
	}

	if src == nil {
		return nil, fmt.Errorf("task attention: %w", ml.ErrNoRandomSource)
	}

	n := SampleCount(rate, seqLen)

	// [S,B,H] -> [B,S,H], dann pro Beispiel Skalarprodukt mit dem Embedding
	q := output.Permute(ctx, 1, 0, 2)
	w := q.Mulmat(ctx, batchTask).Reshape(ctx, batch, seqLen)

	idxs, err := ta.sample(InverseProbabilities(ctx, w).Floats(), batch, seqLen, n, src, threads(ctx))
	if err != nil {
		return nil, fmt.Errorf("task attention: %w", err)
	}

	mask := ctx.Ones(ml.DTypeF32, batch, seqLen).Scatter(ctx, ctx.FromInts(idxs, batch, n), 0)
	if ta.Padding != nil {
		if mask, err = ta.Padding.Apply(ctx, mask, lengths); err != nil {
			return nil, fmt.Errorf("task attention: %w", err)
		}
	}

	logutil.Trace("task attention mask", "seq", seqLen, "batch", batch, "hidden", hidden, "rate", rate, "n", n)

	return mask.Reshape(ctx, batch, seqLen, 1).Repeat(ctx, 2, hidden).Permute(ctx, 1, 0, 2), nil
}

// MaskedPositions listet pro Beispiel die Positionen einer Maske [S,B,H] mit Wert 0
func MaskedPositions(mask ml.Tensor) [][]int {
	seqLen, batch, hidden := mask.Dim(0), mask.Dim(1), mask.Dim(2)
	data := mask.Floats()

	masked := make([][]int, batch)
	for b := range masked {
		masked[b] = []int{}
		if hidden == 0 {
			continue
		}
		for s := range seqLen {
			if data[(s*batch+b)*hidden] == 0 {
				masked[b] = append(masked[b], s)
			}
		}
	}
	return masked
}

// SampleCount ist die Anzahl maskierter Positionen pro Beispiel: max(1, floor(rate*seqLen))
func SampleCount(rate float64, seqLen int) int {
	return max(1, int(math.Floor(rate*float64(seqLen))))
}

// InverseProbabilities berechnet zeilenweise softmax(max(scores) - scores)
// ueber die innerste Achse. Unterlaeufe ergeben 0.
func InverseProbabilities(ctx ml.Context, scores ml.Tensor) ml.Tensor {
	return scores.Scale(ctx, -1).Softmax(ctx)
}

// threads liefert die Thread-Zahl des Backends, falls der Kontext sie kennt
func threads(ctx ml.Context) int {
	if t, ok := ctx.(interface{ Threads() int }); ok {
		return t.Threads()
	}
	return 0
}

// sample zieht pro Batch-Zeile n Indizes ohne Zuruecklegen. Jede Zeile hat
// einen eigenen Generator, dessen Seed in Zeilenreihenfolge aus src stammt,
// daher ist das Ergebnis unabhaengig von der Parallelitaet.
func (ta *TaskAttention) sample(probs []float32, batch, seqLen, n int, src rand.Source, limit int) ([]int32, error) {
	seeds := make([]uint64, batch)
	for b := range seeds {
		seeds[b] = src.Uint64()
	}

	idxs := make([]int32, batch*n)

	var g errgroup.Group
	g.SetLimit(cmp.Or(ta.Parallel, limit, runtime.GOMAXPROCS(0)))
	for b := range batch {
		g.Go(func() error {
			row := make([]float64, seqLen)
			for t := range row {
				row[t] = float64(probs[b*seqLen+t])
			}

			picked, err := multinomial(row, n, rand.NewSource(seeds[b]))
			if err != nil {
				return fmt.Errorf("batch row %d: %w", b, err)
			}

			copy(idxs[b*n:(b+1)*n], picked)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return idxs, nil
}

// multinomial zieht n verschiedene Indizes mit Gewichten p
func multinomial(p []float64, n int, src rand.Source) ([]int32, error) {
	var positive int
	for _, v := range p {
		if math.IsNaN(v) {
			return nil, fmt.Errorf("%w: non-finite attention scores", ml.ErrDegenerateSequence)
		}
		if v > 0 {
			positive++
		}
	}

	if n > positive {
		return nil, fmt.Errorf("%w: %d samples requested, %d positions with non-zero probability", ml.ErrDegenerateSequence, n, positive)
	}

	w := sampleuv.NewWeighted(p, src)
	picked := make([]int32, n)
	for i := range picked {
		idx, ok := w.Take()
		if !ok {
			return nil, fmt.Errorf("%w: distribution exhausted after %d samples", ml.ErrDegenerateSequence, i)
		}
		picked[i] = int32(idx)
	}
	return picked, nil
}
