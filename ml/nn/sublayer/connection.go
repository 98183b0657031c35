// MODUL: connection
// ZWECK: Residual-Verbindung mit Normalisierung um einen beliebigen Sub-Layer
// INPUT: Eingabe [S,B,H], Sub-Layer, Laengen pro Beispiel, Zufallsquelle
// OUTPUT: LayerNorm(x + regularize(sublayer(x)))
// NEBENEFFEKTE: Keine, ausser Zufallszahlen aus der uebergebenen Quelle
// ABHAENGIGKEITEN: ml, ml/nn, gonum distuv
// HINWEISE: Im Training mit aktivierter Strukturmaskierung ersetzt die
//           TaskAttention-Maske das elementweise Dropout.

package sublayer

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/taskdrop/taskdrop/ml"
	"github.com/taskdrop/taskdrop/ml/nn"
)

// NormEpsilon ist das Epsilon der abschliessenden LayerNorm
const NormEpsilon = 1e-12

// ErrNoTaskEmbedding: der Block wurde ohne Strukturmaskierung gebaut
var ErrNoTaskEmbedding = errors.New("sublayer: block has no task embedding")

// SubLayer ist die gekapselte, formerhaltende Transformation
type SubLayer func(ctx ml.Context, t ml.Tensor) ml.Tensor

// Connection ist ein Residual-Block mit waehlbarer Regularisierung
type Connection struct {
	Norm    *nn.LayerNorm
	Dropout nn.Dropout

	// TaskEmbedding ist nil, wenn der Block ohne Strukturmaskierung gebaut wurde
	TaskEmbedding *nn.Parameter
	Sampler       MaskSampler

	size             int
	attentionDropout bool
	rate             float64
	training         bool
}

// New baut einen Block fuer Hidden-Breite size. Mit attentionDropout wird ein
// standardnormal initialisiertes Task-Embedding angelegt; die Rate der
// Strukturmaske startet bei dropout.
func New(ctx ml.Context, size int, dropout float64, attentionDropout bool, src rand.Source) *Connection {
	c := &Connection{
		Norm:             nn.NewLayerNorm(ctx, size),
		Dropout:          nn.NewDropout(dropout),
		size:             size,
		attentionDropout: attentionDropout,
		training:         true,
	}

	if attentionDropout {
		dist := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
		embd := make([]float32, size)
		for i := range embd {
			embd[i] = float32(dist.Rand())
		}

		c.TaskEmbedding = nn.NewParameter("task_embd", ctx.FromFloats(embd, size))
		c.Sampler = &TaskAttention{}
		c.rate = dropout
	}

	return c
}

// Forward berechnet LayerNorm(x + regularize(fn(x))). Im Training mit
// aktiver Regularisierung ist src Pflicht.
func (c *Connection) Forward(ctx ml.Context, x ml.Tensor, fn SubLayer, lengths []int32, src rand.Source) (ml.Tensor, error) {
	shape := x.Shape()
	if len(shape) == 0 || shape[len(shape)-1] != c.size {
		return nil, fmt.Errorf("sublayer: %w: input %v for hidden size %d", ml.ErrShapeMismatch, shape, c.size)
	}

	h := fn(ctx, x)
	if !slices.Equal(h.Shape(), shape) {
		return nil, fmt.Errorf("sublayer: %w: sub-layer returned %v for input %v", ml.ErrShapeMismatch, h.Shape(), shape)
	}

	if err := ml.SameDevice(ctx, x, h, c.Norm.Weight.Tensor); err != nil {
		return nil, fmt.Errorf("sublayer: %w", err)
	}

	if c.training && src == nil && (c.attentionDropout || c.Dropout.P() > 0) {
		return nil, fmt.Errorf("sublayer: %w: training mode needs src", ml.ErrNoRandomSource)
	}

	if c.attentionDropout && c.training {
		if len(shape) != 3 {
			return nil, fmt.Errorf("sublayer: %w: input must be [seq, batch, hidden], got %v", ml.ErrShapeMismatch, shape)
		}

		if err := ml.SameDevice(ctx, c.TaskEmbedding.Tensor); err != nil {
			return nil, fmt.Errorf("sublayer: %w", err)
		}

		batchTask := c.TaskEmbedding.Tensor.Reshape(ctx, 1, c.size, 1).Repeat(ctx, 0, shape[1])
		mask, err := c.Sampler.ComputeMask(ctx, h, batchTask, c.rate, lengths, src)
		if err != nil {
			return nil, fmt.Errorf("sublayer: %w", err)
		}

		h = h.Mul(ctx, mask)
	} else {
		h = c.Dropout.Forward(ctx, h, c.training, src)
	}

	return c.Norm.Forward(ctx, x.Add(ctx, h), NormEpsilon), nil
}

// UpdateDropout setzt die Rate der Strukturmaske. Ohne aktive
// Strukturmaskierung passiert nichts; das elementweise Dropout bleibt immer
// unveraendert. Die Rate wird erst in ComputeMask geprueft.
func (c *Connection) UpdateDropout(rate float64) {
	if !c.attentionDropout {
		return
	}

	slog.Debug("attention dropout updated", "from", c.rate, "to", rate)
	c.rate = rate
}

// SetAttentionDropout schaltet die Strukturmaskierung um
func (c *Connection) SetAttentionDropout(enabled bool) error {
	if enabled && c.TaskEmbedding == nil {
		return ErrNoTaskEmbedding
	}

	c.attentionDropout = enabled
	return nil
}

func (c *Connection) AttentionDropout() bool {
	return c.attentionDropout
}

// DropoutRate ist die Rate der Strukturmaske
func (c *Connection) DropoutRate() float64 {
	return c.rate
}

// StandardDropout ist die feste Rate des elementweisen Dropouts
func (c *Connection) StandardDropout() float64 {
	return c.Dropout.P()
}

func (c *Connection) Train() { c.training = true }

func (c *Connection) Eval() { c.training = false }

func (c *Connection) Training() bool { return c.training }

// Parameters gibt alle trainierbaren Werte des Blocks zurueck
func (c *Connection) Parameters() *nn.Parameters {
	params := nn.NewParameters()
	params.Merge("norm", c.Norm.Parameters())
	if c.TaskEmbedding != nil {
		params.Add(c.TaskEmbedding)
	}
	return params
}
