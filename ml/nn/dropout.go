package nn

import (
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/taskdrop/taskdrop/ml"
)

// Dropout setzt im Training Elemente mit Wahrscheinlichkeit P auf Null und
// skaliert die verbleibenden mit 1/(1-P). P ist nach der Konstruktion fest.
type Dropout struct {
	p float64
}

func NewDropout(p float64) Dropout {
	return Dropout{p: p}
}

func (d Dropout) P() float64 {
	return d.p
}

// Forward wendet Dropout an; ausserhalb des Trainings oder bei P == 0 wird
// t unveraendert zurueckgegeben. src wird nur im Training gelesen und darf
// dort nicht nil sein.
func (d Dropout) Forward(ctx ml.Context, t ml.Tensor, training bool, src rand.Source) ml.Tensor {
	if !training || d.p <= 0 {
		return t
	}

	if src == nil {
		panic(fmt.Sprintf("nn: dropout: %v", ml.ErrNoRandomSource))
	}

	shape := t.Shape()
	keep := make([]float32, elements(shape))
	if d.p < 1 {
		rng := rand.New(src)
		scale := float32(1 / (1 - d.p))
		for i := range keep {
			if rng.Float64() >= d.p {
				keep[i] = scale
			}
		}
	}

	return t.Mul(ctx, ctx.FromFloats(keep, shape...))
}

func elements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
