// parameters.go - Trainierbare Parameter und ihre geordnete Sammlung
//
// Ein Optimizer findet alle trainierbaren Werte eines Blocks ueber
// Parameters(); die Reihenfolge entspricht der Registrierung.
package nn

import (
	"fmt"
	"iter"
	"slices"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/taskdrop/taskdrop/ml"
)

// Parameter ist ein benannter Tensor, den ein externer Optimizer aktualisiert
type Parameter struct {
	Name      string
	Tensor    ml.Tensor
	Trainable bool
}

// NewParameter erzeugt einen trainierbaren Parameter
func NewParameter(name string, t ml.Tensor) *Parameter {
	return &Parameter{Name: name, Tensor: t, Trainable: true}
}

// Update ersetzt den Wert, Form und Geraet muessen gleich bleiben
func (p *Parameter) Update(t ml.Tensor) error {
	if !slices.Equal(p.Tensor.Shape(), t.Shape()) {
		return fmt.Errorf("parameter %s: %w: have %v, got %v", p.Name, ml.ErrShapeMismatch, p.Tensor.Shape(), t.Shape())
	}
	if err := ml.SameDevice(p.Tensor, t); err != nil {
		return fmt.Errorf("parameter %s: %w", p.Name, err)
	}

	p.Tensor = t
	return nil
}

// Parameters ist eine nach Registrierung geordnete Menge von Parametern
type Parameters struct {
	m *orderedmap.OrderedMap[string, *Parameter]
}

func NewParameters(params ...*Parameter) *Parameters {
	p := &Parameters{m: orderedmap.New[string, *Parameter]()}
	for _, param := range params {
		p.Add(param)
	}
	return p
}

// Add registriert einen Parameter unter seinem Namen
func (p *Parameters) Add(param *Parameter) {
	p.add(param.Name, param)
}

// Merge uebernimmt alle Parameter von other unter "prefix.name". Die
// Parameter werden geteilt, nicht kopiert.
func (p *Parameters) Merge(prefix string, other *Parameters) {
	for name, param := range other.All() {
		p.add(prefix+"."+name, param)
	}
}

// doppelte Namen sind ein Programmierfehler
func (p *Parameters) add(name string, param *Parameter) {
	if _, present := p.m.Get(name); present {
		panic(fmt.Sprintf("nn: parameter %q already registered", name))
	}
	p.m.Set(name, param)
}

func (p *Parameters) Get(name string) (*Parameter, bool) {
	return p.m.Get(name)
}

func (p *Parameters) Len() int {
	return p.m.Len()
}

// All iteriert in Registrierungsreihenfolge
func (p *Parameters) All() iter.Seq2[string, *Parameter] {
	return func(yield func(string, *Parameter) bool) {
		for pair := p.m.Oldest(); pair != nil; pair = pair.Next() {
			if !yield(pair.Key, pair.Value) {
				return
			}
		}
	}
}

// Trainable gibt alle trainierbaren Parameter in Registrierungsreihenfolge zurueck
func (p *Parameters) Trainable() []*Parameter {
	var params []*Parameter
	for _, param := range p.All() {
		if param.Trainable {
			params = append(params, param)
		}
	}
	return params
}
