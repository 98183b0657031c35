// errors.go - Fehler-Taxonomie fuer Tensor-Operationen
// Alle Fehler sind fail-fast und werden mit %w um Kontext ergaenzt.
package ml

import "errors"

var (
	// ErrShapeMismatch: Operanden haben inkompatible Formen
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrInvalidDropoutRate: Dropout-Rate liegt ausserhalb von [0,1)
	ErrInvalidDropoutRate = errors.New("invalid dropout rate")

	// ErrDegenerateSequence: Sequenzlaenge 0 oder zu wenige Positionen zum Sampeln
	ErrDegenerateSequence = errors.New("degenerate sequence")

	// ErrDeviceMismatch: Operanden liegen auf verschiedenen Geraeten
	ErrDeviceMismatch = errors.New("device mismatch")

	// ErrNoRandomSource: Training ohne Zufallsquelle
	ErrNoRandomSource = errors.New("no random source")

	// ErrUnsupportedDType: Datentyp wird fuer Aktivierungen nicht unterstuetzt
	ErrUnsupportedDType = errors.New("unsupported dtype")
)
