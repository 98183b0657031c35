// types.go - Datentypen und Konstanten fuer ML-Operationen
// Dieses Modul definiert grundlegende Typen wie DType.
package ml

import "fmt"

// DType represents the data type of tensor elements.
type DType int

const (
	DTypeOther DType = iota
	DTypeF32
	DTypeF16
	DTypeBF16
	DTypeI32
)

func (d DType) String() string {
	switch d {
	case DTypeF32:
		return "f32"
	case DTypeF16:
		return "f16"
	case DTypeBF16:
		return "bf16"
	case DTypeI32:
		return "i32"
	default:
		return "other"
	}
}

// ParseDType liefert den DType zu einem Namen wie "f16", unbekannte Namen ergeben DTypeOther
func ParseDType(s string) DType {
	for _, d := range []DType{DTypeF32, DTypeF16, DTypeBF16, DTypeI32} {
		if d.String() == s {
			return d
		}
	}
	return DTypeOther
}

// ParseFloatDType liefert den Gleitkomma-Typ, in dem Aktivierungen gehalten
// werden. "" ergibt f32, erlaubt sind f32, f16 und bf16.
func ParseFloatDType(s string) (DType, error) {
	if s == "" {
		return DTypeF32, nil
	}

	switch d := ParseDType(s); d {
	case DTypeF32, DTypeF16, DTypeBF16:
		return d, nil
	}
	return DTypeOther, fmt.Errorf("%w: %q", ErrUnsupportedDType, s)
}
