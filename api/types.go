// types.go - Request- und Response-Typen der HTTP-API
// Enthaelt: StatusError, MaskRequest/MaskResponse, ForwardRequest/ForwardResponse
package api

import (
	"fmt"
)

// StatusError is an error with an HTTP status code and message.
type StatusError struct {
	StatusCode   int
	Status       string
	ErrorMessage string `json:"error"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		// this should not happen
		return "something went wrong, please see the taskdrop server logs for details"
	}
}

// MaskRequest beschreibt eine einzelne Maskenberechnung
type MaskRequest struct {
	// Output ist die Sub-Layer-Ausgabe [S,B,H], flach und row-major
	Output []float32 `json:"output"`

	// Shape ist [S, B, H]
	Shape [3]int `json:"shape"`

	// TaskEmbedding hat B*H Werte, ein Embedding pro Beispiel
	TaskEmbedding []float32 `json:"task_embedding"`

	// Dropout ist die Rate der Strukturmaske, nil nimmt TASKDROP_DROPOUT
	Dropout *float64 `json:"dropout,omitempty"`

	// Lengths aktiviert Zero-Padding hinter der jeweiligen Laenge
	Lengths []int32 `json:"lengths,omitempty"`

	// Seed fuer das Sampling, nil nimmt TASKDROP_SEED
	Seed *uint64 `json:"seed,omitempty"`

	// DType ist die Praezision der Aktivierungen: f32 (Default), f16 oder bf16
	DType string `json:"dtype,omitempty"`
}

// MaskResponse ist die Antwort auf einen MaskRequest
type MaskResponse struct {
	// Mask hat die Form von Output und enthaelt nur 0 und 1
	Mask  []float32 `json:"mask"`
	Shape [3]int    `json:"shape"`

	// Masked listet pro Beispiel die maskierten Sequenzpositionen
	Masked [][]int `json:"masked"`
}

// ForwardRequest beschreibt einen Forward-Aufruf eines Residual-Blocks.
// Der Sub-Layer wird clientseitig ausgefuehrt und als SubLayer uebergeben.
type ForwardRequest struct {
	Input    []float32 `json:"input"`
	SubLayer []float32 `json:"sublayer"`
	Shape    [3]int    `json:"shape"`

	Dropout          *float64 `json:"dropout,omitempty"`
	AttentionDropout *bool    `json:"attention_dropout,omitempty"`

	// Training ist per Default an
	Training *bool `json:"training,omitempty"`

	// TaskEmbedding hat H Werte; ohne wird es aus Seed initialisiert
	TaskEmbedding []float32 `json:"task_embedding,omitempty"`

	Lengths []int32 `json:"lengths,omitempty"`
	Seed    *uint64 `json:"seed,omitempty"`
	DType   string  `json:"dtype,omitempty"`
}

type ForwardResponse struct {
	Output []float32 `json:"output"`
	Shape  [3]int    `json:"shape"`
}
