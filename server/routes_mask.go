// routes_mask.go - Handler fuer Maskenberechnung und Block-Forward
// Beinhaltet: MaskHandler, ForwardHandler, Fehler-Mapping auf HTTP-Status
package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/bits"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/exp/rand"

	"github.com/taskdrop/taskdrop/api"
	"github.com/taskdrop/taskdrop/envconfig"
	"github.com/taskdrop/taskdrop/ml"
	"github.com/taskdrop/taskdrop/ml/nn/sublayer"
)

// MaskHandler verarbeitet /api/mask Anfragen
func (s *Server) MaskHandler(c *gin.Context) {
	var req api.MaskRequest
	if !bindJSON(c, &req) {
		return
	}

	size, err := checkShape(req.Shape)
	if err != nil {
		handleError(c, err)
		return
	}

	batch, hidden := req.Shape[1], req.Shape[2]
	if err := checkLen("output", req.Shape, len(req.Output), size); err != nil {
		handleError(c, err)
		return
	}
	if err := checkLen("task_embedding", req.Shape, len(req.TaskEmbedding), batch*hidden); err != nil {
		handleError(c, err)
		return
	}

	dtype, err := ml.ParseFloatDType(req.DType)
	if err != nil {
		handleError(c, err)
		return
	}

	ctx := s.backend.NewContext()
	defer ctx.Close()

	rate := envconfig.Dropout()
	if req.Dropout != nil {
		rate = *req.Dropout
	}

	output := ctx.FromFloats(req.Output, req.Shape[:]...).Cast(ctx, dtype)
	task := ctx.FromFloats(req.TaskEmbedding, batch, hidden, 1).Cast(ctx, dtype)

	mask, err := s.sampler(req.Lengths).ComputeMask(ctx, output, task, rate, req.Lengths, rand.NewSource(seed(req.Seed)))
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.MaskResponse{
		Mask:   mask.Floats(),
		Shape:  req.Shape,
		Masked: sublayer.MaskedPositions(mask),
	})
}

// ForwardHandler verarbeitet /api/forward Anfragen. Jede Anfrage baut einen
// frischen Block, der Sub-Layer ist die mitgeschickte Ausgabe.
func (s *Server) ForwardHandler(c *gin.Context) {
	var req api.ForwardRequest
	if !bindJSON(c, &req) {
		return
	}

	size, err := checkShape(req.Shape)
	if err != nil {
		handleError(c, err)
		return
	}

	hidden := req.Shape[2]
	for name, n := range map[string]int{"input": len(req.Input), "sublayer": len(req.SubLayer)} {
		if err := checkLen(name, req.Shape, n, size); err != nil {
			handleError(c, err)
			return
		}
	}

	dtype, err := ml.ParseFloatDType(req.DType)
	if err != nil {
		handleError(c, err)
		return
	}

	rate := envconfig.Dropout()
	if req.Dropout != nil {
		rate = *req.Dropout
	}
	if math.IsNaN(rate) || rate < 0 || rate > 1 {
		handleError(c, fmt.Errorf("%w: %v not in [0,1]", ml.ErrInvalidDropoutRate, rate))
		return
	}

	attention := envconfig.AttentionDropout(true)
	if req.AttentionDropout != nil {
		attention = *req.AttentionDropout
	}

	ctx := s.backend.NewContext()
	defer ctx.Close()

	src := rand.NewSource(seed(req.Seed))
	block := sublayer.New(ctx, hidden, rate, attention, src)
	if attention {
		block.Sampler = s.sampler(req.Lengths)
	}

	if req.TaskEmbedding != nil && block.TaskEmbedding != nil {
		if err := block.TaskEmbedding.Update(ctx.FromFloats(req.TaskEmbedding, len(req.TaskEmbedding))); err != nil {
			handleError(c, err)
			return
		}
	}

	if req.Training != nil && !*req.Training {
		block.Eval()
	}

	x := ctx.FromFloats(req.Input, req.Shape[:]...).Cast(ctx, dtype)
	h := ctx.FromFloats(req.SubLayer, req.Shape[:]...).Cast(ctx, dtype)

	out, err := block.Forward(ctx, x, func(ml.Context, ml.Tensor) ml.Tensor { return h }, req.Lengths, src)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.ForwardResponse{Output: out.Floats(), Shape: req.Shape})
}

func (s *Server) sampler(lengths []int32) *sublayer.TaskAttention {
	ta := &sublayer.TaskAttention{}
	if lengths != nil {
		ta.Padding = sublayer.ZeroPadding{}
	}
	return ta
}

func bindJSON(c *gin.Context, req any) bool {
	err := c.ShouldBindJSON(req)
	switch {
	case errors.Is(err, io.EOF):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return false
	case err != nil:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func seed(s *uint64) uint64 {
	if s != nil {
		return *s
	}
	return envconfig.Seed()
}

// checkShape prueft eine Anfrage-Form gegen TASKDROP_MAX_ELEMENTS und gibt
// die Elementanzahl zurueck. Null-Dimensionen zaehlen fuer das Limit als 1,
// sonst kaeme [1, N, 0] mit N leeren Zeilen durch.
func checkShape(shape [3]int) (int, error) {
	limit := min(uint64(envconfig.MaxElements()), math.MaxInt)

	bound := uint64(1)
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("%w: negative dimension in %v", ml.ErrShapeMismatch, shape)
		}

		hi, lo := bits.Mul64(bound, uint64(max(d, 1)))
		if hi != 0 || lo > limit {
			return 0, fmt.Errorf("%w: shape %v exceeds %d elements", ml.ErrShapeMismatch, shape, limit)
		}
		bound = lo
	}
	return shape[0] * shape[1] * shape[2], nil
}

// checkLen prueft, dass ein flaches Feld die Form shape ausfuellt
func checkLen(name string, shape [3]int, have, want int) error {
	if have != want {
		return fmt.Errorf("%w: %s has %d values, shape %v needs %d", ml.ErrShapeMismatch, name, have, shape, want)
	}
	return nil
}

// handleError bildet Fehler auf HTTP-Status ab
func handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ml.ErrShapeMismatch),
		errors.Is(err, ml.ErrInvalidDropoutRate),
		errors.Is(err, ml.ErrDegenerateSequence),
		errors.Is(err, ml.ErrDeviceMismatch),
		errors.Is(err, ml.ErrUnsupportedDType),
		errors.Is(err, sublayer.ErrNoTaskEmbedding):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		slog.Error("request failed", "path", c.Request.URL.Path, "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
