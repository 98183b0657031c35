// context.go - Context und Tensor Interfaces fuer ML-Operationen
// Dieses Modul definiert die Schnittstellen fuer Tensor-Operationen und Compute-Kontexte.
//
// Formen werden aussen-zuerst angegeben (row-major): [S, B, H] bedeutet
// Sequenz, Batch, Hidden, wobei H die innerste (zusammenhaengende) Achse ist.
// Das weicht bewusst von der ggml-Konvention ab.
package ml

// Context represents an execution context for tensor operations. Every
// tensor created by a context lives on the context's device.
type Context interface {
	Zeros(dtype DType, shape ...int) Tensor
	Ones(dtype DType, shape ...int) Tensor
	FromFloats(s []float32, shape ...int) Tensor
	FromInts(s []int32, shape ...int) Tensor

	// Device returns the device tensors of this context are placed on
	Device() DeviceID

	Close()
}

// Tensor represents a multi-dimensional array with various operations.
//
// Operations panic on malformed operands, the same way a graph backend
// aborts on an invalid node. Callers that accept user input validate shapes
// and devices first and report ErrShapeMismatch or ErrDeviceMismatch.
type Tensor interface {
	Dim(n int) int
	Shape() []int
	DType() DType
	Device() DeviceID

	Floats() []float32
	Ints() []int32

	Cast(ctx Context, dtype DType) Tensor

	// Add and Mul are elementwise and require equal shapes
	Add(ctx Context, t2 Tensor) Tensor
	Mul(ctx Context, t2 Tensor) Tensor
	Scale(ctx Context, s float64) Tensor

	// Mulmat is a batched matrix product: [..., M, K] x [..., K, N] -> [..., M, N].
	// Leading (batch) dimensions must match.
	Mulmat(ctx Context, t2 Tensor) Tensor

	// Softmax and LayerNorm operate over the innermost axis. weight and
	// bias may be nil.
	Softmax(ctx Context) Tensor
	LayerNorm(ctx Context, weight, bias Tensor, eps float32) Tensor

	Reshape(ctx Context, shape ...int) Tensor
	Permute(ctx Context, order ...int) Tensor

	// Repeat repeats the tensor n times along dimension dim
	Repeat(ctx Context, dim, n int) Tensor

	// Scatter writes value into a copy of a 2D tensor [R, C] at the column
	// indices given per row by idxs [R, K] (DTypeI32).
	Scatter(ctx Context, idxs Tensor, value float32) Tensor
}
