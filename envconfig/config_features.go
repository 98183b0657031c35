// config_features.go - Regularisierungs- und Sampling-Parameter
//
// Dieses Modul enthaelt:
// - Dropout-Defaults fuer Residual-Bloecke
// - Seed und Parallelitaet des Mask-Samplings
// - Groessenlimits fuer Server-Anfragen
package envconfig

// =============================================================================
// Regularisierung
// =============================================================================

var (
	// Dropout ist die Standard-Dropout-Rate neuer Bloecke
	// Konfigurierbar via TASKDROP_DROPOUT
	Dropout = Float("TASKDROP_DROPOUT", 0.3)

	// AttentionDropout aktiviert die aufmerksamkeitsgesteuerte Maskierung
	AttentionDropout = BoolWithDefault("TASKDROP_ATTENTION_DROPOUT")
)

// =============================================================================
// Sampling
// =============================================================================

var (
	// Seed initialisiert die Zufallsquelle von CLI und Server
	// Konfigurierbar via TASKDROP_SEED
	Seed = Uint64("TASKDROP_SEED", 0)

	// NumThreads begrenzt parallel gesampelte Batch-Zeilen (0 = GOMAXPROCS)
	// Konfigurierbar via TASKDROP_NUM_THREADS
	NumThreads = Uint("TASKDROP_NUM_THREADS", 0)
)

// =============================================================================
// Server-Limits
// =============================================================================

var (
	// MaxElements begrenzt Dimensionen und Elementanzahl einer Anfrage-Form
	// Konfigurierbar via TASKDROP_MAX_ELEMENTS
	MaxElements = Uint("TASKDROP_MAX_ELEMENTS", 1<<24)
)
