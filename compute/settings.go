package compute

// Settings carries the per-evaluation choices a client supplies to
// InitiateCalculation (spec.md §3 "Settings"). They apply to the evaluation
// about to run; UseDoublePrecision in particular must agree with whatever
// precision a cached kernel for the same (id, version) was originally built
// with — a mismatch is treated as a version bump and forces a rebuild (see
// DESIGN.md, Open Question 1).
type Settings struct {
	// UseDoublePrecision selects the kernel's floating point type: double
	// when true (device must advertise cl_khr_fp64, see CapabilityMismatch),
	// float32 otherwise.
	UseDoublePrecision bool

	// RNGSeed seeds the Mersenne-Twister state used by the shared variate
	// pool. Fixing the seed makes variate draws bitwise-reproducible across
	// runs at identical (dim, steps, n) (spec.md §8 "Determinism"). The pool
	// is seeded once per Context, from the RNGSeed of the first evaluation
	// that draws variates; later evaluations' RNGSeed values do not reseed it.
	RNGSeed uint64

	// Debug enables the three accumulated timing counters in DebugInfo
	// (NumberOfOperations is counted regardless) and emits logrus
	// Debug-level phase timing during FinalizeCalculation.
	Debug bool
}
