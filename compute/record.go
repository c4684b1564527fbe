package compute

import "github.com/jgillich/go-opencl/cl"

// inputDescriptor is recorded per input variable (spec.md §3 "Input
// descriptor"). Offsets are assigned in creation order: offset[k+1] =
// offset[k] + (isScalar[k] ? 1 : n).
type inputDescriptor struct {
	isScalar bool
	offset   int
}

// record is the per-id bookkeeping described by spec.md §3 "Calculation
// record". One record is allocated the first time a client calls
// InitiateCalculation with id == 0, and persists (cached kernel included)
// until DisposeCalculation.
type record struct {
	n        int
	version  uint64
	disposed bool

	hasKernel       bool
	useDouble       bool
	program         *cl.Program
	kernel          *cl.Kernel
	inputBufferSize int // bytes
	nOutputVars     int

	// usesInput/usesRN/usesOutput record which buffer arguments the cached
	// kernel's signature was actually compiled with (set once in
	// buildKernel). FinalizeCalculation binds arguments against these, not
	// against the per-evaluation counters below, since nVariates in
	// particular is not recomputed on a cache-hit evaluation (see
	// resetForEvaluation).
	usesInput  bool
	usesRN     bool
	usesOutput bool

	inputSlots int // total flat input buffer slots (scalars=1, vectors=n)

	// Per-evaluation scratch. Cleared on every InitiateCalculation (the SSA
	// body only when the kernel itself is being rebuilt -- "fresh"). nVariates is the exception: once a kernel is cached,
	// createInputVariates is forbidden (the variate layout is baked into the
	// compiled source), so there is no call that could resupply it -- it
	// must survive resetForEvaluation on a cache-hit evaluation, unlike
	// nInputs, which callers do resupply every evaluation via
	// createInputVariable.
	inputs      []inputDescriptor
	inputValues []float64 // one slot per scalar, n slots per vector -- flat, offset-addressed
	nInputs     int
	nVariates   int
	nVars       int // next fresh intermediate id = nInputs + nVariates + nVars

	ssa      []string // accumulated SSA source lines, flushed at finalize
	freeList []int     // recycled intermediate ids, LIFO
	declared map[int]bool // intermediate ids already given a type prefix

	outputs []int // declared output variable ids, in declaration order
}

func newRecord(n int, version uint64) *record {
	return &record{
		n:        n,
		version:  version,
		declared: make(map[int]bool),
	}
}

// resetForEvaluation clears per-evaluation scratch ahead of a new
// InitiateCalculation call on an existing id. fresh is true when the kernel
// is being (re)built for this call -- in that case the SSA body is also
// cleared; otherwise (kernel is cached and reused) offsets and the
// variable-id layout must reproduce exactly what the cached kernel was
// compiled against, so inputs, vars and the free list are still reset
// (inputs are supplied fresh every evaluation via
// createInputVariable/createInputVector) but the SSA text is not rebuilt.
//
// nVariates is deliberately NOT reset here unless fresh: once a kernel is
// cached, CreateInputVariates refuses to run again (the variate count is
// baked into the compiled kernel's argument signature), so there is no call
// that could resupply it on a cache-hit evaluation. Zeroing it unconditionally
// would corrupt classify() for every variate id on the second and later
// evaluation of a cached kernel.
func (r *record) resetForEvaluation(fresh bool) {
	r.inputs = nil
	r.inputValues = nil
	r.nInputs = 0
	r.nVars = 0
	r.inputSlots = 0
	r.outputs = nil
	r.nOutputVars = 0
	r.freeList = nil
	if fresh {
		r.nVariates = 0
		r.ssa = nil
		r.declared = make(map[int]bool)
	}
}

// classify reports which of the three disjoint id ranges (spec.md §3) a
// variable id falls into.
type idClass int

const (
	classInput idClass = iota
	classVariate
	classIntermediate
)

func (r *record) classify(id int) idClass {
	switch {
	case id < r.nInputs:
		return classInput
	case id < r.nInputs+r.nVariates:
		return classVariate
	default:
		return classIntermediate
	}
}

// allocIntermediate returns the next intermediate variable id, popping the
// free list when non-empty (spec.md §4.2.5), and reports whether the id was
// recycled (in which case the emitted SSA line omits the leading type
// prefix -- the variable is already declared).
func (r *record) allocIntermediate() (id int, recycled bool) {
	if n := len(r.freeList); n > 0 {
		id = r.freeList[n-1]
		r.freeList = r.freeList[:n-1]
		return id, true
	}
	id = r.nInputs + r.nVariates + r.nVars
	r.nVars++
	return id, false
}

// free pushes an intermediate id back onto the free list. It is a no-op for
// input and variate ids (spec.md §4.2.6).
func (r *record) free(id int) {
	if r.classify(id) != classIntermediate {
		return
	}
	r.freeList = append(r.freeList, id)
	delete(r.declared, id)
}
