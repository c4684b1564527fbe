// Package compute implements the Compute Context (spec.md §4.2): the
// central state machine that owns one OpenCL device, its command queue, the
// shared variate pool, and the per-calculation kernel cache, and drives the
// Build Phase and Run Phase of a vectorised arithmetic evaluation.
package compute

import (
	"fmt"
	"sync"
	"time"

	"github.com/jgillich/go-opencl/cl"
	"github.com/sirupsen/logrus"

	"github.com/finmath-go/orecl/opcode"
)

// InitRetryAttempts and InitRetryBackoff govern Context.Init's retry loop
// (spec.md Design Notes: "10 attempts x 10s sleep; make the parameters
// compile-time constants but easy to override for tests"). They are plain
// package variables rather than untyped consts specifically so tests can
// shrink the backoff.
var (
	InitRetryAttempts = 10
	InitRetryBackoff  = 10 * time.Second
)

// Context is a Device Registry-owned state machine. It is safe for
// concurrent use in the sense that calls are serialized by an internal
// mutex, but the protocol itself (spec.md §4.2) is single-threaded from the
// client's point of view: interleaving two calculations' calls from
// separate goroutines will simply serialize them, not run them concurrently.
type Context struct {
	mu sync.Mutex

	name           string
	device         *cl.Device
	supportsDouble bool
	log            *logrus.Logger

	initialized bool
	unhealthy   bool

	clContext *cl.Context
	queue     *cl.CommandQueue
	typeSizes map[string]int

	pool variatePool

	records []*record // records[id-1] for 1-based id
	recID   int
	rec     *record
	state   state

	currentSettings Settings

	debug DebugInfo
}

// NewContext constructs a freshly built but uninitialised Context for one
// device (spec.md §4.1). Init must be called before any other method.
func NewContext(name string, device *cl.Device, supportsDouble bool, log *logrus.Logger) *Context {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Context{
		name:           name,
		device:         device,
		supportsDouble: supportsDouble,
		log:            log,
	}
}

// Name returns the canonical device name this Context was registered under.
func (c *Context) Name() string { return c.name }

// Init creates the OpenCL context and command queue, retrying on failure up
// to InitRetryAttempts times with InitRetryBackoff between attempts (spec.md
// §4.2.1). It is idempotent: a second call on an already-initialised,
// healthy Context is a no-op. A Context that exhausts its retries is marked
// permanently unhealthy and rejects all further operations with
// DeviceInit.
func (c *Context) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initLocked()
}

func (c *Context) initLocked() error {
	if c.initialized {
		return nil
	}
	if c.unhealthy {
		return newErr(KindDeviceInit, "context previously failed to initialize and is unhealthy", nil)
	}

	var lastErr error
	var clCtx *cl.Context
	for attempt := 1; attempt <= InitRetryAttempts; attempt++ {
		var err error
		clCtx, err = cl.CreateContext([]*cl.Device{c.device})
		if err == nil {
			break
		}
		lastErr = err
		c.log.WithFields(logrus.Fields{"device": c.name, "attempt": attempt}).
			WithError(err).Warn("compute: context creation failed, retrying")
		clCtx = nil
		if attempt < InitRetryAttempts {
			time.Sleep(InitRetryBackoff)
		}
	}
	if clCtx == nil {
		c.unhealthy = true
		return newErr(KindDeviceInit, fmt.Sprintf("failed to create OpenCL context after %d attempts", InitRetryAttempts), lastErr)
	}

	queue, err := clCtx.CreateCommandQueue(c.device, 0)
	if err != nil {
		clCtx.Release()
		c.unhealthy = true
		return newErr(KindDeviceInit, "create command queue", err)
	}

	sizes, err := probeTypeSizes(clCtx, queue, c.device, c.supportsDouble)
	if err != nil {
		c.log.WithError(err).Warn("compute: type-size probes failed, continuing without them")
		sizes = map[string]int{}
	}

	c.clContext = clCtx
	c.queue = queue
	c.typeSizes = sizes
	c.initialized = true
	return nil
}

// TypeSizes returns a copy of the host/device type sizes probed during
// Init (spec.md §4.1 "type sizes", §6 "host and device type sizes"). It is
// empty until Init has succeeded at least once.
func (c *Context) TypeSizes() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.typeSizes))
	for k, v := range c.typeSizes {
		out[k] = v
	}
	return out
}

// Healthy reports whether the Context can still accept operations.
func (c *Context) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.unhealthy
}

// checkReady fails fast if Init hasn't succeeded or the Context has gone
// unhealthy since.
func (c *Context) checkReady() error {
	if c.unhealthy {
		return newErr(KindDeviceInit, "context is unhealthy", nil)
	}
	if !c.initialized {
		return newErr(KindBadState, "context not initialized: call Init first", nil)
	}
	return nil
}

// activeUseDouble reports the precision in effect for the evaluation
// currently in progress.
func (c *Context) activeUseDouble() bool { return c.currentSettings.UseDoublePrecision }

func elemSize(useDouble bool) int {
	if useDouble {
		return 8
	}
	return 4
}

// InitiateCalculation begins (or resumes) a calculation (spec.md §4.2.2).
// id == 0 allocates a new calculation and always reports fresh = true.
// Reusing an id with a different version -- or a different
// UseDoublePrecision than the cached kernel was built with, per DESIGN.md's
// Open Question 1 resolution -- forces a kernel rebuild and also reports
// fresh = true.
func (c *Context) InitiateCalculation(n int, id int, version uint64, settings Settings) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkReady(); err != nil {
		return 0, false, err
	}
	if err := c.requireState("initiateCalculation", stateIdle); err != nil {
		return 0, false, err
	}
	if n < 1 {
		return 0, false, newErr(KindBadState, "n must be >= 1", nil)
	}

	var rec *record
	fresh := false

	if id == 0 {
		rec = newRecord(n, version)
		c.records = append(c.records, rec)
		id = len(c.records)
		fresh = true
	} else {
		if id < 1 || id > len(c.records) {
			return 0, false, newErr(KindBadID, fmt.Sprintf("calculation id %d does not exist", id), nil)
		}
		rec = c.records[id-1]
		if rec.disposed {
			return 0, false, newErr(KindBadID, fmt.Sprintf("calculation id %d is disposed", id), nil)
		}
		if rec.n != n {
			return 0, false, newErr(KindBadID, fmt.Sprintf("calculation id %d was created with n=%d, not %d", id, rec.n, n), nil)
		}

		precisionChanged := rec.hasKernel && rec.useDouble != settings.UseDoublePrecision
		versionChanged := version != rec.version
		if versionChanged || precisionChanged {
			c.releaseKernelLocked(rec)
			rec.version = version
			fresh = true
		}
	}

	rec.resetForEvaluation(fresh)
	c.recID = id
	c.rec = rec
	c.currentSettings = settings
	c.state = stateCreateInput

	return id, fresh, nil
}

// CreateInputScalar appends a scalar input descriptor and returns its
// variable id (spec.md §4.2.3). The value is clamped to the finite float32
// range when single precision is active, so an out-of-range double input
// can never surface as NaN/Inf inside the generated kernel.
func (c *Context) CreateInputScalar(value float64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireState("createInputVariable", stateCreateInput); err != nil {
		return 0, err
	}
	rec := c.rec
	if !c.currentSettings.UseDoublePrecision {
		value = clampToFiniteFloat32(value)
	}
	id := rec.nInputs
	offset := rec.inputSlots
	rec.inputs = append(rec.inputs, inputDescriptor{isScalar: true, offset: offset})
	rec.inputValues = append(rec.inputValues, value)
	rec.inputSlots++
	rec.nInputs++
	return id, nil
}

// CreateInputVector appends a vector input descriptor occupying n
// contiguous flat-buffer slots and returns its variable id (spec.md
// §4.2.3). len(values) must equal the calculation's n.
func (c *Context) CreateInputVector(values []float64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireState("createInputVariable", stateCreateInput); err != nil {
		return 0, err
	}
	rec := c.rec
	if len(values) != rec.n {
		return 0, newErr(KindBadState, fmt.Sprintf("vector input must have length n=%d, got %d", rec.n, len(values)), nil)
	}
	id := rec.nInputs
	offset := rec.inputSlots
	rec.inputs = append(rec.inputs, inputDescriptor{isScalar: false, offset: offset})
	for _, v := range values {
		if !c.currentSettings.UseDoublePrecision {
			v = clampToFiniteFloat32(v)
		}
		rec.inputValues = append(rec.inputValues, v)
	}
	rec.inputSlots += rec.n
	rec.nInputs++
	return id, nil
}

// CreateInputVariates allocates dim*steps fresh variable ids drawn from the
// shared variate pool, growing the pool as needed (spec.md §4.2.4). It is
// forbidden once a kernel already exists for the current (id, version),
// since a cached kernel has the variate layout baked into its source.
// createInputVariates(0, 0) never touches the pool (spec.md §8 boundary
// behaviour).
func (c *Context) CreateInputVariates(dim, steps int) ([][]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireState("createInputVariates", stateCreateInput, stateCreateVariates); err != nil {
		return nil, err
	}
	rec := c.rec
	if rec.hasKernel {
		return nil, newErr(KindBadState, "createInputVariates: a kernel already exists for this (id, version)", nil)
	}
	if dim < 0 || steps < 0 {
		return nil, newErr(KindBadState, "dim and steps must be >= 0", nil)
	}

	total := dim * steps
	base := rec.nInputs + rec.nVariates
	rec.nVariates += total
	c.state = stateCreateVariates

	ids := make([][]int, dim)
	for d := 0; d < dim; d++ {
		ids[d] = make([]int, steps)
		for s := 0; s < steps; s++ {
			ids[d][s] = base + d*steps + s
		}
	}

	if total == 0 {
		return ids, nil
	}

	demand := rec.nVariates * rec.n
	if err := c.pool.ensure(c, demand, c.currentSettings.RNGSeed); err != nil {
		return nil, err
	}
	return ids, nil
}

// ApplyOperation resolves args to source expressions, emits the
// corresponding single-assignment kernel source line, and returns the
// result variable id (spec.md §4.2.5).
func (c *Context) ApplyOperation(code opcode.Code, args []int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireState("applyOperation", stateCreateInput, stateCreateVariates, stateCalc); err != nil {
		return 0, err
	}
	rec := c.rec

	exprs := make([]string, len(args))
	for i, id := range args {
		expr, err := resolveArg(rec, id)
		if err != nil {
			return 0, err
		}
		exprs[i] = expr
	}

	rhs, err := opcode.Emit(code, exprs)
	if err != nil {
		return 0, newErr(KindUnknownOpcode, fmt.Sprintf("applyOperation: opcode %v", code), err)
	}

	resultID, recycled := rec.allocIntermediate()
	emitSSA(rec, c.currentSettings.UseDoublePrecision, resultID, recycled, rhs)

	c.debug.NumberOfOperations++
	c.state = stateCalc
	return resultID, nil
}

// FreeVariable returns an intermediate id to the free list so a later
// operation's result can reuse it (spec.md §4.2.6). It is a no-op for input
// and variate ids, and forbidden for intermediates once a kernel already
// exists for the current (id, version).
func (c *Context) FreeVariable(id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireState("freeVariable", stateCalc); err != nil {
		return err
	}
	rec := c.rec
	if rec.classify(id) == classIntermediate && rec.hasKernel {
		return newErr(KindBadState, "freeVariable: forbidden once a kernel exists for this (id, version)", nil)
	}
	rec.free(id)
	return nil
}

// DeclareOutputVariable appends id to the output list (spec.md §4.2.7).
func (c *Context) DeclareOutputVariable(id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireState("declareOutputVariable", stateCreateInput, stateCreateVariates, stateCalc); err != nil {
		return err
	}
	rec := c.rec
	maxID := rec.nInputs + rec.nVariates + rec.nVars
	if id < 0 || id >= maxID {
		return newErr(KindBadID, fmt.Sprintf("declareOutputVariable: %d is not a known variable id", id), nil)
	}
	rec.outputs = append(rec.outputs, id)
	rec.nOutputVars = len(rec.outputs)
	return nil
}

// DisposeCalculation marks id disposed and releases its cached program and
// kernel. Disposing an unknown or already-disposed id fails with BadId
// (spec.md §4.2.9).
func (c *Context) DisposeCalculation(id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id < 1 || id > len(c.records) {
		return newErr(KindBadID, fmt.Sprintf("disposeCalculation: %d does not exist", id), nil)
	}
	rec := c.records[id-1]
	if rec.disposed {
		return newErr(KindBadID, fmt.Sprintf("disposeCalculation: %d already disposed", id), nil)
	}
	c.releaseKernelLocked(rec)
	rec.disposed = true
	return nil
}

func (c *Context) releaseKernelLocked(rec *record) {
	if rec.kernel != nil {
		rec.kernel.Release()
		rec.kernel = nil
	}
	if rec.program != nil {
		rec.program.Release()
		rec.program = nil
	}
	rec.hasKernel = false
}

// Close releases every device handle this Context owns: every calculation's
// cached program/kernel, the variate pool, the command queue and the
// OpenCL context itself (spec.md §5 "All device-side handles are released
// on every exit path").
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, rec := range c.records {
		c.releaseKernelLocked(rec)
	}
	c.pool.release()

	if c.queue != nil {
		if err := c.queue.Release(); err != nil {
			return newErr(KindDeviceOp, "release command queue", err)
		}
		c.queue = nil
	}
	if c.clContext != nil {
		if err := c.clContext.Release(); err != nil {
			return newErr(KindDeviceOp, "release OpenCL context", err)
		}
		c.clContext = nil
	}
	return nil
}

// clampToFiniteFloat32 clamps a float64 into the finite float32 range so
// converting it to float32 later can never produce +/-Inf (spec.md §4.2.3,
// §8 "Single precision clamps input magnitudes ... does not produce
// NaN/Inf").
func clampToFiniteFloat32(v float64) float64 {
	const maxFloat32 = 3.4028234663852886e+38
	switch {
	case v != v: // NaN
		return v
	case v > maxFloat32:
		return maxFloat32
	case v < -maxFloat32:
		return -maxFloat32
	default:
		return v
	}
}
