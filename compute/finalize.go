package compute

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/jgillich/go-opencl/cl"
	"github.com/sirupsen/logrus"
)

// FinalizeCalculation runs the Build Phase (on a cache miss) and the Run
// Phase of the active evaluation, writing results into outputVectors, and
// unconditionally returns the Context to the idle state -- even on error
// (spec.md §4.2.8, §4.2 "On entry and exit of finalizeCalculation the state
// is restored to idle unconditionally").
func (c *Context) FinalizeCalculation(outputVectors [][]float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() {
		c.state = stateIdle
		c.rec = nil
		c.recID = 0
	}()

	if err := c.checkReady(); err != nil {
		return err
	}
	if err := c.requireState("finalizeCalculation", stateCreateInput, stateCreateVariates, stateCalc); err != nil {
		return err
	}
	rec := c.rec
	if rec == nil {
		return newErr(KindBadState, "finalizeCalculation: no active calculation", nil)
	}
	if len(outputVectors) != rec.nOutputVars {
		return newErr(KindOutputArity, fmt.Sprintf("expected %d output vectors, got %d", rec.nOutputVars, len(outputVectors)), nil)
	}
	for k, v := range outputVectors {
		if len(v) != rec.n {
			return newErr(KindOutputArity, fmt.Sprintf("output vector %d must have length n=%d, got %d", k, rec.n, len(v)), nil)
		}
	}

	useDouble := c.currentSettings.UseDoublePrecision
	if useDouble && !c.supportsDouble {
		return newErr(KindCapabilityMismatch, "double precision requested but device does not support cl_khr_fp64", nil)
	}

	size := elemSize(useDouble)
	logFields := logrus.Fields{"calc_id": c.recID, "version": rec.version, "device": c.name}

	var inputBuf *cl.MemObject
	var outputBuf *cl.MemObject
	defer func() {
		if inputBuf != nil {
			inputBuf.Release()
		}
		if outputBuf != nil {
			outputBuf.Release()
		}
	}()

	if rec.inputSlots > 0 {
		var err error
		inputBuf, err = c.clContext.CreateEmptyBuffer(cl.MemReadOnly, rec.inputSlots*size)
		if err != nil {
			return newErr(KindDeviceOp, "allocate input buffer", err)
		}
		rec.inputBufferSize = rec.inputSlots * size
	}
	if rec.nOutputVars > 0 {
		var err error
		outputBuf, err = c.clContext.CreateEmptyBuffer(cl.MemWriteOnly, rec.nOutputVars*rec.n*size)
		if err != nil {
			return newErr(KindDeviceOp, "allocate output buffer", err)
		}
	}

	if !rec.hasKernel {
		buildStart := time.Now()
		if err := c.buildKernel(rec, useDouble); err != nil {
			return err
		}
		if c.currentSettings.Debug {
			c.debug.addProgramBuild(time.Since(buildStart))
			c.log.WithFields(logFields).WithField("elapsed", time.Since(buildStart)).Debug("compute: program build")
		}
	}

	// Bind against the flags the cached kernel's signature was actually
	// compiled with, not the per-evaluation counters above: on a cache-hit
	// evaluation rec.nVariates survives from the build that created the
	// kernel (resetForEvaluation never re-zeroes it), but rec.inputSlots and
	// rec.nOutputVars are resupplied every evaluation and happen to agree
	// with the persisted flags too -- using the persisted flags uniformly
	// keeps the binding logic independent of which counters are reset when.
	usesInput := rec.usesInput
	usesRN := rec.usesRN
	usesOutput := rec.usesOutput

	var uploadEvt *cl.Event
	if usesInput {
		copyStart := time.Now()
		hostBuf := rec.inputValues
		evt, err := c.queue.EnqueueWriteBuffer(inputBuf, false, 0, len(hostBuf)*size, hostBufPointer(hostBuf, useDouble), nil)
		if err != nil {
			return newErr(KindEnqueueFailed, "enqueue input upload", err)
		}
		uploadEvt = evt
		if c.currentSettings.Debug {
			if err := c.queue.Finish(); err != nil {
				return newErr(KindDeviceOp, "finish after input upload", err)
			}
			c.debug.addDataCopy(time.Since(copyStart))
			c.log.WithFields(logFields).WithField("elapsed", time.Since(copyStart)).Debug("compute: input upload")
		}
	}

	args := make([]interface{}, 0, 4)
	if usesInput {
		args = append(args, inputBuf)
	}
	if usesRN {
		args = append(args, c.pool.pool)
	}
	if usesOutput {
		args = append(args, outputBuf)
	}
	args = append(args, uint32(rec.n))
	if err := rec.kernel.SetArgs(args...); err != nil {
		return newErr(KindDeviceOp, "bind kernel arguments", err)
	}

	calcStart := time.Now()
	var runWait []*cl.Event
	if uploadEvt != nil {
		runWait = []*cl.Event{uploadEvt}
	}
	runEvt, err := c.queue.EnqueueNDRangeKernel(rec.kernel, nil, []int{rec.n}, nil, runWait)
	if err != nil {
		return newErr(KindEnqueueFailed, "enqueue calculation kernel", err)
	}

	readEvents := make([]*cl.Event, 0, rec.nOutputVars)
	floatStaging := make([][]float32, 0, rec.nOutputVars)
	doubleStaging := make([][]float64, 0, rec.nOutputVars)

	for k := 0; k < rec.nOutputVars; k++ {
		offset := k * rec.n * size
		if useDouble {
			buf := make([]float64, rec.n)
			evt, err := c.queue.EnqueueReadBuffer(outputBuf, false, offset, rec.n*size, unsafe.Pointer(&buf[0]), []*cl.Event{runEvt})
			if err != nil {
				return newErr(KindEnqueueFailed, fmt.Sprintf("enqueue readback for output %d", k), err)
			}
			readEvents = append(readEvents, evt)
			doubleStaging = append(doubleStaging, buf)
		} else {
			buf := make([]float32, rec.n)
			evt, err := c.queue.EnqueueReadBuffer(outputBuf, false, offset, rec.n*size, unsafe.Pointer(&buf[0]), []*cl.Event{runEvt})
			if err != nil {
				return newErr(KindEnqueueFailed, fmt.Sprintf("enqueue readback for output %d", k), err)
			}
			readEvents = append(readEvents, evt)
			floatStaging = append(floatStaging, buf)
		}
	}

	if len(readEvents) > 0 {
		if err := cl.WaitForEvents(readEvents); err != nil {
			return newErr(KindDeviceOp, "wait for output readback", err)
		}
	} else {
		if err := c.queue.Finish(); err != nil {
			return newErr(KindDeviceOp, "finish calculation with no outputs", err)
		}
	}

	if c.currentSettings.Debug {
		c.debug.addCalculation(time.Since(calcStart))
		c.log.WithFields(logFields).WithField("elapsed", time.Since(calcStart)).Debug("compute: enqueue+readback")
	}

	if useDouble {
		for k, buf := range doubleStaging {
			copy(outputVectors[k], buf)
		}
	} else {
		for k, buf := range floatStaging {
			for i, f := range buf {
				outputVectors[k][i] = float64(f)
			}
		}
	}

	for _, evt := range readEvents {
		evt.Release()
	}
	if uploadEvt != nil {
		uploadEvt.Release()
	}
	runEvt.Release()

	return nil
}

// buildKernel assembles the kernel source from the record's accumulated SSA
// body and output list, compiles it, and caches program+kernel on the
// record (spec.md §4.2.8 step 2).
func (c *Context) buildKernel(rec *record, useDouble bool) error {
	assembled, err := assembleKernelSource(rec, useDouble)
	if err != nil {
		return err
	}

	program, err := c.clContext.CreateProgramWithSource([]string{assembled.source})
	if err != nil {
		return newErr(KindDeviceOp, "create calculation program", err)
	}
	if err := program.BuildProgram([]*cl.Device{c.device}, ""); err != nil {
		log := buildLogOrEmpty(program, c.device)
		program.Release()
		return newErr(KindBuildFailed, trimBuildLog(log), err)
	}
	kernel, err := program.CreateKernel(kernelName)
	if err != nil {
		program.Release()
		return newErr(KindDeviceOp, "create calculation kernel", err)
	}

	rec.program = program
	rec.kernel = kernel
	rec.hasKernel = true
	rec.useDouble = useDouble
	rec.usesInput = assembled.usesInput
	rec.usesRN = assembled.usesRN
	rec.usesOutput = assembled.usesOutput
	return nil
}

// hostBufPointer returns the unsafe.Pointer EnqueueWriteBuffer should read
// from, converting the staged float64 host buffer to float32 storage first
// when single precision is active.
func hostBufPointer(staged []float64, useDouble bool) unsafe.Pointer {
	if useDouble {
		return unsafe.Pointer(&staged[0])
	}
	narrow := make([]float32, len(staged))
	for i, v := range staged {
		narrow[i] = float32(v)
	}
	return unsafe.Pointer(&narrow[0])
}
