package compute

import (
	"github.com/jgillich/go-opencl/cl"
)

// variatePool is the device-resident buffer of standard-normal samples
// shared across every calculation run on a Context (spec.md §4.3, §5
// "Shared resource policy"). It is grown monotonically: growth preserves
// every previously generated sample at its original index and is always
// rounded up to a whole multiple of mtStateWords.
type variatePool struct {
	useDouble bool
	elemSize  int

	program *cl.Program
	seed    *cl.Kernel
	twist   *cl.Kernel
	gen     *cl.Kernel

	state *cl.MemObject // mtStateWords uint32 words
	pool  *cl.MemObject // poolSize elements of the active precision

	poolSize int
	seedEvt  *cl.Event
}

// ensure grows the pool, if necessary, so that poolSize >= demand, seeding
// and building the pool's kernels lazily on first use (spec.md §4.3
// protocol steps 1-5).
func (p *variatePool) ensure(ctx *Context, demand int, seed uint64) error {
	if demand <= 0 {
		return nil
	}
	if p.poolSize == 0 && p.pool == nil && p.program == nil {
		if err := p.build(ctx, seed); err != nil {
			return err
		}
	}
	if p.poolSize >= demand {
		if p.seedEvt != nil {
			if err := cl.WaitForEvents([]*cl.Event{p.seedEvt}); err != nil {
				return newErr(KindDeviceOp, "wait for seed-init event", err)
			}
			p.seedEvt.Release()
			p.seedEvt = nil
		}
		return nil
	}
	return p.grow(ctx, demand)
}

func (p *variatePool) build(ctx *Context, seed uint64) error {
	p.useDouble = ctx.activeUseDouble()
	if p.useDouble {
		p.elemSize = 8
	} else {
		p.elemSize = 4
	}

	program, err := ctx.clContext.CreateProgramWithSource([]string{mtKernelsSource(p.useDouble)})
	if err != nil {
		return newErr(KindDeviceOp, "create variate pool program", err)
	}
	if err := program.BuildProgram([]*cl.Device{ctx.device}, ""); err != nil {
		log := buildLogOrEmpty(program, ctx.device)
		return newErr(KindBuildFailed, "variate pool kernels: "+trimBuildLog(log), err)
	}
	seedK, err := program.CreateKernel("ore_seedInit")
	if err != nil {
		return newErr(KindDeviceOp, "create ore_seedInit kernel", err)
	}
	twistK, err := program.CreateKernel("ore_twist")
	if err != nil {
		return newErr(KindDeviceOp, "create ore_twist kernel", err)
	}
	genK, err := program.CreateKernel("ore_generate")
	if err != nil {
		return newErr(KindDeviceOp, "create ore_generate kernel", err)
	}

	state, err := ctx.clContext.CreateEmptyBuffer(cl.MemReadWrite, mtStateWords*4)
	if err != nil {
		return newErr(KindDeviceOp, "allocate MT19937 state buffer", err)
	}

	if err := seedK.SetArgs(seed, state); err != nil {
		return newErr(KindDeviceOp, "bind ore_seedInit args", err)
	}
	evt, err := ctx.queue.EnqueueNDRangeKernel(seedK, nil, []int{1}, []int{1}, nil)
	if err != nil {
		return newErr(KindEnqueueFailed, "enqueue ore_seedInit", err)
	}

	p.program, p.seed, p.twist, p.gen, p.state, p.seedEvt = program, seedK, twistK, genK, state, evt
	return nil
}

// alignUp rounds demand up to the next multiple of mtStateWords.
func alignUp(demand int) int {
	if demand%mtStateWords == 0 {
		return demand
	}
	return (demand/mtStateWords + 1) * mtStateWords
}

func (p *variatePool) grow(ctx *Context, demand int) error {
	alignedSize := alignUp(demand)

	newPool, err := ctx.clContext.CreateEmptyBuffer(cl.MemReadWrite, alignedSize*p.elemSize)
	if err != nil {
		return newErr(KindDeviceOp, "allocate grown variate pool buffer", err)
	}

	var waitForCopy []*cl.Event
	oldPool := p.pool
	if oldPool != nil && p.poolSize > 0 {
		copyEvt, err := ctx.queue.EnqueueCopyBuffer(oldPool, newPool, 0, 0, p.poolSize*p.elemSize, nil)
		if err != nil {
			return newErr(KindEnqueueFailed, "copy live variate pool samples", err)
		}
		waitForCopy = []*cl.Event{copyEvt}
	}

	var prevEvt *cl.Event
	if p.seedEvt != nil {
		prevEvt = p.seedEvt
	}

	var lastGen *cl.Event
	for cursor := p.poolSize; cursor < demand; cursor += mtStateWords {
		waitList := waitForCopy
		if prevEvt != nil {
			waitList = append(append([]*cl.Event{}, waitForCopy...), prevEvt)
		}
		twistEvt, err := ctx.queue.EnqueueNDRangeKernel(p.twist, nil, []int{1}, []int{1}, waitList)
		if err != nil {
			return newErr(KindEnqueueFailed, "enqueue ore_twist", err)
		}
		if err := p.gen.SetArgs(uint32(cursor), p.state, newPool); err != nil {
			return newErr(KindDeviceOp, "bind ore_generate args", err)
		}
		genEvt, err := ctx.queue.EnqueueNDRangeKernel(p.gen, nil, []int{mtStateWords}, []int{mtStateWords}, []*cl.Event{twistEvt})
		if err != nil {
			return newErr(KindEnqueueFailed, "enqueue ore_generate", err)
		}
		prevEvt = genEvt
		lastGen = genEvt
		waitForCopy = nil // only the first iteration waits on the copy
	}

	if lastGen != nil {
		if err := cl.WaitForEvents([]*cl.Event{lastGen}); err != nil {
			return newErr(KindDeviceOp, "wait for variate pool growth", err)
		}
	} else if len(waitForCopy) > 0 {
		if err := cl.WaitForEvents(waitForCopy); err != nil {
			return newErr(KindDeviceOp, "wait for variate pool copy", err)
		}
	}

	if oldPool != nil {
		oldPool.Release()
	}
	p.pool = newPool
	p.poolSize = alignedSize
	p.seedEvt = nil
	return nil
}

// release tears down every device handle owned by the pool (spec.md §5
// "All device-side handles are released on every exit path").
func (p *variatePool) release() {
	if p.seedEvt != nil {
		p.seedEvt.Release()
	}
	if p.pool != nil {
		p.pool.Release()
	}
	if p.state != nil {
		p.state.Release()
	}
	if p.gen != nil {
		p.gen.Release()
	}
	if p.twist != nil {
		p.twist.Release()
	}
	if p.seed != nil {
		p.seed.Release()
	}
	if p.program != nil {
		p.program.Release()
	}
}
