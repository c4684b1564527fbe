package compute

import (
	"fmt"
	"unsafe"

	"github.com/jgillich/go-opencl/cl"
)

// probeTypeSizes runs the tiny on-device size probes spec.md §4.2.1
// describes: one-work-item kernels that write sizeof(T) into a 1-element
// output buffer, for each of uint, ulong, float, and (when the device
// supports it) double. The host never assumes a size; it reads back
// whatever the device compiler actually used.
func probeTypeSizes(ctx *cl.Context, queue *cl.CommandQueue, device *cl.Device, includeDouble bool) (map[string]int, error) {
	types := []string{"uint", "ulong", "float"}
	if includeDouble {
		types = append(types, "double")
	}

	var src string
	for _, t := range types {
		src += fmt.Sprintf(`
__kernel void ore_sizeof_%s(__global uint* out) {
    out[0] = (uint)sizeof(%s);
}
`, t, t)
	}

	program, err := ctx.CreateProgramWithSource([]string{src})
	if err != nil {
		return nil, newErr(KindDeviceOp, "create size-probe program", err)
	}
	defer program.Release()

	if err := program.BuildProgram([]*cl.Device{device}, ""); err != nil {
		log := buildLogOrEmpty(program, device)
		return nil, newErr(KindBuildFailed, "size-probe kernels: "+trimBuildLog(log), err)
	}

	sizes := make(map[string]int, len(types))
	for _, t := range types {
		size, err := runSizeProbe(ctx, queue, program, t)
		if err != nil {
			return nil, err
		}
		sizes[t] = size
	}
	return sizes, nil
}

func runSizeProbe(ctx *cl.Context, queue *cl.CommandQueue, program *cl.Program, typeName string) (int, error) {
	kernel, err := program.CreateKernel("ore_sizeof_" + typeName)
	if err != nil {
		return 0, newErr(KindDeviceOp, "create size-probe kernel for "+typeName, err)
	}
	defer kernel.Release()

	buf, err := ctx.CreateEmptyBuffer(cl.MemWriteOnly, 4)
	if err != nil {
		return 0, newErr(KindDeviceOp, "allocate size-probe buffer", err)
	}
	defer buf.Release()

	if err := kernel.SetArgs(buf); err != nil {
		return 0, newErr(KindDeviceOp, "bind size-probe kernel arg", err)
	}

	if _, err := queue.EnqueueNDRangeKernel(kernel, nil, []int{1}, []int{1}, nil); err != nil {
		return 0, newErr(KindEnqueueFailed, "enqueue size-probe kernel for "+typeName, err)
	}

	var out [1]uint32
	ptr := unsafe.Pointer(&out[0])
	if _, err := queue.EnqueueReadBuffer(buf, true, 0, 4, ptr, nil); err != nil {
		return 0, newErr(KindEnqueueFailed, "read back size-probe result for "+typeName, err)
	}
	return int(out[0]), nil
}
