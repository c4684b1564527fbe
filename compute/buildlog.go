package compute

import "github.com/jgillich/go-opencl/cl"

// maxBuildLogBytes bounds how much of a failing build's log is retained in
// a returned error. DESIGN.md records the deliberate reversal from the
// original's tail-retention behavior: OpenCL compilers report the first
// error first, with any further lines typically cascading noise, so the
// head of the log is kept rather than the tail.
const maxBuildLogBytes = 4096

func buildLogOrEmpty(program *cl.Program, device *cl.Device) string {
	log, err := program.BuildLog(device)
	if err != nil {
		return ""
	}
	return log
}

// trimBuildLog retains the head of a build log, truncating with an
// indicator when it exceeds maxBuildLogBytes.
func trimBuildLog(log string) string {
	if len(log) <= maxBuildLogBytes {
		return log
	}
	return log[:maxBuildLogBytes] + "... (truncated)"
}
