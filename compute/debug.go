package compute

import "time"

// DebugInfo accumulates the four performance counters described by spec.md
// §3/§6. Counters accumulate across every calculation run on a Context, not
// just the most recent one; Context.Stats returns a snapshot.
type DebugInfo struct {
	NumberOfOperations uint64
	NanosDataCopy      int64
	NanosProgramBuild  int64
	NanosCalculation   int64
}

func (d *DebugInfo) addDataCopy(elapsed time.Duration)  { d.NanosDataCopy += elapsed.Nanoseconds() }
func (d *DebugInfo) addProgramBuild(elapsed time.Duration) {
	d.NanosProgramBuild += elapsed.Nanoseconds()
}
func (d *DebugInfo) addCalculation(elapsed time.Duration) { d.NanosCalculation += elapsed.Nanoseconds() }

// Stats returns a copy of the Context's accumulated debug counters.
func (c *Context) Stats() DebugInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.debug
}
