package registry

import (
	"fmt"
	"sort"
	"strings"
)

// DeviceInfo is the capability metadata the registry captures per device at
// enumeration time (spec.md §4.1). It supplements the untyped "key-value
// list" spec.md §6 calls for with a concrete, typed shape (see SPEC_FULL.md
// §12.4) -- the same idiom the CWBudde-MayFlyCircleFit OpenCL runtime
// reference file uses for its own PlatformInfo/DeviceInfo pair.
type DeviceInfo struct {
	PlatformName    string
	PlatformVendor  string
	PlatformVersion string

	DeviceName    string
	DriverVersion string
	DeviceVersion string
	Extensions    string

	SupportsDoublePrecision bool
	// DoublePrecisionDetection records how SupportsDoublePrecision was
	// determined: "extension" (cl_khr_fp64 advertised) in every case here,
	// since the go-opencl binding this repo imports does not expose the raw
	// CL_DEVICE_DOUBLE_FP_CONFIG query spec.md §4.1 prefers -- see
	// DESIGN.md for why the extension-string fallback is the only path
	// implemented rather than a sometimes-used fallback.
	DoublePrecisionDetection string

	// TypeSizes holds the four probed host/device type sizes (spec.md §4.1
	// "type sizes", §6 "host and device type sizes"): uint, ulong, float and
	// (when the device supports it) double, in bytes, as actually reported
	// by the device's compiler rather than assumed by the host. Empty until
	// Registry.RefreshTypeSizes has been called for this device, since the
	// probe only runs once the device's Context has been initialized.
	TypeSizes map[string]int
}

// CanonicalName is the client-visible device identifier spec.md §4.1
// specifies: "OpenCL/<platform>/<device>".
func (d DeviceInfo) CanonicalName() string {
	return fmt.Sprintf("OpenCL/%s/%s", d.PlatformName, d.DeviceName)
}

func (d DeviceInfo) String() string {
	return fmt.Sprintf(
		"%s (driver %s, device version %s, fp64=%v via %s, type sizes: %s)",
		d.CanonicalName(), d.DriverVersion, d.DeviceVersion,
		d.SupportsDoublePrecision, d.DoublePrecisionDetection,
		formatTypeSizes(d.TypeSizes),
	)
}

// formatTypeSizes renders TypeSizes deterministically (sorted by type name)
// so String() output is stable across map iteration order.
func formatTypeSizes(sizes map[string]int) string {
	if len(sizes) == 0 {
		return "unknown (context not yet initialized)"
	}
	names := make([]string, 0, len(sizes))
	for name := range sizes {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", name, sizes[name]))
	}
	return strings.Join(parts, " ")
}
