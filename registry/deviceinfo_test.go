package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeviceInfoCanonicalName(t *testing.T) {
	info := DeviceInfo{PlatformName: "NVIDIA CUDA", DeviceName: "Tesla T4"}
	assert.Equal(t, "OpenCL/NVIDIA CUDA/Tesla T4", info.CanonicalName())
}

func TestDeviceInfoString(t *testing.T) {
	info := DeviceInfo{
		PlatformName:             "Portable Computing Language",
		DeviceName:               "cpu-0",
		DriverVersion:            "3.1",
		DeviceVersion:            "OpenCL 3.0 PoCL",
		SupportsDoublePrecision:  true,
		DoublePrecisionDetection: "extension",
	}
	s := info.String()
	assert.Contains(t, s, "OpenCL/Portable Computing Language/cpu-0")
	assert.Contains(t, s, "fp64=true")
	assert.Contains(t, s, "via extension")
	assert.Contains(t, s, "unknown (context not yet initialized)")
}

func TestDeviceInfoStringWithTypeSizes(t *testing.T) {
	info := DeviceInfo{
		PlatformName: "Portable Computing Language",
		DeviceName:   "cpu-0",
		TypeSizes:    map[string]int{"float": 4, "double": 8, "uint": 4, "ulong": 8},
	}
	s := info.String()
	assert.Contains(t, s, "type sizes: double=8 float=4 uint=4 ulong=8")
}

func TestFormatTypeSizesEmpty(t *testing.T) {
	assert.Equal(t, "unknown (context not yet initialized)", formatTypeSizes(nil))
}
