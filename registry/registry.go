// Package registry implements the Device Registry (spec.md §4.1): it
// enumerates OpenCL platforms and devices, captures capability metadata for
// each, and exposes one freshly constructed but uninitialised
// compute.Context per device, keyed by a canonical "OpenCL/<platform>/
// <device>" name.
package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jgillich/go-opencl/cl"
	"github.com/sirupsen/logrus"

	"github.com/finmath-go/orecl/compute"
)

// fp64Extension is the OpenCL extension string advertised by devices that
// support double precision arithmetic.
const fp64Extension = "cl_khr_fp64"

// Registry exclusively owns every Compute Context it constructs; Close
// cascades destruction to all of them (spec.md §3 "Lifecycle & ownership").
type Registry struct {
	log      *logrus.Logger
	names    []string
	infos    map[string]DeviceInfo
	contexts map[string]*compute.Context
}

// Open enumerates every platform and device visible to the OpenCL ICD
// loader and builds one Context per device. It never calls Context.Init,
// and neither does Registry.Context: callers initialize each Context with
// Context.Init before using it.
func Open(log *logrus.Logger) (*Registry, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	platforms, err := cl.GetPlatforms()
	if err != nil {
		return nil, fmt.Errorf("registry: get platforms: %w", err)
	}

	r := &Registry{
		log:      log,
		infos:    make(map[string]DeviceInfo),
		contexts: make(map[string]*compute.Context),
	}

	for _, platform := range platforms {
		devices, err := platform.GetDevices(cl.DeviceTypeAll)
		if err != nil {
			log.WithError(err).Warnf("registry: GetDevices failed for platform %s", platform.Name())
			continue
		}
		for _, device := range devices {
			info := buildDeviceInfo(platform, device)
			name := info.CanonicalName()

			ctx := compute.NewContext(name, device, info.SupportsDoublePrecision, log)

			r.names = append(r.names, name)
			r.infos[name] = info
			r.contexts[name] = ctx

			log.WithFields(logrus.Fields{
				"device": name,
				"fp64":   info.SupportsDoublePrecision,
			}).Info("registry: registered device")
		}
	}

	return r, nil
}

func buildDeviceInfo(platform *cl.Platform, device *cl.Device) DeviceInfo {
	extensions := device.Extensions()
	supportsDouble := strings.Contains(extensions, fp64Extension)

	return DeviceInfo{
		PlatformName:             platform.Name(),
		PlatformVendor:           platform.Vendor(),
		PlatformVersion:          platform.Version(),
		DeviceName:               device.Name(),
		DriverVersion:            device.DriverVersion(),
		DeviceVersion:            device.Version(),
		Extensions:               extensions,
		SupportsDoublePrecision:  supportsDouble,
		DoublePrecisionDetection: "extension",
	}
}

// Names lists every registered canonical device name, in registration
// order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// DeviceInfo returns the captured capability metadata for a registered
// device name.
func (r *Registry) DeviceInfo(name string) (DeviceInfo, bool) {
	info, ok := r.infos[name]
	return info, ok
}

// Context returns the Compute Context registered under name. Unknown names
// fail with NoDevice, including the list of available names in the error
// text (spec.md §4.1).
func (r *Registry) Context(name string) (*compute.Context, error) {
	ctx, ok := r.contexts[name]
	if !ok {
		return nil, fmt.Errorf("registry: %w: %q not found, available: %s",
			compute.ErrNoDevice, name, strings.Join(r.names, ", "))
	}
	return ctx, nil
}

// RefreshTypeSizes copies the probed host/device type sizes (spec.md §4.1,
// §6) from name's Context into its captured DeviceInfo. The Context must
// already be initialized (Context.Init) -- Open itself never initializes
// any context, so type sizes are not available until a caller does, and
// calling this before Init leaves DeviceInfo.TypeSizes empty.
func (r *Registry) RefreshTypeSizes(name string) error {
	ctx, ok := r.contexts[name]
	if !ok {
		return fmt.Errorf("registry: %w: %q not found, available: %s",
			compute.ErrNoDevice, name, strings.Join(r.names, ", "))
	}
	info := r.infos[name]
	info.TypeSizes = ctx.TypeSizes()
	r.infos[name] = info
	return nil
}

// Close releases every Context the registry owns, aggregating any release
// errors rather than stopping at the first one (spec.md §3 "destruction
// cascades").
func (r *Registry) Close() error {
	var errs []error
	for _, name := range r.names {
		if err := r.contexts[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
