package gfx

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/gogpu/wgpu/hal/software"
	"github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/lumen/internal/logging"
)

// Backend names accepted by DeviceOptions.Backends.
const (
	BackendVulkan   = "vulkan"
	BackendSoftware = "software"
	BackendNoop     = "noop"
)

// DefaultBackends is the default backend priority.
var DefaultBackends = []string{BackendVulkan, BackendSoftware, BackendNoop}

// ErrNoAdapter is returned when a backend exposes no adapter.
var ErrNoAdapter = errors.New("gfx: no GPU adapter found")

// DeviceOptions configures OpenDevice.
type DeviceOptions struct {
	// Backends lists backend names in priority order. Empty means
	// DefaultBackends. Unknown names are ignored.
	Backends []string

	// Context is passed to NewContext.
	Context Options
}

// backends returns a registry of the compiled-in backends with the given
// priority.
func backends(priority []string) *gpucontext.Registry[hal.Backend] {
	reg := gpucontext.NewRegistry[hal.Backend](gpucontext.WithPriority(priority...))
	reg.Register(BackendVulkan, func() hal.Backend { return vulkan.Backend{} })
	reg.Register(BackendSoftware, func() hal.Backend { return software.API{} })
	reg.Register(BackendNoop, func() hal.Backend { return noop.API{} })
	return reg
}

// AvailableBackends returns the names of the compiled-in backends.
func AvailableBackends() []string {
	return backends(nil).Available()
}

// OpenDevice opens a device on the first backend in priority order that
// yields an adapter, and wraps it in a Context. Discrete and integrated GPUs
// are preferred over other adapters of the same backend.
func OpenDevice(opts DeviceOptions) (*Context, error) {
	priority := opts.Backends
	if len(priority) == 0 {
		priority = DefaultBackends
	}
	reg := backends(priority)

	var errs []error
	for _, name := range priority {
		if !reg.Has(name) {
			continue
		}
		ctx, err := openOn(name, reg.Get(name), opts.Context)
		if err == nil {
			return ctx, nil
		}
		logging.Logger().Debug("gfx: backend unavailable", "backend", name, "err", err)
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("gfx: no known backend in %v", priority)
	}
	return nil, fmt.Errorf("gfx: open device: %w", errors.Join(errs...))
}

func openOn(name string, backend hal.Backend, opts Options) (*Context, error) {
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	open, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("open adapter %q: %w", selected.Info.Name, err)
	}

	opts.AdapterInfo = selected.Info
	ctx, err := NewContext(open.Device, open.Queue, opts)
	if err != nil {
		open.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	ctx.instance = instance
	logging.Logger().Info("gfx: device opened", "backend", name, "adapter", selected.Info.Name)
	return ctx, nil
}
