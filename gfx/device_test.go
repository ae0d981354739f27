package gfx

import (
	"slices"
	"testing"
)

func TestAvailableBackends(t *testing.T) {
	got := AvailableBackends()
	for _, name := range []string{BackendVulkan, BackendSoftware, BackendNoop} {
		if !slices.Contains(got, name) {
			t.Errorf("AvailableBackends() = %v, missing %q", got, name)
		}
	}
}

func TestOpenDeviceNoop(t *testing.T) {
	ctx, err := OpenDevice(DeviceOptions{
		Backends: []string{BackendNoop},
		Context:  Options{Label: "noop"},
	})
	if err != nil {
		t.Fatalf("OpenDevice() error = %v", err)
	}
	defer ctx.Destroy()

	if ctx.Label() != "noop" {
		t.Errorf("Label() = %q", ctx.Label())
	}
	if ctx.AdapterInfo().Name != "Noop Adapter" {
		t.Errorf("AdapterInfo().Name = %q", ctx.AdapterInfo().Name)
	}
	if ctx.instance == nil {
		t.Error("instance not retained")
	}
}

func TestOpenDeviceSkipsUnknownNames(t *testing.T) {
	ctx, err := OpenDevice(DeviceOptions{Backends: []string{"metal9", BackendNoop}})
	if err != nil {
		t.Fatalf("OpenDevice() error = %v", err)
	}
	ctx.Destroy()

	if _, err := OpenDevice(DeviceOptions{Backends: []string{"metal9"}}); err == nil {
		t.Error("OpenDevice() with only unknown backends succeeded")
	}
}
