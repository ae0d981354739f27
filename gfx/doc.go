// Package gfx wraps a HAL device and queue into a graphics context.
//
// A Context is the owner every GPU resource wrapper is registered with. One
// context at a time is current (MakeCurrent); resource operations check that
// their owning context is current before touching the GPU.
//
//	ctx, err := gfx.OpenDevice(gfx.DeviceOptions{Backends: []string{"vulkan", "noop"}})
//	if err != nil {
//		return err
//	}
//	defer ctx.Destroy()
//	gfx.MakeCurrent(ctx)
//
// Commands are recorded with Submit. Command buffers are freed once the
// queue reports them complete.
package gfx
