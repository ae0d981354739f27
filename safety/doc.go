// Package safety tracks GPU resource wrappers per graphics context so that a
// wrapper reclaimed by the garbage collector never issues GPU calls from the
// wrong thread.
//
// Reclamation only records the resource in its owner's pending queue. The
// host calls [Registry.Sweep] once per frame, on the owner's thread, which
// releases the queued GPU handles and reports each one as a leak.
//
// Wrappers embed a [Handle] and register through [TryRegister]:
//
//	type Texture struct {
//	    safety.Handle
//	    gpu *halTexture
//	}
//
//	func (t *Texture) load(ctx *gfx.Context) {
//	    gpu := t.gpu // captured by the release action, t is not
//	    safety.TryRegister(&t.Handle, t, ctx, func() { gpu.destroy() })
//	}
package safety
