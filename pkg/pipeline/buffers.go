package pipeline

import (
	"errors"
	"fmt"

	"github.com/glowfx/glowpipe/pkg/engine"
	"github.com/glowfx/glowpipe/pkg/gpu"
)

// BufferSet is the paired host-pinned/device memory for one inference
// call: input staging, one buffer pair per output binding, and the
// reduced mask on both sides. The worker that allocates a set owns it
// exclusively and must release it on every exit path; Free is
// idempotent so a deferred call covers error paths too.
type BufferSet struct {
	HostIn   *gpu.HostBuffer
	DevIn    *gpu.DeviceBuffer
	HostOut  []*gpu.HostBuffer
	DevOut   []*gpu.DeviceBuffer
	DevMask  *gpu.DeviceBuffer
	HostMask *gpu.HostBuffer

	// ScoreDims is the resolved dims of the last output binding, the
	// per-class score tensor the post-process reduces.
	ScoreDims [4]int

	freed bool
}

// allocBufferSet sizes every buffer from the context's resolved binding
// dims. The set is always allocated before the post-process captor
// records it, so the captured graph only references live addresses.
// On failure, everything allocated so far is released before returning.
func allocBufferSet(dev *gpu.Device, eng *engine.Engine, ctx *engine.ExecutionContext, inputNumel int) (*BufferSet, error) {
	bs := &BufferSet{}
	ok := false
	defer func() {
		if !ok {
			bs.Free()
		}
	}()

	var err error
	if bs.HostIn, err = dev.MallocHost(inputNumel * 4); err != nil {
		return nil, err
	}
	if bs.DevIn, err = dev.Malloc(inputNumel * 4); err != nil {
		return nil, err
	}

	for i := 1; i < eng.NumBindings(); i++ {
		dims, err := ctx.BindingDims(i)
		if err != nil {
			return nil, err
		}
		n := dims[0] * dims[1] * dims[2] * dims[3]
		if n <= 0 {
			return nil, fmt.Errorf("binding %s resolves to empty shape %v", eng.BindingName(i), dims)
		}
		host, err := dev.MallocHost(n * 4)
		if err != nil {
			return nil, err
		}
		bs.HostOut = append(bs.HostOut, host)
		devBuf, err := dev.Malloc(n * 4)
		if err != nil {
			return nil, err
		}
		bs.DevOut = append(bs.DevOut, devBuf)
		bs.ScoreDims = dims
	}

	maskLen := bs.ScoreDims[0] * bs.ScoreDims[2] * bs.ScoreDims[3]
	if bs.DevMask, err = dev.Malloc(maskLen); err != nil {
		return nil, err
	}
	if bs.HostMask, err = dev.MallocHost(maskLen); err != nil {
		return nil, err
	}

	ok = true
	return bs, nil
}

// Bindings returns the device buffers in engine binding order.
func (bs *BufferSet) Bindings() []*gpu.DeviceBuffer {
	out := make([]*gpu.DeviceBuffer, 0, 1+len(bs.DevOut))
	out = append(out, bs.DevIn)
	return append(out, bs.DevOut...)
}

// Free releases every member of the set. Idempotent: the first call
// wins, later calls are no-ops.
func (bs *BufferSet) Free() error {
	if bs == nil || bs.freed {
		return nil
	}
	bs.freed = true
	var errs []error
	free := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	if bs.HostIn != nil {
		free(bs.HostIn.Free())
	}
	if bs.DevIn != nil {
		free(bs.DevIn.Free())
	}
	for _, b := range bs.HostOut {
		free(b.Free())
	}
	for _, b := range bs.DevOut {
		free(b.Free())
	}
	if bs.DevMask != nil {
		free(bs.DevMask.Free())
	}
	if bs.HostMask != nil {
		free(bs.HostMask.Free())
	}
	return errors.Join(errs...)
}
