package gpu

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// CopyKind tags the direction of a MemcpyAsync.
type CopyKind int

const (
	HostToDevice CopyKind = iota
	DeviceToHost
	DeviceToDevice
	HostToHost
)

// Buffer is either a host-pinned or a device allocation.
type Buffer interface {
	Size() int
	bytes() []byte
}

// HostBuffer is page-locked host memory: the staging side of every
// transfer, directly addressable by the CPU.
type HostBuffer struct {
	dev   *Device
	data  []byte
	freed atomic.Bool
}

// DeviceBuffer is device-resident memory. Host code moves data in and
// out with MemcpyAsync; kernels read and write it directly.
type DeviceBuffer struct {
	dev   *Device
	data  []byte
	freed atomic.Bool
}

// MallocHost allocates n bytes of pinned host memory.
func (d *Device) MallocHost(n int) (*HostBuffer, error) {
	if err := d.allocCheck(n); err != nil {
		return nil, err
	}
	d.pinned.Add(int64(n))
	return &HostBuffer{dev: d, data: make([]byte, n)}, nil
}

// Malloc allocates n bytes of device memory, subject to the device
// memory limit.
func (d *Device) Malloc(n int) (*DeviceBuffer, error) {
	if err := d.allocCheck(n); err != nil {
		return nil, err
	}
	if used := d.used.Add(int64(n)); used > d.opts.MemoryLimit {
		d.used.Add(int64(-n))
		return nil, fmt.Errorf("gpu: out of device memory (want %d, used %d of %d)",
			n, used-int64(n), d.opts.MemoryLimit)
	}
	return &DeviceBuffer{dev: d, data: make([]byte, n)}, nil
}

// allocCheck enforces the shared preconditions: the device is open, the
// size is sane, and no stream holds a global-mode capture. A global
// capture fences allocation device-wide; relaxed captures rely on the
// recording stream allocating its buffers before capture begins.
func (d *Device) allocCheck(n int) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	if n <= 0 {
		return fmt.Errorf("gpu: invalid allocation size %d", n)
	}
	if d.capturing.Load() > 0 {
		return fmt.Errorf("gpu: allocation of %d bytes during global graph capture", n)
	}
	return nil
}

func (b *HostBuffer) Size() int     { return len(b.data) }
func (b *HostBuffer) bytes() []byte { return b.data }

// Bytes exposes the pinned memory to host code.
func (b *HostBuffer) Bytes() []byte { return b.data }

// Float32s views the pinned memory as a float32 slice.
func (b *HostBuffer) Float32s() []float32 {
	if len(b.data) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b.data[0])), len(b.data)/4)
}

// Free releases the pinned allocation. Freeing twice is an error.
func (b *HostBuffer) Free() error {
	if !b.freed.CompareAndSwap(false, true) {
		return fmt.Errorf("gpu: host buffer freed twice")
	}
	b.dev.pinned.Add(int64(-len(b.data)))
	return nil
}

func (b *DeviceBuffer) Size() int     { return len(b.data) }
func (b *DeviceBuffer) bytes() []byte { return b.data }

// Free releases the device allocation. Freeing twice is an error.
func (b *DeviceBuffer) Free() error {
	if !b.freed.CompareAndSwap(false, true) {
		return fmt.Errorf("gpu: device buffer freed twice")
	}
	b.dev.used.Add(int64(-len(b.data)))
	return nil
}

// MemcpyAsync copies n bytes from src to dst on stream s. The copy
// executes in stream order; the call returns immediately.
func MemcpyAsync(dst, src Buffer, n int, kind CopyKind, s *Stream) error {
	if n < 0 || n > src.Size() || n > dst.Size() {
		return fmt.Errorf("gpu: memcpy size %d exceeds buffers (src %d, dst %d)", n, src.Size(), dst.Size())
	}
	if freed(dst) || freed(src) {
		return fmt.Errorf("gpu: memcpy on freed buffer")
	}
	_ = kind // direction is implied by the buffer types; kept for call-site clarity
	return s.launch("memcpy", func() error {
		if freed(dst) || freed(src) {
			return fmt.Errorf("memcpy touched freed buffer")
		}
		copy(dst.bytes()[:n], src.bytes()[:n])
		return nil
	})
}

func freed(b Buffer) bool {
	switch v := b.(type) {
	case *HostBuffer:
		return v.freed.Load()
	case *DeviceBuffer:
		return v.freed.Load()
	}
	return false
}
