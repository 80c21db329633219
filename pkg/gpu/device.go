package gpu

import (
	"fmt"
	"log"
	"sync/atomic"
)

// Default device memory when no limit is configured: 8 GiB, roughly a
// T4 slice with headroom.
const defaultMemoryBytes = 8 << 30

// Options tunes the device abstraction. The zero value is a usable
// device with no memory limit and graph capture enabled.
type Options struct {
	Name string

	// MemoryLimit caps device allocations in bytes. 0 means the default
	// (8 GiB). Tests use small limits to exercise allocation failure.
	MemoryLimit int64

	// DisableGraphCapture makes BeginCapture fail, forcing callers onto
	// their direct-dispatch fallback path.
	DisableGraphCapture bool
}

// Device models one GPU work target: it hands out streams, events, and
// host-pinned/device buffer pairs, and enforces the no-allocation-during-
// capture rule. The in-process backend executes stream work on dedicated
// goroutines in issue order; build with -tags cuda to layer real device
// telemetry on top (see the cudart subpackage).
type Device struct {
	name string
	opts Options

	used      atomic.Int64 // device bytes currently allocated
	pinned    atomic.Int64 // host-pinned bytes currently allocated
	capturing atomic.Int32 // streams currently in capture mode
	closed    atomic.Bool
}

// Open creates a device.
func Open(opts Options) (*Device, error) {
	if opts.Name == "" {
		opts.Name = "sim-0"
	}
	if opts.MemoryLimit == 0 {
		opts.MemoryLimit = defaultMemoryBytes
	}
	if opts.MemoryLimit < 0 {
		return nil, fmt.Errorf("gpu: negative memory limit %d", opts.MemoryLimit)
	}
	d := &Device{name: opts.Name, opts: opts}
	log.Printf("🎮 Device %s opened: mem_limit=%dMiB graph_capture=%v",
		d.name, opts.MemoryLimit>>20, !opts.DisableGraphCapture)
	return d, nil
}

// Name returns the device name.
func (d *Device) Name() string { return d.name }

// MemoryUsed returns currently allocated device bytes.
func (d *Device) MemoryUsed() int64 { return d.used.Load() }

// MemoryTotal returns the configured device memory size.
func (d *Device) MemoryTotal() int64 { return d.opts.MemoryLimit }

// PinnedUsed returns currently allocated host-pinned bytes.
func (d *Device) PinnedUsed() int64 { return d.pinned.Load() }

// Close marks the device closed. Outstanding streams and buffers must
// already be released; this only flips the gate for new work.
func (d *Device) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("gpu: device %s closed twice", d.name)
	}
	if n := d.used.Load(); n != 0 {
		log.Printf("⚠️  Device %s closed with %d device bytes still allocated", d.name, n)
	}
	if n := d.pinned.Load(); n != 0 {
		log.Printf("⚠️  Device %s closed with %d pinned bytes still allocated", d.name, n)
	}
	return nil
}

func (d *Device) checkOpen() error {
	if d.closed.Load() {
		return fmt.Errorf("gpu: device %s is closed", d.name)
	}
	return nil
}
