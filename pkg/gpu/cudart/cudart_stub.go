//go:build !cuda || !linux

package cudart

import "fmt"

// MemInfo holds real device memory figures from the CUDA runtime.
type MemInfo struct {
	FreeBytes  uint64
	TotalBytes uint64
}

// Runtime is a stub in non-cuda builds; Load always fails and callers
// use simulated telemetry.
type Runtime struct{}

// Load reports that no CUDA runtime is present in this build.
func Load() (*Runtime, error) {
	return nil, fmt.Errorf("cudart support not compiled in (build with -tags cuda)")
}

func (r *Runtime) Available() bool  { return false }
func (r *Runtime) DeviceCount() int { return 0 }

func (r *Runtime) GetMemInfo(idx int) (MemInfo, error) {
	return MemInfo{}, fmt.Errorf("cudart not available")
}

func (r *Runtime) Unload() {}
