//go:build cuda && linux

package cudart

/*
#cgo LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdlib.h>

typedef int cudaError_t;

static void* cudart_lib = NULL;

typedef cudaError_t (*cudaGetDeviceCount_t)(int*);
typedef cudaError_t (*cudaMemGetInfo_t)(size_t*, size_t*);
typedef cudaError_t (*cudaRuntimeGetVersion_t)(int*);
typedef cudaError_t (*cudaSetDevice_t)(int);

static cudaGetDeviceCount_t     f_cudaGetDeviceCount = NULL;
static cudaMemGetInfo_t         f_cudaMemGetInfo = NULL;
static cudaRuntimeGetVersion_t  f_cudaRuntimeGetVersion = NULL;
static cudaSetDevice_t          f_cudaSetDevice = NULL;

static int cudart_load() {
    cudart_lib = dlopen("libcudart.so.12", RTLD_LAZY);
    if (!cudart_lib) {
        cudart_lib = dlopen("libcudart.so", RTLD_LAZY);
    }
    if (!cudart_lib) return -1;

    f_cudaGetDeviceCount    = (cudaGetDeviceCount_t)dlsym(cudart_lib, "cudaGetDeviceCount");
    f_cudaMemGetInfo        = (cudaMemGetInfo_t)dlsym(cudart_lib, "cudaMemGetInfo");
    f_cudaRuntimeGetVersion = (cudaRuntimeGetVersion_t)dlsym(cudart_lib, "cudaRuntimeGetVersion");
    f_cudaSetDevice         = (cudaSetDevice_t)dlsym(cudart_lib, "cudaSetDevice");

    if (!f_cudaGetDeviceCount || !f_cudaMemGetInfo) return -2;
    return 0;
}

static int cudart_device_count() {
    int count = 0;
    if (f_cudaGetDeviceCount(&count) != 0) return 0;
    return count;
}

static int cudart_mem_info(int idx, unsigned long long* free_b, unsigned long long* total_b) {
    size_t f = 0, t = 0;
    if (f_cudaSetDevice && f_cudaSetDevice(idx) != 0) return -1;
    if (f_cudaMemGetInfo(&f, &t) != 0) return -2;
    *free_b = (unsigned long long)f;
    *total_b = (unsigned long long)t;
    return 0;
}

static int cudart_version() {
    int v = 0;
    if (f_cudaRuntimeGetVersion && f_cudaRuntimeGetVersion(&v) == 0) return v;
    return 0;
}

static void cudart_unload() {
    if (cudart_lib) dlclose(cudart_lib);
}
*/
import "C"

import (
	"fmt"
	"log"
)

// MemInfo holds real device memory figures from the CUDA runtime.
type MemInfo struct {
	FreeBytes  uint64
	TotalBytes uint64
}

// Runtime wraps libcudart via dlopen, so the binary has no compile-time
// CUDA dependency even in the cuda build.
type Runtime struct {
	available bool
	devCount  int
}

// Load attempts to dlopen libcudart. A missing library is NOT fatal:
// callers fall back to simulated telemetry.
func Load() (*Runtime, error) {
	rc := C.cudart_load()
	if rc != 0 {
		return nil, fmt.Errorf("cudart not available (code %d)", rc)
	}
	count := int(C.cudart_device_count())
	if count == 0 {
		C.cudart_unload()
		return nil, fmt.Errorf("cudart loaded but no devices found")
	}
	log.Printf("🎮 cudart initialized: %d device(s), runtime version %d", count, int(C.cudart_version()))
	return &Runtime{available: true, devCount: count}, nil
}

// Available reports whether the runtime is loaded.
func (r *Runtime) Available() bool { return r != nil && r.available }

// DeviceCount returns the number of CUDA devices.
func (r *Runtime) DeviceCount() int {
	if r == nil {
		return 0
	}
	return r.devCount
}

// GetMemInfo returns free/total device memory for device idx.
func (r *Runtime) GetMemInfo(idx int) (MemInfo, error) {
	if !r.Available() {
		return MemInfo{}, fmt.Errorf("cudart not available")
	}
	if idx >= r.devCount {
		return MemInfo{}, fmt.Errorf("device index %d out of range (have %d)", idx, r.devCount)
	}
	var free, total C.ulonglong
	if rc := C.cudart_mem_info(C.int(idx), &free, &total); rc != 0 {
		return MemInfo{}, fmt.Errorf("cudaMemGetInfo failed (code %d)", int(rc))
	}
	return MemInfo{FreeBytes: uint64(free), TotalBytes: uint64(total)}, nil
}

// Unload releases the library handle.
func (r *Runtime) Unload() {
	if r != nil && r.available {
		C.cudart_unload()
		r.available = false
	}
}
