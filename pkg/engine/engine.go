// Package engine loads compiled segmentation plans and runs inference
// over them through per-worker execution contexts. The engine object is
// immutable after deserialization and safe to share; contexts are not.
package engine

import (
	"fmt"
	"log"
	"time"

	"github.com/glowfx/glowpipe/pkg/gpu"
)

// LoadError reports a failed plan load or deserialization. It is
// recoverable: callers decide whether to abort.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("engine load: %v", e.Err)
	}
	return fmt.Sprintf("engine load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Runtime deserializes plans into engines.
type Runtime struct{}

// NewRuntime creates a runtime.
func NewRuntime() *Runtime { return &Runtime{} }

// LoadPlan reads and deserializes a plan file.
func (r *Runtime) LoadPlan(path string) (*Engine, error) {
	data, err := ReadPlanFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	start := time.Now()
	eng, err := r.Deserialize(data)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	log.Printf("🧠 Engine %q loaded: %d MiB plan, %d bindings, deserialized in %v",
		eng.plan.Name, len(data)>>20, eng.NumBindings(), time.Since(start))
	return eng, nil
}

// Deserialize builds an engine from serialized plan bytes.
func (r *Runtime) Deserialize(data []byte) (*Engine, error) {
	plan, err := UnmarshalPlan(data)
	if err != nil {
		return nil, &LoadError{Err: err}
	}
	return &Engine{plan: plan}, nil
}

// Engine is the execution-ready form of a plan. Read-only after
// construction; any number of contexts may be created concurrently.
type Engine struct {
	plan *Plan
}

// Name returns the model name recorded in the plan.
func (e *Engine) Name() string { return e.plan.Name }

// Classes returns the segmentation class count.
func (e *Engine) Classes() int { return e.plan.Classes }

// NumBindings returns the binding count. Binding 0 is the input.
func (e *Engine) NumBindings() int { return len(e.plan.Bindings) }

// BindingName returns the name of binding i.
func (e *Engine) BindingName(i int) string { return e.plan.Bindings[i].Name }

// BindingDims returns the declared dims of binding i; entries may be -1
// (dynamic).
func (e *Engine) BindingDims(i int) [4]int { return e.plan.Bindings[i].Dims }

// NewContext creates an execution context. Contexts are exclusively
// owned by one worker and must be destroyed when the worker finishes.
func (e *Engine) NewContext() (*ExecutionContext, error) {
	if e.plan == nil {
		return nil, fmt.Errorf("engine: context on nil engine")
	}
	return &ExecutionContext{eng: e}, nil
}

// ExecutionContext holds per-worker binding state against a shared
// engine. Not safe for concurrent use.
type ExecutionContext struct {
	eng       *Engine
	inputDims [4]int
	shapeSet  bool
	destroyed bool
}

// SetInputShape binds the input dimensions for subsequent Enqueue
// calls. Dims must all be positive; the batch dimension may vary call
// to call (1 in single-item mode, up to the fixed batch in batched
// mode).
func (c *ExecutionContext) SetInputShape(dims [4]int) error {
	if c.destroyed {
		return fmt.Errorf("engine: context destroyed")
	}
	for i, d := range dims {
		if d <= 0 {
			return fmt.Errorf("engine: input dim %d is %d", i, d)
		}
	}
	c.inputDims = dims
	c.shapeSet = true
	return nil
}

// AllInputDimsSpecified reports whether SetInputShape has been called.
func (c *ExecutionContext) AllInputDimsSpecified() bool { return c.shapeSet }

// BindingDims resolves binding i's dims against the current input
// shape: any declared -1 falls back to the corresponding input dim.
// This is the dynamic-shape resolution rule used throughout.
func (c *ExecutionContext) BindingDims(i int) ([4]int, error) {
	if !c.shapeSet {
		return [4]int{}, fmt.Errorf("engine: binding dims before SetInputShape")
	}
	dims := c.eng.plan.Bindings[i].Dims
	for j, d := range dims {
		if d < 0 {
			dims[j] = c.inputDims[j]
		}
	}
	return dims, nil
}

// Enqueue dispatches one inference pass asynchronously on stream.
// bindings[0] is the device input buffer; the rest are device output
// buffers in binding order. Enqueue must never run under graph capture:
// the engine's internal operations are not graph-capturable, a platform
// constraint, not a policy.
func (c *ExecutionContext) Enqueue(bindings []*gpu.DeviceBuffer, stream *gpu.Stream) error {
	if c.destroyed {
		return fmt.Errorf("engine: enqueue on destroyed context")
	}
	if !c.shapeSet {
		return fmt.Errorf("engine: enqueue before SetInputShape")
	}
	if stream.Capturing() {
		return fmt.Errorf("engine: enqueue inside graph capture is unsupported")
	}
	if len(bindings) != c.eng.NumBindings() {
		return fmt.Errorf("engine: %d bindings, engine declares %d", len(bindings), c.eng.NumBindings())
	}

	in := bindings[0]
	out := bindings[len(bindings)-1]
	dims := c.inputDims
	classes := c.eng.plan.Classes
	if need := dims[0] * dims[1] * dims[2] * dims[3] * 4; in.Size() < need {
		return fmt.Errorf("engine: input buffer %d < %d", in.Size(), need)
	}
	outDims, err := c.BindingDims(len(bindings) - 1)
	if err != nil {
		return err
	}
	if need := outDims[0] * outDims[1] * outDims[2] * outDims[3] * 4; out.Size() < need {
		return fmt.Errorf("engine: output buffer %d < %d", out.Size(), need)
	}

	return gpu.LaunchInference(in, out, dims, classes, stream)
}

// Destroy releases the context. Idempotent.
func (c *ExecutionContext) Destroy() { c.destroyed = true }
