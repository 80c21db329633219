package pipeline

import "fmt"

// Error taxonomy for a pipeline run. Plan-load failures surface as
// *engine.LoadError from the loading entry points; everything below is
// scoped to a worker or a single item and never aborts the whole batch.

// ContextCreationError means a worker could not create its execution
// context; that worker contributes no results.
type ContextCreationError struct {
	Worker int
	Err    error
}

func (e *ContextCreationError) Error() string {
	return fmt.Sprintf("worker %d: context creation: %v", e.Worker, e.Err)
}
func (e *ContextCreationError) Unwrap() error { return e.Err }

// AllocationError means buffer allocation failed for one item; the item
// is skipped after partial state is freed.
type AllocationError struct {
	Item int
	Err  error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("item %d: allocation: %v", e.Item, e.Err)
}
func (e *AllocationError) Unwrap() error { return e.Err }

// DispatchError means an inference or copy dispatch failed for one
// item. Item-scoped: the worker logs it and moves on.
type DispatchError struct {
	Item int
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("item %d: dispatch: %v", e.Item, e.Err)
}
func (e *DispatchError) Unwrap() error { return e.Err }

// CaptureError reports a failed graph capture attempt. Recoverable: the
// worker permanently falls back to direct dispatch.
type CaptureError struct {
	Err error
}

func (e *CaptureError) Error() string { return fmt.Sprintf("graph capture: %v", e.Err) }
func (e *CaptureError) Unwrap() error { return e.Err }

// InvalidShapeError means an item's tensor did not have the expected
// 4-D single-batch shape; the item is skipped.
type InvalidShapeError struct {
	Item int
	Dims [4]int
}

func (e *InvalidShapeError) Error() string {
	return fmt.Sprintf("item %d: invalid input shape %v", e.Item, e.Dims)
}
