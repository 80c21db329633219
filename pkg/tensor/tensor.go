package tensor

import "fmt"

// Tensor is a dense NCHW float32 tensor. It is the interchange format
// between the image-processing front end and the inference pipeline.
type Tensor struct {
	// Dims is [batch, channels, height, width].
	Dims [4]int
	Data []float32
}

// New allocates a zero-filled tensor with the given dimensions.
func New(n, c, h, w int) *Tensor {
	return &Tensor{
		Dims: [4]int{n, c, h, w},
		Data: make([]float32, n*c*h*w),
	}
}

// Numel returns the total element count.
func (t *Tensor) Numel() int {
	return t.Dims[0] * t.Dims[1] * t.Dims[2] * t.Dims[3]
}

// ItemSize returns the element count of a single batch item.
func (t *Tensor) ItemSize() int {
	return t.Dims[1] * t.Dims[2] * t.Dims[3]
}

// At returns the value at (n, c, y, x). No bounds checking beyond the
// underlying slice.
func (t *Tensor) At(n, c, y, x int) float32 {
	return t.Data[((n*t.Dims[1]+c)*t.Dims[2]+y)*t.Dims[3]+x]
}

// Set stores v at (n, c, y, x).
func (t *Tensor) Set(n, c, y, x int, v float32) {
	t.Data[((n*t.Dims[1]+c)*t.Dims[2]+y)*t.Dims[3]+x] = v
}

// SliceBatch returns a view over batch items [start, end). The returned
// tensor shares Data with t.
func (t *Tensor) SliceBatch(start, end int) (*Tensor, error) {
	if start < 0 || end > t.Dims[0] || start >= end {
		return nil, fmt.Errorf("tensor: invalid batch slice [%d,%d) of %d", start, end, t.Dims[0])
	}
	item := t.ItemSize()
	return &Tensor{
		Dims: [4]int{end - start, t.Dims[1], t.Dims[2], t.Dims[3]},
		Data: t.Data[start*item : end*item],
	}, nil
}

// PadBatch returns a tensor padded to exactly target batch items by
// repeating the last item. If t already has target or more items, t is
// returned unchanged. The padded copy owns fresh storage.
func (t *Tensor) PadBatch(target int) *Tensor {
	n := t.Dims[0]
	if n >= target {
		return t
	}
	out := New(target, t.Dims[1], t.Dims[2], t.Dims[3])
	copy(out.Data, t.Data)
	item := t.ItemSize()
	last := t.Data[(n-1)*item : n*item]
	for i := n; i < target; i++ {
		copy(out.Data[i*item:(i+1)*item], last)
	}
	return out
}

// Stack concatenates single-item tensors along the batch dimension.
// All inputs must share channel, height, and width dims.
func Stack(items []*Tensor) (*Tensor, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("tensor: empty stack")
	}
	c, h, w := items[0].Dims[1], items[0].Dims[2], items[0].Dims[3]
	out := New(len(items), c, h, w)
	item := out.ItemSize()
	for i, t := range items {
		if t.Dims[1] != c || t.Dims[2] != h || t.Dims[3] != w {
			return nil, fmt.Errorf("tensor: shape mismatch at item %d: %v vs [%d %d %d]", i, t.Dims, c, h, w)
		}
		if t.Dims[0] != 1 {
			return nil, fmt.Errorf("tensor: item %d has batch %d, want 1", i, t.Dims[0])
		}
		copy(out.Data[i*item:(i+1)*item], t.Data)
	}
	return out, nil
}
