package pipeline

// Options carries the run configuration that the original kept in
// process-wide globals. Owned by the caller, threaded explicitly.
type Options struct {
	// NumWorkers is the worker (and stream) count in single-item mode.
	// Partitioning math never assumes a particular value.
	NumWorkers int

	// FixedBatch selects the mode: 0 runs one inference per item
	// (single-batch plans); >0 chunks the frame list into fixed-shape
	// sub-batches, one worker per chunk, padding a short trailing chunk
	// by repeating the last item.
	FixedBatch int

	// WarmupRuns is the number of untimed inference dispatches before
	// the measured one.
	WarmupRuns int
}

func (o Options) withDefaults() Options {
	if o.NumWorkers <= 0 {
		o.NumWorkers = 2
	}
	if o.FixedBatch < 0 {
		o.FixedBatch = 0
	}
	if o.WarmupRuns < 0 {
		o.WarmupRuns = 0
	}
	return o
}
