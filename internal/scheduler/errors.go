package scheduler

import "errors"

var (
	// ErrPoolFull describes a worker pool with no free slot. WorkerPool does
	// not return it: TrySubmit reports a full pool by returning false.
	ErrPoolFull = errors.New("worker pool has no free slot")
)
