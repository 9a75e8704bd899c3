package queue

import "errors"

// ErrStopped is returned by consumers that ran on a closed queue.
var ErrStopped = errors.New("queue stopped")
