package sync

import "errors"

var (
	// ErrSyncInProgress indicates another sync pass currently holds the
	// single-flight guard.
	ErrSyncInProgress = errors.New("sync already in progress")
)
