package search

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotSynced indicates no snapshot exists yet; the caller should
	// trigger a sync before reading.
	ErrNotSynced = errors.New("no snapshot available, sync first")

	// ErrTicketNotFound indicates the requested ticket key resolves to
	// nothing in the snapshot.
	ErrTicketNotFound = errors.New("ticket not found")
)

// TicketNotFoundError carries the unresolved key plus the prefixes that do
// exist, so callers can show a helpful listing.
type TicketNotFoundError struct {
	Key           string
	KnownPrefixes []string
}

func (e *TicketNotFoundError) Error() string {
	if len(e.KnownPrefixes) == 0 {
		return fmt.Sprintf("ticket %s not found", e.Key)
	}
	return fmt.Sprintf("ticket %s not found (known prefixes: %s)", e.Key, strings.Join(e.KnownPrefixes, ", "))
}

func (e *TicketNotFoundError) Is(target error) bool {
	return target == ErrTicketNotFound
}
