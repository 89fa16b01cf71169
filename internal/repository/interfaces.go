package repository

import "context"

// BlobRepository stores named JSON blobs. Each key is written atomically and
// independently; there is no cross-key transaction, so readers must tolerate
// blobs from different sync passes.
type BlobRepository interface {
	// Get unmarshals the blob stored under key into out.
	// Returns ErrNotFound if the key has never been written.
	Get(ctx context.Context, key string, out any) error
	// Put marshals value and overwrites the blob stored under key.
	Put(ctx context.Context, key string, value any) error
}

// CacheRepository is a small string key-value cache for lazily resolved
// upstream identifiers (org ID, person ID).
type CacheRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Blob keys making up a snapshot. Written one at a time by the sync service;
// last writer wins per key.
const (
	KeyTasks         = "tasks"
	KeyPrefixMap     = "prefix_map"
	KeyPrefixIndex   = "prefix_index"
	KeyPrefixLedger  = "prefix_ledger"
	KeyFilterOptions = "filter_options"
	KeyChangeSet     = "change_set"
	KeyLastSync      = "last_sync"
)

// Cache keys for identity resolution.
const (
	CacheKeyOrgID    = "org_id"
	CacheKeyPersonID = "person_id"
)
