package vectorstore

import "errors"

var (
	// ErrEmbedderConflict means the tenant's active collection was built by a
	// different embedding function and the manager is configured to reject.
	ErrEmbedderConflict   = errors.New("collection embedder conflict")
	ErrCollectionNotFound = errors.New("collection not found")
)
