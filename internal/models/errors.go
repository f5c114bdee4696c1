package models

import "errors"

// Error taxonomy shared across services and handlers.
var (
	// ErrNotFound covers unknown document ids, registry entries whose
	// backing blob is gone, and expired task ids.
	ErrNotFound = errors.New("not found")

	// ErrNotReady means no retriever/chain exists yet for a document.
	// It is a valid degraded mode, not a failure: chat falls back to
	// ungrounded generation.
	ErrNotReady = errors.New("retriever not ready")

	// ErrDocumentExists is returned when a document id is registered twice.
	ErrDocumentExists = errors.New("document already registered")

	// ErrUpstreamFailure wraps embedding or generation backend errors.
	ErrUpstreamFailure = errors.New("upstream failure")

	// ErrIndexCorruption means an existing namespace does not match the
	// schema the embedder produces. The pipeline must not attach to it.
	ErrIndexCorruption = errors.New("index schema mismatch")
)
