package nyarudb

import (
	"fmt"

	"github.com/Voskan/nyarudb/internal/docfield"
	"github.com/Voskan/nyarudb/internal/shard"
)

// PartitionKeyMissingError and IndexKeyMissingError are re-exported aliases
// of the docfield package's typed errors: the façade is where callers
// actually observe them, but the canonicalization logic that detects a
// missing field lives in docfield.
type PartitionKeyMissingError = docfield.PartitionKeyMissingError
type IndexKeyMissingError = docfield.IndexKeyMissingError

// ShardAlreadyExistsError and ShardNotFoundError are re-exported aliases of
// the shard package's typed errors.
type ShardAlreadyExistsError = shard.AlreadyExistsError
type ShardNotFoundError = shard.NotFoundError

// InvalidDocumentError is returned when a document cannot be encoded or
// decoded as JSON.
type InvalidDocumentError struct {
	Reason string
}

func (e *InvalidDocumentError) Error() string {
	return fmt.Sprintf("nyarudb: invalid document: %s", e.Reason)
}

// ShardManagerCreationFailedError wraps a failure to construct a
// collection's shard manager (e.g. an unwritable collection directory).
type ShardManagerCreationFailedError struct {
	Collection string
	Err        error
}

func (e *ShardManagerCreationFailedError) Error() string {
	return fmt.Sprintf("nyarudb: shard manager creation failed for %q: %v", e.Collection, e.Err)
}

func (e *ShardManagerCreationFailedError) Unwrap() error { return e.Err }

// UpdateDocumentNotFoundError is returned by Update when no document in any
// shard of the collection satisfies the predicate.
type UpdateDocumentNotFoundError struct {
	Collection string
}

func (e *UpdateDocumentNotFoundError) Error() string {
	return fmt.Sprintf("nyarudb: update target not found in collection %q", e.Collection)
}

// CollectionNotFoundError is returned by operations that require an
// already-created collection (Update, Delete, Repartition,
// CleanupEmptyShards, Explain) when the collection has never been created.
type CollectionNotFoundError struct {
	Collection string
}

func (e *CollectionNotFoundError) Error() string {
	return fmt.Sprintf("nyarudb: collection %q not found", e.Collection)
}

// IoError wraps a filesystem failure that is not otherwise covered by a more
// specific typed error (codec.Error, shard's own errors).
type IoError struct {
	Op  string
	Err error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("nyarudb: io error during %s: %v", e.Op, e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }
