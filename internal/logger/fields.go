package logger

// Standard field keys, kept consistent across the indexer, watcher, search
// engine and HTTP layer so logs can be aggregated and queried uniformly.
const (
	KeyRequestID = "request_id"
	KeyClientID  = "client_id"
	KeyScope     = "scope"

	KeyPath       = "path"
	KeyFilepath   = "filepath"
	KeySubfolder  = "subfolder"
	KeyAssetID    = "asset_id"
	KeyRootID     = "root_id"
	KeySource     = "source"
	KeyKind       = "kind"
	KeySize       = "size_bytes"
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyErrorCode  = "error_code"
	KeyScanned    = "scanned"
	KeyAdded      = "added"
	KeyUpdated    = "updated"
	KeySkipped    = "skipped"
	KeyErrors     = "errors"
	KeyQueueLen   = "queue_length"
)
