package port

import "errors"

// ErrVersionConflict is returned by UpdateVersioned when the stored version
// no longer matches the version the caller read. The caller must re-fetch
// and retry; repositories never retry on their own.
var ErrVersionConflict = errors.New("version conflict")
