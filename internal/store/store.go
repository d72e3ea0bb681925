// Package store provides the durable record store for manifests, folders,
// settings and the active capture session, backed by SQLite.
package store

import "errors"

// Sentinel errors surfaced by store operations.
var (
	// ErrNotFound means no record matched the given id.
	ErrNotFound = errors.New("record not found")
	// ErrNotInRecycleBin means a recycle-bin-only operation was attempted
	// on an active record.
	ErrNotInRecycleBin = errors.New("record is not in the recycle bin")
)

// ListParams filters an active-history listing.
type ListParams struct {
	// FolderID restricts the listing to one folder. Empty lists root
	// (unfoldered) manifests unless All is set.
	FolderID string
	// All lists every active manifest regardless of folder.
	All bool
	// Limit caps the result count. 0 means no cap.
	Limit int
}

// Settings document keys. Each key holds one logical JSON document.
const (
	keyRateConfig     = "rate_config"
	keyPreferences    = "preferences"
	keyCaptureSession = "capture_session"
)
