// Package references implements deterministic lifetime management for
// expensive values (decoded bitmaps, pooled byte buffers, open files).
//
// A SharedReference owns exactly one value and a reference count; when the
// count drops to zero the value is handed to its ResourceReleaser exactly once.
// Callers never hold a SharedReference directly: they hold CloseableReference
// handles, which alias a SharedReference and expose idempotent Close plus
// Clone. The lifetime policy of a handle (counted, finalizer-driven,
// count-only, or disabled) is chosen by a Manager when the handle is created.
package references
