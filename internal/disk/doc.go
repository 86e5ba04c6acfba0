// Package disk implements durable, sharded, versioned byte storage for cache
// entries keyed by an opaque resource id.
//
// Files live under root/<prefix>.ols<buckets>.<version>/<shard>/. Writers get a
// uniquely named temp file (<id>.<unique>.tmp), fill it, and publish it with a
// same-filesystem rename to <id>.cnt, so readers never observe a partially
// written content file. A root that lacks the expected version directory is
// wiped and recreated: format or content-version changes invalidate the whole
// cache instead of migrating entries.
//
// The storage never touches reference counts; callers wrap the bytes they read
// in references.CloseableReference handles.
package disk
