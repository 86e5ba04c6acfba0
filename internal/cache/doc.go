// Package cache layers size accounting and eviction on top of a disk.DiskStorage
// and provides the reference-counted read/write path used by the HTTP surface.
// DiskStorageCache maps caller keys to resource ids, keeps the on-disk size
// under a limit chosen from the available disk space, and trims on demand.
// BufferedDiskCache stages pooled buffers in memory while a bounded set of
// writers persists them, so readers never observe a partially written file.
package cache
