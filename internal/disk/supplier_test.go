package disk

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestSupplier(t *testing.T) (*DefaultSupplier, string) {
	t.Helper()
	cfg := DefaultDiskCacheConfig(t.TempDir())
	cfg.BaseDirectoryName = "base"
	supplier, err := NewDefaultSupplier(cfg)
	require.NoError(t, err)
	return supplier, cfg.RootDirectory()
}

func TestSupplierCreatesAndReusesStorage(t *testing.T) {
	supplier, root := newTestSupplier(t)
	require.Nil(t, supplier.Current())

	storage, err := supplier.Get()
	require.NoError(t, err)
	require.IsType(t, &DefaultDiskStorage{}, storage)
	require.DirExists(t, filepath.Join(root, VersionDirectoryName(DefaultBucketCount, 1)))

	again, err := supplier.Get()
	require.NoError(t, err)
	require.Same(t, storage, again)
}

func TestSupplierRecreatesMovedRoot(t *testing.T) {
	supplier, root := newTestSupplier(t)
	storage, err := supplier.Get()
	require.NoError(t, err)
	insertString(t, storage, "abc", "hello")

	require.NoError(t, os.Rename(root, filepath.Join(filepath.Dir(root), "moved")))
	fresh, err := supplier.Get()
	require.NoError(t, err)
	require.NotSame(t, storage, fresh)
	require.DirExists(t, filepath.Join(root, VersionDirectoryName(DefaultBucketCount, 1)))
	require.False(t, fresh.Contains("abc"))
}

func TestSupplierClobbersFileAtRoot(t *testing.T) {
	supplier, root := newTestSupplier(t)
	writeFile(t, root, "not a directory")

	_, err := supplier.Get()
	require.NoError(t, err)
	require.DirExists(t, root)
}

func TestSupplierKeepsExistingRootContents(t *testing.T) {
	supplier, root := newTestSupplier(t)
	require.NoError(t, supplier.createRootDirectoryIfNecessary(root))
	marker := filepath.Join(root, "marker")
	writeFile(t, marker, "x")
	require.NoError(t, supplier.createRootDirectoryIfNecessary(root))
	require.FileExists(t, marker)
}

func TestSupplierDisabled(t *testing.T) {
	cfg := DefaultDiskCacheConfig(t.TempDir())
	cfg.Disabled = true
	supplier, err := NewDefaultSupplier(cfg)
	require.NoError(t, err)

	storage, err := supplier.Get()
	require.NoError(t, err)
	require.False(t, storage.IsEnabled())
	require.NoDirExists(t, cfg.RootDirectory())
}

func TestSupplierRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultDiskCacheConfig("")
	_, err := NewDefaultSupplier(cfg)
	require.Error(t, err)
}

func TestSupplierWatchInvalidatesOnRemoval(t *testing.T) {
	supplier, root := newTestSupplier(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- supplier.Watch(ctx) }()

	// watcher 注册是异步的，未命中时重建并再次删除
	require.Eventually(t, func() bool {
		if supplier.Current() == nil {
			return true
		}
		if _, err := supplier.Get(); err != nil {
			return false
		}
		_ = os.RemoveAll(root)
		return false
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
