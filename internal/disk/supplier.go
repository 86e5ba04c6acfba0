package disk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

const supplierTag = "DefaultDiskStorageSupplier"

// DiskStorageSupplier 延迟创建 DiskStorage，并在根目录失效后重建。
type DiskStorageSupplier interface {
	Get() (DiskStorage, error)
}

// DefaultSupplier 在一把锁下缓存当前的存储实例。每次 Get 都会检查根目录是否
// 仍然存在；根目录被外部删除或移走时，旧实例被丢弃并在原位置重建。
type DefaultSupplier struct {
	cfg DiskCacheConfig

	mu      sync.Mutex
	storage DiskStorage
	root    string
}

// NewDefaultSupplier 校验配置后返回 supplier；存储实例在首次 Get 时才创建。
func NewDefaultSupplier(cfg DiskCacheConfig) (*DefaultSupplier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = NoOpCacheErrorLogger{}
	}
	return &DefaultSupplier{cfg: cfg}, nil
}

// Config 返回 supplier 使用的配置。
func (s *DefaultSupplier) Config() DiskCacheConfig {
	return s.cfg
}

func (s *DefaultSupplier) Get() (DiskStorage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shouldCreateNewStorage() {
		s.deleteOldStorageIfNecessary()
		if err := s.createStorage(); err != nil {
			return nil, err
		}
	}
	return s.storage, nil
}

// Invalidate 丢弃当前实例，下一次 Get 会重新创建。
func (s *DefaultSupplier) Invalidate() {
	s.mu.Lock()
	s.storage = nil
	s.mu.Unlock()
}

// Current 返回已缓存的实例，不触发创建；尚未创建时返回 nil。
func (s *DefaultSupplier) Current() DiskStorage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage
}

func (s *DefaultSupplier) shouldCreateNewStorage() bool {
	if s.storage == nil {
		return true
	}
	if !s.storage.IsEnabled() {
		return false
	}
	return !dirExists(s.root)
}

func (s *DefaultSupplier) deleteOldStorageIfNecessary() {
	if s.storage == nil || s.root == "" {
		return
	}
	if err := os.RemoveAll(s.root); err != nil {
		s.cfg.Logger.LogError(CategoryDeleteFile, supplierTag, "deleteOldStorageIfNecessary", err)
	}
	s.storage = nil
}

func (s *DefaultSupplier) createStorage() error {
	if s.cfg.Disabled {
		s.storage = DisabledStorage{}
		s.root = ""
		return nil
	}
	root := s.cfg.RootDirectory()
	if err := s.createRootDirectoryIfNecessary(root); err != nil {
		return err
	}
	storage, err := NewDefaultDiskStorage(root, s.cfg.Version, s.cfg.storageOptions())
	if err != nil {
		return err
	}
	s.storage = storage
	s.root = storage.Root()
	return nil
}

// createRootDirectoryIfNecessary 确保 root 是目录；同名的普通文件会被覆盖。
func (s *DefaultSupplier) createRootDirectoryIfNecessary(root string) error {
	info, err := os.Stat(root)
	if err == nil && !info.IsDir() {
		if err := os.Remove(root); err != nil {
			s.cfg.Logger.LogError(CategoryWriteCreateDir, supplierTag, "createRootDirectoryIfNecessary", err)
			return &WriteError{Category: CategoryWriteCreateDir, Op: "create root", ResourceID: root, Err: err}
		}
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		s.cfg.Logger.LogError(CategoryWriteCreateDir, supplierTag, "createRootDirectoryIfNecessary", err)
		return &WriteError{Category: CategoryWriteCreateDir, Op: "create root", ResourceID: root, Err: err}
	}
	return nil
}

// Watch 监听根目录的父目录，根目录被删除或重命名时立即丢弃缓存的实例。
// 阻塞直到 ctx 结束；Get 自身的存在性检查仍然生效，监听只是提前失效。
func (s *DefaultSupplier) Watch(ctx context.Context) error {
	if s.cfg.Disabled {
		<-ctx.Done()
		return nil
	}
	parent := filepath.Clean(s.cfg.BaseDirectoryPath)
	root := filepath.Join(parent, s.cfg.BaseDirectoryName)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("prepare watch directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(parent); err != nil {
		return fmt.Errorf("watch %s: %w", parent, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != root {
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				s.Invalidate()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				s.Invalidate()
				continue
			}
			s.cfg.Logger.LogError(CategoryGenericIO, supplierTag, "watch", err)
		}
	}
}
