package disk

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/natefinch/atomic"
)

const (
	// VersionPrefix 标识目录结构版本；结构变化时修改它即可让旧缓存整体失效。
	VersionPrefix = "v2"
	// DefaultBucketCount 分片数量，避免单目录下堆积过多文件。
	DefaultBucketCount = 100
	// TempFileLifetime 超过该时长的临时文件允许被清理。
	TempFileLifetime = 30 * time.Minute

	storageTag = "DefaultDiskStorage"
)

// Options 控制 DefaultDiskStorage 的可注入依赖。零值可用。
type Options struct {
	Logger      CacheErrorLogger
	Clock       Clock
	BucketCount int
	External    bool
}

// DefaultDiskStorage 是 DiskStorage 的默认实现：按资源 ID 哈希分片，
// 所有分片目录位于版本目录之内。
type DefaultDiskStorage struct {
	root       string
	versionDir string
	buckets    int
	external   bool

	logger CacheErrorLogger
	clock  Clock
}

// VersionDirectoryName 返回 "{prefix}.ols{buckets}.{version}" 形式的版本目录名。
func VersionDirectoryName(bucketCount, version int) string {
	return fmt.Sprintf("%s.ols%d.%d", VersionPrefix, bucketCount, version)
}

// NewDefaultDiskStorage 在 root 下构建存储。root 存在但缺少当前版本目录时，
// 整个 root 会被删除重建。
func NewDefaultDiskStorage(root string, version int, opts Options) (*DefaultDiskStorage, error) {
	if root == "" {
		return nil, errors.New("disk storage root required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if opts.BucketCount < 0 {
		return nil, fmt.Errorf("invalid bucket count: %d", opts.BucketCount)
	}

	s := &DefaultDiskStorage{
		root:     abs,
		buckets:  coalesce(opts.BucketCount, DefaultBucketCount),
		external: opts.External,
		logger:   opts.Logger,
		clock:    opts.Clock,
	}
	if s.logger == nil {
		s.logger = NoOpCacheErrorLogger{}
	}
	if s.clock == nil {
		s.clock = SystemClock{}
	}
	s.versionDir = filepath.Join(abs, VersionDirectoryName(s.buckets, version))
	s.recreateDirectoryIfVersionChanges()
	return s, nil
}

// recreateDirectoryIfVersionChanges 实现整库失效的迁移策略。创建失败只记录日志，
// 写入时还会按需创建缺失的父目录。
func (s *DefaultDiskStorage) recreateDirectoryIfVersionChanges() {
	recreate := false
	if !dirExists(s.root) {
		recreate = true
	} else if !dirExists(s.versionDir) {
		recreate = true
		if err := os.RemoveAll(s.root); err != nil {
			s.logger.LogError(CategoryDeleteFile, storageTag, "failed to delete stale root: "+s.root, err)
		}
	}
	if !recreate {
		return
	}
	if err := os.MkdirAll(s.versionDir, 0o755); err != nil {
		s.logger.LogError(CategoryWriteCreateDir, storageTag, "version directory could not be created: "+s.versionDir, err)
	}
}

// Root 返回根目录绝对路径。
func (s *DefaultDiskStorage) Root() string { return s.root }

// VersionDirectory 返回当前版本目录绝对路径。
func (s *DefaultDiskStorage) VersionDirectory() string { return s.versionDir }

func (s *DefaultDiskStorage) IsEnabled() bool  { return true }
func (s *DefaultDiskStorage) IsExternal() bool { return s.external }

// StorageName 由根目录名与其路径哈希组成，用于日志区分多个存储实例。
func (s *DefaultDiskStorage) StorageName() string {
	return "_" + filepath.Base(s.root) + "_" + strconv.FormatUint(xxhash.Sum64String(s.root), 10)
}

// Shard 返回 resourceID 所属分片，对同一 ID 与分片数在任意进程中保持稳定。
func (s *DefaultDiskStorage) Shard(resourceID string) int {
	return shardFor(resourceID, s.buckets)
}

func shardFor(resourceID string, buckets int) int {
	return int(xxhash.Sum64String(resourceID) % uint64(buckets))
}

func (s *DefaultDiskStorage) subdirectory(resourceID string) string {
	return filepath.Join(s.versionDir, strconv.Itoa(s.Shard(resourceID)))
}

// ContentPath 返回 resourceID 对应正文文件的路径。
func (s *DefaultDiskStorage) ContentPath(resourceID string) string {
	info := FileInfo{Type: FileTypeContent, ResourceID: resourceID}
	return info.Path(s.subdirectory(resourceID))
}

func (s *DefaultDiskStorage) CreateTemporary(resourceID string) (*FileResource, error) {
	if err := validateResourceID(resourceID); err != nil {
		return nil, err
	}
	info := FileInfo{Type: FileTypeTemp, ResourceID: resourceID}
	parent := s.subdirectory(resourceID)
	if !dirExists(parent) {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			s.logger.LogError(CategoryWriteCreateDir, storageTag, "createTemporary", err)
			return nil, &WriteError{Category: CategoryWriteCreateDir, Op: "create temporary", ResourceID: resourceID, Err: err}
		}
	}

	path := filepath.Join(parent, info.tempName())
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		s.logger.LogError(CategoryWriteCreateTempFile, storageTag, "createTemporary", err)
		return nil, &WriteError{Category: CategoryWriteCreateTempFile, Op: "create temporary", ResourceID: resourceID, Err: err}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		s.logger.LogError(CategoryWriteCreateTempFile, storageTag, "createTemporary", err)
		return nil, &WriteError{Category: CategoryWriteCreateTempFile, Op: "create temporary", ResourceID: resourceID, Err: err}
	}
	return NewFileResource(path), nil
}

func (s *DefaultDiskStorage) UpdateResource(resourceID string, resource *FileResource, cb WriterCallback) error {
	if resource == nil || cb == nil {
		return ErrInvalidResource
	}
	f, err := os.OpenFile(resource.Path(), os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		category := CategoryGenericIO
		if isNotExist(err) {
			category = CategoryWriteUpdateFileNotFound
		}
		s.logger.LogError(category, storageTag, "updateResource", err)
		return &WriteError{Category: category, Op: "update resource", ResourceID: resourceID, Err: err}
	}

	buffered := bufio.NewWriter(f)
	counter := &countingWriter{w: buffered}
	writeErr := cb(counter)
	if writeErr == nil {
		writeErr = buffered.Flush()
	}
	// close 失败同样意味着数据可能没有完整落盘，不能静默忽略
	closeErr := f.Close()
	if writeErr != nil {
		s.logger.LogError(CategoryWriteCallbackError, storageTag, "updateResource", writeErr)
		return &WriteError{Category: CategoryWriteCallbackError, Op: "update resource", ResourceID: resourceID, Err: writeErr}
	}
	if closeErr != nil {
		return &WriteError{Category: CategoryGenericIO, Op: "update resource", ResourceID: resourceID, Err: closeErr}
	}

	if actual := resource.Size(); actual != counter.count {
		return &IncompleteFileError{Expected: counter.count, Actual: actual}
	}
	return nil
}

func (s *DefaultDiskStorage) Commit(resourceID string, temporary *FileResource) (*FileResource, error) {
	return s.commitAt(resourceID, temporary, s.clock.Now())
}

func (s *DefaultDiskStorage) commitAt(resourceID string, temporary *FileResource, modTime time.Time) (*FileResource, error) {
	if temporary == nil {
		return nil, ErrInvalidResource
	}
	if err := validateResourceID(resourceID); err != nil {
		return nil, err
	}
	target := s.ContentPath(resourceID)

	if err := atomic.ReplaceFile(temporary.Path(), target); err != nil {
		category := s.classifyRenameFailure(temporary.Path(), target)
		s.logger.LogError(category, storageTag, "commit", err)
		return nil, &WriteError{Category: category, Op: "commit", ResourceID: resourceID, Err: err}
	}
	if err := os.Chtimes(target, modTime, modTime); err != nil && !isNotExist(err) {
		s.logger.LogError(CategoryGenericIO, storageTag, "commit: refresh mtime", err)
	}
	return NewFileResource(target), nil
}

// classifyRenameFailure 区分目标目录缺失、源文件缺失与其它失败，仅用于诊断分类。
func (s *DefaultDiskStorage) classifyRenameFailure(source, target string) Category {
	if !dirExists(filepath.Dir(target)) {
		return CategoryWriteRenameParentNotFound
	}
	if _, err := os.Stat(source); isNotExist(err) {
		return CategoryWriteRenameTempFileNotFound
	}
	return CategoryWriteRenameOther
}

func (s *DefaultDiskStorage) Insert(resourceID string) (Inserter, error) {
	temp, err := s.CreateTemporary(resourceID)
	if err != nil {
		return nil, err
	}
	return &inserter{storage: s, resourceID: resourceID, temporary: temp}, nil
}

func (s *DefaultDiskStorage) GetResource(resourceID string) (*FileResource, bool) {
	if validateResourceID(resourceID) != nil {
		return nil, false
	}
	resource := NewFileResource(s.ContentPath(resourceID))
	if !resource.exists() {
		return nil, false
	}
	s.refresh(resource.Path())
	return resource, true
}

func (s *DefaultDiskStorage) Contains(resourceID string) bool {
	return s.query(resourceID, false)
}

func (s *DefaultDiskStorage) Touch(resourceID string) bool {
	return s.query(resourceID, true)
}

func (s *DefaultDiskStorage) query(resourceID string, touch bool) bool {
	if validateResourceID(resourceID) != nil {
		return false
	}
	resource := NewFileResource(s.ContentPath(resourceID))
	exists := resource.exists()
	if touch && exists {
		s.refresh(resource.Path())
	}
	return exists
}

// refresh 刷新 mtime；mtime 兼作外部淘汰策略的最近使用信号。
func (s *DefaultDiskStorage) refresh(path string) {
	now := s.clock.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		s.logger.LogError(CategoryGenericIO, storageTag, "refresh mtime", err)
	}
}

func (s *DefaultDiskStorage) Remove(resourceID string) int64 {
	if validateResourceID(resourceID) != nil {
		return 0
	}
	return s.doRemove(s.ContentPath(resourceID))
}

func (s *DefaultDiskStorage) RemoveEntry(entry *Entry) int64 {
	if entry == nil {
		return 0
	}
	return s.doRemove(entry.Resource().Path())
}

func (s *DefaultDiskStorage) doRemove(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		if isNotExist(err) {
			return 0
		}
		return -1
	}
	if err := os.Remove(path); err != nil {
		if isNotExist(err) {
			return 0
		}
		s.logger.LogError(CategoryDeleteFile, storageTag, "remove", err)
		return -1
	}
	return info.Size()
}

func (s *DefaultDiskStorage) Entries() ([]*Entry, error) {
	if _, err := os.Stat(s.versionDir); err != nil && !isNotExist(err) {
		return nil, err
	}
	collector := &entriesCollector{storage: s}
	walkFileTree(s.versionDir, collector)
	return collector.entries, nil
}

func (s *DefaultDiskStorage) PurgeUnexpectedResources() {
	walkFileTree(s.root, &purgingVisitor{storage: s, cutoff: s.clock.Now().Add(-TempFileLifetime)})
}

func (s *DefaultDiskStorage) ClearAll() error {
	return deleteContents(s.root)
}

// shardFileInfo 解析文件名并校验其位于正确的分片目录中，否则返回 false。
func (s *DefaultDiskStorage) shardFileInfo(path string) (FileInfo, bool) {
	info, ok := ParseFileInfo(path)
	if !ok {
		return FileInfo{}, false
	}
	if filepath.Dir(path) != s.subdirectory(info.ResourceID) {
		return FileInfo{}, false
	}
	return info, true
}

// entriesCollector 收集版本目录下位于正确分片的正文文件。
type entriesCollector struct {
	storage *DefaultDiskStorage
	entries []*Entry
}

func (c *entriesCollector) preVisitDirectory(string)  {}
func (c *entriesCollector) postVisitDirectory(string) {}

func (c *entriesCollector) visitFile(path string) {
	info, ok := c.storage.shardFileInfo(path)
	if ok && info.Type == FileTypeContent {
		c.entries = append(c.entries, newEntry(info.ResourceID, path))
	}
}

// purgingVisitor 删除版本目录之外的一切，以及版本目录内无法识别、分片错误
// 或早于 cutoff 的临时文件。根目录本身永不删除。
type purgingVisitor struct {
	storage       *DefaultDiskStorage
	cutoff        time.Time
	insideVersion bool
}

func (p *purgingVisitor) preVisitDirectory(dir string) {
	if !p.insideVersion && dir == p.storage.versionDir {
		p.insideVersion = true
	}
}

func (p *purgingVisitor) visitFile(path string) {
	if !p.insideVersion || !p.isExpectedFile(path) {
		_ = os.Remove(path)
	}
}

func (p *purgingVisitor) postVisitDirectory(dir string) {
	if dir != p.storage.root && !p.insideVersion {
		_ = os.Remove(dir)
	}
	if p.insideVersion && dir == p.storage.versionDir {
		p.insideVersion = false
	}
}

func (p *purgingVisitor) isExpectedFile(path string) bool {
	info, ok := p.storage.shardFileInfo(path)
	if !ok {
		return false
	}
	if info.Type == FileTypeTemp {
		return p.isRecentFile(path)
	}
	return true
}

func (p *purgingVisitor) isRecentFile(path string) bool {
	stat, err := os.Stat(path)
	if err != nil {
		return false
	}
	return stat.ModTime().After(p.cutoff)
}

type inserter struct {
	storage    *DefaultDiskStorage
	resourceID string
	temporary  *FileResource
}

func (i *inserter) WriteData(cb WriterCallback) error {
	return i.storage.UpdateResource(i.resourceID, i.temporary, cb)
}

func (i *inserter) Commit() (*FileResource, error) {
	return i.storage.Commit(i.resourceID, i.temporary)
}

func (i *inserter) CommitAt(t time.Time) (*FileResource, error) {
	return i.storage.commitAt(i.resourceID, i.temporary, t)
}

func (i *inserter) CleanUp() bool {
	err := os.Remove(i.temporary.Path())
	return err == nil || isNotExist(err)
}

// Temporary 返回 Inserter 持有的临时资源，用于测试与诊断。
func (i *inserter) Temporary() *FileResource {
	return i.temporary
}

// validateResourceID 拒绝空 ID 与任何可能逃逸出分片目录的 ID。
func validateResourceID(resourceID string) error {
	if resourceID == "" {
		return errors.New("resource id required")
	}
	if strings.ContainsAny(resourceID, `/\`) || resourceID == "." || resourceID == ".." {
		return fmt.Errorf("invalid resource id: %q", resourceID)
	}
	return nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func coalesce(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
