package disk

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestInsertCommitReadRemove(t *testing.T) {
	storage := newTestStorage(t, Options{})

	temp, err := storage.CreateTemporary("abc")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(filepath.Base(temp.Path()), "abc."))
	require.True(t, strings.HasSuffix(temp.Path(), ".tmp"))

	require.NoError(t, storage.UpdateResource("abc", temp, writeString("hello")))
	committed, err := storage.Commit("abc", temp)
	require.NoError(t, err)

	want := filepath.Join(storage.VersionDirectory(), strconv.Itoa(storage.Shard("abc")), "abc.cnt")
	require.Equal(t, want, committed.Path())
	_, err = os.Stat(temp.Path())
	require.True(t, os.IsNotExist(err), "temporary file must be gone after commit")

	res, ok := storage.GetResource("abc")
	require.True(t, ok)
	data, err := res.Read()
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	entries, err := storage.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "abc", entries[0].ID())
	require.EqualValues(t, 5, entries[0].Size())

	require.EqualValues(t, 5, storage.Remove("abc"))
	require.False(t, storage.Contains("abc"))
	require.Zero(t, storage.Remove("abc"))
}

func TestVersionDirectoryLayout(t *testing.T) {
	storage := newTestStorage(t, Options{})
	require.Equal(t, "v2.ols100.1", filepath.Base(storage.VersionDirectory()))
	require.DirExists(t, storage.VersionDirectory())
	require.Equal(t, "v2.ols7.3", VersionDirectoryName(7, 3))
}

func TestVersionChangeWipesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "cache")
	v1, err := NewDefaultDiskStorage(root, 1, Options{})
	require.NoError(t, err)
	insertString(t, v1, "abc", "hello")
	writeFile(t, filepath.Join(root, "stray"), "x")

	v2, err := NewDefaultDiskStorage(root, 2, Options{})
	require.NoError(t, err)
	require.NoDirExists(t, v1.VersionDirectory())
	require.NoFileExists(t, filepath.Join(root, "stray"))
	require.DirExists(t, v2.VersionDirectory())

	entries, err := v2.Entries()
	require.NoError(t, err)
	require.Empty(t, entries)

	// 版本目录已存在时不会触碰已有数据
	insertString(t, v2, "abc", "world")
	again, err := NewDefaultDiskStorage(root, 2, Options{})
	require.NoError(t, err)
	require.True(t, again.Contains("abc"))
}

func TestShardIsStable(t *testing.T) {
	a := newTestStorage(t, Options{})
	b := newTestStorage(t, Options{})
	for _, id := range []string{"abc", "def", "0123456789abcdef", "x"} {
		shard := a.Shard(id)
		require.Equal(t, int(xxhash.Sum64String(id)%100), shard)
		require.Equal(t, shard, b.Shard(id))
		require.GreaterOrEqual(t, shard, 0)
		require.Less(t, shard, 100)
	}

	small := newTestStorage(t, Options{BucketCount: 3})
	for _, id := range []string{"abc", "def", "ghi"} {
		require.Less(t, small.Shard(id), 3)
	}
}

func TestCommitOverwritesExistingContent(t *testing.T) {
	storage := newTestStorage(t, Options{})
	insertString(t, storage, "abc", "first")
	insertString(t, storage, "abc", "second!")

	res, ok := storage.GetResource("abc")
	require.True(t, ok)
	data, err := res.Read()
	require.NoError(t, err)
	require.Equal(t, "second!", string(data))

	entries, err := storage.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestCommitClassifiesMissingTemporary(t *testing.T) {
	logger := &recordingLogger{}
	storage := newTestStorage(t, Options{Logger: logger})

	temp, err := storage.CreateTemporary("abc")
	require.NoError(t, err)
	require.NoError(t, os.Remove(temp.Path()))

	_, err = storage.Commit("abc", temp)
	var we *WriteError
	require.ErrorAs(t, err, &we)
	require.Equal(t, CategoryWriteRenameTempFileNotFound, we.Category)
	require.Equal(t, []Category{CategoryWriteRenameTempFileNotFound}, logger.categories())
}

func TestCommitClassifiesMissingParent(t *testing.T) {
	storage := newTestStorage(t, Options{})
	temp, err := storage.CreateTemporary("abc")
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(filepath.Dir(temp.Path())))

	_, err = storage.Commit("abc", temp)
	require.Equal(t, CategoryWriteRenameParentNotFound, CategoryOf(err))
}

func TestUpdateResourceErrors(t *testing.T) {
	storage := newTestStorage(t, Options{})

	missing := NewFileResource(filepath.Join(storage.VersionDirectory(), "nope.tmp"))
	err := storage.UpdateResource("abc", missing, writeString("x"))
	require.Equal(t, CategoryWriteUpdateFileNotFound, CategoryOf(err))
	require.NoFileExists(t, missing.Path(), "update must not create files")

	temp, err := storage.CreateTemporary("abc")
	require.NoError(t, err)
	boom := errors.New("boom")
	err = storage.UpdateResource("abc", temp, func(io.Writer) error { return boom })
	require.ErrorIs(t, err, boom)
	require.Equal(t, CategoryWriteCallbackError, CategoryOf(err))
}

func TestUpdateResourceDetectsIncompleteFile(t *testing.T) {
	storage := newTestStorage(t, Options{})
	temp, err := storage.CreateTemporary("abc")
	require.NoError(t, err)

	err = storage.UpdateResource("abc", temp, func(w io.Writer) error {
		if _, err := io.WriteString(w, "hello"); err != nil {
			return err
		}
		// 绕过计数 writer 直接写入更长的内容
		return os.WriteFile(temp.Path(), []byte("0123456789"), 0o644)
	})
	var incomplete *IncompleteFileError
	require.ErrorAs(t, err, &incomplete)
	require.EqualValues(t, 5, incomplete.Expected)
	require.EqualValues(t, 10, incomplete.Actual)
}

func TestTouchRefreshesTimestampContainsDoesNot(t *testing.T) {
	clock := newFakeClock()
	storage := newTestStorage(t, Options{Clock: clock})
	res := insertString(t, storage, "abc", "hello")
	committedAt := clock.Now()
	require.WithinDuration(t, committedAt, mtime(t, res.Path()), time.Second)

	clock.Advance(time.Hour)
	require.True(t, storage.Contains("abc"))
	require.WithinDuration(t, committedAt, mtime(t, res.Path()), time.Second)

	require.True(t, storage.Touch("abc"))
	require.WithinDuration(t, clock.Now(), mtime(t, res.Path()), time.Second)

	require.False(t, storage.Touch("missing"))
}

func TestRemoveReportsFailedDeletion(t *testing.T) {
	logger := &recordingLogger{}
	storage := newTestStorage(t, Options{Logger: logger})

	// 非空目录占住内容文件路径，删除必然失败
	blocked := storage.ContentPath("abc")
	writeFile(t, filepath.Join(blocked, "inner"), "x")

	require.Equal(t, int64(-1), storage.Remove("abc"))
	require.Contains(t, logger.categories(), CategoryDeleteFile)
	require.DirExists(t, blocked)

	require.Equal(t, int64(0), storage.Remove("missing"))
}

func TestRefreshLogsFailedTimestampUpdate(t *testing.T) {
	logger := &recordingLogger{}
	storage := newTestStorage(t, Options{Logger: logger})

	storage.refresh(storage.ContentPath("gone"))
	require.Equal(t, []Category{CategoryGenericIO}, logger.categories())
}

func TestInserterCommitAtAndCleanUp(t *testing.T) {
	storage := newTestStorage(t, Options{})
	ins, err := storage.Insert("abc")
	require.NoError(t, err)
	require.NoError(t, ins.WriteData(writeString("hello")))
	at := time.Unix(1_600_000_000, 0)
	res, err := ins.CommitAt(at)
	require.NoError(t, err)
	require.WithinDuration(t, at, mtime(t, res.Path()), time.Second)
	require.True(t, ins.CleanUp(), "cleanup after commit is a no-op")

	ins, err = storage.Insert("def")
	require.NoError(t, err)
	temp := ins.(*inserter).Temporary()
	require.FileExists(t, temp.Path())
	require.True(t, ins.CleanUp())
	require.NoFileExists(t, temp.Path())
	require.False(t, storage.Contains("def"))
}

func TestPurgeUnexpectedResources(t *testing.T) {
	storage := newTestStorage(t, Options{})
	root := storage.Root()
	version := storage.VersionDirectory()

	kept := insertString(t, storage, "abc", "hello")

	strayFile := filepath.Join(root, "stray.txt")
	oldVersionFile := filepath.Join(root, "v2.ols100.0", "1", "abc.cnt")
	writeFile(t, strayFile, "x")
	writeFile(t, oldVersionFile, "x")

	wrongShard := (storage.Shard("abc") + 1) % DefaultBucketCount
	misplaced := filepath.Join(version, strconv.Itoa(wrongShard), "abc.cnt")
	unknown := filepath.Join(version, strconv.Itoa(storage.Shard("abc")), "readme.txt")
	writeFile(t, misplaced, "x")
	writeFile(t, unknown, "x")

	young, err := storage.CreateTemporary("young")
	require.NoError(t, err)
	old, err := storage.CreateTemporary("old")
	require.NoError(t, err)
	past := time.Now().Add(-2 * TempFileLifetime)
	require.NoError(t, os.Chtimes(old.Path(), past, past))

	storage.PurgeUnexpectedResources()

	require.FileExists(t, kept.Path())
	require.FileExists(t, young.Path())
	require.NoFileExists(t, old.Path())
	require.NoFileExists(t, misplaced)
	require.NoFileExists(t, unknown)
	require.NoFileExists(t, strayFile)
	require.NoDirExists(t, filepath.Join(root, "v2.ols100.0"))
	require.DirExists(t, root)
	require.DirExists(t, version)
}

func TestEntriesSkipMisplacedAndTemporaryFiles(t *testing.T) {
	storage := newTestStorage(t, Options{})
	insertString(t, storage, "abc", "1")
	insertString(t, storage, "def", "22")
	_, err := storage.CreateTemporary("ghi")
	require.NoError(t, err)
	wrongShard := (storage.Shard("zzz") + 1) % DefaultBucketCount
	writeFile(t, filepath.Join(storage.VersionDirectory(), strconv.Itoa(wrongShard), "zzz.cnt"), "x")

	entries, err := storage.Entries()
	require.NoError(t, err)
	ids := map[string]int64{}
	for _, e := range entries {
		ids[e.ID()] = e.Size()
	}
	if diff := cmp.Diff(map[string]int64{"abc": 1, "def": 2}, ids); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestEntryCachesSizeAndTimestamp(t *testing.T) {
	storage := newTestStorage(t, Options{})
	insertString(t, storage, "abc", "hello")
	entries, err := storage.Entries()
	require.NoError(t, err)
	entry := entries[0]
	size, ts := entry.Size(), entry.Timestamp()

	require.NoError(t, os.WriteFile(entry.Resource().Path(), []byte("much longer"), 0o644))
	require.Equal(t, size, entry.Size())
	require.Equal(t, ts, entry.Timestamp())

	require.EqualValues(t, 11, storage.RemoveEntry(entry))
	require.Zero(t, storage.RemoveEntry(entry))
}

func TestClearAllKeepsRoot(t *testing.T) {
	storage := newTestStorage(t, Options{})
	insertString(t, storage, "abc", "hello")
	require.NoError(t, storage.ClearAll())
	require.DirExists(t, storage.Root())
	left, err := os.ReadDir(storage.Root())
	require.NoError(t, err)
	require.Empty(t, left)
	require.False(t, storage.Contains("abc"))

	// 版本目录被清掉后写入仍可重新创建分片目录
	insertString(t, storage, "abc", "again")
	require.True(t, storage.Contains("abc"))
}

func TestInvalidResourceIDs(t *testing.T) {
	storage := newTestStorage(t, Options{})
	for _, id := range []string{"", "..", "a/b", `a\b`} {
		_, err := storage.CreateTemporary(id)
		require.Error(t, err, id)
		require.False(t, storage.Contains(id))
		require.Zero(t, storage.Remove(id))
	}
}

func TestStorageNameIncludesRoot(t *testing.T) {
	storage := newTestStorage(t, Options{External: true})
	require.True(t, strings.HasPrefix(storage.StorageName(), "_cache_"))
	require.True(t, storage.IsExternal())
	require.True(t, storage.IsEnabled())
}

func TestDumpInfo(t *testing.T) {
	storage := newTestStorage(t, Options{})
	insertString(t, storage, "jpeg", "\xFF\xD8\xFF\xE0")
	insertString(t, storage, "png", "\x89PNG")
	insertString(t, storage, "other", "ABCD")

	info, err := storage.DumpInfo()
	require.NoError(t, err)
	require.Len(t, info.Entries, 3)
	require.Equal(t, map[string]int{"jpg": 1, "png": 1, "undefined": 1}, info.TypeCounts)
	for _, e := range info.Entries {
		if e.ID == "other" {
			require.Equal(t, "0x41 0x42 0x43 0x44", e.FirstBits)
		} else {
			require.Empty(t, e.FirstBits)
		}
	}
}

func TestDisabledStorage(t *testing.T) {
	var storage DiskStorage = DisabledStorage{}
	require.False(t, storage.IsEnabled())

	ins, err := storage.Insert("abc")
	require.NoError(t, err)
	require.NoError(t, ins.WriteData(writeString("hello")))
	resource, err := ins.Commit()
	require.NoError(t, err)
	require.Nil(t, resource)

	temp, err := storage.CreateTemporary("abc")
	require.NoError(t, err)
	require.Nil(t, temp)
	require.NoError(t, storage.UpdateResource("abc", temp, writeString("hello")))
	committed, err := storage.Commit("abc", temp)
	require.NoError(t, err)
	require.Nil(t, committed)
	require.Equal(t, int64(0), storage.Remove("abc"))
	require.False(t, storage.Contains("abc"))
	_, ok := storage.GetResource("abc")
	require.False(t, ok)
}

func TestParseFileInfo(t *testing.T) {
	cases := []struct {
		name string
		want FileInfo
		ok   bool
	}{
		{"abc.cnt", FileInfo{Type: FileTypeContent, ResourceID: "abc"}, true},
		{"/x/y/abc.cnt", FileInfo{Type: FileTypeContent, ResourceID: "abc"}, true},
		{"abc.6ba7b810.tmp", FileInfo{Type: FileTypeTemp, ResourceID: "abc"}, true},
		{"a.b.c.123.tmp", FileInfo{Type: FileTypeTemp, ResourceID: "a.b.c"}, true},
		{"abc.tmp", FileInfo{}, false},
		{".cnt", FileInfo{}, false},
		{"abc.txt", FileInfo{}, false},
		{"abc", FileInfo{}, false},
	}
	for _, tc := range cases {
		got, ok := ParseFileInfo(tc.name)
		require.Equal(t, tc.ok, ok, tc.name)
		require.Equal(t, tc.want, got, tc.name)
	}

	temp := FileInfo{Type: FileTypeTemp, ResourceID: "abc"}
	parsed, ok := ParseFileInfo(temp.tempName())
	require.True(t, ok)
	require.Equal(t, temp, parsed)
}
