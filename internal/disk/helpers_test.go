package disk

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type loggedError struct {
	category Category
	tag      string
	message  string
	cause    error
}

type recordingLogger struct {
	mu     sync.Mutex
	errors []loggedError
}

func (l *recordingLogger) LogError(category Category, tag, message string, cause error) {
	l.mu.Lock()
	l.errors = append(l.errors, loggedError{category, tag, message, cause})
	l.mu.Unlock()
}

func (l *recordingLogger) categories() []Category {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Category, 0, len(l.errors))
	for _, e := range l.errors {
		out = append(out, e.category)
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStorage(t *testing.T, opts Options) *DefaultDiskStorage {
	t.Helper()
	root := filepath.Join(t.TempDir(), "cache")
	storage, err := NewDefaultDiskStorage(root, 1, opts)
	require.NoError(t, err)
	return storage
}

func writeString(data string) WriterCallback {
	return func(w io.Writer) error {
		_, err := io.WriteString(w, data)
		return err
	}
}

func insertString(t *testing.T, s DiskStorage, id, data string) *FileResource {
	t.Helper()
	ins, err := s.Insert(id)
	require.NoError(t, err)
	require.NoError(t, ins.WriteData(writeString(data)))
	res, err := ins.Commit()
	require.NoError(t, err)
	return res
}

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func mtime(t *testing.T, path string) time.Time {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.ModTime()
}
