package routes

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/imagecache/internal/cache"
	"github.com/any-hub/imagecache/internal/disk"
	"github.com/any-hub/imagecache/internal/references"
)

func TestStatsReportsEntries(t *testing.T) {
	app, buffered := newAdminApp(t)
	insert(t, buffered, "a", "\x89PNG....")
	insert(t, buffered, "b", "GIF8....")

	var stats statsPayload
	getJSON(t, app, http.MethodGet, "/-/stats", &stats)
	if !stats.Enabled {
		t.Fatalf("expected cache enabled")
	}
	if stats.Writes != 2 {
		t.Fatalf("expected 2 writes, got %d", stats.Writes)
	}
	if stats.Staged != 0 {
		t.Fatalf("expected empty staging area, got %d", stats.Staged)
	}
}

func TestDumpGroupsByImageType(t *testing.T) {
	app, buffered := newAdminApp(t)
	insert(t, buffered, "a", "\x89PNG....")
	insert(t, buffered, "b", "GIF8....")
	insert(t, buffered, "c", "GIF8....")

	var info disk.DumpInfo
	getJSON(t, app, http.MethodGet, "/-/dump", &info)
	if len(info.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(info.Entries))
	}
	if info.TypeCounts["gif"] != 2 || info.TypeCounts["png"] != 1 {
		t.Fatalf("unexpected type counts %v", info.TypeCounts)
	}
}

func TestTrimToNothingEmptiesCache(t *testing.T) {
	app, buffered := newAdminApp(t)
	insert(t, buffered, "a", "aaaa")

	var stats statsPayload
	getJSON(t, app, http.MethodPost, "/-/trim?level=nothing", &stats)
	if buffered.Contains("a") {
		t.Fatalf("expected entry evicted by trim")
	}

	resp := request(t, app, http.MethodPost, "/-/trim?level=bogus")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for invalid level, got %d", resp.StatusCode)
	}
}

func TestClearOldValidatesMaxAge(t *testing.T) {
	app, buffered := newAdminApp(t)
	insert(t, buffered, "a", "aaaa")

	resp := request(t, app, http.MethodPost, "/-/clear-old?max_age=soon")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 status, got %d", resp.StatusCode)
	}

	var payload clearOldPayload
	getJSON(t, app, http.MethodPost, "/-/clear-old?max_age=0s", &payload)
	if buffered.Contains("a") {
		t.Fatalf("expected entry cleared with zero max age")
	}
}

func TestClearAllRemovesEverything(t *testing.T) {
	app, buffered := newAdminApp(t)
	insert(t, buffered, "a", "aaaa")

	resp := request(t, app, http.MethodDelete, "/-/cache")
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected 204 status, got %d", resp.StatusCode)
	}
	if buffered.Contains("a") {
		t.Fatalf("expected cache cleared")
	}
}

func newAdminApp(t *testing.T) (*fiber.App, *cache.BufferedDiskCache) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	supplier, err := disk.NewDefaultSupplier(disk.DefaultDiskCacheConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("failed to create supplier: %v", err)
	}
	diskCache, err := cache.NewDiskStorageCache(supplier, cache.Params{Default: 1 << 20}, cache.Options{Logger: logger})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	pool := cache.NewBufferPool(references.NewManager(references.Options{Registry: references.NewLiveObjects()}))
	buffered := cache.NewBufferedDiskCache(diskCache, pool, cache.BufferedOptions{Logger: logger})

	app := fiber.New()
	RegisterAdminRoutes(app, buffered)
	return app, buffered
}

func insert(t *testing.T, buffered *cache.BufferedDiskCache, key, value string) {
	t.Helper()
	ref := buffered.Pool().FromBytes([]byte(value))
	defer ref.Close()
	if err := buffered.Put(key, ref); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := buffered.Wait(); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
}

func request(t *testing.T, app *fiber.App, method, target string) *http.Response {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, "http://cache.local"+target, nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	return resp
}

func getJSON(t *testing.T, app *fiber.App, method, target string, out any) {
	t.Helper()
	resp := request(t, app, method, target)
	if resp.StatusCode != fiber.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200 status for %s, got %d (body=%s)", target, resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", target, err)
	}
}
