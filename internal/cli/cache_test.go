package cli

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/matzehuels/quickmod/internal/config"
	"github.com/matzehuels/quickmod/pkg/cache"
	qerrors "github.com/matzehuels/quickmod/pkg/errors"
)

func testCLI(t *testing.T) *CLI {
	t.Helper()
	c := New(io.Discard, LogInfo)
	c.Config = config.Defaults()
	c.Config.Cache.Dir = t.TempDir()
	c.Config.Store.Dir = t.TempDir()
	return c
}

func TestFileCacheClear(t *testing.T) {
	c := testCLI(t)

	fc, err := c.fileCache()
	if err != nil {
		t.Fatalf("fileCache() error: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"http:a", "http:b"} {
		if err := fc.Set(ctx, key, []byte("payload"), time.Hour); err != nil {
			t.Fatalf("Set(%s) error: %v", key, err)
		}
	}

	n, err := fc.Clear()
	if err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if n != 2 {
		t.Errorf("Clear() = %d, want 2", n)
	}
	if _, ok, _ := fc.Get(ctx, "http:a"); ok {
		t.Error("entry still present after Clear()")
	}
}

func TestFileCacheRemoteBackend(t *testing.T) {
	c := testCLI(t)
	c.Config.Cache.Backend = cache.BackendRedis

	_, err := c.fileCache()
	if !qerrors.Is(err, qerrors.ErrCodeUnsupported) {
		t.Errorf("fileCache() error = %v, want UNSUPPORTED", err)
	}
}
