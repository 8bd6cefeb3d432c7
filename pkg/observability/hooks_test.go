package observability

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	r := NoopResolveHooks{}
	r.OnResolveStart(ctx, 3)
	r.OnResolveComplete(ctx, 10, 1, time.Second, nil)

	i := NoopInstallHooks{}
	i.OnDownloadStart(ctx, "mezz.jei", "direct")
	i.OnDownloadComplete(ctx, "mezz.jei", "direct", 1024, time.Second, nil)

	c := NoopCacheHooks{}
	c.OnCacheHit(ctx, "descriptor")
	c.OnCacheMiss(ctx, "descriptor")
	c.OnCacheSet(ctx, "descriptor", 1024)

	h := NoopHTTPHooks{}
	h.OnRequest(ctx, "GET", "example.com", "/jei.json")
	h.OnResponse(ctx, "GET", "example.com", "/jei.json", 200, time.Second)
	h.OnError(ctx, "GET", "example.com", "/jei.json", nil)
}

func TestGlobalHooksRegistry(t *testing.T) {
	Reset()
	defer Reset()

	if _, ok := Resolve().(NoopResolveHooks); !ok {
		t.Error("Resolve() should return NoopResolveHooks by default")
	}
	if _, ok := Install().(NoopInstallHooks); !ok {
		t.Error("Install() should return NoopInstallHooks by default")
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Cache() should return NoopCacheHooks by default")
	}
	if _, ok := HTTP().(NoopHTTPHooks); !ok {
		t.Error("HTTP() should return NoopHTTPHooks by default")
	}

	custom := &testResolveHooks{}
	SetResolveHooks(custom)
	if Resolve() != custom {
		t.Error("SetResolveHooks should set custom hooks")
	}

	m := NewMetrics()
	Register(m)
	if Install() != m || Cache() != m || HTTP() != m || Resolve() != m {
		t.Error("Register should install metrics for every category")
	}

	Reset()
	if _, ok := Resolve().(NoopResolveHooks); !ok {
		t.Error("Reset() should restore NoopResolveHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()
	defer Reset()

	custom := &testResolveHooks{}
	SetResolveHooks(custom)
	SetResolveHooks(nil)

	if Resolve() != custom {
		t.Error("SetResolveHooks(nil) should be ignored")
	}
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	m := NewMetrics()

	m.OnResolveComplete(ctx, 4, 1, time.Second, nil)
	m.OnResolveComplete(ctx, 0, 0, time.Second, errors.New("store closed"))
	m.OnDownloadComplete(ctx, "a", "direct", 100, time.Second, nil)
	m.OnDownloadComplete(ctx, "b", "direct", 0, time.Second, errors.New("404"))
	m.OnCacheHit(ctx, "descriptor")
	m.OnCacheSet(ctx, "descriptor", 50)
	m.OnResponse(ctx, "GET", "example.com", "/a", 200, time.Millisecond)

	if got := testutil.ToFloat64(m.resolveTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("resolve ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.resolvedMods); got != 4 {
		t.Errorf("resolved mods = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.downloadTotal.WithLabelValues("direct", "error")); got != 1 {
		t.Errorf("download errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.downloadBytes); got != 100 {
		t.Errorf("download bytes = %v, want 100", got)
	}
	if got := testutil.ToFloat64(m.cacheBytes); got != 50 {
		t.Errorf("cache bytes = %v, want 50", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "quickmod_http_requests_total") {
		t.Error("metrics output is missing quickmod_http_requests_total")
	}
}

type testResolveHooks struct{ NoopResolveHooks }
