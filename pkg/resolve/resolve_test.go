package resolve

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	qerrors "github.com/matzehuels/quickmod/pkg/errors"
	"github.com/matzehuels/quickmod/pkg/fetch"
	"github.com/matzehuels/quickmod/pkg/quickmod"
	"github.com/matzehuels/quickmod/pkg/store"
)

// fakeFetcher serves descriptors from memory. URLs listed in block wait
// until the context is canceled.
type fakeFetcher struct {
	mu       sync.Mutex
	payloads map[string]string
	delays   map[string]time.Duration
	block    map[string]bool
	calls    map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		payloads: make(map[string]string),
		delays:   make(map[string]time.Duration),
		block:    make(map[string]bool),
		calls:    make(map[string]int),
	}
}

func url(uid string) string { return "https://mods.example.com/" + uid + ".json" }

// add registers a descriptor for uid referencing deps.
func (f *fakeFetcher) add(uid string, deps ...string) {
	refs := make([]string, len(deps))
	for i, d := range deps {
		refs[i] = fmt.Sprintf("%q:%q", d, url(d))
	}
	f.payloads[url(uid)] = fmt.Sprintf(`{"uid":%q,"name":%q,"updateUrl":%q,"references":{%s}}`,
		uid, uid, url(uid), strings.Join(refs, ","))
}

func (f *fakeFetcher) Fetch(ctx context.Context, u string, _ fetch.ProgressFunc) ([]byte, error) {
	f.mu.Lock()
	f.calls[u]++
	data, ok := f.payloads[u]
	delay := f.delays[u]
	block := f.block[u]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, qerrors.Wrap(qerrors.ErrCodeCanceled, ctx.Err(), "fetch of %s canceled", u)
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if !ok {
		return nil, qerrors.New(qerrors.ErrCodeNotFound, "%s: status 404", u)
	}
	return []byte(data), nil
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeFetcher) callsFor(uid string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url(uid)]
}

func newTestStore(t *testing.T, f fetch.Fetcher) *store.Store {
	t.Helper()
	s, err := store.New(t.TempDir(), f, store.Options{})
	if err != nil {
		t.Fatalf("store.New() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func uids(mods []*quickmod.Mod) map[quickmod.UID]bool {
	set := make(map[quickmod.UID]bool, len(mods))
	for _, m := range mods {
		set[m.UID] = true
	}
	return set
}

func TestResolveScenario(t *testing.T) {
	// A -> {B, C}, B -> {C}: three distinct descriptors, three fetches.
	f := newFakeFetcher()
	f.add("a", "b", "c")
	f.add("b", "c")
	f.add("c")
	f.delays[url("c")] = 10 * time.Millisecond

	s := newTestStore(t, f)
	res, err := New(s, nil).Resolve(context.Background(), []Seed{{UID: "a", Locator: url("a")}}, Options{})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	if len(res.Mods) != 3 {
		t.Errorf("mods = %d, want 3", len(res.Mods))
	}
	if res.Fetches != 3 {
		t.Errorf("Fetches = %d, want 3", res.Fetches)
	}
	s.Wait()
	if n := f.totalCalls(); n != 3 {
		t.Errorf("fetcher calls = %d, want 3", n)
	}
	if res.Graph.EdgeCount() != 3 {
		t.Errorf("graph edges = %d, want 3", res.Graph.EdgeCount())
	}
	if len(res.Failures) != 0 || res.Err() != nil {
		t.Errorf("failures = %v", res.Failures)
	}
}

func TestResolveSkipsAlreadyResolved(t *testing.T) {
	f := newFakeFetcher()
	f.add("a", "b")
	s := newTestStore(t, f)
	s.Insert(&quickmod.Mod{UID: "b", Name: "b", Hash: "x", References: map[quickmod.UID]string{"c": url("c")}})
	s.Insert(&quickmod.Mod{UID: "c", Name: "c", Hash: "y"})

	res, err := New(s, nil).Resolve(context.Background(), []Seed{{UID: "a", Locator: url("a")}}, Options{})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	got := uids(res.Mods)
	for _, want := range []quickmod.UID{"a", "b", "c"} {
		if !got[want] {
			t.Errorf("result is missing %s", want)
		}
	}
	if f.callsFor("b") != 0 || f.callsFor("c") != 0 {
		t.Error("already resolved descriptors must not be fetched")
	}
	if res.Fetches != 1 {
		t.Errorf("Fetches = %d, want 1", res.Fetches)
	}
}

func TestResolveCycles(t *testing.T) {
	f := newFakeFetcher()
	f.add("a", "b")
	f.add("b", "a", "b")
	s := newTestStore(t, f)

	res, err := New(s, nil).Resolve(context.Background(), []Seed{{Locator: url("a")}}, Options{})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(res.Mods) != 2 || res.Fetches != 2 {
		t.Errorf("mods = %d, fetches = %d, want 2/2", len(res.Mods), res.Fetches)
	}
	if len(res.Graph.Cycles()) == 0 {
		t.Error("graph should report the reference cycle")
	}
}

func TestResolveProgressMonotonic(t *testing.T) {
	f := newFakeFetcher()
	f.add("root", "a", "b", "c", "d")
	for i, uid := range []string{"a", "b", "c", "d"} {
		f.add(uid, "leaf"+uid)
		f.add("leaf" + uid)
		f.delays[url(uid)] = time.Duration(4-i) * 5 * time.Millisecond
	}
	s := newTestStore(t, f)

	var progress []int
	res, err := New(s, nil).Resolve(context.Background(), []Seed{{Locator: url("root")}}, Options{
		OnProgress: func(p int) { progress = append(progress, p) },
	})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(res.Mods) != 9 {
		t.Errorf("mods = %d, want 9", len(res.Mods))
	}
	if len(progress) == 0 || progress[len(progress)-1] != 100 {
		t.Fatalf("progress = %v, want to end at 100", progress)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] <= progress[i-1] {
			t.Errorf("progress not increasing: %v", progress)
			break
		}
	}
	for _, p := range progress {
		if p < 0 || p > 100 {
			t.Errorf("progress out of range: %v", progress)
		}
	}
}

func TestResolveEmptySeeds(t *testing.T) {
	s := newTestStore(t, newFakeFetcher())

	var progress []int
	res, err := New(s, nil).Resolve(context.Background(), nil, Options{
		OnProgress: func(p int) { progress = append(progress, p) },
	})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(res.Mods) != 0 || res.Fetches != 0 {
		t.Errorf("result = %+v, want empty", res)
	}
	if len(progress) != 1 || progress[0] != 100 {
		t.Errorf("progress = %v, want [100]", progress)
	}
}

func TestResolveFailureIsReported(t *testing.T) {
	f := newFakeFetcher()
	f.add("a", "missing", "c")
	f.add("c")
	s := newTestStore(t, f)

	var reported []error
	res, err := New(s, nil).Resolve(context.Background(), []Seed{{Locator: url("a")}}, Options{
		OnError: func(err error) { reported = append(reported, err) },
	})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(res.Mods) != 2 {
		t.Errorf("mods = %d, want 2", len(res.Mods))
	}
	if len(res.Failures) != 1 {
		t.Fatalf("failures = %v, want 1", res.Failures)
	}
	fail := res.Failures[0]
	if fail.Locator != url("missing") || fail.UID != "missing" {
		t.Errorf("failure = %+v", fail)
	}
	if !qerrors.Is(res.Err(), qerrors.ErrCodeNotFound) {
		t.Errorf("Err() = %v, want NOT_FOUND", res.Err())
	}
	if len(reported) != 1 {
		t.Errorf("OnError calls = %d, want 1", len(reported))
	}
}

func TestResolveFailFast(t *testing.T) {
	f := newFakeFetcher()
	f.add("a", "missing", "slow")
	f.add("slow")
	f.delays[url("slow")] = 50 * time.Millisecond
	s := newTestStore(t, f)

	_, err := New(s, nil).Resolve(context.Background(), []Seed{{Locator: url("a")}}, Options{FailFast: true})
	if !qerrors.Is(err, qerrors.ErrCodeNotFound) {
		t.Fatalf("Resolve() error = %v, want NOT_FOUND", err)
	}
	if !strings.Contains(err.Error(), url("missing")) {
		t.Errorf("error should name the locator: %v", err)
	}
}

func TestResolveIsolatesConcurrentRuns(t *testing.T) {
	f := newFakeFetcher()
	f.add("ok")
	f.delays[url("ok")] = 30 * time.Millisecond
	f.delays[url("broken")] = 5 * time.Millisecond
	s := newTestStore(t, f)
	r := New(s, nil)

	var wg sync.WaitGroup
	var healthy *Result
	var healthyErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		healthy, healthyErr = r.Resolve(context.Background(), []Seed{{Locator: url("ok")}}, Options{FailFast: true})
	}()
	go func() {
		defer wg.Done()
		_, _ = r.Resolve(context.Background(), []Seed{{Locator: url("broken")}}, Options{FailFast: true})
	}()
	wg.Wait()

	if healthyErr != nil {
		t.Fatalf("unrelated failure leaked into run: %v", healthyErr)
	}
	if len(healthy.Failures) != 0 || len(healthy.Mods) != 1 {
		t.Errorf("healthy run = %+v", healthy)
	}
}

func TestResolveSharedLocator(t *testing.T) {
	resolveWithin := func(t *testing.T, r *Resolver, locator string) (*Result, error) {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return r.Resolve(ctx, []Seed{{Locator: locator}}, Options{})
	}

	t.Run("joins in-flight fetch", func(t *testing.T) {
		f := newFakeFetcher()
		f.add("x")
		f.delays[url("x")] = 100 * time.Millisecond
		s := newTestStore(t, f)
		r := New(s, nil)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = resolveWithin(t, r, url("x"))
			}()
			time.Sleep(30 * time.Millisecond)
		}
		wg.Wait()

		for i, err := range errs {
			if err != nil {
				t.Errorf("run %d: %v", i, err)
			}
		}
		if n := f.callsFor("x"); n != 1 {
			t.Errorf("fetches of x = %d, want 1", n)
		}
	})

	t.Run("starts while outcome is published", func(t *testing.T) {
		f := newFakeFetcher()
		f.add("x")
		s := newTestStore(t, f)
		r := New(s, nil)

		var once sync.Once
		second := make(chan error, 1)
		s.Added().Subscribe(func(e store.Event) {
			once.Do(func() {
				go func() {
					_, err := resolveWithin(t, r, url("x"))
					second <- err
				}()
				time.Sleep(200 * time.Millisecond)
			})
		})

		if _, err := resolveWithin(t, r, url("x")); err != nil {
			t.Fatalf("first run: %v", err)
		}
		if err := <-second; err != nil {
			t.Errorf("second run: %v", err)
		}
	})
}

func TestResolveCanceled(t *testing.T) {
	f := newFakeFetcher()
	f.add("a", "stuck")
	f.block[url("stuck")] = true
	s := newTestStore(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	returned := false
	late := false

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	_, err := New(s, nil).Resolve(ctx, []Seed{{Locator: url("a")}}, Options{
		OnProgress: func(int) {
			mu.Lock()
			if returned {
				late = true
			}
			mu.Unlock()
		},
	})
	mu.Lock()
	returned = true
	mu.Unlock()

	if !qerrors.Is(err, qerrors.ErrCodeCanceled) {
		t.Fatalf("Resolve() error = %v, want CANCELED", err)
	}
	s.Close()
	if late {
		t.Error("progress reported after Resolve returned")
	}
}

func TestResolveStoreUnusable(t *testing.T) {
	s := newTestStore(t, newFakeFetcher())
	s.Close()

	_, err := New(s, nil).Resolve(context.Background(), []Seed{{Locator: url("a")}}, Options{})
	if !qerrors.Is(err, qerrors.ErrCodeStoreUnusable) {
		t.Fatalf("Resolve() error = %v, want STORE_UNUSABLE", err)
	}
}

func TestResolveSeeds(t *testing.T) {
	f := newFakeFetcher()
	f.add("real")
	s := newTestStore(t, f)
	s.Insert(&quickmod.Mod{UID: "real", Name: "real", Stub: true, UpdateURL: url("real")})

	res, err := New(s, nil).Resolve(context.Background(), []Seed{{UID: "real"}, {UID: "ghost"}}, Options{})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(res.Mods) != 1 || res.Mods[0].IsStub() {
		t.Errorf("stub seed should be fetched through its updateUrl, got %v", res.Mods)
	}
	if len(res.Failures) != 1 || res.Failures[0].UID != "ghost" {
		t.Errorf("failures = %v, want ghost", res.Failures)
	}
	if !qerrors.Is(res.Failures[0], qerrors.ErrCodeNotFound) {
		t.Errorf("ghost failure code = %q", qerrors.GetCode(res.Failures[0]))
	}
}

func TestResolveDescriptorSeed(t *testing.T) {
	f := newFakeFetcher()
	f.add("dep")
	s := newTestStore(t, f)

	solo := &quickmod.Mod{UID: "solo", Name: "solo", References: map[quickmod.UID]string{"dep": url("dep")}}
	res, err := New(s, nil).Resolve(context.Background(), []Seed{{Mod: solo}}, Options{})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	got := uids(res.Mods)
	if len(got) != 2 || !got["solo"] || !got["dep"] {
		t.Errorf("mods = %v, want solo and dep", got)
	}
	if res.Fetches != 1 || f.totalCalls() != 1 {
		t.Errorf("fetches = %d, calls = %d; only dep should be fetched", res.Fetches, f.totalCalls())
	}
	if len(res.Failures) != 0 {
		t.Errorf("failures = %v", res.Failures)
	}
}

func TestResolveIndexSeed(t *testing.T) {
	f := newFakeFetcher()
	f.add("a", "b")
	f.add("b")
	f.add("c")
	index := "https://mods.example.com/index.json"
	f.payloads[index] = fmt.Sprintf(`{"IsIndex": true, "a": %q, "c": %q}`, url("a"), url("c"))
	s := newTestStore(t, f)

	res, err := New(s, nil).Resolve(context.Background(), []Seed{{Locator: index}}, Options{})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	got := uids(res.Mods)
	if len(got) != 3 || !got["a"] || !got["b"] || !got["c"] {
		t.Errorf("mods = %v, want a b c", got)
	}
}

func TestForwardNeverBlocks(t *testing.T) {
	c := newCrawler(context.Background(), nil, Options{}, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 1000 {
			c.forward(event{err: &store.Error{Locator: fmt.Sprint(i)}})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("forward blocked while the loop was not draining")
	}

	if got := c.drain(); len(got) != 1000 || got[0].err.Locator != "0" || got[999].err.Locator != "999" {
		t.Errorf("drained %d events, want 1000 in order", len(got))
	}

	c.finished = true
	c.forward(event{err: &store.Error{Locator: "late"}})
	if got := c.drain(); len(got) != 0 {
		t.Errorf("events after finish = %d, want 0", len(got))
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		requested, pending, want int
	}{
		{0, 0, 100},
		{1, 1, 0},
		{3, 2, 34},
		{3, 0, 100},
		{200, 199, 1},
	}
	for _, tt := range tests {
		if got := percent(tt.requested, tt.pending); got != tt.want {
			t.Errorf("percent(%d, %d) = %d, want %d", tt.requested, tt.pending, got, tt.want)
		}
	}
}
