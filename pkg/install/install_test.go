package install

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	qerrors "github.com/matzehuels/quickmod/pkg/errors"
	"github.com/matzehuels/quickmod/pkg/fetch"
	"github.com/matzehuels/quickmod/pkg/httputil"
	"github.com/matzehuels/quickmod/pkg/quickmod"
	"github.com/matzehuels/quickmod/pkg/resolve"
	"github.com/matzehuels/quickmod/pkg/store"
)

type resolverFunc func(ctx context.Context, seeds []resolve.Seed, opts resolve.Options) (*resolve.Result, error)

func (f resolverFunc) Resolve(ctx context.Context, seeds []resolve.Seed, opts resolve.Options) (*resolve.Result, error) {
	return f(ctx, seeds, opts)
}

// resolved returns a resolver that resolves any seeds to mods.
func resolved(mods ...*quickmod.Mod) Resolver {
	return resolverFunc(func(context.Context, []resolve.Seed, resolve.Options) (*resolve.Result, error) {
		return &resolve.Result{Mods: mods}, nil
	})
}

// fakeDownloader writes a fixed payload. URLs in gates wait for their gate
// to be closed; URLs in fail return the error.
type fakeDownloader struct {
	mu    sync.Mutex
	calls []string
	gates map[string]chan struct{}
	fail  map[string]error
}

func (d *fakeDownloader) Download(ctx context.Context, url, dest string, opts fetch.DownloadOptions) (int64, error) {
	d.mu.Lock()
	d.calls = append(d.calls, url)
	gate := d.gates[url]
	err := d.fail[url]
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return 0, qerrors.Wrap(qerrors.ErrCodeCanceled, ctx.Err(), "download of %s canceled", url)
		}
	}
	if err != nil {
		return 0, err
	}
	if opts.OnProgress != nil {
		opts.OnProgress(3, 7)
		opts.OnProgress(7, 7)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, err
	}
	return 7, os.WriteFile(dest, []byte("payload"), 0o644)
}

func (d *fakeDownloader) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

// recorder collects callbacks from any goroutine.
type recorder struct {
	mu     sync.Mutex
	status []StatusEvent
	done   []*Report
}

func (r *recorder) onStatus(ev StatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = append(r.status, ev)
}

func (r *recorder) onDone(rep *Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = append(r.done, rep)
}

func (r *recorder) doneCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.done)
}

// states returns the sequence of distinct states reported for uid.
func (r *recorder) states(uid quickmod.UID) []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []State
	for _, ev := range r.status {
		if ev.UID != uid {
			continue
		}
		if len(out) == 0 || out[len(out)-1] != ev.State {
			out = append(out, ev.State)
		}
	}
	return out
}

func (r *recorder) waitFor(t *testing.T, uid quickmod.UID, s State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if slices.Contains(r.states(uid), s) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s never reached %s", uid, s)
}

func mod(uid, method, url string) *quickmod.Mod {
	v := quickmod.Version{Name: "1.0.0", Method: quickmod.DownloadMethod(method), URL: url}
	if method == string(quickmod.DownloadCached) {
		v.CachedPath = url
		v.URL = ""
	}
	return &quickmod.Mod{UID: quickmod.UID(uid), Name: uid, Versions: []quickmod.Version{v}}
}

func outcome(t *testing.T, rep *Report, uid quickmod.UID) Outcome {
	t.Helper()
	for _, o := range rep.Outcomes {
		if o.UID == uid {
			return o
		}
	}
	t.Fatalf("no outcome for %s", uid)
	return Outcome{}
}

func TestRunDirectAndCached(t *testing.T) {
	// Two direct downloads, one of which 404s, and one cached version.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ok.jar" {
			http.NotFound(w, r)
			return
		}
		time.Sleep(20 * time.Millisecond)
		w.Write([]byte("jar bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	cached := filepath.Join(t.TempDir(), "cached.jar")
	mods := []*quickmod.Mod{
		mod("ok", "direct", srv.URL+"/ok.jar"),
		mod("gone", "direct", srv.URL+"/gone.jar"),
		mod("local", "cached", cached),
	}
	rec := &recorder{}
	client := fetch.New(fetch.Options{Retry: httputil.Policy{Attempts: 1}})

	o := New(resolved(mods...), Options{
		Dir:        dir,
		Downloader: client,
		OnStatus:   rec.onStatus,
		OnDone:     rec.onDone,
	})
	rep, err := o.Run(context.Background(), mods)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if n := rec.doneCount(); n != 1 {
		t.Fatalf("OnDone calls = %d, want 1", n)
	}
	for _, o := range rec.done[0].Outcomes {
		if !o.State.Terminal() {
			t.Errorf("completion reported while %s was %s", o.UID, o.State)
		}
	}

	ok := outcome(t, rep, "ok")
	if ok.State != Completed || ok.Path != filepath.Join(dir, "ok", "ok.jar") {
		t.Errorf("ok = %+v", ok)
	}
	if data, _ := os.ReadFile(ok.Path); string(data) != "jar bytes" {
		t.Errorf("payload = %q", data)
	}

	gone := outcome(t, rep, "gone")
	if gone.State != Failed || !qerrors.Is(gone.Err, qerrors.ErrCodeNotFound) {
		t.Errorf("gone = %+v", gone)
	}
	msg := rep.Table[gone.Handle].Message
	if !strings.Contains(msg, "/gone.jar") {
		t.Errorf("failure message %q should carry the URL", msg)
	}

	local := outcome(t, rep, "local")
	if local.State != Completed || local.Path != cached {
		t.Errorf("local = %+v", local)
	}

	if !qerrors.Is(rep.Err(), qerrors.ErrCodePartialInstall) {
		t.Errorf("Err() = %v, want PARTIAL_INSTALL", rep.Err())
	}
	if len(rep.Completed()) != 2 || len(rep.Failed()) != 1 {
		t.Errorf("completed/failed = %d/%d", len(rep.Completed()), len(rep.Failed()))
	}
}

func TestRunNoPrematureCompletion(t *testing.T) {
	gate := make(chan struct{})
	dl := &fakeDownloader{gates: map[string]chan struct{}{"https://x/slow.jar": gate}}
	mods := []*quickmod.Mod{
		mod("fast", "direct", "https://x/fast.jar"),
		mod("slow", "direct", "https://x/slow.jar"),
	}
	rec := &recorder{}
	o := New(resolved(mods...), Options{
		Dir:        t.TempDir(),
		Downloader: dl,
		OnStatus:   rec.onStatus,
		OnDone:     rec.onDone,
	})

	result := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background(), mods)
		result <- err
	}()

	rec.waitFor(t, "fast", Completed)
	if rec.doneCount() != 0 {
		t.Fatal("completion reported while slow was still downloading")
	}
	close(gate)
	if err := <-result; err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if rec.doneCount() != 1 {
		t.Errorf("OnDone calls = %d, want 1", rec.doneCount())
	}
}

func TestRunStateMachine(t *testing.T) {
	m := mod("a", "direct", "https://x/a.jar")
	rec := &recorder{}
	o := New(resolved(m), Options{Dir: t.TempDir(), Downloader: &fakeDownloader{}, OnStatus: rec.onStatus})
	if _, err := o.Run(context.Background(), []*quickmod.Mod{m}); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	want := []State{AwaitingDependencyResolution, Queued, Downloading, Completed}
	if got := rec.states("a"); !slices.Equal(got, want) {
		t.Errorf("states = %v, want %v", got, want)
	}
}

func TestRunAlreadyDownloaded(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "a", "a.jar")
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dest, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := mod("a", "direct", "https://x/a.jar")
	dl := &fakeDownloader{}
	rep, err := New(resolved(m), Options{Dir: dir, Downloader: dl}).Run(context.Background(), []*quickmod.Mod{m})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if dl.callCount() != 0 {
		t.Error("present file should not be downloaded again")
	}
	if o := outcome(t, rep, "a"); o.State != Completed || o.Path != dest {
		t.Errorf("outcome = %+v", o)
	}
}

type fakeNavigator struct {
	events []NavEvent
}

func (n *fakeNavigator) Navigate(_ context.Context, req NavigateRequest, emit func(NavEvent)) {
	for _, ev := range n.events {
		if ev.Kind == NavCompleted && ev.Path == "" {
			ev.Path = filepath.Join(req.Dir, "page.jar")
		}
		emit(ev)
	}
}

func TestRunWebDownload(t *testing.T) {
	m := mod("w", "web", "https://x/page")
	rec := &recorder{}
	nav := &fakeNavigator{events: []NavEvent{
		{Kind: URLCaught, URL: "https://cdn.x/w.jar"},
		{Kind: NavProgress, Current: 5, Total: 10},
		{Kind: NavCompleted},
	}}
	dir := t.TempDir()
	rep, err := New(resolved(m), Options{Dir: dir, Navigator: nav, OnStatus: rec.onStatus}).
		Run(context.Background(), []*quickmod.Mod{m})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	want := []State{AwaitingDependencyResolution, Queued, AwaitingUserInteraction, Downloading, Completed}
	if got := rec.states("w"); !slices.Equal(got, want) {
		t.Errorf("states = %v, want %v", got, want)
	}
	o := outcome(t, rep, "w")
	if o.Path != filepath.Join(dir, "w", "page.jar") {
		t.Errorf("path = %q", o.Path)
	}
	if rep.Table[o.Handle].URL != "https://cdn.x/w.jar" {
		t.Errorf("URL = %q", rep.Table[o.Handle].URL)
	}
}

func TestRunWebWithoutResult(t *testing.T) {
	m := mod("w", "web", "https://x/page")
	nav := &fakeNavigator{events: []NavEvent{{Kind: URLCaught, URL: "https://cdn.x/w.jar"}}}
	rep, err := New(resolved(m), Options{Dir: t.TempDir(), Navigator: nav}).Run(context.Background(), []*quickmod.Mod{m})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if o := outcome(t, rep, "w"); o.State != Failed {
		t.Errorf("state = %s, want failed", o.State)
	}
}

func TestRunWebUnsupported(t *testing.T) {
	m := mod("w", "web", "https://x/page")
	rep, err := New(resolved(m), Options{Dir: t.TempDir()}).Run(context.Background(), []*quickmod.Mod{m})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if o := outcome(t, rep, "w"); !qerrors.Is(o.Err, qerrors.ErrCodeUnsupported) {
		t.Errorf("err = %v, want UNSUPPORTED", o.Err)
	}
}

func TestRunResolverFailure(t *testing.T) {
	boom := qerrors.New(qerrors.ErrCodeStoreUnusable, "store closed")
	r := resolverFunc(func(context.Context, []resolve.Seed, resolve.Options) (*resolve.Result, error) {
		return nil, boom
	})
	m := mod("a", "direct", "https://x/a.jar")
	rec := &recorder{}
	dl := &fakeDownloader{}

	rep, err := New(r, Options{Dir: t.TempDir(), Downloader: dl, OnStatus: rec.onStatus, OnDone: rec.onDone}).
		Run(context.Background(), []*quickmod.Mod{m})
	if !errors.Is(err, boom) || rep != nil {
		t.Fatalf("Run() = %v, %v; want resolver error", rep, err)
	}
	if rec.doneCount() != 0 || dl.callCount() != 0 {
		t.Error("nothing may be downloaded or reported after a resolver failure")
	}
	if got := rec.states("a"); !slices.Equal(got, []State{AwaitingDependencyResolution}) {
		t.Errorf("states = %v", got)
	}
}

func TestRunDroppedDuringResolution(t *testing.T) {
	a := mod("a", "direct", "https://x/a.jar")
	b := mod("b", "direct", "https://x/b.jar")
	failure := resolve.Failure{
		Locator: "https://x/b.json",
		UID:     "b",
		Err:     qerrors.New(qerrors.ErrCodeParseFailed, "bad descriptor"),
	}
	r := resolverFunc(func(context.Context, []resolve.Seed, resolve.Options) (*resolve.Result, error) {
		return &resolve.Result{Mods: []*quickmod.Mod{a}, Failures: []resolve.Failure{failure}}, nil
	})

	rep, err := New(r, Options{Dir: t.TempDir(), Downloader: &fakeDownloader{}}).
		Run(context.Background(), []*quickmod.Mod{a, b})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if o := outcome(t, rep, "a"); o.State != Completed {
		t.Errorf("a = %s", o.State)
	}
	if o := outcome(t, rep, "b"); o.State != Failed || !qerrors.Is(o.Err, qerrors.ErrCodeParseFailed) {
		t.Errorf("b = %+v", o)
	}
}

func TestRunSeeds(t *testing.T) {
	stub := &quickmod.Mod{UID: "s", Name: "s", Stub: true, UpdateURL: "https://x/s.json"}
	var got []resolve.Seed
	r := resolverFunc(func(_ context.Context, seeds []resolve.Seed, _ resolve.Options) (*resolve.Result, error) {
		got = seeds
		return &resolve.Result{}, nil
	})
	rec := &recorder{}
	rep, err := New(r, Options{Dir: t.TempDir(), OnDone: rec.onDone}).Run(context.Background(), []*quickmod.Mod{stub, stub})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	want := []resolve.Seed{{UID: "s", Locator: "https://x/s.json"}}
	if !slices.Equal(got, want) {
		t.Errorf("seeds = %v, want %v", got, want)
	}
	if len(rep.Outcomes) != 0 || rec.doneCount() != 1 {
		t.Errorf("empty run: outcomes = %d, done = %d", len(rep.Outcomes), rec.doneCount())
	}
}

func TestRunUsesGivenDescriptors(t *testing.T) {
	// The store has never seen solo and solo has no updateUrl; the
	// descriptor handed to Run is all there is.
	client := fetch.New(fetch.Options{Retry: httputil.Policy{Attempts: 1}})
	s, err := store.New(t.TempDir(), client, store.Options{})
	if err != nil {
		t.Fatalf("store.New() error: %v", err)
	}
	defer s.Close()

	solo := mod("solo", "cached", "/mods/solo.jar")
	rep, err := New(resolve.New(s, nil), Options{Dir: t.TempDir()}).
		Run(context.Background(), []*quickmod.Mod{solo})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if o := outcome(t, rep, "solo"); o.State != Completed {
		t.Errorf("solo = %s (%v), want completed", o.State, o.Err)
	}
	if len(rep.Resolution.Failures) != 0 {
		t.Errorf("resolution failures = %v", rep.Resolution.Failures)
	}
}

func TestRunCanceledDuringResolution(t *testing.T) {
	r := resolverFunc(func(ctx context.Context, _ []resolve.Seed, _ resolve.Options) (*resolve.Result, error) {
		<-ctx.Done()
		return nil, qerrors.Wrap(qerrors.ErrCodeCanceled, ctx.Err(), "resolution canceled")
	})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	rep, err := New(r, Options{Dir: t.TempDir(), Downloader: &fakeDownloader{}}).
		Run(ctx, []*quickmod.Mod{mod("a", "direct", "https://x/a.jar")})
	if !qerrors.Is(err, qerrors.ErrCodeCanceled) {
		t.Fatalf("Run() error = %v, want CANCELED", err)
	}
	if rep == nil {
		t.Fatal("canceled run should return its report")
	}
	if o := outcome(t, rep, "a"); o.State != Failed || !qerrors.Is(o.Err, qerrors.ErrCodeCanceled) {
		t.Errorf("a = %+v", o)
	}
}

func TestRunSkipsGroups(t *testing.T) {
	group := &quickmod.Mod{UID: "pack", Name: "pack", Type: quickmod.TypeGroup}
	a := mod("a", "direct", "https://x/a.jar")
	rep, err := New(resolved(group, a), Options{Dir: t.TempDir(), Downloader: &fakeDownloader{}}).
		Run(context.Background(), []*quickmod.Mod{group})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !slices.Equal(rep.Skipped, []quickmod.UID{"pack"}) {
		t.Errorf("skipped = %v", rep.Skipped)
	}
	if len(rep.Outcomes) != 1 || rep.Outcomes[0].UID != "a" {
		t.Errorf("outcomes = %+v", rep.Outcomes)
	}
}

func TestRunCanceled(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	dl := &fakeDownloader{gates: map[string]chan struct{}{"https://x/a.jar": gate}}
	m := mod("a", "direct", "https://x/a.jar")
	rec := &recorder{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o := New(resolved(m), Options{
		Dir:        t.TempDir(),
		Downloader: dl,
		OnStatus: func(ev StatusEvent) {
			rec.onStatus(ev)
			if ev.State == Downloading {
				cancel()
			}
		},
		OnDone: rec.onDone,
	})

	rep, err := o.Run(ctx, []*quickmod.Mod{m})
	if !qerrors.Is(err, qerrors.ErrCodeCanceled) {
		t.Fatalf("Run() error = %v, want CANCELED", err)
	}
	if got := outcome(t, rep, "a"); got.State != Failed || !qerrors.Is(got.Err, qerrors.ErrCodeCanceled) {
		t.Errorf("outcome = %+v", got)
	}
	if rec.doneCount() != 0 {
		t.Error("canceled run must not report completion")
	}
}
