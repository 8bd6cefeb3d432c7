package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	qerrors "github.com/matzehuels/quickmod/pkg/errors"
	"github.com/matzehuels/quickmod/pkg/fetch"
	"github.com/matzehuels/quickmod/pkg/observability"
	"github.com/matzehuels/quickmod/pkg/quickmod"
	"github.com/matzehuels/quickmod/pkg/resolve"
)

// entry is one row of the tracking table.
type entry struct {
	uid      quickmod.UID
	version  quickmod.Version
	progress Progress
}

// event is a download observation posted to the run loop.
type event struct {
	handle Handle
	nav    NavEvent
	ended  bool // the navigator returned
}

// run is the state of one orchestration. Apart from wg and the channels,
// every field is owned by the goroutine executing execute.
type run struct {
	ctx context.Context
	o   *Orchestrator

	entries    []entry
	byUID      map[quickmod.UID]Handle
	skipped    []quickmod.UID
	resolution *resolve.Result

	ready    bool // every record has been created
	reported bool

	events chan event
	done   chan struct{}
	wg     sync.WaitGroup
}

func newRun(ctx context.Context, o *Orchestrator) *run {
	return &run{
		ctx:    ctx,
		o:      o,
		byUID:  make(map[quickmod.UID]Handle),
		events: make(chan event, 64),
		done:   make(chan struct{}),
	}
}

func (r *run) execute(initial []*quickmod.Mod) (*Report, error) {
	defer func() {
		close(r.done)
		r.wg.Wait()
	}()

	seeds := make([]resolve.Seed, 0, len(initial))
	seeded := make(map[quickmod.UID]bool, len(initial))
	for _, m := range initial {
		if seeded[m.UID] {
			continue
		}
		seeded[m.UID] = true
		if m.IsStub() {
			seeds = append(seeds, resolve.Seed{UID: m.UID, Locator: m.UpdateURL})
			continue
		}
		seeds = append(seeds, resolve.Seed{UID: m.UID, Locator: m.UpdateURL, Mod: m})
		if v, ok := r.o.opts.Selector.Select(m); ok {
			h := r.track(m.UID, v)
			r.transition(h, AwaitingDependencyResolution, ColorDefault, "waiting for dependencies")
		}
	}

	res, err := r.o.resolver.Resolve(r.ctx, seeds, resolve.Options{
		FailFast:   r.o.opts.FailFast,
		OnProgress: r.o.opts.OnResolveProgress,
		OnError:    r.o.opts.OnResolveError,
	})
	if err != nil {
		if r.ctx.Err() != nil {
			r.abort()
			return r.report(), err
		}
		return nil, err
	}
	r.resolution = res
	r.plan(res)
	r.ready = true

	for h := range r.entries {
		if r.ctx.Err() != nil {
			break
		}
		if r.entries[h].progress.State == Queued {
			r.start(Handle(h))
		}
	}
	r.checkDone()

	for !r.allTerminal() {
		select {
		case ev := <-r.events:
			if r.ctx.Err() != nil {
				continue // results after cancellation are discarded
			}
			r.handle(ev)
		case <-r.ctx.Done():
			r.abort()
			return r.report(), qerrors.Wrap(qerrors.ErrCodeCanceled, r.ctx.Err(), "install canceled")
		}
	}
	return r.report(), nil
}

// plan creates a record for every resolved descriptor and queues it.
func (r *run) plan(res *resolve.Result) {
	seen := make(map[quickmod.UID]bool, len(res.Mods))
	for _, m := range res.Mods {
		seen[m.UID] = true
		v, ok := r.o.opts.Selector.Select(m)
		h, tracked := r.byUID[m.UID]
		if !ok {
			if tracked {
				r.fail(h, qerrors.New(qerrors.ErrCodeNotFound, "%s: no installable version", m.UID))
				continue
			}
			r.o.logger.Debug("nothing to install", "uid", m.UID, "versions", len(m.Versions))
			r.skipped = append(r.skipped, m.UID)
			continue
		}
		if tracked {
			r.entries[h].version = v
		} else {
			h = r.track(m.UID, v)
		}
		r.transition(h, Queued, ColorDefault, "queued")
	}

	// Requested mods the resolution dropped.
	for h, e := range r.entries {
		if seen[e.uid] {
			continue
		}
		var err error = qerrors.New(qerrors.ErrCodeNotFound, "%s: not resolved", e.uid)
		for _, f := range res.Failures {
			if f.UID == e.uid {
				err = f
				break
			}
		}
		r.fail(Handle(h), err)
	}
}

func (r *run) track(uid quickmod.UID, v quickmod.Version) Handle {
	h := Handle(len(r.entries))
	r.entries = append(r.entries, entry{uid: uid, version: v})
	r.byUID[uid] = h
	return h
}

// start moves a queued version on according to its download method.
func (r *run) start(h Handle) {
	e := &r.entries[h]
	v := e.version
	dir := filepath.Join(r.o.opts.Dir, string(e.uid))

	switch v.EffectiveMethod() {
	case quickmod.DownloadCached:
		r.complete(h, v.CachedPath, "cached")

	case quickmod.DownloadDirect:
		dest := filepath.Join(dir, payloadName(v.URL, v.Name))
		e.progress.URL = v.URL
		if present(dest, v.SHA1) {
			r.complete(h, dest, "already downloaded")
			return
		}
		if r.o.opts.Downloader == nil {
			r.fail(h, qerrors.New(qerrors.ErrCodeUnsupported, "%s: no downloader configured", v.URL))
			return
		}
		e.progress.Active = true
		r.transition(h, Downloading, ColorBlue, "downloading")
		r.wg.Add(1)
		go r.download(h, e.uid, v, dest)

	case quickmod.DownloadWeb:
		if r.o.opts.Navigator == nil {
			r.fail(h, qerrors.New(qerrors.ErrCodeUnsupported, "%s: web downloads are not supported", v.URL))
			return
		}
		r.transition(h, AwaitingUserInteraction, ColorYellow, "waiting for "+v.URL)
		r.wg.Add(1)
		go r.navigate(h, NavigateRequest{
			UID:     string(e.uid),
			Version: v.Name,
			PageURL: v.URL,
			Dir:     dir,
			SHA1:    v.SHA1,
		})

	default:
		r.fail(h, qerrors.New(qerrors.ErrCodeUnsupported, "%s: unknown download method %q", e.uid, v.Method))
	}
}

func (r *run) download(h Handle, id quickmod.UID, v quickmod.Version, dest string) {
	defer r.wg.Done()
	uid := string(id)
	hooks := observability.Install()
	hooks.OnDownloadStart(r.ctx, uid, string(quickmod.DownloadDirect))
	start := time.Now()

	size, err := r.o.opts.Downloader.Download(r.ctx, v.URL, dest, fetch.DownloadOptions{
		SHA1: v.SHA1,
		OnProgress: func(current, total int64) {
			r.post(event{handle: h, nav: NavEvent{Kind: NavProgress, Current: current, Total: total}})
		},
	})
	hooks.OnDownloadComplete(r.ctx, uid, string(quickmod.DownloadDirect), size, time.Since(start), err)
	if err != nil {
		r.post(event{handle: h, nav: NavEvent{Kind: NavFailed, URL: v.URL, Err: err}})
		return
	}
	r.post(event{handle: h, nav: NavEvent{Kind: NavCompleted, URL: v.URL, Path: dest}})
}

func (r *run) navigate(h Handle, req NavigateRequest) {
	defer r.wg.Done()
	hooks := observability.Install()
	hooks.OnDownloadStart(r.ctx, req.UID, string(quickmod.DownloadWeb))
	start := time.Now()

	var size int64
	var err error
	r.o.opts.Navigator.Navigate(r.ctx, req, func(ev NavEvent) {
		switch ev.Kind {
		case NavProgress:
			size = ev.Current
		case NavFailed:
			err = ev.Err
		}
		r.post(event{handle: h, nav: ev})
	})
	hooks.OnDownloadComplete(r.ctx, req.UID, string(quickmod.DownloadWeb), size, time.Since(start), err)
	r.post(event{handle: h, ended: true})
}

// post hands an event to the run loop, or drops it once the run is over.
func (r *run) post(ev event) {
	select {
	case r.events <- ev:
	case <-r.done:
	}
}

func (r *run) handle(ev event) {
	e := &r.entries[ev.handle]
	if e.progress.State.Terminal() {
		return
	}
	if ev.ended {
		r.fail(ev.handle, qerrors.New(qerrors.ErrCodeFetchFailed, "%s: navigation ended without a download", e.version.URL))
		return
	}

	p := &e.progress
	switch ev.nav.Kind {
	case URLCaught:
		p.URL = ev.nav.URL
		p.Active = true
		r.transition(ev.handle, Downloading, ColorBlue, "downloading")
	case NavProgress:
		p.Current, p.Max = ev.nav.Current, ev.nav.Total
		p.Active = true
		if p.State != Downloading {
			r.transition(ev.handle, Downloading, ColorBlue, "downloading")
			return
		}
		r.status(ev.handle)
	case NavCompleted:
		r.complete(ev.handle, ev.nav.Path, "downloaded")
	case NavFailed:
		if ev.nav.URL != "" {
			p.URL = ev.nav.URL
		}
		err := ev.nav.Err
		if err == nil {
			err = errors.New("download failed")
		}
		r.fail(ev.handle, err)
	}
}

func (r *run) complete(h Handle, path, msg string) {
	p := &r.entries[h].progress
	p.Path = path
	p.Active = false
	if p.Max > 0 {
		p.Current = p.Max
	}
	r.o.logger.Debug("version completed", "uid", r.entries[h].uid, "version", r.entries[h].version.Name, "path", path)
	r.transition(h, Completed, ColorGreen, msg)
	r.checkDone()
}

func (r *run) fail(h Handle, err error) {
	e := &r.entries[h]
	p := &e.progress
	p.Err = err
	p.Active = false
	msg := qerrors.UserMessage(err)
	if p.URL != "" && !strings.Contains(msg, p.URL) {
		msg = fmt.Sprintf("%s: %s", p.URL, msg)
	}
	r.o.logger.Warn("version failed", "uid", e.uid, "version", e.version.Name, "error", msg)
	r.transition(h, Failed, ColorRed, msg)
	r.checkDone()
}

func (r *run) transition(h Handle, s State, c Color, msg string) {
	p := &r.entries[h].progress
	p.State = s
	p.Color = c
	p.Message = msg
	r.status(h)
}

func (r *run) status(h Handle) {
	if r.o.opts.OnStatus == nil {
		return
	}
	e := r.entries[h]
	r.o.opts.OnStatus(StatusEvent{
		Handle:   h,
		UID:      e.uid,
		Version:  e.version.Name,
		Progress: e.progress,
	})
}

// checkDone reports completion the first time every record is terminal.
func (r *run) checkDone() {
	if !r.ready || r.reported || !r.allTerminal() {
		return
	}
	r.reported = true
	if r.o.opts.OnDone != nil {
		r.o.opts.OnDone(r.report())
	}
}

func (r *run) allTerminal() bool {
	for _, e := range r.entries {
		if !e.progress.State.Terminal() {
			return false
		}
	}
	return true
}

// abort fails every unfinished record as canceled without reporting.
func (r *run) abort() {
	err := qerrors.Wrap(qerrors.ErrCodeCanceled, r.ctx.Err(), "install canceled")
	for h := range r.entries {
		p := &r.entries[h].progress
		if p.State.Terminal() {
			continue
		}
		p.State = Failed
		p.Color = ColorRed
		p.Active = false
		p.Message = "canceled"
		p.Err = err
	}
}

func (r *run) report() *Report {
	rep := &Report{
		Outcomes:   make([]Outcome, len(r.entries)),
		Table:      make([]Progress, len(r.entries)),
		Resolution: r.resolution,
		Skipped:    r.skipped,
	}
	for i, e := range r.entries {
		rep.Table[i] = e.progress
		rep.Outcomes[i] = Outcome{
			Handle:  Handle(i),
			UID:     e.uid,
			Version: e.version.Name,
			State:   e.progress.State,
			Path:    e.progress.Path,
			Err:     e.progress.Err,
		}
	}
	return rep
}

// present reports whether a usable payload already exists at path.
func present(path, sha1 string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	if sha1 == "" {
		return true
	}
	sum, err := fetch.FileSHA1(path)
	return err == nil && strings.EqualFold(sum, sha1)
}
