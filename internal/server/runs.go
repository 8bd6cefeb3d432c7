package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	qerrors "github.com/matzehuels/quickmod/pkg/errors"
	"github.com/matzehuels/quickmod/pkg/install"
	"github.com/matzehuels/quickmod/pkg/quickmod"
	"github.com/matzehuels/quickmod/pkg/resolve"
)

// Status is the lifecycle state of a background run.
type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// ModSummary is the listing form of a descriptor.
type ModSummary struct {
	UID      quickmod.UID  `json:"uid"`
	Name     string        `json:"name"`
	Type     quickmod.Type `json:"type,omitempty"`
	Stub     bool          `json:"stub"`
	Versions int           `json:"versions"`
}

func summarize(m *quickmod.Mod) ModSummary {
	return ModSummary{UID: m.UID, Name: m.Name, Type: m.Type, Stub: m.IsStub(), Versions: len(m.Versions)}
}

// FailureView is a locator that could not be resolved.
type FailureView struct {
	Locator string       `json:"locator,omitempty"`
	UID     quickmod.UID `json:"uid,omitempty"`
	Code    string       `json:"code,omitempty"`
	Error   string       `json:"error"`
}

func failureViews(fs []resolve.Failure) []FailureView {
	out := make([]FailureView, len(fs))
	for i, f := range fs {
		out[i] = FailureView{Locator: f.Locator, UID: f.UID, Code: string(qerrors.GetCode(f.Err)), Error: qerrors.UserMessage(f.Err)}
	}
	return out
}

// ResolutionView is the polled state of a resolution.
type ResolutionView struct {
	ID       string         `json:"id"`
	Status   Status         `json:"status"`
	Progress int            `json:"progress"`
	Started  time.Time      `json:"started"`
	Elapsed  string         `json:"elapsed,omitempty"`
	Fetches  int            `json:"fetches"`
	Mods     []ModSummary   `json:"mods,omitempty"`
	Order    []quickmod.UID `json:"order,omitempty"`
	Failures []FailureView  `json:"failures,omitempty"`
	Error    string         `json:"error,omitempty"`
}

type resolutionRun struct {
	mu   sync.Mutex
	view ResolutionView
}

func newResolutionRun() *resolutionRun {
	return &resolutionRun{view: ResolutionView{ID: uuid.NewString(), Status: StatusRunning, Started: time.Now()}}
}

func (r *resolutionRun) snapshot() ResolutionView {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.view
	if v.Status == StatusRunning {
		v.Elapsed = time.Since(v.Started).Round(time.Millisecond).String()
	}
	return v
}

func (r *resolutionRun) setProgress(p int) {
	r.mu.Lock()
	r.view.Progress = p
	r.mu.Unlock()
}

func (r *resolutionRun) finish(res *resolve.Result, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.view.Elapsed = time.Since(r.view.Started).Round(time.Millisecond).String()
	if err != nil {
		r.view.Status = StatusFailed
		r.view.Error = qerrors.UserMessage(err)
		return
	}
	r.view.Status = StatusDone
	r.view.Progress = 100
	r.view.Fetches = res.Fetches
	r.view.Mods = make([]ModSummary, len(res.Mods))
	for i, m := range res.Mods {
		r.view.Mods[i] = summarize(m)
	}
	r.view.Order = res.Graph.Order()
	r.view.Failures = failureViews(res.Failures)
}

// startResolution launches a resolution of seeds in the background.
func (s *Server) startResolution(seeds []resolve.Seed, failFast bool) *resolutionRun {
	run := newResolutionRun()
	s.mu.Lock()
	s.resolutions[run.view.ID] = run
	s.mu.Unlock()

	s.goRun(func(ctx context.Context) {
		res, err := s.resolver.Resolve(ctx, seeds, resolve.Options{
			FailFast:   failFast,
			OnProgress: run.setProgress,
		})
		run.finish(res, err)
		s.logger.Info("resolution finished", "id", run.view.ID, "error", err)
	})
	return run
}

func (s *Server) resolution(id string) (*resolutionRun, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resolutions[id]
	return r, ok
}

// DownloadView is one row of an install's tracking table.
type DownloadView struct {
	Handle  install.Handle `json:"handle"`
	UID     quickmod.UID   `json:"uid"`
	Version string         `json:"version"`
	State   string         `json:"state"`
	Current int64          `json:"current"`
	Max     int64          `json:"max"`
	Message string         `json:"message,omitempty"`
	URL     string         `json:"url,omitempty"`
	Path    string         `json:"path,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func downloadView(h install.Handle, uid quickmod.UID, version string, p install.Progress) DownloadView {
	v := DownloadView{
		Handle:  h,
		UID:     uid,
		Version: version,
		State:   p.State.String(),
		Current: p.Current,
		Max:     p.Max,
		Message: p.Message,
		URL:     p.URL,
		Path:    p.Path,
	}
	if p.Err != nil {
		v.Error = qerrors.UserMessage(p.Err)
	}
	return v
}

// InstallView is the polled state of an install.
type InstallView struct {
	ID          string         `json:"id"`
	Status      Status         `json:"status"`
	GameVersion string         `json:"gameVersion,omitempty"`
	Resolution  int            `json:"resolution"`
	Started     time.Time      `json:"started"`
	Downloads   []DownloadView `json:"downloads"`
	Failures    []FailureView  `json:"failures,omitempty"`
	Skipped     []quickmod.UID `json:"skipped,omitempty"`
	Completed   int            `json:"completed"`
	Failed      int            `json:"failed"`
	Error       string         `json:"error,omitempty"`
}

type installRun struct {
	mu   sync.Mutex
	view InstallView
}

func newInstallRun(gameVersion string) *installRun {
	return &installRun{view: InstallView{
		ID:          uuid.NewString(),
		Status:      StatusRunning,
		GameVersion: gameVersion,
		Started:     time.Now(),
		Downloads:   []DownloadView{},
	}}
}

func (r *installRun) snapshot() InstallView {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.view
	v.Downloads = append([]DownloadView(nil), r.view.Downloads...)
	return v
}

func (r *installRun) setResolution(p int) {
	r.mu.Lock()
	r.view.Resolution = p
	r.mu.Unlock()
}

// update records a status event. Handles are dense, so the table grows to
// cover every handle seen.
func (r *installRun) update(ev install.StatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for int(ev.Handle) >= len(r.view.Downloads) {
		r.view.Downloads = append(r.view.Downloads, DownloadView{Handle: install.Handle(len(r.view.Downloads))})
	}
	r.view.Downloads[ev.Handle] = downloadView(ev.Handle, ev.UID, ev.Version, ev.Progress)
}

func (r *installRun) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.view.Status = StatusFailed
	r.view.Error = qerrors.UserMessage(err)
}

func (r *installRun) finish(report *install.Report, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if report != nil {
		r.view.Downloads = make([]DownloadView, len(report.Outcomes))
		for i, o := range report.Outcomes {
			r.view.Downloads[i] = downloadView(o.Handle, o.UID, o.Version, report.Table[i])
		}
		r.view.Skipped = report.Skipped
		r.view.Completed = len(report.Completed())
		r.view.Failed = len(report.Failed())
		if report.Resolution != nil {
			r.view.Failures = failureViews(report.Resolution.Failures)
		}
	}
	switch {
	case err != nil:
		r.view.Status = StatusFailed
		r.view.Error = qerrors.UserMessage(err)
	case report.Err() != nil:
		r.view.Status = StatusFailed
		r.view.Error = qerrors.UserMessage(report.Err())
	default:
		r.view.Status = StatusDone
	}
}

// startInstall resolves seeds and downloads the resolved set in the
// background.
func (s *Server) startInstall(seeds []resolve.Seed, gameVersion string, failFast bool) *installRun {
	run := newInstallRun(gameVersion)
	s.mu.Lock()
	s.installs[run.view.ID] = run
	s.mu.Unlock()

	s.goRun(func(ctx context.Context) {
		res, err := s.resolver.Resolve(ctx, seeds, resolve.Options{
			FailFast:   failFast,
			OnProgress: run.setResolution,
		})
		if err != nil {
			run.fail(err)
			s.logger.Warn("install resolution failed", "id", run.view.ID, "error", err)
			return
		}

		o := install.New(s.resolver, install.Options{
			Dir:        s.opts.DownloadDir,
			Selector:   install.LatestSelector{GameVersion: gameVersion},
			Downloader: s.opts.Downloader,
			Navigator:  s.opts.Navigator,
			Logger:     s.logger,
			OnStatus:   run.update,
		})
		report, err := o.Run(ctx, res.Mods)
		run.finish(report, err)
		s.logger.Info("install finished", "id", run.view.ID, "error", err)
	})
	return run
}

func (s *Server) install(id string) (*installRun, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.installs[id]
	return r, ok
}
