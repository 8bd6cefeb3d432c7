package install

import (
	"errors"
	"fmt"

	qerrors "github.com/matzehuels/quickmod/pkg/errors"
	"github.com/matzehuels/quickmod/pkg/quickmod"
	"github.com/matzehuels/quickmod/pkg/resolve"
)

// Handle addresses one tracked version within a run. Handles are dense
// indexes into the run's tracking table, assigned in creation order.
type Handle int

// State is the lifecycle position of a tracked version.
type State int

const (
	NotStarted State = iota
	AwaitingDependencyResolution
	Queued
	AwaitingUserInteraction
	Downloading
	Completed
	Failed
)

var stateNames = [...]string{
	NotStarted:                   "not started",
	AwaitingDependencyResolution: "awaiting dependencies",
	Queued:                       "queued",
	AwaitingUserInteraction:      "awaiting interaction",
	Downloading:                  "downloading",
	Completed:                    "completed",
	Failed:                       "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool { return s == Completed || s == Failed }

// Color is a display hint attached to every status update.
type Color int

const (
	ColorDefault Color = iota
	ColorBlue          // in progress
	ColorGreen         // done
	ColorRed           // failed
	ColorYellow        // needs interaction
)

// Progress is the tracking record of one version.
type Progress struct {
	Current int64 // bytes transferred
	Max     int64 // total bytes, -1 if unknown
	Message string
	Color   Color
	Active  bool // a transfer is running and its bar should be shown
	State   State
	URL     string // payload URL once known
	Path    string // local file once completed
	Err     error
}

// StatusEvent reports a change of one tracked version.
type StatusEvent struct {
	Handle  Handle
	UID     quickmod.UID
	Version string
	Progress
}

// Outcome is the terminal result of one tracked version.
type Outcome struct {
	Handle  Handle
	UID     quickmod.UID
	Version string
	State   State
	Path    string
	Err     error
}

// Report is the result of an orchestration run.
type Report struct {
	// Outcomes holds one entry per tracked version, indexed by Handle.
	Outcomes []Outcome

	// Table is the final progress table, indexed by Handle.
	Table []Progress

	// Resolution is the dependency resolution the run installed from.
	Resolution *resolve.Result

	// Skipped lists resolved descriptors without an installable version.
	Skipped []quickmod.UID
}

// Completed returns the outcomes that reached Completed.
func (r *Report) Completed() []Outcome { return r.filter(Completed) }

// Failed returns the outcomes that reached Failed.
func (r *Report) Failed() []Outcome { return r.filter(Failed) }

func (r *Report) filter(s State) []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.State == s {
			out = append(out, o)
		}
	}
	return out
}

// Err returns a PARTIAL_INSTALL error wrapping every per-version failure, or
// nil if all versions completed.
func (r *Report) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	errs := make([]error, len(failed))
	for i, o := range failed {
		errs[i] = fmt.Errorf("%s %s: %w", o.UID, o.Version, o.Err)
	}
	return qerrors.Wrap(qerrors.ErrCodePartialInstall, errors.Join(errs...),
		"%d of %d versions failed", len(failed), len(r.Outcomes))
}
