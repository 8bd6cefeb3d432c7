package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// spinner animates a one-line status on stderr while a resolution or store
// update runs. It draws nothing when stderr is not a terminal, so piped
// output and logs stay clean.
type spinner struct {
	w       io.Writer
	label   string
	percent int // -1 until the first progress report

	mu    sync.Mutex
	width int // widest line drawn, for erasing

	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// newSpinner starts a spinner on stderr. It stops on its own when ctx ends.
func newSpinner(ctx context.Context, label string) *spinner {
	return startSpinner(ctx, os.Stderr, isatty.IsTerminal(os.Stderr.Fd()), label)
}

func startSpinner(ctx context.Context, w io.Writer, animate bool, label string) *spinner {
	s := &spinner{
		w:       w,
		label:   label,
		percent: -1,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	if !animate {
		close(s.stopped)
		return s
	}
	go s.loop(ctx)
	return s
}

func (s *spinner) loop(ctx context.Context) {
	defer close(s.stopped)
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			text := s.text()
			s.width = max(s.width, len([]rune(text))+2)
			fmt.Fprintf(s.w, "\r%s %s", styleIconSpinner.Render(spinnerFrames[i%len(spinnerFrames)]), StyleDim.Render(text))
			s.mu.Unlock()
		}
	}
}

func (s *spinner) text() string {
	if s.percent < 0 {
		return s.label
	}
	return fmt.Sprintf("%s %d%%", s.label, s.percent)
}

// setPercent shows a completion percentage after the label.
func (s *spinner) setPercent(p int) {
	s.mu.Lock()
	s.percent = p
	s.mu.Unlock()
}

// finish stops the animation and erases the line. Calling it again is a no-op.
func (s *spinner) finish() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.stopped

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.width > 0 {
		fmt.Fprintf(s.w, "\r%s\r", strings.Repeat(" ", s.width))
		s.width = 0
	}
}
