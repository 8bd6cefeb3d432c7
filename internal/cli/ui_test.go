package cli

import (
	"strings"
	"testing"

	"github.com/matzehuels/quickmod/pkg/install"
)

func TestStatusLine(t *testing.T) {
	tests := []struct {
		name  string
		ev    install.StatusEvent
		want  []string
		empty bool
	}{
		{
			name: "completed",
			ev:   install.StatusEvent{UID: "jei", Version: "1.0.0", Progress: install.Progress{State: install.Completed, Color: install.ColorGreen, Message: "downloaded"}},
			want: []string{iconSuccess, "jei", "1.0.0 downloaded"},
		},
		{
			name: "failed",
			ev:   install.StatusEvent{UID: "jei", Version: "1.0.0", Progress: install.Progress{State: install.Failed, Color: install.ColorRed, Message: "status 404"}},
			want: []string{iconError, "jei 1.0.0: status 404"},
		},
		{
			name: "web page",
			ev:   install.StatusEvent{UID: "ic2", Version: "2.2", Progress: install.Progress{State: install.AwaitingUserInteraction, Color: install.ColorYellow, URL: "https://e.com/dl"}},
			want: []string{iconWarning, "ic2 2.2: following download page", "https://e.com/dl"},
		},
		{
			name:  "downloading is not printed",
			ev:    install.StatusEvent{UID: "jei", Progress: install.Progress{State: install.Downloading, Color: install.ColorBlue}},
			empty: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := statusLine(tt.ev)
			if tt.empty {
				if got != "" {
					t.Errorf("statusLine() = %q, want empty", got)
				}
				return
			}
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("statusLine() = %q, missing %q", got, w)
				}
			}
		})
	}
}

func TestColorStyleFallback(t *testing.T) {
	if colorStyle(install.Color(99)).GetForeground() != colorStyle(install.ColorDefault).GetForeground() {
		t.Error("unknown color hints should render like ColorDefault")
	}
}
