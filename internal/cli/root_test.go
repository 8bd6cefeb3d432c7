package cli

import (
	"testing"

	"github.com/matzehuels/quickmod/pkg/buildinfo"
)

func TestSetVersion(t *testing.T) {
	saved := buildinfo.Get()
	t.Cleanup(func() { buildinfo.Version, buildinfo.Commit, buildinfo.Date = saved.Version, saved.Commit, saved.Date })

	SetVersion("1.0.0", "abc123", "2024-01-01")
	if got := buildinfo.Get(); got != (buildinfo.Info{Version: "1.0.0", Commit: "abc123", Date: "2024-01-01"}) {
		t.Errorf("buildinfo = %+v", got)
	}
}

func TestSetVersionEmpty(t *testing.T) {
	saved := buildinfo.Get()
	t.Cleanup(func() { buildinfo.Version, buildinfo.Commit, buildinfo.Date = saved.Version, saved.Commit, saved.Date })

	SetVersion("", "", "")
	if got := buildinfo.Get(); got != saved {
		t.Errorf("empty values should keep %+v, got %+v", saved, got)
	}
}
