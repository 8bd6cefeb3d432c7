package install

import (
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/matzehuels/quickmod/pkg/quickmod"
)

// Selector picks the version of a descriptor to install.
type Selector interface {
	Select(m *quickmod.Mod) (quickmod.Version, bool)
}

// SelectorFunc adapts a function to [Selector].
type SelectorFunc func(m *quickmod.Mod) (quickmod.Version, bool)

func (f SelectorFunc) Select(m *quickmod.Mod) (quickmod.Version, bool) { return f(m) }

// LatestSelector picks the highest version compatible with GameVersion.
//
// Version names are compared as semantic versions where they parse
// ("1.2", "v1.2.3-beta" are accepted); a parseable name ranks above one that
// does not, and two unparseable names compare lexically. On a tie the earlier
// entry wins.
type LatestSelector struct {
	GameVersion string
}

func (s LatestSelector) Select(m *quickmod.Mod) (quickmod.Version, bool) {
	var best quickmod.Version
	var bestSem *semver.Version
	found := false
	for _, v := range m.Versions {
		if !v.Compatible(s.GameVersion) {
			continue
		}
		sem, _ := semver.NewVersion(v.Name)
		if !found || newer(v.Name, sem, best.Name, bestSem) {
			best, bestSem, found = v, sem, true
		}
	}
	return best, found
}

func newer(name string, sem *semver.Version, than string, thanSem *semver.Version) bool {
	switch {
	case sem != nil && thanSem != nil:
		return sem.GreaterThan(thanSem)
	case sem != nil:
		return true
	case thanSem != nil:
		return false
	default:
		return strings.Compare(name, than) > 0
	}
}
