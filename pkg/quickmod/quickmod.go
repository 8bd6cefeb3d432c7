package quickmod

import (
	"maps"
	"slices"
	"strings"
)

// UID is the stable identifier of a mod. It is unique within a store and is
// the key used for deduplication during resolution.
type UID string

// Type classifies what a mod installs as.
type Type string

const (
	TypeForgeMod     Type = "forgeMod"
	TypeForgeCoreMod Type = "forgeCoreMod"
	TypeResourcePack Type = "resourcepack"
	TypeConfigPack   Type = "configpack"
	TypeGroup        Type = "group" // Meta mod that only carries references
)

// DownloadMethod tells the install orchestrator how a version's payload is obtained.
type DownloadMethod string

const (
	// DownloadDirect payloads are fetched straight from Version.URL.
	DownloadDirect DownloadMethod = "direct"
	// DownloadWeb payloads sit behind a landing page that has to be navigated.
	DownloadWeb DownloadMethod = "web"
	// DownloadCached payloads already exist at Version.CachedPath.
	DownloadCached DownloadMethod = "cached"
)

// Version is one downloadable release of a mod.
type Version struct {
	Name       string         `json:"name" jsonschema:"required,minLength=1"`
	MCCompat   []string       `json:"mcCompat,omitempty"`
	Method     DownloadMethod `json:"downloadType,omitempty" jsonschema:"enum=direct,enum=web,enum=cached"`
	URL        string         `json:"url,omitempty"`
	SHA1       string         `json:"sha1,omitempty"`
	CachedPath string         `json:"cachedPath,omitempty"`
}

// EffectiveMethod returns the download method, defaulting to direct.
func (v Version) EffectiveMethod() DownloadMethod {
	if v.Method == "" {
		return DownloadDirect
	}
	return v.Method
}

// Compatible reports whether the version supports the given game version.
// An empty game version or an empty compatibility list matches everything.
func (v Version) Compatible(game string) bool {
	if game == "" || len(v.MCCompat) == 0 {
		return true
	}
	return slices.Contains(v.MCCompat, game)
}

// Mod is a parsed mod descriptor.
//
// A Mod is immutable once it has been inserted into a store; callers that need
// a modified copy should use [Mod.Clone].
type Mod struct {
	UID         UID            `json:"uid" jsonschema:"required,minLength=1"`
	Name        string         `json:"name" jsonschema:"required,minLength=1"`
	ModID       string         `json:"modId,omitempty"`
	WebsiteURL  string         `json:"websiteUrl,omitempty"`
	Description string         `json:"description,omitempty"`
	UpdateURL   string         `json:"updateUrl,omitempty"`
	Stub        bool           `json:"stub"`
	Type        Type           `json:"type,omitempty" jsonschema:"enum=forgeMod,enum=forgeCoreMod,enum=resourcepack,enum=configpack,enum=group"`
	References  map[UID]string `json:"references,omitempty"`
	Versions    []Version      `json:"versions,omitempty"`

	// Hash is the hex SHA-512 of the payload the descriptor was parsed from.
	Hash string `json:"-"`
}

// IsStub reports whether m is a placeholder that still has to be fetched.
func (m *Mod) IsStub() bool { return m == nil || m.Stub }

// ReferencedUIDs returns the referenced identifiers in sorted order so that
// expansion is deterministic.
func (m *Mod) ReferencedUIDs() []UID {
	return slices.Sorted(maps.Keys(m.References))
}

// Clone returns a deep copy of m.
func (m *Mod) Clone() *Mod {
	c := *m
	c.References = maps.Clone(m.References)
	c.Versions = make([]Version, len(m.Versions))
	for i, v := range m.Versions {
		v.MCCompat = slices.Clone(v.MCCompat)
		c.Versions[i] = v
	}
	return &c
}

// Filename returns the file name a descriptor with the given uid is persisted under.
func Filename(uid UID) string {
	return string(uid) + ".json"
}

// LocalMod describes a mod file found in a game instance, for which only the
// metadata embedded in the jar is known.
type LocalMod struct {
	Name        string
	ModID       string
	HomeURL     string
	Description string
	Path        string
}

var stubUIDReplacer = strings.NewReplacer(" ", "-", "/", "-", "\\", "-", "..", ".")

// NewStub synthesizes a placeholder descriptor for a locally known mod.
// The uid is derived from the mod id, falling back to the display name.
func NewStub(local LocalMod) *Mod {
	modID := local.ModID
	if modID == "" {
		modID = local.Name
	}
	name := local.Name
	if name == "" {
		name = modID
	}
	typ := TypeForgeMod
	if strings.Contains(strings.ToLower(local.Path), "coremod") {
		typ = TypeForgeCoreMod
	}
	return &Mod{
		UID:         StubUID(modID),
		Name:        name,
		ModID:       modID,
		WebsiteURL:  local.HomeURL,
		Description: local.Description,
		Stub:        true,
		Type:        typ,
	}
}

// StubUID normalizes a free-form mod id into a uid usable as a file name.
func StubUID(s string) UID {
	return UID(stubUIDReplacer.Replace(strings.ToLower(strings.TrimSpace(s))))
}
