// Package manifest reads modpack manifests: lists of mods to resolve and
// install together.
//
// Two formats are supported, chosen by file name:
//
//	# modpack.toml
//	name = "Skyblock"
//	game_version = "1.7.10"
//
//	[[mods]]
//	uid = "jei"
//
//	[[mods]]
//	url = "https://quickmods.example.com/thaumcraft.json"
//
// and the equivalent modpack.yaml. Each entry names a uid, a descriptor
// locator, or both.
package manifest

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-yaml"

	qerrors "github.com/matzehuels/quickmod/pkg/errors"
	"github.com/matzehuels/quickmod/pkg/quickmod"
	"github.com/matzehuels/quickmod/pkg/resolve"
)

// Manifest is a parsed modpack manifest.
type Manifest struct {
	Name        string  `toml:"name" yaml:"name"`
	GameVersion string  `toml:"game_version" yaml:"game_version"`
	Mods        []Entry `toml:"mods" yaml:"mods"`
}

// Entry is one requested mod.
type Entry struct {
	UID string `toml:"uid" yaml:"uid"`
	URL string `toml:"url" yaml:"url"`
}

// Parser decodes one manifest format.
type Parser interface {
	Type() string
	Supports(filename string) bool
	Decode(data []byte) (*Manifest, error)
}

type tomlParser struct{}

func (tomlParser) Type() string { return "modpack.toml" }
func (tomlParser) Supports(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".toml")
}

func (tomlParser) Decode(data []byte) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, qerrors.New(qerrors.ErrCodeInvalidManifest, "unknown key %q", undecoded[0].String())
	}
	return &m, nil
}

type yamlParser struct{}

func (yamlParser) Type() string { return "modpack.yaml" }
func (yamlParser) Supports(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

func (yamlParser) Decode(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.NewDecoder(bytes.NewReader(data), yaml.DisallowUnknownField()).Decode(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Parsers lists the supported formats.
var Parsers = []Parser{tomlParser{}, yamlParser{}}

// ParserFor returns the parser for filename.
func ParserFor(filename string) (Parser, bool) {
	for _, p := range Parsers {
		if p.Supports(filename) {
			return p, true
		}
	}
	return nil, false
}

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeInvalidManifest, err, "read %s", path)
	}
	return Decode(filepath.Base(path), data)
}

// Decode parses data in the format implied by filename and validates it.
func Decode(filename string, data []byte) (*Manifest, error) {
	p, ok := ParserFor(filename)
	if !ok {
		return nil, qerrors.New(qerrors.ErrCodeInvalidManifest, "%s: unsupported manifest format", filename)
	}
	m, err := p.Decode(data)
	if err != nil {
		if qerrors.GetCode(err) != "" {
			return nil, qerrors.Wrap(qerrors.ErrCodeInvalidManifest, err, "%s", filename)
		}
		return nil, qerrors.Wrap(qerrors.ErrCodeInvalidManifest, err, "parse %s", filename)
	}
	if err := m.Validate(); err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeInvalidManifest, err, "%s", filename)
	}
	return m, nil
}

// Validate checks every entry names a valid uid or locator.
func (m *Manifest) Validate() error {
	for i, e := range m.Mods {
		if e.UID == "" && e.URL == "" {
			return qerrors.New(qerrors.ErrCodeInvalidManifest, "mod %d: uid or url required", i+1)
		}
		if e.UID != "" {
			if err := qerrors.ValidateUID(e.UID); err != nil {
				return err
			}
		}
		if e.URL != "" {
			if err := qerrors.ValidateLocator(e.URL); err != nil {
				return err
			}
		}
	}
	return nil
}

// Seeds returns the resolution seeds of the manifest, without duplicates.
func (m *Manifest) Seeds() []resolve.Seed {
	seeds := make([]resolve.Seed, 0, len(m.Mods))
	seen := make(map[resolve.Seed]bool, len(m.Mods))
	for _, e := range m.Mods {
		s := resolve.Seed{UID: quickmod.UID(e.UID), Locator: e.URL}
		if !seen[s] {
			seen[s] = true
			seeds = append(seeds, s)
		}
	}
	return seeds
}

// ParseArgs turns command line arguments into seeds. An argument containing
// "://" is a locator, anything else a uid.
func ParseArgs(args []string) ([]resolve.Seed, error) {
	seeds := make([]resolve.Seed, 0, len(args))
	for _, a := range args {
		if qerrors.IsLocator(a) {
			if err := qerrors.ValidateLocator(a); err != nil {
				return nil, err
			}
			seeds = append(seeds, resolve.Seed{Locator: a})
			continue
		}
		if err := qerrors.ValidateUID(a); err != nil {
			return nil, err
		}
		seeds = append(seeds, resolve.Seed{UID: quickmod.UID(a)})
	}
	return seeds, nil
}
