package quickmod

import (
	"encoding/json"
	"strings"
	"testing"

	qerrors "github.com/matzehuels/quickmod/pkg/errors"
)

const validDescriptor = `{
  "uid": "mezz.jei",
  "name": "Just Enough Items",
  "modId": "JEI",
  "updateUrl": "https://example.com/quickmods/jei.json",
  "stub": false,
  "type": "forgeMod",
  "references": {"forge": "https://example.com/quickmods/forge.json"},
  "versions": [
    {"name": "1.6.1", "mcCompat": ["1.7.10"], "downloadType": "direct", "url": "https://example.com/jei-1.6.1.jar"}
  ],
  "icon": "https://example.com/jei.png"
}`

func TestParseValid(t *testing.T) {
	m, err := Parse([]byte(validDescriptor))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if m.UID != "mezz.jei" {
		t.Errorf("UID = %q, want %q", m.UID, "mezz.jei")
	}
	if m.IsStub() {
		t.Error("IsStub() = true, want false")
	}
	if got := m.References["forge"]; got != "https://example.com/quickmods/forge.json" {
		t.Errorf("References[forge] = %q", got)
	}
	if len(m.Versions) != 1 || m.Versions[0].EffectiveMethod() != DownloadDirect {
		t.Errorf("Versions = %+v", m.Versions)
	}
	if len(m.Hash) != 128 {
		t.Errorf("Hash length = %d, want 128", len(m.Hash))
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{"uid":`},
		{"missing uid", `{"name": "x"}`},
		{"missing name", `{"uid": "x"}`},
		{"empty uid", `{"uid": "", "name": "x"}`},
		{"bad type", `{"uid": "x", "name": "x", "type": "plugin"}`},
		{"bad download type", `{"uid": "x", "name": "x", "versions": [{"name": "1", "downloadType": "torrent", "url": "https://e.com/a"}]}`},
		{"unsafe uid", `{"uid": "../etc", "name": "x"}`},
		{"unsafe reference", `{"uid": "x", "name": "x", "references": {"a/b": "https://e.com/a.json"}}`},
		{"direct without url", `{"uid": "x", "name": "x", "versions": [{"name": "1"}]}`},
		{"cached without path", `{"uid": "x", "name": "x", "versions": [{"name": "1", "downloadType": "cached"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil {
				t.Fatal("Parse() should fail")
			}
			if !qerrors.Is(err, qerrors.ErrCodeParseFailed) {
				t.Errorf("code = %v, want %v", qerrors.GetCode(err), qerrors.ErrCodeParseFailed)
			}
		})
	}
}

func TestMarshalRoundTripKeepsPersistedFields(t *testing.T) {
	m, err := Parse([]byte(validDescriptor))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	data, err := Marshal(m)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"name", "modId", "stub", "type", "uid", "updateUrl", "references", "versions"} {
		if _, ok := obj[key]; !ok {
			t.Errorf("persisted descriptor is missing %q", key)
		}
	}
	if _, ok := obj["Hash"]; ok {
		t.Error("hash should not be persisted")
	}
}

func TestParseIndex(t *testing.T) {
	locs, ok := ParseIndex([]byte(`{"IsIndex": true, "b": "https://e.com/b.json", "a": "https://e.com/a.json"}`))
	if !ok {
		t.Fatal("ParseIndex() ok = false, want true")
	}
	if len(locs) != 2 || locs[0] != "https://e.com/a.json" || locs[1] != "https://e.com/b.json" {
		t.Errorf("locators = %v", locs)
	}

	if _, ok := ParseIndex([]byte(validDescriptor)); ok {
		t.Error("descriptor should not be treated as an index")
	}
	if _, ok := ParseIndex([]byte(`{"IsIndex": false, "a": "x"}`)); ok {
		t.Error("IsIndex=false should not be treated as an index")
	}
}

func TestNewStub(t *testing.T) {
	tests := []struct {
		name     string
		local    LocalMod
		wantUID  UID
		wantType Type
	}{
		{
			name:     "mod id",
			local:    LocalMod{Name: "Iron Chests", ModID: "IronChest", Path: "mods/ironchest.jar"},
			wantUID:  "ironchest",
			wantType: TypeForgeMod,
		},
		{
			name:     "name fallback",
			local:    LocalMod{Name: "Fast Craft", Path: "mods/fastcraft.jar"},
			wantUID:  "fast-craft",
			wantType: TypeForgeMod,
		},
		{
			name:     "coremod",
			local:    LocalMod{Name: "CodeChickenCore", ModID: "CodeChickenCore", Path: "coremods/ccc.jar"},
			wantUID:  "codechickencore",
			wantType: TypeForgeCoreMod,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewStub(tt.local)
			if !m.IsStub() {
				t.Error("stub should be marked as stub")
			}
			if m.UID != tt.wantUID {
				t.Errorf("UID = %q, want %q", m.UID, tt.wantUID)
			}
			if m.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", m.Type, tt.wantType)
			}
			if err := qerrors.ValidateUID(string(m.UID)); err != nil {
				t.Errorf("stub uid is not valid: %v", err)
			}
		})
	}
}

func TestVersionCompatible(t *testing.T) {
	v := Version{Name: "1.0", MCCompat: []string{"1.7.10", "1.7.2"}}
	if !v.Compatible("1.7.10") {
		t.Error("Compatible(1.7.10) = false")
	}
	if v.Compatible("1.8") {
		t.Error("Compatible(1.8) = true")
	}
	if !v.Compatible("") {
		t.Error("Compatible(\"\") = false")
	}
}

func TestClone(t *testing.T) {
	m, _ := Parse([]byte(validDescriptor))
	c := m.Clone()
	c.References["other"] = "https://e.com/o.json"
	c.Versions[0].MCCompat[0] = "1.8"
	if _, ok := m.References["other"]; ok {
		t.Error("Clone shares references map")
	}
	if m.Versions[0].MCCompat[0] != "1.7.10" {
		t.Error("Clone shares version compat slice")
	}
}

func TestSchemaJSON(t *testing.T) {
	s := string(SchemaJSON())
	for _, want := range []string{`"uid"`, `"references"`, `"versions"`, `"forgeCoreMod"`} {
		if !strings.Contains(s, want) {
			t.Errorf("schema is missing %s", want)
		}
	}
}

func TestFilename(t *testing.T) {
	if got := Filename("mezz.jei"); got != "mezz.jei.json" {
		t.Errorf("Filename() = %q", got)
	}
}
