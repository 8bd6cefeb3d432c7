package quickmod

import (
	"bytes"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"slices"

	qerrors "github.com/matzehuels/quickmod/pkg/errors"
)

// indexKey marks a payload as an index of descriptor locators rather than a descriptor.
const indexKey = "IsIndex"

// Parse decodes and validates a descriptor payload.
//
// The payload is first checked against the descriptor JSON schema, then
// decoded and checked for semantic constraints (uid safety, reference keys).
// All failures carry [qerrors.ErrCodeParseFailed].
func Parse(data []byte) (*Mod, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeParseFailed, err, "invalid JSON")
	}
	if err := Schema().Validate(doc); err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeParseFailed, err, "descriptor does not match schema")
	}

	var m Mod
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeParseFailed, err, "decode descriptor")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	sum := sha512.Sum512(data)
	m.Hash = hex.EncodeToString(sum[:])
	return &m, nil
}

// Validate checks constraints the schema cannot express.
func (m *Mod) Validate() error {
	if err := qerrors.ValidateUID(string(m.UID)); err != nil {
		return qerrors.Wrap(qerrors.ErrCodeParseFailed, err, "descriptor %q", m.Name)
	}
	for uid := range m.References {
		if err := qerrors.ValidateUID(string(uid)); err != nil {
			return qerrors.Wrap(qerrors.ErrCodeParseFailed, err, "descriptor %s: reference", m.UID)
		}
	}
	for i, v := range m.Versions {
		if v.EffectiveMethod() == DownloadCached {
			if v.CachedPath == "" {
				return qerrors.New(qerrors.ErrCodeParseFailed, "descriptor %s: version %d is cached but has no cachedPath", m.UID, i)
			}
			continue
		}
		if v.URL == "" {
			return qerrors.New(qerrors.ErrCodeParseFailed, "descriptor %s: version %q has no url", m.UID, v.Name)
		}
	}
	return nil
}

// Marshal encodes m in the persisted descriptor format.
func Marshal(m *Mod) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseIndex reports whether data is an index payload and, if so, returns the
// locators it lists. Index payloads are JSON objects with "IsIndex": true where
// every other key maps to a descriptor locator.
func ParseIndex(data []byte) ([]string, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, false
	}
	raw, ok := obj[indexKey]
	if !ok {
		return nil, false
	}
	var isIndex bool
	if err := json.Unmarshal(raw, &isIndex); err != nil || !isIndex {
		return nil, false
	}

	var locators []string
	for k, v := range obj {
		if k == indexKey {
			continue
		}
		var loc string
		if err := json.Unmarshal(v, &loc); err == nil && loc != "" {
			locators = append(locators, loc)
		}
	}
	slices.Sort(locators)
	return locators, true
}
