package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	qerrors "github.com/matzehuels/quickmod/pkg/errors"
	"github.com/matzehuels/quickmod/pkg/fetch"
	"github.com/matzehuels/quickmod/pkg/quickmod"
)

func mkdir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return qerrors.Wrap(qerrors.ErrCodeStoreWriteFailed, err, "create store directory %s", dir)
	}
	return nil
}

// Path returns the file a descriptor with the given uid is persisted in.
func (s *Store) Path(uid quickmod.UID) string {
	return filepath.Join(s.dir, quickmod.Filename(uid))
}

// persist writes m to its file atomically.
func (s *Store) persist(m *quickmod.Mod) error {
	if err := qerrors.ValidateUID(string(m.UID)); err != nil {
		return qerrors.Wrap(qerrors.ErrCodeStoreWriteFailed, err, "persist %s", m.UID)
	}
	data, err := quickmod.Marshal(m)
	if err != nil {
		return qerrors.Wrap(qerrors.ErrCodeStoreWriteFailed, err, "encode %s", m.UID)
	}

	path := s.Path(m.UID)
	tmp, err := os.CreateTemp(s.dir, "."+string(m.UID)+".*.tmp")
	if err != nil {
		return qerrors.Wrap(qerrors.ErrCodeStoreWriteFailed, err, "write %s", path)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return qerrors.Wrap(qerrors.ErrCodeStoreWriteFailed, err, "write %s", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return qerrors.Wrap(qerrors.ErrCodeStoreWriteFailed, err, "write %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return qerrors.Wrap(qerrors.ErrCodeStoreWriteFailed, err, "write %s", path)
	}
	return nil
}

// readFile parses the persisted descriptor for uid, if any.
func (s *Store) readFile(uid quickmod.UID) (*quickmod.Mod, error) {
	data, err := os.ReadFile(s.Path(uid))
	if err != nil {
		return nil, err
	}
	return quickmod.Parse(data)
}

// EnsureStub makes sure a descriptor exists for a locally installed mod.
//
// If a non-stub descriptor for the derived uid is known, in memory or on
// disk, it is returned unchanged. Otherwise a stub is synthesized from the
// local metadata, inserted and persisted.
func (s *Store) EnsureStub(local quickmod.LocalMod) (*quickmod.Mod, error) {
	if s.isClosed() {
		return nil, qerrors.New(qerrors.ErrCodeStoreUnusable, "descriptor store is closed")
	}
	stub := quickmod.NewStub(local)
	if err := qerrors.ValidateUID(string(stub.UID)); err != nil {
		return nil, err
	}

	if m, ok := s.Lookup(stub.UID); ok && !m.IsStub() {
		return m, nil
	}
	if m, err := s.readFile(stub.UID); err == nil && !m.IsStub() {
		s.Insert(m)
		return m, nil
	}

	if !s.Insert(stub) {
		m, _ := s.Lookup(stub.UID)
		return m, nil
	}
	if err := s.persist(stub); err != nil {
		return stub, err
	}
	return stub, nil
}

// Load reads every persisted descriptor in the store directory into memory
// and returns how many were loaded. Unparseable files are skipped and logged.
func (s *Store) Load() (int, error) {
	if s.isClosed() {
		return 0, qerrors.New(qerrors.ErrCodeStoreUnusable, "descriptor store is closed")
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, qerrors.Wrap(qerrors.ErrCodeInternal, err, "read store directory %s", s.dir)
	}

	n := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			s.logger.Warn("cannot read descriptor", "file", name, "error", err)
			continue
		}
		m, err := quickmod.Parse(data)
		if err != nil {
			s.logger.Warn("invalid descriptor", "file", name, "error", qerrors.UserMessage(err))
			continue
		}
		s.Insert(m)
		n++
	}
	s.logger.Debug("store loaded", "dir", s.dir, "descriptors", n)
	return n, nil
}

// Update refetches every known updateUrl, bypassing the response cache, and
// waits for the results. It returns the number of locators refetched and the
// joined errors of those that failed; failures are also published on
// [Store.Errors].
func (s *Store) Update(ctx context.Context) (int, error) {
	if s.isClosed() {
		return 0, qerrors.New(qerrors.ErrCodeStoreUnusable, "descriptor store is closed")
	}

	var locators []string
	for _, m := range s.All() {
		if m.UpdateURL != "" && !slices.Contains(locators, m.UpdateURL) {
			locators = append(locators, m.UpdateURL)
		}
	}

	ctx = fetch.WithRefresh(ctx)
	errs := make([]error, len(locators))
	var g errgroup.Group
	for i, loc := range locators {
		g.Go(func() error {
			if err := s.fetch(ctx, loc); err != nil {
				errs[i] = &Error{Locator: loc, Err: err}
			}
			return nil
		})
	}
	_ = g.Wait()
	s.Wait()

	return len(locators), errors.Join(errs...)
}
