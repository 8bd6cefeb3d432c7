package store

import (
	"context"

	qerrors "github.com/matzehuels/quickmod/pkg/errors"
	"github.com/matzehuels/quickmod/pkg/quickmod"
)

// outcome is the shared result of one collapsed fetch.
type outcome struct {
	event    Event
	writeErr error
}

// fetch retrieves, parses, persists and announces the payload at locator.
//
// Concurrent fetches of the same locator collapse into one, but every caller
// announces the outcome itself once the shared fetch returns. A caller that
// joins a fetch late is therefore never left without an event.
func (s *Store) fetch(ctx context.Context, locator string) error {
	leader := false
	v, err, _ := s.group.Do(locator, func() (any, error) {
		leader = true
		return s.fetchOnce(ctx, locator)
	})
	if err != nil {
		s.publishError(locator, err)
		return err
	}

	out := v.(outcome)
	s.added.Publish(out.event)
	for _, loc := range out.event.Index {
		s.RegisterAndFetch(loc)
	}
	if leader && out.writeErr != nil {
		s.logger.Warn("descriptor not persisted", "uid", out.event.Mod.UID, "error", out.writeErr)
		s.publishError(locator, out.writeErr)
	}
	return nil
}

func (s *Store) fetchOnce(ctx context.Context, locator string) (outcome, error) {
	if err := qerrors.ValidateLocator(locator); err != nil {
		return outcome{}, err
	}

	data, err := s.fetcher.Fetch(ctx, locator, nil)
	if err != nil {
		if s.isClosed() {
			return outcome{}, errUnusable(locator)
		}
		return outcome{}, err
	}

	if locators, ok := quickmod.ParseIndex(data); ok {
		s.logger.Debug("index fetched", "url", locator, "entries", len(locators))
		return outcome{event: Event{Locator: locator, Index: locators}}, nil
	}

	m, err := quickmod.Parse(data)
	if err != nil {
		return outcome{}, qerrors.Wrap(qerrors.ErrCodeParseFailed, err, "parse %s", locator)
	}
	if m.UpdateURL == "" {
		m.UpdateURL = locator
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return outcome{}, errUnusable(locator)
	}
	changed := s.insertLocked(m)
	if cur := s.mods[m.UID]; !changed && !cur.IsStub() {
		m = cur
	}
	s.mu.Unlock()

	s.logger.Debug("descriptor fetched", "uid", m.UID, "url", locator, "changed", changed)
	out := outcome{event: Event{Mod: m, Locator: locator}}
	if changed {
		out.writeErr = s.persist(m)
	}
	return out, nil
}

func (s *Store) publishError(locator string, err error) {
	s.errors.Publish(&Error{Locator: locator, Err: err})
}
