// Package backends provides synthesis backend selection with an
// online-to-offline fallback policy.
package backends

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/readaloud/readaloud/speech"
)

// Selector drives one backend per mode. For online requests that fail after
// the backend's own bounded retries, it degrades to the offline backend for
// the same request instead of failing outright.
type Selector struct {
	table  map[speech.Mode]speech.Backend
	logger *log.Logger
}

// NewSelector builds a selector over the two backend variants. Either may
// be nil when not configured; requests for a missing mode fail with
// ErrSynthesisUnavailable.
func NewSelector(online, offline speech.Backend) *Selector {
	table := make(map[speech.Mode]speech.Backend, 2)
	if online != nil {
		table[speech.ModeOnline] = online
	}
	if offline != nil {
		table[speech.ModeOffline] = offline
	}
	return &Selector{
		table:  table,
		logger: log.Default().WithPrefix("backends"),
	}
}

// BackendFor returns the backend that serves the mode.
func (s *Selector) BackendFor(mode speech.Mode) (speech.Backend, bool) {
	b, ok := s.table[mode]
	return b, ok
}

// Synthesize honors the requested mode. The boolean reports whether an
// online request was degraded to the offline backend.
func (s *Selector) Synthesize(ctx context.Context, text, language string, mode speech.Mode) (*speech.Audio, bool, error) {
	backend, ok := s.table[mode]
	if !ok {
		return nil, false, fmt.Errorf("%w: no %s backend configured", speech.ErrSynthesisUnavailable, mode)
	}

	if mode == speech.ModeOffline {
		audio, err := s.invoke(ctx, backend, text, language)
		if err != nil {
			return nil, false, err
		}
		return audio, false, nil
	}

	audio, onlineErr := s.invoke(ctx, backend, text, language)
	if onlineErr == nil {
		return audio, false, nil
	}
	if ctx.Err() != nil {
		return nil, false, onlineErr
	}

	offline, ok := s.table[speech.ModeOffline]
	if !ok || !offline.Available() || !offline.SupportsLanguage(language) {
		return nil, false, fmt.Errorf("%w: online failed and no offline voice for %q: %v",
			speech.ErrSynthesisUnavailable, language, onlineErr)
	}

	s.logger.Warn("online backend failed, degrading to offline",
		"language", language, "err", onlineErr)
	audio, err := s.invoke(ctx, offline, text, language)
	if err != nil {
		return nil, false, fmt.Errorf("%w: online: %v; offline: %v",
			speech.ErrSynthesisUnavailable, onlineErr, err)
	}
	return audio, true, nil
}

func (s *Selector) invoke(ctx context.Context, backend speech.Backend, text, language string) (*speech.Audio, error) {
	if !backend.Available() {
		return nil, fmt.Errorf("%w: backend %s unavailable", speech.ErrSynthesisUnavailable, backend.Name())
	}
	if !backend.SupportsLanguage(language) {
		return nil, fmt.Errorf("%w: backend %s has no voice for %q", speech.ErrSynthesisUnavailable, backend.Name(), language)
	}
	audio, err := backend.Synthesize(ctx, text, language)
	if err != nil {
		return nil, err
	}
	if audio == nil || len(audio.Data) == 0 {
		return nil, fmt.Errorf("%w: backend %s produced no audio", speech.ErrSynthesisUnavailable, backend.Name())
	}
	return audio, nil
}
