// Package mock provides a configurable synthesis backend for testing.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/readaloud/readaloud/speech"
)

// Backend implements speech.Backend with controllable behavior: simulated
// delay, scripted failures and a call counter. Safe for concurrent use.
type Backend struct {
	mu sync.Mutex

	name      string
	delay     time.Duration
	available bool
	languages map[string]bool // nil means every language

	failRemaining int   // fail this many calls, then succeed
	failureError  error // error returned while failing

	calls int
}

// New creates a mock backend named "mock" that supports every language.
func New() *Backend {
	return &Backend{
		name:      "mock",
		available: true,
	}
}

// WithName overrides the backend identity. Useful when a test needs
// distinguishable online and offline mocks.
func (b *Backend) WithName(name string) *Backend {
	b.name = name
	return b
}

// SetDelay sets the simulated synthesis delay.
func (b *Backend) SetDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delay = d
}

// SetAvailable controls the availability flag.
func (b *Backend) SetAvailable(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.available = ok
}

// SetLanguages restricts the supported language tags.
func (b *Backend) SetLanguages(tags ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.languages = make(map[string]bool, len(tags))
	for _, tag := range tags {
		b.languages[tag] = true
	}
}

// FailTimes makes the next n Synthesize calls return err.
func (b *Backend) FailTimes(n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failRemaining = n
	b.failureError = err
}

// Calls returns how many times Synthesize has been invoked.
func (b *Backend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// Name returns the backend identity.
func (b *Backend) Name() string { return b.name }

// Available reports the configured availability.
func (b *Backend) Available() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.available
}

// SupportsLanguage reports whether the tag is in the configured set.
func (b *Backend) SupportsLanguage(language string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.languages == nil || b.languages[language]
}

// Synthesize returns deterministic fake audio derived from the text, after
// the configured delay, honoring scripted failures and context cancellation.
func (b *Backend) Synthesize(ctx context.Context, text, language string) (*speech.Audio, error) {
	b.mu.Lock()
	b.calls++
	delay := b.delay
	name := b.name
	var failErr error
	if b.failRemaining != 0 {
		if b.failRemaining > 0 {
			b.failRemaining--
		}
		failErr = b.failureError
	}
	b.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failErr != nil {
		return nil, failErr
	}

	data := []byte(name + ":" + language + ":" + text)
	return &speech.Audio{Data: data, Format: speech.FormatWAV, Backend: name}, nil
}
