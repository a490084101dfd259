// Package espeak implements the offline synthesis backend on top of the
// espeak-ng binary. It works without network access; fidelity is lower and
// only languages with an installed voice are supported.
package espeak

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/readaloud/readaloud/speech"
)

// Name identifies this backend in cache keys and results.
const Name = "espeak"

// Backend shells out to espeak-ng, reading WAV audio from its stdout.
type Backend struct {
	cfg speech.OfflineConfig

	once sync.Once
	path string // resolved binary path, empty when not installed
}

// New creates the offline backend. Binary lookup is deferred to first use.
func New(cfg speech.OfflineConfig) *Backend {
	return &Backend{cfg: cfg}
}

// Name returns the backend identity.
func (b *Backend) Name() string { return Name }

// Available reports whether the espeak-ng binary is on PATH.
func (b *Backend) Available() bool {
	b.resolve()
	return b.path != ""
}

// SupportsLanguage reports whether an installed voice covers the tag.
func (b *Backend) SupportsLanguage(language string) bool {
	_, ok := voices[language]
	return ok
}

// Synthesize runs espeak-ng over the text and returns the WAV payload.
func (b *Backend) Synthesize(ctx context.Context, text, language string) (*speech.Audio, error) {
	b.resolve()
	if b.path == "" {
		return nil, fmt.Errorf("%w: %s not installed", speech.ErrSynthesisUnavailable, b.cfg.Binary)
	}
	voice, ok := voices[language]
	if !ok {
		return nil, fmt.Errorf("%w: no %s voice for %q", speech.ErrSynthesisUnavailable, Name, language)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", speech.ErrSynthesisUnavailable)
	}

	if b.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, b.path,
		"-v", voice,
		"-s", strconv.Itoa(b.cfg.WordsPerMinute),
		"--stdout")
	cmd.Stdin = strings.NewReader(text)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: offline synthesis timed out", speech.ErrSynthesisUnavailable)
		}
		return nil, fmt.Errorf("%w: %s: %v: %s",
			speech.ErrSynthesisUnavailable, Name, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: %s produced no audio", speech.ErrSynthesisUnavailable, Name)
	}
	return &speech.Audio{Data: stdout.Bytes(), Format: speech.FormatWAV, Backend: Name}, nil
}

func (b *Backend) resolve() {
	b.once.Do(func() {
		path, err := exec.LookPath(b.cfg.Binary)
		if err != nil {
			log.Warn("offline speech engine not installed", "binary", b.cfg.Binary)
			return
		}
		b.path = path
	})
}

// voices maps two-letter language tags to installed espeak-ng voice names.
var voices = map[string]string{
	"ar": "ar",
	"cs": "cs",
	"da": "da",
	"de": "de",
	"el": "el",
	"en": "en-us",
	"es": "es",
	"fi": "fi",
	"fr": "fr-fr",
	"hi": "hi",
	"hu": "hu",
	"id": "id",
	"it": "it",
	"ja": "ja",
	"ko": "ko",
	"nl": "nl",
	"no": "nb",
	"pl": "pl",
	"pt": "pt",
	"ro": "ro",
	"ru": "ru",
	"sk": "sk",
	"sv": "sv",
	"ta": "ta",
	"tr": "tr",
	"uk": "uk",
	"ur": "ur",
	"vi": "vi",
	"zh": "cmn",
}
