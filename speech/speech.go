// Package speech turns heterogeneous input into a cache-addressed audio
// result. It composes text extraction, language detection, synthesis backend
// selection and a content-addressed audio cache behind a single pipeline.
package speech

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Mode selects between networked and local synthesis.
type Mode string

const (
	// ModeOnline uses a networked backend (higher fidelity, may fail).
	ModeOnline Mode = "online"
	// ModeOffline uses a local backend (always reachable, lower fidelity).
	ModeOffline Mode = "offline"
)

// Valid reports whether the mode is one of the known variants.
func (m Mode) Valid() bool {
	return m == ModeOnline || m == ModeOffline
}

// Input describes a single piece of user-supplied material. It is immutable
// once created; the upload or CLI layer fills it in and hands it to the
// pipeline.
type Input struct {
	// Text is set when the caller already has plain text.
	Text string

	// Data holds raw file bytes when the caller uploads a document or image.
	Data []byte

	// MediaType is the declared type, either a MIME type
	// ("application/pdf") or a filename extension (".pdf"). When empty the
	// dispatcher sniffs the content.
	MediaType string

	// Filename is the original name, if any. Used for extension fallback.
	Filename string
}

// ExtractionResult is the normalized output of the extraction dispatcher.
type ExtractionResult struct {
	Text      string // extracted plain text
	MediaType string // resolved media type the strategy was chosen for
	Err       error  // nil on success; one of the extraction error kinds otherwise
}

// OK reports whether extraction succeeded. Empty text is still OK; the
// pipeline rejects it separately with ErrEmptyInput.
func (r ExtractionResult) OK() bool { return r.Err == nil }

// Request is the unit of synthesis identity: same fields, same cache key.
type Request struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Mode     Mode   `json:"mode"`
}

// Result is what the pipeline hands back for a synthesis request.
type Result struct {
	AudioRef string `json:"audioRef"`
	Cached   bool   `json:"cached"`
	Backend  string `json:"backend"`
	Language string `json:"language"`
	// Degraded is set when an online request was served by the offline
	// backend after the online one failed.
	Degraded bool `json:"degraded,omitempty"`
}

// AudioFormat identifies the container of synthesized audio.
type AudioFormat string

const (
	FormatMP3 AudioFormat = "mp3"
	FormatWAV AudioFormat = "wav"
)

// Audio is a synthesized audio payload before it is committed to the cache.
type Audio struct {
	Data    []byte
	Format  AudioFormat
	Backend string // identity of the backend that produced it
}

// Entry describes a committed cache artifact. Entries are immutable; the
// store removes them only through eviction.
type Entry struct {
	Key       string
	Path      string
	Size      int64
	Format    AudioFormat
	Backend   string
	CreatedAt time.Time
}

// Extractor is the capability contract of the extraction dispatcher.
type Extractor interface {
	// Extract selects a strategy for the input's media type and returns
	// plain text. Failures are reported in the result, not panicked.
	Extract(ctx context.Context, in Input) ExtractionResult
}

// Detector inspects text and guesses its language.
type Detector interface {
	// Detect returns a two-letter language tag and a confidence in [0, 1].
	// Text below the minimum threshold yields ("unknown", 0).
	Detect(text string) (language string, confidence float64)
}

// Backend is a single synthesis engine variant.
type Backend interface {
	// Name returns the backend identity, e.g. "gtts".
	Name() string

	// Synthesize converts text in the given language to audio.
	Synthesize(ctx context.Context, text, language string) (*Audio, error)

	// Available reports whether the backend can currently serve requests.
	Available() bool

	// SupportsLanguage reports whether the backend has a voice for the tag.
	SupportsLanguage(language string) bool
}

// Selector chooses and drives a backend for a requested mode, applying the
// retry and online-to-offline degrade policy.
type Selector interface {
	// BackendFor returns the backend that would serve the mode.
	BackendFor(mode Mode) (Backend, bool)

	// Synthesize runs the selection policy. The boolean reports whether the
	// request was degraded to the offline backend.
	Synthesize(ctx context.Context, text, language string, mode Mode) (*Audio, bool, error)
}

// Store is the content-addressed audio cache.
type Store interface {
	// Lookup returns the committed entry for key, if any.
	Lookup(key string) (Entry, bool)

	// GetOrCreate returns the entry for key, running produce at most once
	// system-wide when the key is absent. Concurrent callers share the
	// single in-flight production. The boolean reports whether this call
	// hit an already-committed entry.
	GetOrCreate(ctx context.Context, key string, produce func(context.Context) (*Audio, error)) (Entry, bool, error)

	// Evict applies the store's age and size bounds.
	Evict() error

	// Close flushes the index and stops background maintenance.
	Close() error
}

// CacheKey derives the deterministic digest identifying a synthesis request.
// Any change to text, language, mode or backend identity changes the key.
func CacheKey(text, language string, mode Mode, backend string) string {
	h := sha256.New()
	for _, part := range []string{text, language, string(mode), backend} {
		var n [8]byte
		l := len(part)
		for i := 0; i < 8; i++ {
			n[i] = byte(l >> (8 * i))
		}
		h.Write(n[:]) // length-prefix so field boundaries can't collide
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}
