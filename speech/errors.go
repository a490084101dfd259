package speech

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the pipeline. These are the only failure values
// callers need to branch on; everything else wraps one of them.
var (
	// Extraction errors
	ErrUnsupportedFormat = errors.New("unsupported input format")
	ErrCorruptInput      = errors.New("input could not be parsed")
	ErrEngineUnavailable = errors.New("extraction engine unavailable")

	// Input validation errors
	ErrEmptyInput    = errors.New("no text to synthesize")
	ErrInputTooLarge = errors.New("text exceeds maximum length")

	// Detection errors. Non-fatal: the pipeline substitutes the default
	// language and continues.
	ErrLanguageUndetected = errors.New("language could not be detected")

	// Synthesis errors
	ErrSynthesisUnavailable = errors.New("no synthesis backend could serve the request")

	// Cache errors. Non-fatal by default: the pipeline serves uncached.
	ErrCacheUnavailable = errors.New("audio cache unavailable")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Stage identifies where in the pipeline a request currently is.
type Stage int

const (
	StageReceived Stage = iota
	StageExtracted
	StageLanguageResolved
	StageKeyComputed
	StageCacheChecked
	StageSynthesizing
	StageCached
	StageDone
	StageFailed
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageReceived:
		return "received"
	case StageExtracted:
		return "extracted"
	case StageLanguageResolved:
		return "language-resolved"
	case StageKeyComputed:
		return "key-computed"
	case StageCacheChecked:
		return "cache-checked"
	case StageSynthesizing:
		return "synthesizing"
	case StageCached:
		return "cached"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PipelineError attaches the failing stage to an error kind so callers see
// a structured failure instead of a raw internal fault.
type PipelineError struct {
	Stage   Stage          // stage that failed
	Err     error          // the error kind, always one of the sentinels above or wrapping one
	Context map[string]any // extra detail for logs
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error kind.
func (e *PipelineError) Unwrap() error { return e.Err }

// WithContext records additional detail on the error.
func (e *PipelineError) WithContext(key string, value any) *PipelineError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// NewPipelineError wraps err with the stage it occurred in.
func NewPipelineError(stage Stage, err error) *PipelineError {
	return &PipelineError{Stage: stage, Err: err}
}

// IsFatal reports whether an error kind must fail the whole request.
// Detection and cache failures have safe local recoveries.
func IsFatal(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrLanguageUndetected),
		errors.Is(err, ErrCacheUnavailable):
		return false
	}
	return true
}
