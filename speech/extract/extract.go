// Package extract turns uploaded documents and images into plain text.
// A dispatcher picks one strategy per media type from a fixed table; each
// strategy is a pure transform over the supplied bytes.
package extract

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/readaloud/readaloud/speech"
)

// Kind is the canonical media type key the dispatch table is built on.
type Kind string

const (
	KindText  Kind = "text"
	KindPDF   Kind = "pdf"
	KindDocx  Kind = "docx"
	KindPptx  Kind = "pptx"
	KindImage Kind = "image"
)

// Strategy extracts plain text from one family of inputs.
type Strategy interface {
	// Extract returns plain text for the given bytes.
	Extract(ctx context.Context, data []byte) (string, error)

	// Available reports whether the strategy's engine is usable. Builtin
	// strategies always are; OCR depends on an external binary.
	Available() bool
}

// Dispatcher selects and invokes the strategy matching an input's media
// type. It implements speech.Extractor.
type Dispatcher struct {
	table  map[Kind]Strategy
	logger *log.Logger
}

// NewDispatcher builds a dispatcher with the full strategy table.
func NewDispatcher(cfg speech.Config) *Dispatcher {
	return &Dispatcher{
		table: map[Kind]Strategy{
			KindText:  &PlainText{},
			KindPDF:   &PDF{},
			KindDocx:  &Docx{},
			KindPptx:  &Pptx{},
			KindImage: NewTesseract(cfg.OCR),
		},
		logger: log.Default().WithPrefix("extract"),
	}
}

// WithStrategy replaces the strategy for a kind. Used by tests and callers
// that bring their own engine.
func (d *Dispatcher) WithStrategy(kind Kind, s Strategy) *Dispatcher {
	d.table[kind] = s
	return d
}

// Extract resolves the input's media type, runs the matching strategy and
// normalizes failures into the extraction error kinds. Empty extracted text
// is a valid result; the pipeline rejects it downstream.
func (d *Dispatcher) Extract(ctx context.Context, in speech.Input) speech.ExtractionResult {
	if in.Data == nil && in.Text != "" {
		return speech.ExtractionResult{Text: in.Text, MediaType: string(KindText)}
	}
	if len(in.Data) == 0 {
		return speech.ExtractionResult{Err: fmt.Errorf("%w: empty payload", speech.ErrCorruptInput)}
	}

	kind, err := resolveKind(in)
	if err != nil {
		return speech.ExtractionResult{MediaType: in.MediaType, Err: err}
	}

	strategy := d.table[kind]
	if strategy == nil {
		return speech.ExtractionResult{MediaType: string(kind), Err: speech.ErrUnsupportedFormat}
	}
	if !strategy.Available() {
		d.logger.Warn("extraction engine unavailable", "kind", kind)
		return speech.ExtractionResult{MediaType: string(kind), Err: speech.ErrEngineUnavailable}
	}

	text, err := strategy.Extract(ctx, in.Data)
	if err != nil {
		return speech.ExtractionResult{MediaType: string(kind), Err: err}
	}
	return speech.ExtractionResult{Text: text, MediaType: string(kind)}
}

// resolveKind maps a declared media type, filename extension or sniffed
// content to a dispatch table key.
func resolveKind(in speech.Input) (Kind, error) {
	if declared := strings.ToLower(strings.TrimSpace(in.MediaType)); declared != "" {
		if kind, ok := kindForDeclared(declared); ok {
			return kind, nil
		}
		return "", fmt.Errorf("%w: %s", speech.ErrUnsupportedFormat, declared)
	}
	if ext := strings.ToLower(filepath.Ext(in.Filename)); ext != "" {
		if kind, ok := kindForExtension(ext); ok {
			return kind, nil
		}
		return "", fmt.Errorf("%w: %s", speech.ErrUnsupportedFormat, ext)
	}
	return sniffKind(in.Data)
}

func kindForDeclared(declared string) (Kind, bool) {
	if strings.HasPrefix(declared, ".") {
		return kindForExtension(declared)
	}
	// Strip parameters such as "; charset=utf-8".
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	switch declared {
	case "text/plain", "text/markdown":
		return KindText, true
	case "application/pdf":
		return KindPDF, true
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return KindDocx, true
	case "application/vnd.openxmlformats-officedocument.presentationml.presentation":
		return KindPptx, true
	}
	if strings.HasPrefix(declared, "image/") {
		return KindImage, true
	}
	return "", false
}

func kindForExtension(ext string) (Kind, bool) {
	switch ext {
	case ".txt", ".text", ".md":
		return KindText, true
	case ".pdf":
		return KindPDF, true
	case ".docx":
		return KindDocx, true
	case ".pptx":
		return KindPptx, true
	case ".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff", ".webp":
		return KindImage, true
	}
	return "", false
}

// sniffKind inspects content when no type was declared. OOXML containers
// all sniff as zip, so the archive is opened to tell docx from pptx.
func sniffKind(data []byte) (Kind, error) {
	switch sniffed := http.DetectContentType(data); {
	case sniffed == "application/pdf":
		return KindPDF, nil
	case strings.HasPrefix(sniffed, "image/"):
		return KindImage, nil
	case strings.HasPrefix(sniffed, "text/"):
		return KindText, nil
	case sniffed == "application/zip":
		return sniffOOXML(data)
	}
	return "", speech.ErrUnsupportedFormat
}

func sniffOOXML(data []byte) (Kind, error) {
	r, err := newZipReader(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", speech.ErrCorruptInput, err)
	}
	for _, f := range r.File {
		switch {
		case f.Name == "word/document.xml":
			return KindDocx, nil
		case strings.HasPrefix(f.Name, "ppt/slides/"):
			return KindPptx, nil
		}
	}
	return "", speech.ErrUnsupportedFormat
}
