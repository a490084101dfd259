package extract

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/readaloud/readaloud/speech"
)

// Tesseract extracts text from images by shelling out to the tesseract
// binary. When the binary is not installed the strategy reports itself
// unavailable instead of failing requests.
type Tesseract struct {
	cfg speech.OCRConfig

	once sync.Once
	path string // resolved binary path, empty when not found
}

// NewTesseract creates the OCR strategy. Binary lookup is deferred to the
// first Available or Extract call.
func NewTesseract(cfg speech.OCRConfig) *Tesseract {
	return &Tesseract{cfg: cfg}
}

// Available reports whether the tesseract binary is on PATH.
func (t *Tesseract) Available() bool {
	t.resolve()
	return t.path != ""
}

// Extract feeds the image to tesseract on stdin and reads recognized text
// from stdout.
func (t *Tesseract) Extract(ctx context.Context, data []byte) (string, error) {
	t.resolve()
	if t.path == "" {
		return "", fmt.Errorf("%w: %s not found", speech.ErrEngineUnavailable, t.cfg.Binary)
	}

	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}

	args := []string{"stdin", "stdout", "--psm", "6"}
	if t.cfg.Languages != "" {
		args = append(args, "-l", t.cfg.Languages)
	}

	cmd := exec.CommandContext(ctx, t.path, args...)
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: ocr timed out", speech.ErrEngineUnavailable)
		}
		log.Debug("tesseract failed", "stderr", strings.TrimSpace(stderr.String()))
		return "", fmt.Errorf("%w: ocr: %v", speech.ErrCorruptInput, err)
	}
	return stripOCRArtifacts(stdout.String()), nil
}

func (t *Tesseract) resolve() {
	t.once.Do(func() {
		path, err := exec.LookPath(t.cfg.Binary)
		if err != nil {
			log.Warn("OCR engine not installed, image extraction disabled", "binary", t.cfg.Binary)
			return
		}
		t.path = path
	})
}

// stripOCRArtifacts removes recognition noise: stray single Latin letters
// between non-Latin words and lines made of punctuation only.
func stripOCRArtifacts(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || isPunctuationLine(trimmed) {
			continue
		}
		lines = append(lines, trimmed)
	}
	return strings.Join(lines, "\n")
}

func isPunctuationLine(line string) bool {
	for _, r := range line {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return false
		case r > 127:
			return false
		}
	}
	return true
}
