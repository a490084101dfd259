package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/readaloud/readaloud/speech"
)

// PDF extracts the text layer of a PDF document. Scanned PDFs without a
// text layer come back empty, which the pipeline flags as EmptyInput.
type PDF struct{}

// Available always returns true; PDF parsing is built in.
func (p *PDF) Available() bool { return true }

// Extract reads all pages into a single string, one page per line group.
func (p *PDF) Extract(_ context.Context, data []byte) (text string, err error) {
	// The parser panics on some malformed cross-reference tables; turn
	// that into a corrupt-input error instead of taking the process down.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("%w: pdf parse: %v", speech.ErrCorruptInput, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: pdf open: %v", speech.ErrCorruptInput, err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page does not void the document.
			continue
		}
		sb.WriteString(content)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}
