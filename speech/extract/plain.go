package extract

import (
	"bytes"
	"context"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/readaloud/readaloud/speech"
)

// PlainText reads text files, trying UTF-8, UTF-16 (by BOM) and Latin-1 in
// that order.
type PlainText struct{}

// Available always returns true; plain text needs no engine.
func (p *PlainText) Available() bool { return true }

// Extract decodes the bytes into a string.
func (p *PlainText) Extract(_ context.Context, data []byte) (string, error) {
	// UTF-16 is unambiguous when a BOM is present.
	if len(data) >= 2 && (bytes.HasPrefix(data, []byte{0xFF, 0xFE}) || bytes.HasPrefix(data, []byte{0xFE, 0xFF})) {
		decoded, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder().Bytes(data)
		if err != nil {
			return "", fmt.Errorf("%w: utf-16 decode: %v", speech.ErrCorruptInput, err)
		}
		return string(decoded), nil
	}

	if utf8.Valid(data) {
		return string(data), nil
	}

	// Latin-1 decodes any byte sequence; last resort.
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("%w: text decode: %v", speech.ErrCorruptInput, err)
	}
	return string(decoded), nil
}
