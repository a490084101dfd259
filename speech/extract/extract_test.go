package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/readaloud/readaloud/speech"
)

// stubStrategy records calls and returns canned results.
type stubStrategy struct {
	text      string
	err       error
	available bool
	calls     int
}

func (s *stubStrategy) Available() bool { return s.available }

func (s *stubStrategy) Extract(context.Context, []byte) (string, error) {
	s.calls++
	return s.text, s.err
}

func testDispatcher() *Dispatcher {
	return NewDispatcher(speech.DefaultConfig())
}

// TestExtractTextPassthrough verifies pre-extracted text skips dispatch.
func TestExtractTextPassthrough(t *testing.T) {
	res := testDispatcher().Extract(context.Background(), speech.Input{Text: "already text"})
	if !res.OK() {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Text != "already text" {
		t.Errorf("Text = %q, want passthrough", res.Text)
	}
}

// TestExtractEmptyPayload verifies empty uploads are rejected as corrupt.
func TestExtractEmptyPayload(t *testing.T) {
	res := testDispatcher().Extract(context.Background(), speech.Input{Data: []byte{}})
	if !errors.Is(res.Err, speech.ErrCorruptInput) {
		t.Errorf("error = %v, want ErrCorruptInput", res.Err)
	}
}

// TestExtractPlainTextUpload verifies a plain text upload round-trips.
func TestExtractPlainTextUpload(t *testing.T) {
	res := testDispatcher().Extract(context.Background(), speech.Input{
		Data:      []byte("uploaded words"),
		MediaType: "text/plain",
	})
	if !res.OK() {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Text != "uploaded words" {
		t.Errorf("Text = %q, want uploaded words", res.Text)
	}
}

// TestResolveKind exercises declared types, extensions and sniffing.
func TestResolveKind(t *testing.T) {
	tests := []struct {
		name    string
		in      speech.Input
		want    Kind
		wantErr error
	}{
		{"mime text", speech.Input{Data: []byte("x"), MediaType: "text/plain"}, KindText, nil},
		{"mime with params", speech.Input{Data: []byte("x"), MediaType: "text/plain; charset=utf-8"}, KindText, nil},
		{"mime markdown", speech.Input{Data: []byte("x"), MediaType: "text/markdown"}, KindText, nil},
		{"mime pdf", speech.Input{Data: []byte("x"), MediaType: "application/pdf"}, KindPDF, nil},
		{"mime docx", speech.Input{Data: []byte("x"), MediaType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document"}, KindDocx, nil},
		{"mime pptx", speech.Input{Data: []byte("x"), MediaType: "application/vnd.openxmlformats-officedocument.presentationml.presentation"}, KindPptx, nil},
		{"mime image", speech.Input{Data: []byte("x"), MediaType: "image/png"}, KindImage, nil},
		{"extension as media type", speech.Input{Data: []byte("x"), MediaType: ".pdf"}, KindPDF, nil},
		{"extension uppercased", speech.Input{Data: []byte("x"), Filename: "REPORT.PDF"}, KindPDF, nil},
		{"filename txt", speech.Input{Data: []byte("x"), Filename: "notes.txt"}, KindText, nil},
		{"filename docx", speech.Input{Data: []byte("x"), Filename: "paper.docx"}, KindDocx, nil},
		{"filename image", speech.Input{Data: []byte("x"), Filename: "scan.jpeg"}, KindImage, nil},
		{"sniffed pdf", speech.Input{Data: []byte("%PDF-1.4 fake")}, KindPDF, nil},
		{"sniffed text", speech.Input{Data: []byte("just some words here")}, KindText, nil},
		{"legacy doc rejected", speech.Input{Data: []byte("x"), Filename: "old.doc"}, "", speech.ErrUnsupportedFormat},
		{"unknown mime", speech.Input{Data: []byte("x"), MediaType: "application/x-tar"}, "", speech.ErrUnsupportedFormat},
		{"unknown extension", speech.Input{Data: []byte("x"), Filename: "data.bin"}, "", speech.ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, err := resolveKind(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if kind != tt.want {
				t.Errorf("kind = %q, want %q", kind, tt.want)
			}
		})
	}
}

// TestExtractUnavailableStrategy verifies an unavailable engine yields
// ErrEngineUnavailable without invoking it.
func TestExtractUnavailableStrategy(t *testing.T) {
	stub := &stubStrategy{available: false}
	d := testDispatcher().WithStrategy(KindImage, stub)

	res := d.Extract(context.Background(), speech.Input{Data: []byte("img"), MediaType: "image/png"})
	if !errors.Is(res.Err, speech.ErrEngineUnavailable) {
		t.Errorf("error = %v, want ErrEngineUnavailable", res.Err)
	}
	if stub.calls != 0 {
		t.Errorf("unavailable strategy was invoked %d times", stub.calls)
	}
}

// TestExtractStrategyOverride verifies WithStrategy routes to the
// replacement.
func TestExtractStrategyOverride(t *testing.T) {
	stub := &stubStrategy{available: true, text: "ocr says hi"}
	d := testDispatcher().WithStrategy(KindImage, stub)

	res := d.Extract(context.Background(), speech.Input{Data: []byte("img"), MediaType: "image/png"})
	if !res.OK() {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Text != "ocr says hi" {
		t.Errorf("Text = %q, want the stub output", res.Text)
	}
	if res.MediaType != string(KindImage) {
		t.Errorf("MediaType = %q, want %q", res.MediaType, KindImage)
	}
}

// buildZip assembles an in-memory zip archive from name/content pairs.
func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

const docxDocument = `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
  </w:body>
</w:document>`

// TestDocxExtract verifies Word text comes out one paragraph per line.
func TestDocxExtract(t *testing.T) {
	data := buildZip(t, map[string]string{
		"[Content_Types].xml": "<Types/>",
		"word/document.xml":   docxDocument,
	})

	text, err := (&Docx{}).Extract(context.Background(), data)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := "First paragraph.\nSecond paragraph."
	if text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
}

// TestDocxMissingDocument verifies a zip without word/document.xml is
// corrupt.
func TestDocxMissingDocument(t *testing.T) {
	data := buildZip(t, map[string]string{"other.xml": "<x/>"})
	if _, err := (&Docx{}).Extract(context.Background(), data); !errors.Is(err, speech.ErrCorruptInput) {
		t.Errorf("error = %v, want ErrCorruptInput", err)
	}
}

// TestDocxNotAZip verifies junk bytes are corrupt.
func TestDocxNotAZip(t *testing.T) {
	if _, err := (&Docx{}).Extract(context.Background(), []byte("not a zip")); !errors.Is(err, speech.ErrCorruptInput) {
		t.Errorf("error = %v, want ErrCorruptInput", err)
	}
}

func slideXML(text string) string {
	return `<?xml version="1.0"?>
<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">
  <a:p><a:r><a:t>` + text + `</a:t></a:r></a:p>
</p:sld>`
}

// TestPptxExtract verifies slides are extracted in numeric order,
// including slide10 after slide2.
func TestPptxExtract(t *testing.T) {
	data := buildZip(t, map[string]string{
		"ppt/slides/slide10.xml": slideXML("Slide ten"),
		"ppt/slides/slide1.xml":  slideXML("Slide one"),
		"ppt/slides/slide2.xml":  slideXML("Slide two"),
	})

	text, err := (&Pptx{}).Extract(context.Background(), data)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := "Slide one\nSlide two\nSlide ten\n"
	if text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
}

// TestPptxNoSlides verifies a deck without slides is corrupt.
func TestPptxNoSlides(t *testing.T) {
	data := buildZip(t, map[string]string{"ppt/presentation.xml": "<p/>"})
	if _, err := (&Pptx{}).Extract(context.Background(), data); !errors.Is(err, speech.ErrCorruptInput) {
		t.Errorf("error = %v, want ErrCorruptInput", err)
	}
}

// TestSniffOOXML verifies docx and pptx archives are told apart by their
// contents.
func TestSniffOOXML(t *testing.T) {
	docx := buildZip(t, map[string]string{"word/document.xml": docxDocument})
	pptx := buildZip(t, map[string]string{"ppt/slides/slide1.xml": slideXML("hi")})
	otherZip := buildZip(t, map[string]string{"README": "plain zip"})

	if kind, err := sniffOOXML(docx); err != nil || kind != KindDocx {
		t.Errorf("docx sniff = (%q, %v), want (docx, nil)", kind, err)
	}
	if kind, err := sniffOOXML(pptx); err != nil || kind != KindPptx {
		t.Errorf("pptx sniff = (%q, %v), want (pptx, nil)", kind, err)
	}
	if _, err := sniffOOXML(otherZip); !errors.Is(err, speech.ErrUnsupportedFormat) {
		t.Errorf("plain zip error = %v, want ErrUnsupportedFormat", err)
	}
}

// TestPDFCorruptInput verifies malformed PDFs fail cleanly instead of
// panicking.
func TestPDFCorruptInput(t *testing.T) {
	inputs := [][]byte{
		[]byte("%PDF-1.4 truncated garbage"),
		[]byte("not a pdf at all"),
	}
	for _, data := range inputs {
		if _, err := (&PDF{}).Extract(context.Background(), data); !errors.Is(err, speech.ErrCorruptInput) {
			t.Errorf("Extract(%.20q) error = %v, want ErrCorruptInput", data, err)
		}
	}
}

// TestPlainTextDecoding verifies the UTF-8, UTF-16 and Latin-1 decode
// order.
func TestPlainTextDecoding(t *testing.T) {
	p := &PlainText{}

	utf8Text, err := p.Extract(context.Background(), []byte("héllo"))
	if err != nil || utf8Text != "héllo" {
		t.Errorf("utf-8 = (%q, %v), want (héllo, nil)", utf8Text, err)
	}

	// "hi" in UTF-16LE with BOM.
	utf16Data := []byte{0xFF, 0xFE, 'h', 0x00, 'i', 0x00}
	utf16Text, err := p.Extract(context.Background(), utf16Data)
	if err != nil || utf16Text != "hi" {
		t.Errorf("utf-16 = (%q, %v), want (hi, nil)", utf16Text, err)
	}

	// 0xE9 is é in Latin-1 and invalid standalone UTF-8.
	latinText, err := p.Extract(context.Background(), []byte{'c', 'a', 'f', 0xE9})
	if err != nil || latinText != "café" {
		t.Errorf("latin-1 = (%q, %v), want (café, nil)", latinText, err)
	}
}

// TestStripOCRArtifacts verifies noise lines are removed from OCR output.
func TestStripOCRArtifacts(t *testing.T) {
	in := "Real first line\n\n. , - !\nReal second line\n   \n"
	want := "Real first line\nReal second line"
	if got := stripOCRArtifacts(in); got != want {
		t.Errorf("stripOCRArtifacts = %q, want %q", got, want)
	}
}

// TestTesseractUnavailable verifies a missing binary reports engine
// unavailability.
func TestTesseractUnavailable(t *testing.T) {
	cfg := speech.OCRConfig{Binary: "definitely-not-a-real-binary-xyz"}
	ts := NewTesseract(cfg)
	if ts.Available() {
		t.Skip("improbable binary is on PATH")
	}
	if _, err := ts.Extract(context.Background(), []byte("img")); !errors.Is(err, speech.ErrEngineUnavailable) {
		t.Errorf("error = %v, want ErrEngineUnavailable", err)
	}
}

// TestDispatcherSniffsDocxUpload verifies an undeclared docx upload is
// extracted end to end.
func TestDispatcherSniffsDocxUpload(t *testing.T) {
	data := buildZip(t, map[string]string{"word/document.xml": docxDocument})

	res := testDispatcher().Extract(context.Background(), speech.Input{Data: data})
	if !res.OK() {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if !strings.Contains(res.Text, "First paragraph.") {
		t.Errorf("Text = %q, want document content", res.Text)
	}
}
