package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/readaloud/readaloud/speech"
)

// Docx extracts paragraph text from Word documents (OOXML). The document is
// a zip archive; visible text lives in <w:t> runs inside word/document.xml,
// one paragraph per <w:p>.
type Docx struct{}

// Available always returns true.
func (d *Docx) Available() bool { return true }

// Extract returns the document text, one line per paragraph.
func (d *Docx) Extract(_ context.Context, data []byte) (string, error) {
	r, err := newZipReader(data)
	if err != nil {
		return "", fmt.Errorf("%w: docx open: %v", speech.ErrCorruptInput, err)
	}
	f := findZipFile(r, "word/document.xml")
	if f == nil {
		return "", fmt.Errorf("%w: not a Word document", speech.ErrCorruptInput)
	}
	text, err := collectRuns(f, "t", "p")
	if err != nil {
		return "", fmt.Errorf("%w: docx parse: %v", speech.ErrCorruptInput, err)
	}
	return text, nil
}

// Pptx extracts slide text from PowerPoint presentations. Text lives in
// <a:t> runs inside ppt/slides/slideN.xml, one paragraph per <a:p>.
type Pptx struct{}

// Available always returns true.
func (p *Pptx) Available() bool { return true }

// Extract returns the deck text in slide order.
func (p *Pptx) Extract(_ context.Context, data []byte) (string, error) {
	r, err := newZipReader(data)
	if err != nil {
		return "", fmt.Errorf("%w: pptx open: %v", speech.ErrCorruptInput, err)
	}

	var slides []*zip.File
	for _, f := range r.File {
		if strings.HasPrefix(f.Name, "ppt/slides/slide") && strings.HasSuffix(f.Name, ".xml") {
			slides = append(slides, f)
		}
	}
	if len(slides) == 0 {
		return "", fmt.Errorf("%w: no slides found", speech.ErrCorruptInput)
	}
	sort.Slice(slides, func(i, j int) bool { return slideLess(slides[i].Name, slides[j].Name) })

	var sb strings.Builder
	for _, f := range slides {
		text, err := collectRuns(f, "t", "p")
		if err != nil {
			return "", fmt.Errorf("%w: pptx parse: %v", speech.ErrCorruptInput, err)
		}
		if text != "" {
			sb.WriteString(text)
			sb.WriteByte('\n')
		}
	}
	return sb.String(), nil
}

// slideLess orders "slide2.xml" before "slide10.xml".
func slideLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

func newZipReader(data []byte) (*zip.Reader, error) {
	return zip.NewReader(bytes.NewReader(data), int64(len(data)))
}

func findZipFile(r *zip.Reader, name string) *zip.File {
	for _, f := range r.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// collectRuns streams the XML, concatenating character data of every
// element named runLocal and emitting a newline after each paraLocal end.
func collectRuns(f *zip.File, runLocal, paraLocal string) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var sb strings.Builder
	inRun := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == runLocal {
				inRun = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case runLocal:
				inRun = false
			case paraLocal:
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inRun {
				sb.Write(t)
			}
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
