package extract

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/WessleyAI/docqa/engine/domain"
	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

// Parser turns a whole document into plain text in document order.
type Parser interface {
	Parse(data []byte) (string, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func([]byte) (string, error)

func (f ParserFunc) Parse(data []byte) (string, error) { return f(data) }

// Registry maps lower-case file extensions (with the dot) to parsers.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// DefaultRegistry knows PDF, DOCX and plain text.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(PDF{}, ".pdf")
	r.Register(DOCX{}, ".docx")
	r.Register(PlainText{}, ".txt", ".text", ".md", ".markdown")
	return r
}

// Register binds p to the given extensions, replacing earlier bindings.
func (r *Registry) Register(p Parser, exts ...string) {
	for _, ext := range exts {
		r.parsers[strings.ToLower(ext)] = p
	}
}

// For returns the parser for key's extension, or ErrUnsupportedFormat.
func (r *Registry) For(key string) (Parser, error) {
	ext := strings.ToLower(path.Ext(key))
	if p, ok := r.parsers[ext]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, ext)
}

// PDF extracts page text in page order. Page texts are concatenated as-is.
// A page that fails to decode fails the whole document.
type PDF struct{}

func (PDF) Parse(data []byte) (text string, err error) {
	// The pdf reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("pdf: malformed document: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf: open: %w", err)
	}
	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		t, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("pdf: page %d: %w", i, err)
		}
		sb.WriteString(t)
	}
	return sb.String(), nil
}

// DOCX extracts paragraph text in document order, one line per paragraph.
type DOCX struct{}

func (DOCX) Parse(data []byte) (string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("docx: open: %w", err)
	}
	defer r.Close()
	return wordText(r.Editable().GetContent())
}

// wordText walks WordprocessingML and keeps the run text. Paragraph ends
// become newlines; tabs and breaks are kept.
func wordText(content string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(content))
	var sb strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("docx: xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br", "cr":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}

// PlainText passes UTF-8 text through unchanged.
type PlainText struct{}

func (PlainText) Parse(data []byte) (string, error) { return string(data), nil }
