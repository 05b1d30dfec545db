package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/WessleyAI/docqa/engine/blob"
	"github.com/WessleyAI/docqa/engine/domain"
	"github.com/WessleyAI/docqa/pkg/metrics"
)

// --- Mocks ---

type failingStore struct {
	*blob.MemStore
	putErr error
	puts   int
}

func (f *failingStore) Put(ctx context.Context, bucket, key string, data []byte, ct string) error {
	f.puts++
	if f.putErr != nil {
		return f.putErr
	}
	return f.MemStore.Put(ctx, bucket, key, data, ct)
}

func created(key string) domain.Notification {
	return domain.Notification{Bucket: "docs", Key: key, EventType: domain.EventObjectCreated}
}

func upperParser() Parser {
	return ParserFunc(func(b []byte) (string, error) { return strings.ToUpper(string(b)), nil })
}

// --- Tests ---

func TestHandle_WritesTrustedText(t *testing.T) {
	store := blob.NewMemStore()
	ctx := context.Background()
	store.Put(ctx, "docs", "raw/My Report.fake", []byte("page one. page two."), "application/octet-stream")

	reg := NewRegistry()
	reg.Register(upperParser(), ".fake")
	reg2 := metrics.New()
	e := New(Deps{Store: store, Parsers: reg, Metrics: reg2})

	if err := e.Handle(ctx, created("raw/My Report.fake")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := store.Get(ctx, "docs", "trusted/My_Report.txt")
	if err != nil {
		t.Fatalf("trusted text missing: %v", err)
	}
	if string(got) != "PAGE ONE. PAGE TWO." {
		t.Fatalf("got %q", got)
	}
	if ct, _ := store.ContentType("docs", "trusted/My_Report.txt"); ct != blob.ContentTypeText {
		t.Fatalf("content type = %q", ct)
	}
	if n := reg2.Counter("docqa_extract_documents_total", "").Value(); n != 1 {
		t.Fatalf("extracted counter = %d", n)
	}
}

func TestHandle_Idempotent(t *testing.T) {
	store := blob.NewMemStore()
	ctx := context.Background()
	store.Put(ctx, "docs", "raw/a.txt", []byte("same input"), "text/plain")
	e := New(Deps{Store: store})

	var outputs [][]byte
	for i := 0; i < 2; i++ {
		if err := e.Handle(ctx, created("raw/a.txt")); err != nil {
			t.Fatal(err)
		}
		b, _ := store.Get(ctx, "docs", "trusted/a.txt")
		outputs = append(outputs, b)
	}
	if !bytes.Equal(outputs[0], outputs[1]) {
		t.Fatalf("outputs differ: %q vs %q", outputs[0], outputs[1])
	}
}

func TestHandle_NonRawIsNoop(t *testing.T) {
	store := &failingStore{MemStore: blob.NewMemStore()}
	e := New(Deps{Store: store})
	for _, key := range []string{"trusted/a.txt", "other/a.pdf", "a.pdf"} {
		if err := e.Handle(context.Background(), created(key)); err != nil {
			t.Errorf("Handle(%q): expected nil, got %v", key, err)
		}
	}
	if store.puts != 0 {
		t.Fatalf("expected no writes, got %d", store.puts)
	}
}

func TestHandle_MissingObject(t *testing.T) {
	e := New(Deps{Store: blob.NewMemStore()})
	err := e.Handle(context.Background(), created("raw/gone.pdf"))
	if !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "raw/gone.pdf") {
		t.Fatalf("error should name the key: %v", err)
	}
}

func TestHandle_CorruptPDFWritesNothing(t *testing.T) {
	store := &failingStore{MemStore: blob.NewMemStore()}
	ctx := context.Background()
	store.MemStore.Put(ctx, "docs", "raw/broken.pdf", []byte("%PDF-1.4 this is not really a pdf"), "application/pdf")

	e := New(Deps{Store: store})
	if err := e.Handle(ctx, created("raw/broken.pdf")); err == nil {
		t.Fatal("expected error for corrupt pdf")
	}
	if store.puts != 0 {
		t.Fatal("corrupt document must not produce a trusted blob")
	}
	if _, err := store.Get(ctx, "docs", "trusted/broken.txt"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected no trusted text, got %v", err)
	}
}

func TestHandle_ParserErrorWritesNothing(t *testing.T) {
	store := &failingStore{MemStore: blob.NewMemStore()}
	ctx := context.Background()
	store.MemStore.Put(ctx, "docs", "raw/x.fake", []byte("data"), "")

	parseErr := errors.New("page 3 unreadable")
	reg := NewRegistry()
	reg.Register(ParserFunc(func([]byte) (string, error) { return "partial", parseErr }), ".fake")
	e := New(Deps{Store: store, Parsers: reg})

	if err := e.Handle(ctx, created("raw/x.fake")); !errors.Is(err, parseErr) {
		t.Fatalf("expected parse error, got %v", err)
	}
	if store.puts != 0 {
		t.Fatal("partial text must not be written")
	}
}

func TestHandle_UnsupportedFormat(t *testing.T) {
	store := blob.NewMemStore()
	ctx := context.Background()
	store.Put(ctx, "docs", "raw/image.png", []byte{0x89, 'P', 'N', 'G'}, "image/png")

	err := New(Deps{Store: store}).Handle(ctx, created("raw/image.png"))
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestHandle_WriteError(t *testing.T) {
	store := &failingStore{MemStore: blob.NewMemStore(), putErr: errors.New("disk full")}
	ctx := context.Background()
	store.MemStore.Put(ctx, "docs", "raw/a.txt", []byte("hello"), "")

	if err := New(Deps{Store: store}).Handle(ctx, created("raw/a.txt")); err == nil {
		t.Fatal("expected write error")
	}
}

func TestRegistry_CaseInsensitive(t *testing.T) {
	r := DefaultRegistry()
	for _, k := range []string{"raw/a.PDF", "raw/b.Docx", "raw/c.md", "raw/d.TXT"} {
		if _, err := r.For(k); err != nil {
			t.Errorf("For(%q): %v", k, err)
		}
	}
	if _, err := r.For("raw/noext"); !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestPDF_Garbage(t *testing.T) {
	for _, in := range [][]byte{nil, []byte("hello"), []byte("%PDF-1.7\n%%EOF")} {
		if _, err := (PDF{}).Parse(in); err == nil {
			t.Errorf("expected error for %q", in)
		}
	}
}

const documentXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>The sky</w:t></w:r><w:r><w:t xml:space="preserve"> is blue.</w:t></w:r></w:p>
<w:p><w:r><w:t>Grass</w:t><w:tab/><w:t>is green.</w:t></w:r></w:p>
<w:sectPr/>
</w:body>
</w:document>`

func TestWordText(t *testing.T) {
	got, err := wordText(documentXML)
	if err != nil {
		t.Fatal(err)
	}
	if got != "The sky is blue.\nGrass\tis green.\n" {
		t.Fatalf("got %q", got)
	}
}

func TestWordText_Malformed(t *testing.T) {
	if _, err := wordText("<w:p><w:t>unterminated"); err == nil {
		t.Fatal("expected xml error")
	}
}

func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := map[string]string{
		"[Content_Types].xml":          `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`,
		"word/_rels/document.xml.rels": `<?xml version="1.0" encoding="UTF-8"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"/>`,
		"word/document.xml":            body,
	}
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(content))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDOCX_Parse(t *testing.T) {
	got, err := (DOCX{}).Parse(buildDocx(t, documentXML))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "The sky is blue.") || !strings.Contains(got, "is green.") {
		t.Fatalf("got %q", got)
	}
	if strings.Index(got, "sky") > strings.Index(got, "Grass") {
		t.Fatal("paragraphs out of order")
	}
}

func TestDOCX_NotAZip(t *testing.T) {
	if _, err := (DOCX{}).Parse([]byte("plain bytes")); err == nil {
		t.Fatal("expected error")
	}
}
