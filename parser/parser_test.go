package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/wudi/pdfscrub/internal/pdftest"
	"github.com/wudi/pdfscrub/ir/raw"
	"github.com/wudi/pdfscrub/recovery"
	"github.com/wudi/pdfscrub/security"
)

func parse(t *testing.T, data []byte, cfg Config) *raw.Document {
	t.Helper()
	doc, err := NewDocumentParser(cfg).Parse(context.Background(), data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return doc
}

func TestDocumentParserParsesClassicXRef(t *testing.T) {
	data := pdftest.New().
		Object(1, "<< /Type /Catalog /Pages 2 0 R >>").
		Object(2, "<< /Type /Pages /Count 0 /Kids [] >>").
		Trailer("/Root 1 0 R").
		Bytes()
	doc := parse(t, data, Config{})

	if got := doc.Version; got != "1.7" {
		t.Fatalf("expected version 1.7, got %q", got)
	}
	if len(doc.Objects) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(doc.Objects))
	}
	if _, ok := doc.Objects[raw.ObjectRef{Num: 1, Gen: 0}]; !ok {
		t.Fatalf("catalog missing")
	}
	if keys := doc.Trailer.Keys(); len(keys) != 2 || keys[0] != "Size" || keys[1] != "Root" {
		t.Fatalf("unexpected trailer keys %v", keys)
	}
}

func TestDocumentParserFollowsPrevChain(t *testing.T) {
	data := pdftest.New().
		Object(1, "<< /Type /Catalog /Pages 2 0 R >>").
		Object(2, "<< /Type /Pages /Count 1 >>").
		Trailer("/Root 1 0 R").
		Update().
		Object(2, "<< /Type /Pages /Count 2 >>").
		Object(3, "(added)").
		Trailer("/Root 1 0 R").
		Bytes()
	doc := parse(t, data, Config{})

	if _, ok := doc.Objects[raw.ObjectRef{Num: 3}]; !ok {
		t.Fatalf("incremental object missing")
	}
	pages := doc.Objects[raw.ObjectRef{Num: 2}].(*raw.DictObj)
	if n, _ := pages.Int("Count"); n != 2 {
		t.Fatalf("expected Count 2 after update, got %d", n)
	}
	if doc.Trailer.Has("Prev") {
		t.Fatalf("Prev should be dropped from the trailer")
	}
}

func TestDocumentParserExpandsObjectStreams(t *testing.T) {
	b := pdftest.New().
		Object(1, "<< /Type /Catalog /Pages 2 0 R /Extra 3 0 R >>").
		Compressed(5, 2, "<< /Type /Pages /Count 0 >>").
		Compressed(5, 3, "[1 2 (three)]").
		Trailer("/Root 1 0 R /ID [<AB> <CD>]")
	b.XRefStream = true
	doc := parse(t, b.Bytes(), Config{})

	arr, ok := doc.Objects[raw.ObjectRef{Num: 3}].(*raw.ArrayObj)
	if !ok || arr.Len() != 3 {
		t.Fatalf("compressed array not loaded: %#v", doc.Objects[raw.ObjectRef{Num: 3}])
	}
	if _, ok := doc.Objects[raw.ObjectRef{Num: 5}]; ok {
		t.Fatalf("object stream should not be kept")
	}
	for ref, obj := range doc.Objects {
		if stm, ok := obj.(*raw.StreamObj); ok {
			if typ, _ := stm.Dict.Name("Type"); typ == "XRef" {
				t.Fatalf("xref stream %v should not be kept", ref)
			}
		}
	}
	for _, k := range []string{"Type", "W", "Index", "Filter", "Length"} {
		if doc.Trailer.Has(k) {
			t.Fatalf("trailer should not carry xref stream key %s", k)
		}
	}
	if !doc.Trailer.Has("ID") || !doc.Trailer.Has("Root") {
		t.Fatalf("document trailer keys lost: %v", doc.Trailer.Keys())
	}
	// Size still covers the dropped xref stream number.
	if size, _ := doc.Trailer.Int("Size"); size != 7 {
		t.Fatalf("expected Size 7, got %d", size)
	}
}

func TestDocumentParserIndirectLength(t *testing.T) {
	data := pdftest.New().
		Object(1, "<< /Type /Catalog /Data 2 0 R >>").
		Object(2, "<< /Length 3 0 R >>\nstream\nendstream inside\nendstream").
		Object(3, "16").
		Trailer("/Root 1 0 R").
		Bytes()
	doc := parse(t, data, Config{})

	stm, ok := doc.Objects[raw.ObjectRef{Num: 2}].(*raw.StreamObj)
	if !ok {
		t.Fatalf("stream missing")
	}
	if string(stm.Data) != "endstream inside" {
		t.Fatalf("unexpected payload %q", stm.Data)
	}
	if v, _ := stm.Dict.Get("Length"); v != raw.NumberInt(16) {
		t.Fatalf("Length should be direct after parsing, got %#v", v)
	}
}

func TestDocumentParserRejectsEncrypted(t *testing.T) {
	data := pdftest.New().
		Object(1, "<< /Type /Catalog >>").
		Object(2, "<< /Filter /Standard /V 2 >>").
		Trailer("/Root 1 0 R /Encrypt 2 0 R").
		Bytes()
	_, err := NewDocumentParser(Config{}).Parse(context.Background(), data)
	if !errors.Is(err, security.ErrEncrypted) {
		t.Fatalf("expected ErrEncrypted, got %v", err)
	}
}

func TestDocumentParserRequiresRoot(t *testing.T) {
	missing := pdftest.New().Object(1, "<< /Type /Catalog >>").Bytes()
	if _, err := NewDocumentParser(Config{}).Parse(context.Background(), missing); !errors.Is(err, ErrNoRoot) {
		t.Fatalf("expected ErrNoRoot, got %v", err)
	}
	dangling := pdftest.New().Object(1, "<< /Type /Catalog >>").Trailer("/Root 9 0 R").Bytes()
	if _, err := NewDocumentParser(Config{}).Parse(context.Background(), dangling); !errors.Is(err, ErrNoRoot) {
		t.Fatalf("expected ErrNoRoot for dangling root, got %v", err)
	}
}

func TestDocumentParserHeader(t *testing.T) {
	data := pdftest.New().Version("1.4").Object(1, "<< /Type /Catalog >>").Trailer("/Root 1 0 R").Bytes()
	if doc := parse(t, data, Config{}); doc.Version != "1.4" {
		t.Fatalf("expected 1.4, got %q", doc.Version)
	}

	headless := bytes.Replace(data, []byte("%PDF-1.4"), []byte("%XXX-1.4"), 1)
	if _, err := NewDocumentParser(Config{}).Parse(context.Background(), headless); !errors.Is(err, ErrNoHeader) {
		t.Fatalf("expected ErrNoHeader, got %v", err)
	}
	doc := parse(t, headless, Config{Recovery: recovery.NewLenientStrategy()})
	if doc.Version != defaultVersion {
		t.Fatalf("expected default version, got %q", doc.Version)
	}
}

func TestDocumentParserLenientSkipsBrokenObjects(t *testing.T) {
	data := pdftest.New().
		Object(1, "<< /Type /Catalog /Pages 2 0 R >>").
		Object(2, "<< /Type /Pages >>").
		Object(3, "(ok)").
		Trailer("/Root 1 0 R").
		Bytes()
	// Corrupt the header of object 2 so its xref entry no longer matches.
	idx := bytes.Index(data, []byte("2 0 obj"))
	data[idx] = '7'

	if _, err := NewDocumentParser(Config{}).Parse(context.Background(), data); !errors.Is(err, ErrHeaderMismatch) {
		t.Fatalf("expected ErrHeaderMismatch in strict mode, got %v", err)
	}

	rec := recovery.NewLenientStrategy()
	doc := parse(t, data, Config{Recovery: rec})
	if _, ok := doc.Objects[raw.ObjectRef{Num: 2}]; ok {
		t.Fatalf("broken object should be skipped")
	}
	if _, ok := doc.Objects[raw.ObjectRef{Num: 3}]; !ok {
		t.Fatalf("healthy object lost")
	}
	if len(rec.Recorded()) != 1 {
		t.Fatalf("expected one recorded error, got %v", rec.Recorded())
	}
	if size, _ := doc.Trailer.Int("Size"); size != 4 {
		t.Fatalf("skipped object should keep its slot, Size=%d", size)
	}
}

func TestDocumentParserRepairFindsCatalog(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.6\n")
	buf.WriteString("1 0 obj\n<< /Type /Pages /Count 0 >>\nendobj\n")
	buf.WriteString("2 0 obj\n<< /Type /Catalog /Pages 1 0 R >>\nendobj\n")
	buf.WriteString("%%EOF\n")

	doc := parse(t, buf.Bytes(), Config{Recovery: recovery.NewLenientStrategy()})
	root, ok := doc.Root()
	if !ok || root.Num != 2 {
		t.Fatalf("expected recovered root 2 0 R, got %v", root)
	}
	if size, _ := doc.Trailer.Int("Size"); size != 3 {
		t.Fatalf("unexpected Size %d", size)
	}
}

func TestDocumentParserNestingLimit(t *testing.T) {
	deep := fmt.Sprintf("<< /Type /Catalog /Deep %s1%s >>", bytes.Repeat([]byte("["), 20), bytes.Repeat([]byte("]"), 20))
	data := pdftest.New().Object(1, deep).Trailer("/Root 1 0 R").Bytes()
	_, err := NewDocumentParser(Config{Limits: security.Limits{MaxNestingDepth: 5}}).Parse(context.Background(), data)
	if err == nil {
		t.Fatalf("expected nesting limit error")
	}
}

func TestDocumentParserCancelled(t *testing.T) {
	data := pdftest.New().Object(1, "<< /Type /Catalog >>").Trailer("/Root 1 0 R").Bytes()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewDocumentParser(Config{}).Parse(ctx, data); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDocumentParserClampsDeclaredSize(t *testing.T) {
	data := pdftest.New().
		Object(1, "<< /Type /Catalog /Pages 2 0 R >>").
		Object(2, "<< /Type /Pages /Count 0 >>").
		Trailer("/Root 1 0 R /Size 4611686018427387904").
		Bytes()
	doc := parse(t, data, Config{})
	if size, _ := doc.Trailer.Int("Size"); size != 3 {
		t.Fatalf("expected Size clamped to 3, got %d", size)
	}
	if ids := doc.IDs(); len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(ids))
	}
}

func TestDocumentParserRejectsOversizedObjectStreamCount(t *testing.T) {
	b := pdftest.New().
		Object(1, "<< /Type /Catalog /Pages 2 0 R >>").
		Compressed(5, 2, "<< /Type /Pages /Count 0 >>").
		Trailer("/Root 1 0 R")
	b.XRefStream = true
	data := b.Bytes()
	// Same length, so every offset stays valid.
	patched := bytes.Replace(data, []byte("/Type /ObjStm /N 1"), []byte("/Type/ObjStm/N 999"), 1)
	if bytes.Equal(patched, data) {
		t.Fatalf("object stream header not found")
	}
	if _, err := NewDocumentParser(Config{}).Parse(context.Background(), patched); !errors.Is(err, ErrBadObjectStream) {
		t.Fatalf("expected ErrBadObjectStream, got %v", err)
	}
}
