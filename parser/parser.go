package parser

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/wudi/pdfscrub/filters"
	"github.com/wudi/pdfscrub/ir/raw"
	"github.com/wudi/pdfscrub/recovery"
	"github.com/wudi/pdfscrub/scanner"
	"github.com/wudi/pdfscrub/security"
	"github.com/wudi/pdfscrub/xref"
)

var (
	ErrNoRoot   = errors.New("document has no valid Root")
	ErrNoHeader = errors.New("missing %PDF header")
)

// Config controls high-level PDF parsing (xref resolution + object loading).
type Config struct {
	Recovery recovery.Strategy
	Limits   security.Limits
}

// DocumentParser builds a raw.Document using xref tables/streams and the object loader.
type DocumentParser struct {
	cfg Config
}

var _ raw.Parser = (*DocumentParser)(nil)

func NewDocumentParser(cfg Config) *DocumentParser {
	cfg.Limits = cfg.Limits.WithDefaults()
	return &DocumentParser{cfg: cfg}
}

// Parse decodes data into a document. Object and xref streams are consumed
// here and do not appear in the result.
func (p *DocumentParser) Parse(ctx context.Context, data []byte) (*raw.Document, error) {
	limits := p.cfg.Limits
	version, err := detectHeaderVersion(data)
	if err != nil {
		if !recovery.Tolerates(ctx, p.cfg.Recovery, err, recovery.Location{Component: "header"}) {
			return nil, err
		}
		version = defaultVersion
	}

	pipeline := filters.NewDefaultPipeline(filters.Limits{MaxDecompressedSize: limits.MaxDecompressedSize})
	scanCfg := scanner.Config{MaxStringLength: limits.MaxStringLength, MaxStreamLength: limits.MaxStreamLength}
	resolver := xref.NewResolver(xref.ResolverConfig{
		MaxXRefDepth:    limits.MaxXRefDepth,
		MaxNestingDepth: limits.MaxNestingDepth,
		Recovery:        p.cfg.Recovery,
		Filters:         pipeline,
		Scanner:         scanCfg,
	})
	table, err := resolver.Resolve(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("resolve xref: %w", err)
	}
	if err := security.CheckTrailer(table.Trailer()); err != nil {
		return nil, err
	}

	loader := newObjectLoader(data, table, pipeline, scanCfg, limits.MaxNestingDepth)
	doc := raw.NewDocument()
	doc.Version = version
	listed := 0
	for _, num := range table.Objects() {
		listed = max(listed, num)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ref, obj, err := loader.Load(ctx, num)
		if err != nil {
			e, _ := table.Lookup(num)
			loc := recovery.Location{ObjectNum: num, ObjectGen: e.Gen, ByteOffset: e.Offset, Component: "parser"}
			if recovery.Tolerates(ctx, p.cfg.Recovery, err, loc) {
				continue
			}
			return nil, fmt.Errorf("load object %d: %w", num, err)
		}
		if isStructural(obj) {
			continue
		}
		if stm, ok := obj.(*raw.StreamObj); ok {
			// Indirect lengths are resolved here so the length objects
			// become unreferenced.
			stm.Dict.Set("Length", raw.NumberInt(int64(len(stm.Data))))
		}
		doc.Objects[ref] = obj
	}

	doc.Trailer = normalizeTrailer(table.Trailer(), doc, listed)
	if table.Repaired() {
		recoverRoot(doc)
	}
	if err := checkRoot(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

const defaultVersion = "1.7"

var headerPattern = regexp.MustCompile(`%PDF-(\d+\.\d+)`)

// detectHeaderVersion finds the %PDF-x.y marker in the first kilobyte.
func detectHeaderVersion(data []byte) (string, error) {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	m := headerPattern.FindSubmatch(head)
	if m == nil {
		return "", ErrNoHeader
	}
	return string(m[1]), nil
}

// isStructural reports object and xref streams, which only carry file
// layout and are regenerated on write.
func isStructural(obj raw.Object) bool {
	stm, ok := obj.(*raw.StreamObj)
	if !ok {
		return false
	}
	typ, _ := stm.Dict.Name("Type")
	return typ == "ObjStm" || typ == "XRef"
}

// trailerLayoutKeys describe the file's xref layout rather than the document.
var trailerLayoutKeys = map[string]bool{
	"Size": true, "Prev": true, "XRefStm": true,
	"Type": true, "W": true, "Index": true,
	"Filter": true, "DecodeParms": true, "Length": true,
}

// normalizeTrailer keeps the document-level trailer entries and sets Size to
// one past the highest object number the xref listed or the store holds.
// A declared Size beyond that names no objects and is discarded.
func normalizeTrailer(src *raw.DictObj, doc *raw.Document, listed int) *raw.DictObj {
	size := int64(max(doc.MaxNum(), listed) + 1)
	out := raw.Dict()
	out.Set("Size", raw.NumberInt(size))
	for _, k := range src.Keys() {
		if trailerLayoutKeys[k] {
			continue
		}
		v, _ := src.Get(k)
		out.Set(k, v)
	}
	return out
}

// recoverRoot points a repaired trailer at the lowest-numbered catalog when
// the scanned trailer had no usable Root.
func recoverRoot(doc *raw.Document) {
	if checkRoot(doc) == nil {
		return
	}
	for _, ref := range doc.Refs() {
		dict, ok := doc.Objects[ref].(*raw.DictObj)
		if !ok {
			continue
		}
		if typ, _ := dict.Name("Type"); typ == "Catalog" {
			doc.Trailer.Set("Root", raw.Ref(ref.Num, ref.Gen))
			return
		}
	}
}

func checkRoot(doc *raw.Document) error {
	root, ok := doc.Root()
	if !ok {
		return ErrNoRoot
	}
	if _, ok := doc.Objects[root]; !ok {
		return fmt.Errorf("%w: %v is dangling", ErrNoRoot, root)
	}
	return nil
}
