package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/wudi/pdfscrub/filters"
	"github.com/wudi/pdfscrub/ir/raw"
	"github.com/wudi/pdfscrub/recovery"
	"github.com/wudi/pdfscrub/scanner"
)

var (
	ErrNoStartXRef = errors.New("startxref not found")
	ErrXRefLoop    = errors.New("xref chain loops")
	ErrXRefDepth   = errors.New("xref chain too deep")
)

// EntryKind distinguishes the three cross-reference entry shapes.
type EntryKind int

const (
	EntryFree EntryKind = iota
	EntryInUse
	EntryCompressed
)

// Entry locates one object. Offset and Gen are set for in-use entries;
// Stream and Index locate compressed entries inside an object stream.
type Entry struct {
	Kind   EntryKind
	Offset int64
	Gen    int
	Stream int
	Index  int
}

// Table is the merged cross-reference of every section in the file. Newer
// sections shadow older ones.
type Table struct {
	entries  map[int]Entry
	trailer  *raw.DictObj
	repaired bool
}

func newTable() *Table { return &Table{entries: make(map[int]Entry)} }

func (t *Table) Lookup(objNum int) (Entry, bool) {
	e, ok := t.entries[objNum]
	return e, ok
}

// Objects returns the object numbers of all in-use and compressed entries.
func (t *Table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for k, e := range t.entries {
		if e.Kind != EntryFree {
			out = append(out, k)
		}
	}
	sort.Ints(out)
	return out
}

// Trailer returns the merged trailer dictionary.
func (t *Table) Trailer() *raw.DictObj { return t.trailer }

// Repaired reports whether the table was rebuilt by scanning the file.
func (t *Table) Repaired() bool { return t.repaired }

// addIfAbsent records e unless a newer section already described objNum.
func (t *Table) addIfAbsent(objNum int, e Entry) {
	if _, ok := t.entries[objNum]; !ok {
		t.entries[objNum] = e
	}
}

type ResolverConfig struct {
	MaxXRefDepth    int
	MaxNestingDepth int
	Recovery        recovery.Strategy
	Filters         *filters.Pipeline
	Scanner         scanner.Config
}

// Resolver locates and parses cross-reference information in a PDF.
type Resolver struct {
	cfg ResolverConfig
}

func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.Filters == nil {
		cfg.Filters = filters.NewDefaultPipeline(filters.Limits{})
	}
	return &Resolver{cfg: cfg}
}

// Resolve follows startxref and the Prev chain. When that fails and the
// recovery strategy tolerates it, the table is rebuilt by scanning for
// object headers.
func (r *Resolver) Resolve(ctx context.Context, data []byte) (*Table, error) {
	t, err := r.resolveChain(ctx, data)
	if err == nil {
		return t, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !recovery.Tolerates(ctx, r.cfg.Recovery, err, recovery.Location{Component: "xref"}) {
		return nil, err
	}
	return repair(ctx, data, r.cfg)
}

func (r *Resolver) resolveChain(ctx context.Context, data []byte) (*Table, error) {
	offset, err := findStartXRef(data)
	if err != nil {
		return nil, err
	}
	t := newTable()
	visited := make(map[int64]bool)
	for depth := 0; ; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r.cfg.MaxXRefDepth > 0 && depth >= r.cfg.MaxXRefDepth {
			return nil, ErrXRefDepth
		}
		if visited[offset] {
			return nil, ErrXRefLoop
		}
		visited[offset] = true

		trailer, err := r.loadSection(ctx, data, offset, t)
		if err != nil {
			return nil, fmt.Errorf("xref section at %d: %w", offset, err)
		}
		mergeTrailer(t, trailer)

		prev, ok := trailer.Int("Prev")
		if !ok {
			break
		}
		offset = prev
	}
	return t, nil
}

// mergeTrailer keeps the newest value of every trailer key.
func mergeTrailer(t *Table, trailer *raw.DictObj) {
	if t.trailer == nil {
		t.trailer = raw.Dict()
	}
	for _, k := range trailer.Keys() {
		if t.trailer.Has(k) {
			continue
		}
		v, _ := trailer.Get(k)
		t.trailer.Set(k, v)
	}
}

// loadSection reads the classic table or xref stream at offset into t and
// returns the section's trailer dictionary.
func (r *Resolver) loadSection(ctx context.Context, data []byte, offset int64, t *Table) (*raw.DictObj, error) {
	if offset < 0 || offset >= int64(len(data)) {
		return nil, fmt.Errorf("offset out of range: %d", offset)
	}
	pos := skipSpace(data, offset)
	if bytes.HasPrefix(data[pos:], []byte("xref")) {
		return r.loadClassic(ctx, data, pos, t)
	}
	return r.loadStream(ctx, data, offset, t)
}

func (r *Resolver) loadClassic(ctx context.Context, data []byte, pos int64, t *Table) (*raw.DictObj, error) {
	section := make(map[int]Entry)
	lines := newLineReader(data, pos+int64(len("xref")))
	var trailerPos int64 = -1
	for {
		line, lineStart, ok := lines.next()
		if !ok {
			return nil, errors.New("trailer not found")
		}
		if len(line) == 0 {
			continue
		}
		if bytes.HasPrefix(line, []byte("trailer")) {
			trailerPos = lineStart + int64(len("trailer"))
			break
		}
		fields := bytes.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("invalid xref subsection header: %q", line)
		}
		start, err1 := strconv.Atoi(string(fields[0]))
		count, err2 := strconv.Atoi(string(fields[1]))
		if err1 != nil || err2 != nil || start < 0 || count < 0 {
			return nil, fmt.Errorf("invalid xref subsection header: %q", line)
		}
		for i := 0; i < count; i++ {
			entryLine, _, ok := lines.next()
			if !ok {
				return nil, errors.New("unexpected end of xref section")
			}
			f := bytes.Fields(entryLine)
			if len(f) < 3 {
				return nil, fmt.Errorf("invalid xref entry: %q", entryLine)
			}
			off, err := strconv.ParseInt(string(f[0]), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse xref offset: %w", err)
			}
			gen, err := strconv.Atoi(string(f[1]))
			if err != nil {
				return nil, fmt.Errorf("parse xref gen: %w", err)
			}
			num := start + i
			if num == 0 {
				continue
			}
			if len(f[2]) > 0 && f[2][0] == 'n' {
				section[num] = Entry{Kind: EntryInUse, Offset: off, Gen: gen}
			} else {
				section[num] = Entry{Kind: EntryFree, Gen: gen}
			}
		}
	}

	rd := r.newReader(data)
	if err := rd.SeekTo(trailerPos); err != nil {
		return nil, err
	}
	obj, err := rd.ReadObject()
	if err != nil {
		return nil, fmt.Errorf("trailer: %w", err)
	}
	trailer, ok := obj.(*raw.DictObj)
	if !ok {
		return nil, errors.New("trailer is not a dictionary")
	}

	// In hybrid files the XRefStm entries take precedence over this table.
	if stmOff, ok := trailer.Int("XRefStm"); ok {
		if _, err := r.loadStream(ctx, data, stmOff, t); err != nil {
			if !recovery.Tolerates(ctx, r.cfg.Recovery, err, recovery.Location{ByteOffset: stmOff, Component: "xref"}) {
				return nil, fmt.Errorf("XRefStm: %w", err)
			}
		}
	}
	for num, e := range section {
		t.addIfAbsent(num, e)
	}
	return trailer, nil
}

func (r *Resolver) loadStream(ctx context.Context, data []byte, offset int64, t *Table) (*raw.DictObj, error) {
	rd := r.newReader(data)
	if err := rd.SeekTo(offset); err != nil {
		return nil, err
	}
	_, obj, err := rd.ReadIndirect(directLength)
	if err != nil {
		return nil, err
	}
	stm, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, errors.New("expected xref stream")
	}
	if typ, _ := stm.Dict.Name("Type"); typ != "XRef" {
		return nil, errors.New("stream is not an xref stream")
	}
	names, params := filters.ExtractFilters(stm.Dict)
	payload, err := r.cfg.Filters.Decode(ctx, stm.Data, names, params)
	if err != nil {
		return nil, err
	}
	if err := decodeStreamEntries(stm.Dict, payload, t); err != nil {
		return nil, err
	}
	return stm.Dict, nil
}

// decodeStreamEntries parses the binary rows of an xref stream.
func decodeStreamEntries(dict *raw.DictObj, payload []byte, t *Table) error {
	wObj, _ := dict.Get("W")
	wArr, ok := wObj.(*raw.ArrayObj)
	if !ok || wArr.Len() < 3 {
		return errors.New("xref stream missing W")
	}
	var w [3]int
	rowLen := 0
	for i := 0; i < 3; i++ {
		n, ok := wArr.Items[i].(raw.NumberObj)
		if !ok || n.Int() < 0 || n.Int() > 8 {
			return errors.New("invalid W entry")
		}
		w[i] = int(n.Int())
		rowLen += w[i]
	}
	if rowLen == 0 {
		return errors.New("invalid W entry")
	}

	size, _ := dict.Int("Size")
	index := []int64{0, size}
	if idxObj, ok := dict.Get("Index"); ok {
		if arr, ok := idxObj.(*raw.ArrayObj); ok && arr.Len()%2 == 0 {
			index = index[:0]
			for _, it := range arr.Items {
				n, _ := it.(raw.NumberObj)
				index = append(index, n.Int())
			}
		}
	}

	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		start, count := index[i], index[i+1]
		for j := int64(0); j < count; j++ {
			if pos+rowLen > len(payload) {
				return errors.New("xref stream truncated")
			}
			row := payload[pos : pos+rowLen]
			pos += rowLen
			typ := int64(1)
			if w[0] > 0 {
				typ = readField(row[:w[0]])
			}
			f2 := readField(row[w[0] : w[0]+w[1]])
			f3 := readField(row[w[0]+w[1]:])
			num := int(start + j)
			if num == 0 {
				continue
			}
			switch typ {
			case 0:
				t.addIfAbsent(num, Entry{Kind: EntryFree, Gen: int(f3)})
			case 1:
				t.addIfAbsent(num, Entry{Kind: EntryInUse, Offset: f2, Gen: int(f3)})
			case 2:
				t.addIfAbsent(num, Entry{Kind: EntryCompressed, Stream: int(f2), Index: int(f3)})
			}
			// Unknown types are treated as null references.
		}
	}
	return nil
}

func readField(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

func (r *Resolver) newReader(data []byte) *scanner.Reader {
	return scanner.NewReader(scanner.New(data, r.cfg.Scanner), r.cfg.MaxNestingDepth)
}

// directLength reads a direct Length entry; indirect lengths fall back to
// scanning for endstream.
func directLength(dict *raw.DictObj) int64 {
	v, ok := dict.Get("Length")
	if !ok {
		return -1
	}
	n, ok := v.(raw.NumberObj)
	if !ok || n.Int() < 0 {
		return -1
	}
	return n.Int()
}

// findStartXRef returns the offset named by the last startxref keyword.
func findStartXRef(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, ErrNoStartXRef
	}
	pos := skipSpace(data, int64(idx+len("startxref")))
	end := pos
	for end < int64(len(data)) && data[end] >= '0' && data[end] <= '9' {
		end++
	}
	if end == pos {
		return 0, errors.New("startxref offset missing")
	}
	off, err := strconv.ParseInt(string(data[pos:end]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse startxref: %w", err)
	}
	return off, nil
}

func skipSpace(data []byte, pos int64) int64 {
	for pos < int64(len(data)) {
		switch data[pos] {
		case ' ', '\t', '\r', '\n', '\f', 0:
			pos++
			continue
		}
		break
	}
	return pos
}

// lineReader splits on CR, LF or CRLF.
type lineReader struct {
	data []byte
	pos  int64
}

func newLineReader(data []byte, pos int64) *lineReader {
	return &lineReader{data: data, pos: pos}
}

func (l *lineReader) next() ([]byte, int64, bool) {
	if l.pos >= int64(len(l.data)) {
		return nil, 0, false
	}
	start := l.pos
	for l.pos < int64(len(l.data)) && l.data[l.pos] != '\r' && l.data[l.pos] != '\n' {
		l.pos++
	}
	line := l.data[start:l.pos]
	if l.pos < int64(len(l.data)) && l.data[l.pos] == '\r' {
		l.pos++
	}
	if l.pos < int64(len(l.data)) && l.data[l.pos] == '\n' {
		l.pos++
	}
	// Leading whitespace is tolerated.
	trimmed := bytes.TrimLeft(line, " \t")
	return bytes.TrimRight(trimmed, " \t"), start + int64(len(line)-len(trimmed)), true
}
