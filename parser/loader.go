package parser

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfscrub/filters"
	"github.com/wudi/pdfscrub/ir/raw"
	"github.com/wudi/pdfscrub/scanner"
	"github.com/wudi/pdfscrub/xref"
)

var (
	ErrHeaderMismatch  = errors.New("object header does not match xref entry")
	ErrBadObjectStream = errors.New("malformed object stream")
)

// objectLoader reads objects located by an xref table. Parsed object
// streams are kept so each is decoded once.
type objectLoader struct {
	data     []byte
	table    *xref.Table
	pipeline *filters.Pipeline
	scanCfg  scanner.Config
	maxDepth int
	objstm   map[int]map[int]raw.Object
}

func newObjectLoader(data []byte, table *xref.Table, pipeline *filters.Pipeline, scanCfg scanner.Config, maxDepth int) *objectLoader {
	return &objectLoader{
		data:     data,
		table:    table,
		pipeline: pipeline,
		scanCfg:  scanCfg,
		maxDepth: maxDepth,
		objstm:   make(map[int]map[int]raw.Object),
	}
}

func (o *objectLoader) reader() *scanner.Reader {
	return scanner.NewReader(scanner.New(o.data, o.scanCfg), o.maxDepth)
}

// Load returns the object numbered num and the reference it is stored under.
func (o *objectLoader) Load(ctx context.Context, num int) (raw.ObjectRef, raw.Object, error) {
	e, ok := o.table.Lookup(num)
	if !ok || e.Kind == xref.EntryFree {
		return raw.ObjectRef{}, nil, fmt.Errorf("object %d: %w", num, raw.ErrNotFound)
	}
	if e.Kind == xref.EntryCompressed {
		obj, err := o.loadCompressed(ctx, num, e)
		return raw.ObjectRef{Num: num}, obj, err
	}
	return o.loadAt(num, e.Offset, o.streamLength)
}

func (o *objectLoader) loadAt(num int, offset int64, length scanner.LengthFunc) (raw.ObjectRef, raw.Object, error) {
	if offset < 0 || offset >= int64(len(o.data)) {
		return raw.ObjectRef{}, nil, fmt.Errorf("object %d: offset %d out of range", num, offset)
	}
	rd := o.reader()
	if err := rd.SeekTo(offset); err != nil {
		return raw.ObjectRef{}, nil, err
	}
	ref, obj, err := rd.ReadIndirect(length)
	if err != nil {
		return ref, nil, fmt.Errorf("object %d at %d: %w", num, offset, err)
	}
	if ref.Num != num {
		return ref, nil, fmt.Errorf("object %d at %d: found %v: %w", num, offset, ref, ErrHeaderMismatch)
	}
	return ref, obj, nil
}

// streamLength resolves Length, following one level of indirection.
func (o *objectLoader) streamLength(dict *raw.DictObj) int64 {
	v, ok := dict.Get("Length")
	if !ok {
		return -1
	}
	if r, isRef := v.(raw.RefObj); isRef {
		e, ok := o.table.Lookup(r.R.Num)
		if !ok || e.Kind != xref.EntryInUse {
			return -1
		}
		_, target, err := o.loadAt(r.R.Num, e.Offset, nil)
		if err != nil {
			return -1
		}
		v = target
	}
	n, ok := v.(raw.NumberObj)
	if !ok || n.Int() < 0 {
		return -1
	}
	return n.Int()
}

func (o *objectLoader) loadCompressed(ctx context.Context, num int, e xref.Entry) (raw.Object, error) {
	members, ok := o.objstm[e.Stream]
	if !ok {
		var err error
		members, err = o.parseObjectStream(ctx, e.Stream)
		if err != nil {
			return nil, fmt.Errorf("object %d in stream %d: %w", num, e.Stream, err)
		}
		o.objstm[e.Stream] = members
	}
	obj, ok := members[num]
	if !ok {
		return nil, fmt.Errorf("object %d not in stream %d: %w", num, e.Stream, raw.ErrNotFound)
	}
	return obj, nil
}

func (o *objectLoader) parseObjectStream(ctx context.Context, stmNum int) (map[int]raw.Object, error) {
	e, ok := o.table.Lookup(stmNum)
	if !ok || e.Kind != xref.EntryInUse {
		return nil, fmt.Errorf("object stream %d: %w", stmNum, raw.ErrNotFound)
	}
	_, obj, err := o.loadAt(stmNum, e.Offset, o.streamLength)
	if err != nil {
		return nil, err
	}
	stm, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, ErrBadObjectStream
	}
	if typ, _ := stm.Dict.Name("Type"); typ != "ObjStm" {
		return nil, ErrBadObjectStream
	}
	n, okN := stm.Dict.Int("N")
	first, okF := stm.Dict.Int("First")
	if !okN || !okF || n < 0 || first < 0 {
		return nil, ErrBadObjectStream
	}
	names, params := filters.ExtractFilters(stm.Dict)
	payload, err := o.pipeline.Decode(ctx, stm.Data, names, params)
	if err != nil {
		return nil, err
	}
	// Every member needs at least "n off " in the header.
	if first > int64(len(payload)) || n > int64(len(payload))/4+1 {
		return nil, ErrBadObjectStream
	}

	rd := scanner.NewReader(scanner.New(payload, o.scanCfg), o.maxDepth)
	type slot struct {
		num int
		off int64
	}
	slots := make([]slot, 0, n)
	for i := int64(0); i < n; i++ {
		numTok, err1 := rd.Next()
		offTok, err2 := rd.Next()
		if err1 != nil || err2 != nil || !numTok.IsInt || !offTok.IsInt {
			return nil, ErrBadObjectStream
		}
		slots = append(slots, slot{num: int(numTok.Int), off: offTok.Int})
	}

	members := make(map[int]raw.Object, len(slots))
	for _, s := range slots {
		if err := rd.SeekTo(first + s.off); err != nil {
			return nil, ErrBadObjectStream
		}
		obj, err := rd.ReadObject()
		if err != nil {
			return nil, fmt.Errorf("member %d: %w", s.num, err)
		}
		if _, dup := members[s.num]; !dup {
			members[s.num] = obj
		}
	}
	return members, nil
}
