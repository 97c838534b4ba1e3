package xref

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strconv"

	"github.com/wudi/pdfscrub/ir/raw"
)

// objHeader matches "<num> <gen> obj" at the start of a line.
var objHeader = regexp.MustCompile(`(?m)^[ \t\f\x00]*(\d+)[ \t\r\n\f\x00]+(\d+)[ \t\r\n\f\x00]+obj\b`)

// ErrRepairFailed is returned when a scan finds no object headers.
var ErrRepairFailed = errors.New("repair failed: no objects found")

// repair scans the entire file to reconstruct the xref table. Later
// definitions of an object number win, matching incremental updates. The
// trailer is the last parsable "trailer" dictionary; without one a minimal
// trailer carrying only Size is produced.
func repair(ctx context.Context, data []byte, cfg ResolverConfig) (*Table, error) {
	t := newTable()
	t.repaired = true

	for _, m := range objHeader.FindAllSubmatchIndex(data, -1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		num, err1 := strconv.Atoi(string(data[m[2]:m[3]]))
		gen, err2 := strconv.Atoi(string(data[m[4]:m[5]]))
		if err1 != nil || err2 != nil || num == 0 {
			continue
		}
		t.entries[num] = Entry{Kind: EntryInUse, Offset: int64(m[2]), Gen: gen}
	}
	if len(t.entries) == 0 {
		return nil, ErrRepairFailed
	}

	r := &Resolver{cfg: cfg}
	search := data
	for {
		idx := bytes.LastIndex(search, []byte("trailer"))
		if idx < 0 {
			break
		}
		rd := r.newReader(data)
		if err := rd.SeekTo(int64(idx + len("trailer"))); err == nil {
			if obj, err := rd.ReadObject(); err == nil {
				if dict, ok := obj.(*raw.DictObj); ok {
					t.trailer = dict
					break
				}
			}
		}
		search = search[:idx]
	}

	if t.trailer == nil {
		t.trailer = raw.Dict()
	}
	maxNum := 0
	for n := range t.entries {
		if n > maxNum {
			maxNum = n
		}
	}
	if size, ok := t.trailer.Int("Size"); !ok || int(size) <= maxNum {
		t.trailer.Set("Size", raw.NumberInt(int64(maxNum+1)))
	}
	return t, nil
}
