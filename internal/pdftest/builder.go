// Package pdftest builds small PDF files with correct cross-reference
// offsets for use in tests.
package pdftest

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"sort"
	"strings"
)

type object struct {
	num, gen int
	body     string
	// compressed objects live in object stream stm at position idx
	stm, idx int
}

type section struct {
	objects []object
	trailer string
}

// Builder accumulates objects in one or more sections. Each section after
// the first is written as an incremental update with Prev pointing at the
// previous one.
type Builder struct {
	version  string
	sections []*section
	// XRefStream selects cross-reference streams instead of classic tables.
	XRefStream bool
}

func New() *Builder {
	return &Builder{version: "1.7", sections: []*section{{}}}
}

func (b *Builder) Version(v string) *Builder {
	b.version = v
	return b
}

func (b *Builder) cur() *section { return b.sections[len(b.sections)-1] }

// Object adds "num 0 obj body endobj".
func (b *Builder) Object(num int, body string) *Builder {
	return b.ObjectGen(num, 0, body)
}

func (b *Builder) ObjectGen(num, gen int, body string) *Builder {
	b.cur().objects = append(b.cur().objects, object{num: num, gen: gen, body: body})
	return b
}

// Stream adds a stream object. dict holds the dictionary entries without
// the surrounding brackets; Length is appended.
func (b *Builder) Stream(num int, dict string, data []byte) *Builder {
	body := fmt.Sprintf("<< %s /Length %d >>\nstream\n%s\nendstream", dict, len(data), data)
	return b.Object(num, body)
}

// Compressed places num inside object stream stm. Only written when
// XRefStream is set.
func (b *Builder) Compressed(stm, num int, body string) *Builder {
	idx := 0
	for _, o := range b.cur().objects {
		if o.stm == stm {
			idx++
		}
	}
	b.cur().objects = append(b.cur().objects, object{num: num, body: body, stm: stm, idx: idx})
	return b
}

// Trailer sets the trailer entries of the current section, without Size or
// Prev which are computed.
func (b *Builder) Trailer(entries string) *Builder {
	b.cur().trailer = entries
	return b
}

// Update starts a new incremental section.
func (b *Builder) Update() *Builder {
	b.sections = append(b.sections, &section{})
	return b
}

// Bytes renders the file.
func (b *Builder) Bytes() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%%PDF-%s\n%%\xe2\xe3\xcf\xd3\n", b.version)

	maxNum := 0
	prev := -1
	for _, s := range b.sections {
		for _, o := range s.objects {
			if o.num > maxNum {
				maxNum = o.num
			}
		}
		if b.XRefStream {
			prev = b.writeStreamSection(&buf, s, &maxNum, prev)
		} else {
			prev = b.writeClassicSection(&buf, s, maxNum, prev)
		}
	}
	return buf.Bytes()
}

func (b *Builder) writeClassicSection(buf *bytes.Buffer, s *section, maxNum, prev int) int {
	offsets := make(map[int]int)
	gens := make(map[int]int)
	for _, o := range s.objects {
		offsets[o.num] = buf.Len()
		gens[o.num] = o.gen
		fmt.Fprintf(buf, "%d %d obj\n%s\nendobj\n", o.num, o.gen, o.body)
	}
	xrefAt := buf.Len()
	buf.WriteString("xref\n")
	nums := sortedKeys(offsets)
	if prev < 0 {
		// First section lists every number so holes are free entries.
		fmt.Fprintf(buf, "0 %d\n", maxNum+1)
		buf.WriteString("0000000000 65535 f \n")
		for n := 1; n <= maxNum; n++ {
			if off, ok := offsets[n]; ok {
				fmt.Fprintf(buf, "%010d %05d n \n", off, gens[n])
			} else {
				buf.WriteString("0000000000 00001 f \n")
			}
		}
	} else {
		for _, n := range nums {
			fmt.Fprintf(buf, "%d 1\n%010d %05d n \n", n, offsets[n], gens[n])
		}
	}
	fmt.Fprintf(buf, "trailer\n<< /Size %d", maxNum+1)
	if prev >= 0 {
		fmt.Fprintf(buf, " /Prev %d", prev)
	}
	if s.trailer != "" {
		buf.WriteString(" " + s.trailer)
	}
	fmt.Fprintf(buf, " >>\nstartxref\n%d\n%%%%EOF\n", xrefAt)
	return xrefAt
}

func (b *Builder) writeStreamSection(buf *bytes.Buffer, s *section, maxNum *int, prev int) int {
	type row struct{ typ, f2, f3 int }
	rows := make(map[int]row)

	var direct []object
	streams := make(map[int][]object)
	for _, o := range s.objects {
		if o.stm != 0 {
			streams[o.stm] = append(streams[o.stm], o)
			continue
		}
		direct = append(direct, o)
	}
	for _, o := range direct {
		rows[o.num] = row{1, buf.Len(), o.gen}
		fmt.Fprintf(buf, "%d %d obj\n%s\nendobj\n", o.num, o.gen, o.body)
	}
	for _, stm := range sortedKeys(streams) {
		members := streams[stm]
		var header, body strings.Builder
		for _, m := range members {
			fmt.Fprintf(&header, "%d %d ", m.num, body.Len())
			body.WriteString(m.body)
			body.WriteString(" ")
			rows[m.num] = row{2, stm, m.idx}
		}
		payload := header.String() + body.String()
		if stm > *maxNum {
			*maxNum = stm
		}
		rows[stm] = row{1, buf.Len(), 0}
		fmt.Fprintf(buf, "%d 0 obj\n<< /Type /ObjStm /N %d /First %d /Length %d >>\nstream\n%s\nendstream\nendobj\n",
			stm, len(members), header.Len(), len(payload), payload)
	}

	*maxNum++
	xrefNum := *maxNum
	xrefAt := buf.Len()
	rows[xrefNum] = row{1, xrefAt, 0}

	var rowBuf bytes.Buffer
	var index []string
	for _, n := range sortedKeys(rows) {
		r := rows[n]
		rowBuf.WriteByte(byte(r.typ))
		rowBuf.Write([]byte{byte(r.f2 >> 24), byte(r.f2 >> 16), byte(r.f2 >> 8), byte(r.f2)})
		rowBuf.Write([]byte{byte(r.f3 >> 8), byte(r.f3)})
		index = append(index, fmt.Sprintf("%d 1", n))
	}
	var comp bytes.Buffer
	zw := zlib.NewWriter(&comp)
	zw.Write(rowBuf.Bytes())
	zw.Close()

	fmt.Fprintf(buf, "%d 0 obj\n<< /Type /XRef /Size %d /W [1 4 2] /Index [%s] /Filter /FlateDecode /Length %d",
		xrefNum, xrefNum+1, strings.Join(index, " "), comp.Len())
	if prev >= 0 {
		fmt.Fprintf(buf, " /Prev %d", prev)
	}
	if s.trailer != "" {
		buf.WriteString(" " + s.trailer)
	}
	buf.WriteString(" >>\nstream\n")
	buf.Write(comp.Bytes())
	fmt.Fprintf(buf, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", xrefAt)
	return xrefAt
}

func sortedKeys[V any](m map[int]V) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
