package writer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/wudi/pdfscrub/ir/raw"
)

type impl struct{ interceptors []Interceptor }

func (w *impl) SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d %d obj\n", ref.Num, ref.Gen)
	writeObject(&buf, obj)
	buf.WriteString("\nendobj\n")
	return buf.Bytes(), nil
}

func (w *impl) Write(ctx context.Context, doc *raw.Document, out io.Writer, cfg Config) error {
	if err := CheckReferences(doc); err != nil {
		return err
	}

	version := cfg.Version
	if version == "" {
		version = doc.Version
	}
	if version == "" {
		version = defaultVersion
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-" + version + "\n%\xe2\xe3\xcf\xd3\n")

	// One object per number; the highest generation wins.
	latest := make(map[int]raw.ObjectRef)
	maxNum := 0
	for _, ref := range doc.Refs() {
		latest[ref.Num] = ref
		if ref.Num > maxNum {
			maxNum = ref.Num
		}
	}

	offsets := make(map[int]int, len(latest))
	for num := 1; num <= maxNum; num++ {
		ref, ok := latest[num]
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		obj := doc.Objects[ref]
		for _, ic := range w.interceptors {
			if err := ic.BeforeWrite(ctx, ref, obj); err != nil {
				return err
			}
		}
		data, err := w.SerializeObject(ref, obj)
		if err != nil {
			return err
		}
		offsets[num] = buf.Len()
		buf.Write(data)
		for _, ic := range w.interceptors {
			if err := ic.AfterWrite(ctx, ref, obj, int64(len(data))); err != nil {
				return err
			}
		}
	}

	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", maxNum+1)
	buf.WriteString("0000000000 65535 f \n")
	for num := 1; num <= maxNum; num++ {
		off, ok := offsets[num]
		if !ok {
			buf.WriteString("0000000000 65535 f \n")
			continue
		}
		fmt.Fprintf(&buf, "%010d %05d n \n", off, latest[num].Gen)
	}

	trailer := raw.Dict()
	trailer.Set("Size", raw.NumberInt(int64(maxNum+1)))
	for _, k := range doc.Trailer.Keys() {
		if k == "Size" {
			continue
		}
		v, _ := doc.Trailer.Get(k)
		trailer.Set(k, v)
	}
	buf.WriteString("trailer\n")
	writeObject(&buf, trailer)
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)

	_, err := out.Write(buf.Bytes())
	return err
}

// CheckReferences verifies that every reference in the document and its
// trailer names a stored object.
func CheckReferences(doc *raw.Document) error {
	for _, ref := range doc.Refs() {
		if target, ok := firstDangling(doc, doc.Objects[ref]); ok {
			return &ReferenceError{Holder: ref, Target: target}
		}
	}
	if target, ok := firstDangling(doc, doc.Trailer); ok {
		return &ReferenceError{Target: target}
	}
	return nil
}

func firstDangling(doc *raw.Document, obj raw.Object) (raw.ObjectRef, bool) {
	switch v := obj.(type) {
	case raw.RefObj:
		if _, ok := doc.Objects[v.R]; !ok {
			return v.R, true
		}
	case *raw.ArrayObj:
		for _, it := range v.Items {
			if r, ok := firstDangling(doc, it); ok {
				return r, true
			}
		}
	case *raw.DictObj:
		for _, k := range v.Keys() {
			val, _ := v.Get(k)
			if r, ok := firstDangling(doc, val); ok {
				return r, true
			}
		}
	case *raw.StreamObj:
		return firstDangling(doc, v.Dict)
	}
	return raw.ObjectRef{}, false
}

func writeObject(buf *bytes.Buffer, o raw.Object) {
	switch v := o.(type) {
	case raw.NameObj:
		writeName(buf, v.Val)
	case raw.NumberObj:
		buf.WriteString(formatNumber(v))
	case raw.BoolObj:
		buf.WriteString(strconv.FormatBool(v.V))
	case raw.StringObj:
		writeString(buf, v)
	case *raw.ArrayObj:
		buf.WriteByte('[')
		for i, it := range v.Items {
			if i > 0 {
				buf.WriteByte(' ')
			}
			writeObject(buf, it)
		}
		buf.WriteByte(']')
	case *raw.DictObj:
		writeDict(buf, v, -1)
	case *raw.StreamObj:
		writeDict(buf, v.Dict, int64(len(v.Data)))
		buf.WriteString("\nstream\n")
		buf.Write(v.Data)
		buf.WriteString("\nendstream")
	case raw.RefObj:
		fmt.Fprintf(buf, "%d %d R", v.R.Num, v.R.Gen)
	default:
		buf.WriteString("null")
	}
}

// writeDict writes entries in stored order. Null values are omitted since
// they are equivalent to absent keys. A non-negative length replaces or
// appends the Length entry.
func writeDict(buf *bytes.Buffer, d *raw.DictObj, length int64) {
	buf.WriteString("<<")
	wroteLength := false
	for _, k := range d.Keys() {
		val, _ := d.Get(k)
		if length >= 0 && k == "Length" {
			val = raw.NumberInt(length)
			wroteLength = true
		}
		if _, isNull := val.(raw.NullObj); isNull || val == nil {
			continue
		}
		buf.WriteByte(' ')
		writeName(buf, k)
		buf.WriteByte(' ')
		writeObject(buf, val)
	}
	if length >= 0 && !wroteLength {
		buf.WriteString(" /Length ")
		buf.WriteString(strconv.FormatInt(length, 10))
	}
	buf.WriteString(" >>")
}

func formatNumber(n raw.NumberObj) string {
	if n.IsInt {
		return strconv.FormatInt(n.I, 10)
	}
	f := n.F
	if math.IsNaN(f) || math.IsInf(f, 0) || f == 0 {
		return "0"
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !bytes.ContainsRune([]byte(s), '.') {
		// Keep reals real so they re-parse as the same kind.
		s += ".0"
	}
	return s
}

func writeName(buf *bytes.Buffer, name string) {
	buf.WriteByte('/')
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 0x21 || c > 0x7e || c == '#' || isDelimiter(c) {
			fmt.Fprintf(buf, "#%02X", c)
			continue
		}
		buf.WriteByte(c)
	}
}

func writeString(buf *bytes.Buffer, s raw.StringObj) {
	if s.Hex {
		buf.WriteByte('<')
		fmt.Fprintf(buf, "%X", s.Bytes)
		buf.WriteByte('>')
		return
	}
	buf.WriteByte('(')
	for _, c := range s.Bytes {
		switch c {
		case '(', ')', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(c)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			buf.WriteByte(c)
		}
	}
	buf.WriteByte(')')
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
