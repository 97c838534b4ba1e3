package redact

import (
	"bytes"
	"fmt"
	"strconv"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/wudi/pdfscrub/ir/raw"
)

const maxPreview = 64

// Preview renders a removed value for reports. Text strings are decoded
// from UTF-16BE (with BOM), UTF-8 (with BOM) or PDFDocEncoding, which is
// approximated by Latin-1.
func Preview(obj raw.Object) string {
	var s string
	switch v := obj.(type) {
	case raw.StringObj:
		s = strconv.Quote(decodeText(v.Bytes))
	case raw.NameObj:
		s = "/" + v.Val
	case raw.NumberObj:
		if v.IsInt {
			s = strconv.FormatInt(v.I, 10)
		} else {
			s = strconv.FormatFloat(v.F, 'f', -1, 64)
		}
	case raw.BoolObj:
		s = strconv.FormatBool(v.V)
	case raw.RefObj:
		s = v.R.String()
	case *raw.ArrayObj:
		s = fmt.Sprintf("[%d items]", v.Len())
	case *raw.DictObj:
		s = fmt.Sprintf("<<%d keys>>", v.Len())
	case *raw.StreamObj:
		s = fmt.Sprintf("stream(%d bytes)", len(v.Data))
	default:
		s = "null"
	}
	return truncate(s)
}

func decodeText(b []byte) string {
	switch {
	case bytes.HasPrefix(b, []byte{0xfe, 0xff}):
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		if out, err := dec.Bytes(b); err == nil {
			return string(out)
		}
	case bytes.HasPrefix(b, []byte{0xef, 0xbb, 0xbf}) && utf8.Valid(b[3:]):
		return string(b[3:])
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxPreview {
		return s
	}
	r := []rune(s)
	return string(r[:maxPreview]) + "…"
}
