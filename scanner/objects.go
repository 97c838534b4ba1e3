package scanner

import (
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfscrub/ir/raw"
)

// ErrNestingTooDeep is returned when direct arrays and dictionaries nest
// beyond the configured depth.
var ErrNestingTooDeep = errors.New("object nesting too deep")

// Reader builds raw objects from a token stream. It supports pushing tokens
// back so callers can look ahead.
type Reader struct {
	s        Scanner
	buf      []Token
	maxDepth int
}

// NewReader wraps s. A maxDepth of zero disables the nesting limit.
func NewReader(s Scanner, maxDepth int) *Reader {
	return &Reader{s: s, maxDepth: maxDepth}
}

// Scanner returns the underlying scanner.
func (r *Reader) Scanner() Scanner { return r.s }

func (r *Reader) Next() (Token, error) {
	if l := len(r.buf); l > 0 {
		t := r.buf[l-1]
		r.buf = r.buf[:l-1]
		return t, nil
	}
	return r.s.Next()
}

func (r *Reader) Unread(tok Token) { r.buf = append(r.buf, tok) }

// SeekTo repositions the underlying scanner and drops pushed-back tokens.
func (r *Reader) SeekTo(offset int64) error {
	r.buf = r.buf[:0]
	return r.s.SeekTo(offset)
}

// ReadObject reads one direct object. References are returned as raw.RefObj
// and are not resolved.
func (r *Reader) ReadObject() (raw.Object, error) {
	return r.readObject(0)
}

func (r *Reader) readObject(depth int) (raw.Object, error) {
	if r.maxDepth > 0 && depth > r.maxDepth {
		return nil, ErrNestingTooDeep
	}
	tok, err := r.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	switch tok.Type {
	case TokenName:
		return raw.NameObj{Val: tok.Str}, nil
	case TokenNumber:
		if tok.IsInt {
			return raw.NumberObj{I: tok.Int, IsInt: true}, nil
		}
		return raw.NumberObj{F: tok.Float}, nil
	case TokenBoolean:
		return raw.BoolObj{V: tok.Bool}, nil
	case TokenNull:
		return raw.NullObj{}, nil
	case TokenString:
		return raw.StringObj{Bytes: tok.Bytes, Hex: tok.Hex}, nil
	case TokenRef:
		return raw.RefObj{R: raw.ObjectRef{Num: int(tok.Int), Gen: tok.Gen}}, nil
	case TokenArray:
		return r.readArray(depth)
	case TokenDict:
		return r.readDict(depth)
	}
	return nil, fmt.Errorf("unexpected token %q at offset %d", tok.Str, tok.Pos)
}

func (r *Reader) readArray(depth int) (raw.Object, error) {
	arr := &raw.ArrayObj{}
	for {
		tok, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		if tok.Type == TokenKeyword && tok.Str == "]" {
			return arr, nil
		}
		r.Unread(tok)
		item, err := r.readObject(depth + 1)
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
}

func (r *Reader) readDict(depth int) (raw.Object, error) {
	d := raw.Dict()
	for {
		tok, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		if tok.Type == TokenKeyword && tok.Str == ">>" {
			return d, nil
		}
		if tok.Type != TokenName {
			return nil, fmt.Errorf("expected name in dict at offset %d", tok.Pos)
		}
		val, err := r.readObject(depth + 1)
		if err != nil {
			return nil, err
		}
		// A null value is equivalent to an absent entry.
		if _, isNull := val.(raw.NullObj); isNull {
			continue
		}
		d.Set(tok.Str, val)
	}
}

// LengthFunc resolves the payload length declared by a stream dictionary.
// It returns -1 when the length is unknown.
type LengthFunc func(dict *raw.DictObj) int64

// ReadIndirect reads "num gen obj <object> [stream ... endstream] endobj"
// starting at the current position.
func (r *Reader) ReadIndirect(length LengthFunc) (raw.ObjectRef, raw.Object, error) {
	ref, err := r.readHeader()
	if err != nil {
		return ref, nil, err
	}
	obj, err := r.ReadObject()
	if err != nil {
		return ref, nil, err
	}
	dict, isDict := obj.(*raw.DictObj)
	if !isDict {
		return ref, obj, nil
	}
	hint := int64(-1)
	if length != nil {
		hint = length(dict)
	}
	r.s.SetNextStreamLength(hint)
	tok, err := r.Next()
	r.s.SetNextStreamLength(-1)
	if err != nil {
		if errors.Is(err, io.EOF) {
			// Missing endobj at end of file.
			return ref, dict, nil
		}
		return ref, nil, err
	}
	if tok.Type == TokenStream {
		return ref, raw.NewStream(dict, tok.Bytes), nil
	}
	r.Unread(tok)
	return ref, dict, nil
}

func (r *Reader) readHeader() (raw.ObjectRef, error) {
	tokNum, err := r.Next()
	if err != nil {
		return raw.ObjectRef{}, err
	}
	if tokNum.Type != TokenNumber || !tokNum.IsInt || tokNum.Int < 0 {
		return raw.ObjectRef{}, fmt.Errorf("expected object number at offset %d", tokNum.Pos)
	}
	tokGen, err := r.Next()
	if err != nil {
		return raw.ObjectRef{}, err
	}
	if tokGen.Type != TokenNumber || !tokGen.IsInt || tokGen.Int < 0 {
		return raw.ObjectRef{}, fmt.Errorf("expected generation number at offset %d", tokGen.Pos)
	}
	ref := raw.ObjectRef{Num: int(tokNum.Int), Gen: int(tokGen.Int)}
	tokObj, err := r.Next()
	if err != nil {
		return ref, err
	}
	if tokObj.Type != TokenKeyword || tokObj.Str != "obj" {
		return ref, fmt.Errorf("expected obj keyword at offset %d", tokObj.Pos)
	}
	return ref, nil
}
