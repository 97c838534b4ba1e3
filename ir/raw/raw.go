package raw

import (
	"context"
	"fmt"
)

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// IsZero reports whether r is the reserved object 0.
func (r ObjectRef) IsZero() bool { return r.Num == 0 && r.Gen == 0 }

// Less orders references by number, then generation.
func (r ObjectRef) Less(o ObjectRef) bool {
	if r.Num != o.Num {
		return r.Num < o.Num
	}
	return r.Gen < o.Gen
}

// Document is the root container for raw PDF objects. Objects is the object
// store; Trailer is the un-numbered trailer dictionary.
type Document struct {
	Objects map[ObjectRef]Object
	Trailer *DictObj
	Version string // e.g., "1.7"
}

// NewDocument returns an empty document with a trailer holding only Size.
func NewDocument() *Document {
	trailer := Dict()
	trailer.Set("Size", NumberInt(1))
	return &Document{
		Objects: make(map[ObjectRef]Object),
		Trailer: trailer,
	}
}

// Parser converts bytes into a raw.Document.
type Parser interface {
	Parse(ctx context.Context, data []byte) (*Document, error)
}
