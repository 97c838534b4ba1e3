package scrub

import (
	"fmt"

	"github.com/wudi/pdfscrub/ir/raw"
)

// DecodeError reports input that could not be turned into a document. It is
// fatal for that document only.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports a document that could not be serialized. Holder and
// Target are set when the cause is a reference to a missing object; Holder
// is zero when that reference sits in the trailer.
type EncodeError struct {
	Holder raw.ObjectRef
	Target raw.ObjectRef
	Err    error
}

func (e *EncodeError) Error() string {
	if !e.Target.IsZero() {
		return fmt.Sprintf("encode: %v (holder %v, target %v)", e.Err, e.Holder, e.Target)
	}
	return fmt.Sprintf("encode: %v", e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }
