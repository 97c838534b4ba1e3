package optimize

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfscrub/ir/raw"
	"github.com/wudi/pdfscrub/observability"
)

// ErrNoRoot is returned when the trailer's Root does not name a stored object.
var ErrNoRoot = errors.New("compact: document has no valid Root")

// Report summarizes a compaction.
type Report struct {
	// Reachable counts objects reachable from Root, Root included.
	Reachable int
	// Removed lists the unreachable objects that were deleted, ascending.
	Removed []raw.ObjectRef
	// Dangling counts references to missing objects that were rewritten to
	// null.
	Dangling int
	// TrailerKeys lists trailer entries dropped because they referenced
	// removed or missing objects.
	TrailerKeys []string
}

// Compact removes every object not reachable from the trailer's Root by
// following references through dictionaries, arrays and stream
// dictionaries. References to missing objects met on the way are rewritten
// to null: dictionary entries are deleted and array elements become null.
func (o *Optimizer) Compact(doc *raw.Document) (Report, error) {
	var rep Report
	root, ok := doc.Root()
	if !ok {
		return rep, ErrNoRoot
	}
	if _, ok := doc.Objects[root]; !ok {
		return rep, fmt.Errorf("%w: %v is missing", ErrNoRoot, root)
	}

	// 1. Mark
	reachable := map[raw.ObjectRef]bool{root: true}
	pending := []raw.ObjectRef{root}
	for len(pending) > 0 {
		ref := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		pending = o.markObject(doc, ref, reachable, pending, &rep)
	}
	rep.Reachable = len(reachable)

	// 2. Sweep
	for _, ref := range doc.Refs() {
		if reachable[ref] {
			continue
		}
		doc.Remove(ref)
		rep.Removed = append(rep.Removed, ref)
		o.config.Logger.Debug("removed unreachable object", observability.Ref("ref", ref))
	}

	// 3. Trailer entries other than Root may only point at kept objects.
	for _, k := range doc.Trailer.Keys() {
		if k == "Root" || k == "Size" {
			continue
		}
		v, _ := doc.Trailer.Get(k)
		if referencesMissing(doc, v) {
			doc.Trailer.Delete(k)
			rep.TrailerKeys = append(rep.TrailerKeys, k)
			o.config.Logger.Debug("removed trailer entry", observability.String("key", k))
		}
	}
	return rep, nil
}

// markObject walks the direct structure of the object stored under ref and
// queues every newly reached reference.
func (o *Optimizer) markObject(doc *raw.Document, ref raw.ObjectRef, reachable map[raw.ObjectRef]bool, pending []raw.ObjectRef, rep *Report) []raw.ObjectRef {
	follow := func(r raw.ObjectRef) bool {
		if _, ok := doc.Objects[r]; !ok {
			rep.Dangling++
			o.config.Logger.Debug("rewrote dangling reference",
				observability.Ref("holder", ref), observability.Ref("target", r))
			return false
		}
		if !reachable[r] {
			reachable[r] = true
			pending = append(pending, r)
		}
		return true
	}

	containers := []raw.Object{doc.Objects[ref]}
	for len(containers) > 0 {
		c := containers[len(containers)-1]
		containers = containers[:len(containers)-1]
		switch t := c.(type) {
		case *raw.StreamObj:
			if t.Dict != nil {
				containers = append(containers, t.Dict)
			}
		case *raw.DictObj:
			for _, k := range t.Keys() {
				v, _ := t.Get(k)
				switch vv := v.(type) {
				case raw.RefObj:
					if !follow(vv.R) {
						t.Delete(k)
					}
				case *raw.DictObj, *raw.ArrayObj:
					containers = append(containers, vv)
				}
			}
		case *raw.ArrayObj:
			for i, it := range t.Items {
				switch vv := it.(type) {
				case raw.RefObj:
					if !follow(vv.R) {
						t.Items[i] = raw.NullObj{}
					}
				case *raw.DictObj, *raw.ArrayObj:
					containers = append(containers, vv)
				}
			}
		}
	}
	return pending
}

// referencesMissing reports whether obj holds a reference to an object that
// is not stored.
func referencesMissing(doc *raw.Document, obj raw.Object) bool {
	stack := []raw.Object{obj}
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		switch t := c.(type) {
		case raw.RefObj:
			if _, ok := doc.Objects[t.R]; !ok {
				return true
			}
		case *raw.ArrayObj:
			stack = append(stack, t.Items...)
		case *raw.DictObj:
			for _, k := range t.Keys() {
				v, _ := t.Get(k)
				stack = append(stack, v)
			}
		case *raw.StreamObj:
			stack = append(stack, t.Dict)
		}
	}
	return false
}
