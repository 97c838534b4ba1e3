package raw

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrNotFound is returned when an object number has no entry in the store.
	ErrNotFound = errors.New("object not found")
	// ErrNotDictionary is returned when a key operation targets an object
	// that is neither a dictionary nor a stream.
	ErrNotDictionary = errors.New("object is not a dictionary")
)

// Get returns the object stored under ref.
func (d *Document) Get(ref ObjectRef) (Object, error) {
	obj, ok := d.Objects[ref]
	if !ok || obj == nil {
		return nil, fmt.Errorf("%v: %w", ref, ErrNotFound)
	}
	return obj, nil
}

// Size returns the trailer's Size entry, or one past the highest object
// number when the trailer does not carry one.
func (d *Document) Size() int {
	if d.Trailer != nil {
		if n, ok := d.Trailer.Int("Size"); ok && n > 0 {
			return int(n)
		}
	}
	return d.MaxNum() + 1
}

// MaxNum returns the highest object number in the store.
func (d *Document) MaxNum() int {
	maxNum := 0
	for ref := range d.Objects {
		if ref.Num > maxNum {
			maxNum = ref.Num
		}
	}
	return maxNum
}

// IDs returns one reference per object number in 1..Size-1, ascending.
// Numbers with no stored object are included with generation 0; Get fails
// for them with ErrNotFound. Numbers above the highest stored one are never
// yielded, whatever the trailer's Size says.
func (d *Document) IDs() []ObjectRef {
	size := min(d.Size(), d.MaxNum()+1)
	gens := make(map[int]int, len(d.Objects))
	for ref := range d.Objects {
		if cur, ok := gens[ref.Num]; !ok || ref.Gen > cur {
			gens[ref.Num] = ref.Gen
		}
	}
	ids := make([]ObjectRef, 0, size)
	for n := 1; n < size; n++ {
		ids = append(ids, ObjectRef{Num: n, Gen: gens[n]})
	}
	return ids
}

// Refs returns the references of all stored objects, sorted.
func (d *Document) Refs() []ObjectRef {
	refs := make([]ObjectRef, 0, len(d.Objects))
	for ref := range d.Objects {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })
	return refs
}

// DeleteKey removes key from the dictionary of the object stored under ref.
// It reports whether the key was present.
func (d *Document) DeleteKey(ref ObjectRef, key string) (bool, error) {
	obj, err := d.Get(ref)
	if err != nil {
		return false, err
	}
	dict, ok := AsDict(obj)
	if !ok {
		return false, fmt.Errorf("%v (%s): %w", ref, obj.Type(), ErrNotDictionary)
	}
	return dict.Delete(key), nil
}

// Remove deletes the object stored under ref.
func (d *Document) Remove(ref ObjectRef) {
	delete(d.Objects, ref)
}

// Add stores obj under the next free object number and returns its reference.
func (d *Document) Add(obj Object) ObjectRef {
	ref := ObjectRef{Num: d.MaxNum() + 1}
	d.Objects[ref] = obj
	if d.Trailer != nil {
		if size, ok := d.Trailer.Int("Size"); !ok || int(size) <= ref.Num {
			d.Trailer.Set("Size", NumberInt(int64(ref.Num+1)))
		}
	}
	return ref
}

// Root returns the trailer's Root reference.
func (d *Document) Root() (ObjectRef, bool) {
	if d.Trailer == nil {
		return ObjectRef{}, false
	}
	v, ok := d.Trailer.Get("Root")
	if !ok {
		return ObjectRef{}, false
	}
	r, ok := v.(RefObj)
	if !ok {
		return ObjectRef{}, false
	}
	return r.R, true
}

// Resolve follows obj through the store if it is a reference.
func (d *Document) Resolve(obj Object) (Object, bool) {
	r, ok := obj.(RefObj)
	if !ok {
		return obj, obj != nil
	}
	target, ok := d.Objects[r.R]
	return target, ok
}

// Info returns the document information dictionary. The returned reference
// is zero when Info is stored directly in the trailer.
func (d *Document) Info() (*DictObj, ObjectRef, bool) {
	if d.Trailer == nil {
		return nil, ObjectRef{}, false
	}
	v, ok := d.Trailer.Get("Info")
	if !ok {
		return nil, ObjectRef{}, false
	}
	var ref ObjectRef
	if r, isRef := v.(RefObj); isRef {
		ref = r.R
	}
	target, ok := d.Resolve(v)
	if !ok {
		return nil, ref, false
	}
	dict, ok := target.(*DictObj)
	return dict, ref, ok
}
