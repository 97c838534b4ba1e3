package redact

import (
	"fmt"

	"github.com/wudi/pdfscrub/ir/raw"
)

// Removal is a key deleted by a rule together with its former value.
type Removal struct {
	Key   string
	Value raw.Object
}

// Rule deletes keys from one dictionary. Apply returns the removals in
// deletion order; an absent key is not an error.
type Rule interface {
	Name() string
	Apply(dict *raw.DictObj) []Removal
}

func take(dict *raw.DictObj, key string, out []Removal) []Removal {
	v, ok := dict.Get(key)
	if !ok {
		return out
	}
	dict.Delete(key)
	return append(out, Removal{Key: key, Value: v})
}

// KeyRule removes a fixed set of keys from every dictionary.
type KeyRule struct {
	Keys []string
}

func (r KeyRule) Name() string { return "unconditional" }

func (r KeyRule) Apply(dict *raw.DictObj) []Removal {
	var out []Removal
	for _, k := range r.Keys {
		out = take(dict, k, out)
	}
	return out
}

// ConditionalRule removes Key when the dictionary's Match entry (Type or
// Subtype) is the name Value.
type ConditionalRule struct {
	Match string
	Value string
	Key   string
}

func (r ConditionalRule) Name() string {
	return fmt.Sprintf("%s=%s", r.Match, r.Value)
}

func (r ConditionalRule) Apply(dict *raw.DictObj) []Removal {
	if v, ok := dict.Name(r.Match); !ok || v != r.Value {
		return nil
	}
	return take(dict, r.Key, nil)
}

// PairedRule removes First and Second together, and only when both are
// present.
type PairedRule struct {
	First  string
	Second string
}

func (r PairedRule) Name() string { return r.First + "+" + r.Second }

func (r PairedRule) Apply(dict *raw.DictObj) []Removal {
	if !dict.Has(r.First) || !dict.Has(r.Second) {
		return nil
	}
	out := take(dict, r.First, nil)
	return take(dict, r.Second, out)
}
