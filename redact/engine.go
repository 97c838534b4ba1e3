package redact

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfscrub/ir/raw"
	"github.com/wudi/pdfscrub/observability"
)

// Deletion records one removed key. Ref is the zero ref for keys removed
// from the trailer or from a direct Info dictionary. Path locates a direct
// sub-dictionary inside the object, empty for the object itself.
type Deletion struct {
	Ref   raw.ObjectRef
	Key   string
	Path  string
	Rule  string
	Value string
}

func (d Deletion) String() string {
	where := d.Ref.String()
	if d.Ref.IsZero() {
		where = "trailer"
	}
	return fmt.Sprintf("%s%s /%s (%s)", where, d.Path, d.Key, d.Rule)
}

type Config struct {
	Catalog *Catalog
	Logger  observability.Logger
	// NewID replaces the trailer ID with fresh identifiers during cleanup.
	NewID bool
}

// Engine applies a catalog to a document. It holds no per-document state and
// can be shared.
type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	if cfg.Catalog == nil {
		cfg.Catalog = DefaultCatalog()
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	return &Engine{cfg: cfg}
}

// Catalog returns the engine's rule set.
func (e *Engine) Catalog() *Catalog { return e.cfg.Catalog }

// Redact visits every object number in ascending order and applies the
// catalog to each dictionary-bearing object.
func (e *Engine) Redact(doc *raw.Document) []Deletion {
	var out []Deletion
	for _, ref := range doc.IDs() {
		obj, err := doc.Get(ref)
		if err != nil {
			if errors.Is(err, raw.ErrNotFound) {
				e.cfg.Logger.Debug("skipping missing object", observability.Ref("ref", ref))
			}
			continue
		}
		dict, ok := raw.AsDict(obj)
		if !ok {
			continue
		}
		out = e.applyTree(ref, dict, out)
	}
	return out
}

type frame struct {
	dict *raw.DictObj
	path string
}

// applyTree runs the rules on dict and, when the catalog descends, on every
// dictionary nested directly inside it. Rules run on a parent before its
// children, so removed subtrees are not visited.
func (e *Engine) applyTree(ref raw.ObjectRef, dict *raw.DictObj, out []Deletion) []Deletion {
	stack := []frame{{dict: dict}}
	seen := map[*raw.DictObj]bool{}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[f.dict] {
			continue
		}
		seen[f.dict] = true

		out = e.applyRules(ref, f.dict, f.path, out)
		if !e.cfg.Catalog.Descend() {
			continue
		}
		children := directChildren(f.dict, f.path)
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return out
}

func (e *Engine) applyRules(ref raw.ObjectRef, dict *raw.DictObj, path string, out []Deletion) []Deletion {
	for _, rule := range e.cfg.Catalog.rules {
		for _, r := range rule.Apply(dict) {
			d := Deletion{Ref: ref, Key: r.Key, Path: path, Rule: rule.Name(), Value: Preview(r.Value)}
			e.logDeletion(d)
			out = append(out, d)
		}
	}
	return out
}

func (e *Engine) logDeletion(d Deletion) {
	fields := []observability.Field{
		observability.String("key", d.Key),
		observability.String("rule", d.Rule),
	}
	if d.Ref.IsZero() {
		fields = append(fields, observability.String("ref", "trailer"))
	} else {
		fields = append(fields, observability.Ref("ref", d.Ref))
	}
	if d.Path != "" {
		fields = append(fields, observability.String("path", d.Path))
	}
	e.cfg.Logger.Info("removed key", fields...)
}

// directChildren lists dictionaries held directly, not by reference, in the
// values of dict, including those nested in arrays.
func directChildren(dict *raw.DictObj, path string) []frame {
	var out []frame
	type item struct {
		obj  raw.Object
		path string
	}
	for _, k := range dict.Keys() {
		v, _ := dict.Get(k)
		pending := []item{{obj: v, path: path + "/" + k}}
		for len(pending) > 0 {
			it := pending[0]
			pending = pending[1:]
			switch o := it.obj.(type) {
			case *raw.DictObj:
				out = append(out, frame{dict: o, path: it.path})
			case *raw.ArrayObj:
				for i, elem := range o.Items {
					pending = append(pending, item{obj: elem, path: fmt.Sprintf("%s[%d]", it.path, i)})
				}
			}
		}
	}
	return out
}
