package redact

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/wudi/pdfscrub/ir/raw"
)

// Cleanup fixes up the privileged objects after Redact: the unconditional
// keys are removed from the root, the Info dictionary is emptied and the
// trailer loses its Info entry.
func (e *Engine) Cleanup(doc *raw.Document) ([]Deletion, error) {
	var out []Deletion

	if rootRef, ok := doc.Root(); ok {
		if obj, err := doc.Get(rootRef); err == nil {
			if root, ok := raw.AsDict(obj); ok {
				rule := KeyRule{Keys: e.cfg.Catalog.keys}
				out = e.record(out, rootRef, "", "root", rule.Apply(root))
			}
		}
	}

	if info, infoRef, ok := doc.Info(); ok {
		path := ""
		if infoRef.IsZero() {
			path = "/Info"
		}
		removed := KeyRule{Keys: []string{"Title", "OpenAction"}}.Apply(info)
		removed = append(removed, KeyRule{Keys: info.Keys()}.Apply(info)...)
		out = e.record(out, infoRef, path, "info", removed)
	}

	out = e.record(out, raw.ObjectRef{}, "", "trailer", take(doc.Trailer, "Info", nil))

	if e.cfg.NewID {
		if err := replaceID(doc.Trailer); err != nil {
			return out, fmt.Errorf("new document ID: %w", err)
		}
		e.cfg.Logger.Info("replaced document ID")
	}
	return out, nil
}

func (e *Engine) record(out []Deletion, ref raw.ObjectRef, path, rule string, removed []Removal) []Deletion {
	for _, r := range removed {
		d := Deletion{Ref: ref, Key: r.Key, Path: path, Rule: rule, Value: Preview(r.Value)}
		e.logDeletion(d)
		out = append(out, d)
	}
	return out
}

// replaceID sets the trailer ID to two fresh random identifiers.
func replaceID(trailer *raw.DictObj) error {
	first, err := uuid.NewRandom()
	if err != nil {
		return err
	}
	second, err := uuid.NewRandom()
	if err != nil {
		return err
	}
	trailer.Set("ID", raw.NewArray(raw.HexStr(first[:]), raw.HexStr(second[:])))
	return nil
}
