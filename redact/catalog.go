package redact

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultKeys is the unconditional key set: document information, dates,
// producer-specific entries, embedded content and auto-run actions.
var DefaultKeys = []string{
	// document information
	"AcroForm", "Author", "Creator", "Keywords", "OpenAction", "Producer",
	"Subject", "ViewerPreferences", "Lang", "Info", "PageLayout", "PageMode",
	"Version",
	// dates
	"CreationDate", "LastModified", "ModDate",
	// pdfTeX
	"PTEX.Fullbanner", "PTEX.FileName", "PTEX.InfoDict", "PTEX.PageNumber",
	"Metadata",
	// images and pages
	"PieceInfo", "ImageName", "Thumb",
	// other producers
	"ITXT", "Lambkin",
	"EmbeddedFiles",
	// annotations
	"NM", "RichMediaExecute",
	// ignored by readers since Acrobat 5
	"ProcSet",
}

var (
	ErrEmptyKey     = errors.New("empty key")
	ErrBadMatch     = errors.New("match must be Type or Subtype")
	ErrBadPair      = errors.New("paired rule needs exactly two keys")
	ErrEmptyCatalog = errors.New("catalog has no rules")
)

// Catalog is an ordered, read-only rule set. Build it once and share it.
type Catalog struct {
	descend bool
	keys    []string
	rules   []Rule
}

// CatalogConfig is the YAML form of a catalog.
type CatalogConfig struct {
	Descend     *bool               `yaml:"descend,omitempty"`
	Keys        []string            `yaml:"keys"`
	Conditional []ConditionalConfig `yaml:"conditional,omitempty"`
	Paired      [][]string          `yaml:"paired,omitempty"`
}

type ConditionalConfig struct {
	Match string `yaml:"match"`
	Value string `yaml:"value"`
	Key   string `yaml:"key"`
}

// DefaultConfig returns the configuration of DefaultCatalog.
func DefaultConfig() CatalogConfig {
	return CatalogConfig{
		Keys: append([]string(nil), DefaultKeys...),
		Conditional: []ConditionalConfig{
			{Match: "Type", Value: "Annot", Key: "M"},
			{Match: "Subtype", Value: "FreeText", Key: "C"},
			{Match: "Subtype", Value: "FreeText", Key: "RC"},
			{Match: "Subtype", Value: "FreeText", Key: "T"},
		},
		Paired: [][]string{{"JS", "S"}},
	}
}

var defaultCatalog = mustCatalog(DefaultConfig())

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog { return defaultCatalog }

func mustCatalog(cfg CatalogConfig) *Catalog {
	c, err := NewCatalog(cfg)
	if err != nil {
		panic(err)
	}
	return c
}

// NewCatalog validates cfg and builds a catalog. Rules run in this order:
// the unconditional keys, paired rules, then conditional rules.
func NewCatalog(cfg CatalogConfig) (*Catalog, error) {
	c := &Catalog{descend: true}
	if cfg.Descend != nil {
		c.descend = *cfg.Descend
	}
	for i, k := range cfg.Keys {
		if k == "" {
			return nil, fmt.Errorf("keys[%d]: %w", i, ErrEmptyKey)
		}
	}
	if len(cfg.Keys) > 0 {
		c.keys = append([]string(nil), cfg.Keys...)
		c.rules = append(c.rules, KeyRule{Keys: c.keys})
	}
	for i, p := range cfg.Paired {
		if len(p) != 2 {
			return nil, fmt.Errorf("paired[%d]: %w", i, ErrBadPair)
		}
		if p[0] == "" || p[1] == "" {
			return nil, fmt.Errorf("paired[%d]: %w", i, ErrEmptyKey)
		}
		c.rules = append(c.rules, PairedRule{First: p[0], Second: p[1]})
	}
	for i, cond := range cfg.Conditional {
		if cond.Match != "Type" && cond.Match != "Subtype" {
			return nil, fmt.Errorf("conditional[%d]: %q: %w", i, cond.Match, ErrBadMatch)
		}
		if cond.Key == "" || cond.Value == "" {
			return nil, fmt.Errorf("conditional[%d]: %w", i, ErrEmptyKey)
		}
		c.rules = append(c.rules, ConditionalRule{Match: cond.Match, Value: cond.Value, Key: cond.Key})
	}
	if len(c.rules) == 0 {
		return nil, ErrEmptyCatalog
	}
	return c, nil
}

// ParseCatalog reads a YAML catalog. Unknown fields are rejected.
func ParseCatalog(r io.Reader) (*Catalog, error) {
	var cfg CatalogConfig
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return NewCatalog(cfg)
}

// LoadCatalog reads a YAML catalog from path.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	c, err := ParseCatalog(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Rules returns the rules in application order.
func (c *Catalog) Rules() []Rule { return append([]Rule(nil), c.rules...) }

// Keys returns the unconditional key set.
func (c *Catalog) Keys() []string { return append([]string(nil), c.keys...) }

// Descend reports whether rules also apply to direct sub-dictionaries.
func (c *Catalog) Descend() bool { return c.descend }
