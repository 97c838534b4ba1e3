package security

// Limits defines security boundaries for parsing PDFs.
// These limits help prevent resource exhaustion (e.g., zip bombs, deeply
// nested direct objects).
type Limits struct {
	// Maximum decompressed size of an object or xref stream. Default: 100 MB.
	MaxDecompressedSize int64

	// Maximum nesting depth of direct arrays and dictionaries. Default: 100.
	MaxNestingDepth int

	// Maximum xref chain depth (Prev entries). Default: 50.
	MaxXRefDepth int

	// Maximum string length (bytes). Default: 10 MB.
	MaxStringLength int64

	// Maximum raw stream length (bytes). Default: 512 MB.
	MaxStreamLength int64
}

// DefaultLimits returns a Limits struct with safe default values.
func DefaultLimits() Limits {
	return Limits{
		MaxDecompressedSize: 100 * 1024 * 1024, // 100 MB
		MaxNestingDepth:     100,
		MaxXRefDepth:        50,
		MaxStringLength:     10 * 1024 * 1024,  // 10 MB
		MaxStreamLength:     512 * 1024 * 1024, // 512 MB
	}
}

// WithDefaults fills every zero field from DefaultLimits.
func (l Limits) WithDefaults() Limits {
	def := DefaultLimits()
	if l.MaxDecompressedSize <= 0 {
		l.MaxDecompressedSize = def.MaxDecompressedSize
	}
	if l.MaxNestingDepth <= 0 {
		l.MaxNestingDepth = def.MaxNestingDepth
	}
	if l.MaxXRefDepth <= 0 {
		l.MaxXRefDepth = def.MaxXRefDepth
	}
	if l.MaxStringLength <= 0 {
		l.MaxStringLength = def.MaxStringLength
	}
	if l.MaxStreamLength <= 0 {
		l.MaxStreamLength = def.MaxStreamLength
	}
	return l
}
