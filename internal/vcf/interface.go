// Package vcf provides VCF file parsing functionality.
package vcf

// VariantParser is the interface for parsers that read variant rows.
type VariantParser interface {
	// Next reads the next variant.
	// Returns nil, nil when there are no more variants.
	// A *ParseError describes a single malformed row; the parser stays
	// usable and the following call continues with the next row.
	Next() (*Variant, error)

	// Close closes the parser and releases resources.
	Close() error

	// LineNumber returns the current line number being processed.
	LineNumber() int
}
