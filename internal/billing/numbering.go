package billing

import (
	"context"
	"fmt"
)

// FormatInvoiceNumber renders INV-{year}-{seq:04d}.
func FormatInvoiceNumber(year, seq int) string {
	return fmt.Sprintf("INV-%d-%04d", year, seq)
}

// SequenceAllocator hands out per-year invoice sequence values.
type SequenceAllocator interface {
	NextInvoiceSequence(ctx context.Context, year int) (int, error)
}

// InvoiceNumberGenerator allocates year-scoped sequential invoice numbers. It
// must run inside the transaction that stores the invoice.
type InvoiceNumberGenerator struct {
	seq SequenceAllocator
}

// NewInvoiceNumberGenerator binds the generator to an allocator.
func NewInvoiceNumberGenerator(seq SequenceAllocator) *InvoiceNumberGenerator {
	return &InvoiceNumberGenerator{seq: seq}
}

// Generate returns the next number for year.
func (g *InvoiceNumberGenerator) Generate(ctx context.Context, year int) (string, error) {
	n, err := g.seq.NextInvoiceSequence(ctx, year)
	if err != nil {
		return "", fmt.Errorf("allocate invoice sequence: %w", err)
	}
	return FormatInvoiceNumber(year, n), nil
}
