// Package sequence produces human-readable, monotonically increasing
// document identifiers of the form PREFIX-PERIOD-NNNNN.
//
// Allocation is scan-based: the next value derives from the highest existing
// value for (prefix, period). The read and the eventual insert are separate
// store operations, so two concurrent allocations can produce the same
// candidate; callers must insert under a uniqueness constraint and retry
// allocation on collision.
package sequence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mailroomhq/mailroom-backend/internal/domain"
)

// Scanner returns the highest stored value matching prefix and period, or
// "" when none exists. Implemented by the repositories owning the column
// the sequence lives in.
type Scanner interface {
	LastAllocated(ctx context.Context, prefix, period string) (string, error)
}

// ScannerFunc adapts a repository method to the Scanner interface.
type ScannerFunc func(ctx context.Context, prefix, period string) (string, error)

// LastAllocated calls f.
func (f ScannerFunc) LastAllocated(ctx context.Context, prefix, period string) (string, error) {
	return f(ctx, prefix, period)
}

// Allocator computes candidate sequence values over one Scanner.
type Allocator struct {
	scan Scanner
	log  *slog.Logger
}

// New creates an Allocator over the given scanner.
func New(log *slog.Logger, scan Scanner) *Allocator {
	return &Allocator{scan: scan, log: log.With("component", "sequence")}
}

// Next returns the next candidate for (prefix, period). The first value of a
// new period is PREFIX-PERIOD-00001. A malformed stored maximum (non-numeric
// suffix) is treated as absent rather than blocking allocation.
func (a *Allocator) Next(ctx context.Context, prefix, period string) (string, error) {
	last, err := a.scan.LastAllocated(ctx, prefix, period)
	if err != nil {
		return "", fmt.Errorf("scan last sequence %s-%s: %w", prefix, period, err)
	}

	next := 1
	if last != "" {
		if ref, ok := domain.ParseReference(last); ok {
			next = ref.Sequence + 1
		} else {
			a.log.WarnContext(ctx, "malformed sequence value ignored",
				slog.String("value", last),
				slog.String("prefix", prefix),
				slog.String("period", period),
			)
		}
	}

	return domain.FormatReference(prefix, period, next), nil
}

// CurrentPeriod returns the period bucket for now (calendar year).
func CurrentPeriod(now time.Time) string {
	return fmt.Sprintf("%04d", now.Year())
}
