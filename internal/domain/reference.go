package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Reference prefixes by document kind. A reference has the form
// PREFIX-PERIOD-NNNNN, e.g. ACQE-2026-00042.
const (
	PrefixIncoming  = "ACQE"
	PrefixOutgoing  = "ACQS"
	PrefixReference = "REFE"
	PrefixArchive   = "ARCH"
)

// SequenceWidth is the zero-padded width of the ordinal suffix.
const SequenceWidth = 5

// Reference is a parsed business-facing identifier.
type Reference struct {
	Prefix   string
	Period   string
	Sequence int
}

// String formats the reference back to its canonical PREFIX-PERIOD-NNNNN form.
func (r Reference) String() string {
	return FormatReference(r.Prefix, r.Period, r.Sequence)
}

// FormatReference builds a canonical reference string.
func FormatReference(prefix, period string, seq int) string {
	return fmt.Sprintf("%s-%s-%0*d", prefix, period, SequenceWidth, seq)
}

// ParseReference splits a reference into its components. Returns false for
// anything that does not match the three-part shape with a numeric suffix;
// callers scanning existing rows treat such values as absent.
func ParseReference(s string) (Reference, bool) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return Reference{}, false
	}
	seq, err := strconv.Atoi(parts[2])
	if err != nil {
		return Reference{}, false
	}
	return Reference{Prefix: parts[0], Period: parts[1], Sequence: seq}, true
}

// IsValidReference reports whether s is a well-formed reference with a
// plausible year period and a positive ordinal.
func IsValidReference(s string) bool {
	ref, ok := ParseReference(s)
	if !ok || ref.Sequence <= 0 {
		return false
	}
	year, err := strconv.Atoi(ref.Period)
	if err != nil {
		return false
	}
	return year >= 2020 && year <= 2100
}
