package devio

import (
	"fmt"
	"strconv"
)

// ParseSize parses a size argument using the suffix convention from
// spec.md §4.7: an uppercase suffix (B/K/M/G/T) is a binary (1024-based)
// multiplier, a lowercase suffix (b/k/m/g/t) is a decimal (1000-based)
// multiplier. No suffix means bytes.
func ParseSize(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("devio: empty size argument")
	}

	suffix := s[len(s)-1]
	var mult int64 = 1
	digits := s

	switch suffix {
	case 'B':
		mult = 1
		digits = s[:len(s)-1]
	case 'K':
		mult = 1 << 10
		digits = s[:len(s)-1]
	case 'M':
		mult = 1 << 20
		digits = s[:len(s)-1]
	case 'G':
		mult = 1 << 30
		digits = s[:len(s)-1]
	case 'T':
		mult = 1 << 40
		digits = s[:len(s)-1]
	case 'b':
		mult = 1
		digits = s[:len(s)-1]
	case 'k':
		mult = 1_000
		digits = s[:len(s)-1]
	case 'm':
		mult = 1_000_000
		digits = s[:len(s)-1]
	case 'g':
		mult = 1_000_000_000
		digits = s[:len(s)-1]
	case 't':
		mult = 1_000_000_000_000
		digits = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("devio: invalid size argument %q: %w", s, err)
	}
	return n * mult, nil
}

// ParseSizeOrSectorCount parses the size form of the combined size-or-
// partition-number CLI argument. A suffixed numeral means the same thing
// it means to ParseSize; a bare numeral (no suffix) is read as a sector
// count and multiplied by 512, not as literal bytes, matching devio.c's
// ground truth for this one argument (devio.c:1468-1480, `spec_size << 9`).
// The bare-numeral-as-bytes convention of ParseSize itself is unchanged
// and still applies to the separate offset/align/bufsize arguments.
func ParseSizeOrSectorCount(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("devio: empty size argument")
	}
	if isBareNumeral(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("devio: invalid size argument %q: %w", s, err)
		}
		return n * vhdSectorSize, nil
	}
	return ParseSize(s)
}

func isBareNumeral(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
