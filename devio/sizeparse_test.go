package devio

import "testing"

func TestParseSize(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"1024", 1024},
		{"1K", 1024},
		{"1M", 1 << 20},
		{"1G", 1 << 30},
		{"1T", 1 << 40},
		{"1k", 1000},
		{"1m", 1_000_000},
		{"2g", 2_000_000_000},
		{"512B", 512},
	}
	for _, c := range cases {
		got, err := ParseSize(c.in)
		if err != nil {
			t.Fatalf("ParseSize(%q): unexpected error: %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("ParseSize(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseSizeOrSectorCount(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"1024", 1024 * 512}, // bare numeral: sector count, not bytes
		{"1", 512},
		{"1M", 1 << 20}, // suffixed: same as ParseSize
		{"512B", 512},
	}
	for _, c := range cases {
		got, err := ParseSizeOrSectorCount(c.in)
		if err != nil {
			t.Fatalf("ParseSizeOrSectorCount(%q): unexpected error: %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("ParseSizeOrSectorCount(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseSizeInvalid(t *testing.T) {
	for _, in := range []string{"", "abc", "1X"} {
		if _, err := ParseSize(in); err == nil {
			t.Errorf("ParseSize(%q): expected error, got nil", in)
		}
	}
}
