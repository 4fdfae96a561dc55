package devio

import "testing"

func TestParsePartNo(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"1", 1, false},
		{"511", 511, false},
		{"0", 0, true},
		{"512", 0, true},
		{"1M", 0, true},
		{"01", 0, true}, // leading zero is not a canonical bare index
	}
	for _, c := range cases {
		got, err := parsePartNo(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("parsePartNo(%q): expected error, got %d", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parsePartNo(%q): unexpected error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("parsePartNo(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestApplyDefaults(t *testing.T) {
	opts := Options{}
	doc := defaultsDoc{"size": "100M", "align": "512"}
	applyDefaults(&opts, doc)
	if opts.SizeOrPartNo != "100M" {
		t.Errorf("SizeOrPartNo = %q, want 100M", opts.SizeOrPartNo)
	}
	if opts.Align != "512" {
		t.Errorf("Align = %q, want 512", opts.Align)
	}

	// CLI-supplied values must not be overridden by defaults.
	opts2 := Options{SizeOrPartNo: "2"}
	applyDefaults(&opts2, doc)
	if opts2.SizeOrPartNo != "2" {
		t.Errorf("SizeOrPartNo = %q, want 2 (CLI value preserved)", opts2.SizeOrPartNo)
	}
}
