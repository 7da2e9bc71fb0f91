package optstring

import "testing"

func TestParseNameOnly(t *testing.T) {
	d, err := Parse("raw")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if d.Name != "raw" {
		t.Fatalf("Name = %q", d.Name)
	}
	if d.Options[NameKey] != "raw" {
		t.Fatalf("Options[%%name] = %q", d.Options[NameKey])
	}
}

func TestParseWithOptions(t *testing.T) {
	d, err := Parse("jpeg:q=80,subsample=420")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if d.Name != "jpeg" {
		t.Fatalf("Name = %q", d.Name)
	}
	if d.Options["q"] != "80" || d.Options["subsample"] != "420" {
		t.Fatalf("unexpected options: %+v", d.Options)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []string{"", ":q=80", "jpeg:badpair", "jpeg:%name=x"}
	for _, c := range cases {
		if _, err := Parse(c); err == nil {
			t.Fatalf("Parse(%q): expected error", c)
		} else if _, ok := err.(*ParseError); !ok {
			t.Fatalf("Parse(%q): expected *ParseError, got %T", c, err)
		}
	}
}

func TestEquiv(t *testing.T) {
	a, _ := Parse("jpeg:q=80")
	b, _ := Parse("jpeg:q=80")
	c, _ := Parse("jpeg:q=90")
	d, _ := Parse("raw")
	if !Equiv(a, b) {
		t.Fatalf("expected equivalent descriptors")
	}
	if Equiv(a, c) {
		t.Fatalf("expected different q to be non-equivalent")
	}
	if Equiv(a, d) {
		t.Fatalf("expected different codec name to be non-equivalent")
	}
}
