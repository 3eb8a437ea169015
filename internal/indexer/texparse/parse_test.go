package texparse

import (
	"errors"
	"reflect"
	"sort"
	"strings"
	"testing"
)

func paths(t *testing.T, tex string, strict bool) []string {
	t.Helper()
	sp, err := Parse(tex, strict)
	if err != nil {
		t.Fatalf("Parse(%q): %v", tex, err)
	}
	defer sp.Release()
	var out []string
	for _, s := range sp.All() {
		out = append(out, s.Path())
	}
	return out
}

func TestParseSubpaths(t *testing.T) {
	tests := []struct {
		tex  string
		want []string
	}{
		{"x", []string{"x"}},
		{"x^2", []string{"x/sup.base", "2/sup.script"}},
		{"a+b=c", []string{"a/add/eq", "b/add/eq", "c/eq"}},
		{"2x", []string{"2/times", "x/times"}},
		{"a \\cdot b", []string{"a/times", "b/times"}},
		{"\\frac{1}{2}", []string{"1/frac.num", "2/frac.den"}},
		{"1/2", []string{"1/frac.num", "2/frac.den"}},
		{"\\frac12", []string{"1/frac.num", "2/frac.den"}},
		{"x^23", []string{"x/sup.base/times", "2/sup.script/times", "3/times"}},
		{"x_i^2", []string{"x/sub.base/sup.base", "i/sub.script/sup.base", "2/sup.script"}},
		{"\\sqrt{x}", []string{"x/sqrt"}},
		{"\\sqrt[3]{x}", []string{"x/sqrt", "3/sqrt.index"}},
		{"-x", []string{"x/neg"}},
		{"a-b", []string{"a/add", "b/neg/add"}},
		{"f(x, y)", []string{"f/times", "x/seq/times", "y/seq/times"}},
		{"\\left( a \\right)", []string{"a"}},
		{"\\mathrm{d}x", []string{"d/times", "x/times"}},
		{"\\alpha \\leq 1.5", []string{"\\alpha/le", "1.5/le"}},
		{"n!", []string{"n/fact"}},
	}
	for _, tt := range tests {
		t.Run(tt.tex, func(t *testing.T) {
			got := paths(t, tt.tex, true)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse(%q) = %q, want %q", tt.tex, got, tt.want)
			}
		})
	}
}

func TestSlashAndFracShareStructure(t *testing.T) {
	a := paths(t, "a/b", true)
	b := paths(t, "\\frac{a}{b}", true)
	sort.Strings(a)
	sort.Strings(b)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("a/b = %q, \\frac{a}{b} = %q", a, b)
	}
}

func TestParseLenientRecovers(t *testing.T) {
	for _, tex := range []string{"x+{y", "(a+b", "a+b}", "x^", "= 2"} {
		if _, err := Parse(tex, true); err == nil {
			t.Errorf("strict Parse(%q) succeeded, want error", tex)
		}
		sp, err := Parse(tex, false)
		if err != nil {
			t.Errorf("lenient Parse(%q): %v", tex, err)
			continue
		}
		if sp.Len() == 0 {
			t.Errorf("lenient Parse(%q) returned no subpaths", tex)
		}
		sp.Release()
	}
}

func TestParseEmpty(t *testing.T) {
	for _, tex := range []string{"", "   ", "}", "\\,", "-"} {
		_, err := Parse(tex, false)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Errorf("Parse(%q) error = %v, want *ParseError", tex, err)
		}
	}
}

func TestParseTooDeep(t *testing.T) {
	tex := strings.Repeat("{", 1000) + "x" + strings.Repeat("}", 1000)
	if _, err := Parse(tex, false); err == nil {
		t.Fatal("expected nesting error")
	}
}

func TestParseBoundsOperatorChains(t *testing.T) {
	tests := []struct {
		name string
		tex  string
	}{
		{"superscript chain", "a" + strings.Repeat("^a", 4000)},
		{"division chain", "a" + strings.Repeat("/a", 4000)},
		{"wide sum", "a" + strings.Repeat("+a^{b_{c}}", maxPathNodes/4)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp, err := Parse(tt.tex, false)
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("error = %v, want *ParseError", err)
			}
			if sp != nil {
				t.Errorf("got %d subpaths alongside the error", sp.Len())
			}
		})
	}

	// A chain under the height limit still parses.
	got := paths(t, "a"+strings.Repeat("^a", 100), false)
	if len(got) != 101 {
		t.Errorf("short chain: %d subpaths, want 101", len(got))
	}
}

func TestReleaseReuse(t *testing.T) {
	for i := 0; i < 3; i++ {
		sp, err := Parse("a+b+c", false)
		if err != nil {
			t.Fatal(err)
		}
		if sp.Len() != 3 {
			t.Fatalf("iteration %d: Len = %d, want 3", i, sp.Len())
		}
		sp.Release()
	}
	var nilSP *Subpaths
	nilSP.Release()
}

func BenchmarkParse(b *testing.B) {
	inputs := map[string]string{
		"short":     `x^2+y^2=z^2`,
		"quadratic": `x = \frac{-b \pm \sqrt{b^2-4ac}}{2a}`,
		"series":    `\sum_{n=1}^{\infty} \frac{1}{n^2} = \frac{\pi^2}{6}`,
	}
	for name, tex := range inputs {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				sp, err := Parse(tex, false)
				if err != nil {
					b.Fatal(err)
				}
				sp.Release()
			}
		})
	}
}
