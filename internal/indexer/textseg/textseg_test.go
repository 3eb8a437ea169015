package textseg

import "testing"

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Segment
	}{
		{
			name: "latin words",
			in:   "über die Größe",
			want: []Segment{
				{Str: "über", Offset: 0, Len: 5},
				{Str: "die", Offset: 6, Len: 3},
				{Str: "Größe", Offset: 10, Len: 7},
			},
		},
		{
			name: "han characters split individually",
			in:   "正数x",
			want: []Segment{
				{Str: "正", Offset: 0, Len: 3},
				{Str: "数", Offset: 3, Len: 3},
				{Str: "x", Offset: 6, Len: 1},
			},
		},
		{
			name: "punctuation only",
			in:   " ,;! ",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("Split(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("segment %d = %+v, want %+v", i, got[i], tt.want[i])
				}
				if tt.in[got[i].Offset:got[i].Offset+got[i].Len] != got[i].Str {
					t.Errorf("segment %d offset does not address its text", i)
				}
			}
		})
	}
}

func TestLowerASCII(t *testing.T) {
	tests := map[string]string{
		"The":        "the",
		"already":    "already",
		"MiXeD 42 Z": "mixed 42 z",
		"Größe":      "größe",
		"":           "",
	}
	for in, want := range tests {
		got := LowerASCII(in)
		if got != want {
			t.Errorf("LowerASCII(%q) = %q, want %q", in, got, want)
		}
		if len(got) != len(in) {
			t.Errorf("LowerASCII(%q) changed byte length", in)
		}
	}
}
