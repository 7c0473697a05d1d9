package ivorn

import "testing"

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "2016-01-09.28_ASASSN-16ad", want: "2016-01-09.28_ASASSN-16ad"},
		{name: "leading dot", in: ".hidden", want: "hidden"},
		{name: "separators", in: "a/b\\c#d e", want: "a_b_c_d_e"},
		{name: "disallowed dropped", in: "Gaia16aaa!?*", want: "Gaia16aaa"},
		{name: "unicode dropped", in: "é.foo", want: "foo"},
		{name: "double leading dot", in: "..x", want: "x"},
		{name: "plus and colon kept", in: "PS1:foo+bar", want: "PS1:foo+bar"},
		{name: "empty", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.in); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeOutputAlwaysValid(t *testing.T) {
	inputs := []string{
		".2016-01-09.28_ASASSN-16ad",
		"MASTER OT J1234+5678",
		"weird/../path",
		"#.#.#",
		"\x00\x01ctrl",
		"日本.ASASSN",
		"a\tb\nc",
	}
	for _, in := range inputs {
		got := Sanitize(in)
		if !Valid(got) {
			t.Errorf("Sanitize(%q) = %q contains disallowed characters or a leading dot", in, got)
		}
	}
}

func TestNew(t *testing.T) {
	got := New("ASASSN", "2016-01-09.28_ASASSN-16ad")
	want := "ivo://voevent.4pisky.org/ASASSN#2016-01-09.28_ASASSN-16ad"
	if got != want {
		t.Errorf("New() = %q, want %q", got, want)
	}
	if StreamPrefix("GAIA") != "ivo://voevent.4pisky.org/GAIA#" {
		t.Errorf("StreamPrefix() = %q", StreamPrefix("GAIA"))
	}
}
