package telegram

import "testing"

func TestFormatHTML(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Hello there", want: "Hello there"},
		{name: "escape", in: "a < b & c > d", want: "a &lt; b &amp; c &gt; d"},
		{name: "bold", in: "**Hours**: 9-5", want: "<b>Hours</b>: 9-5"},
		{name: "code", in: "run `x<y` now", want: "run <code>x&lt;y</code> now"},
		{name: "code keeps stars", in: "`**raw**`", want: "<code>**raw**</code>"},
		{name: "numbered", in: "1. First\n2. **Second**", want: "<b>1.</b> First\n<b>2.</b> <b>Second</b>"},
		{name: "bullets", in: "- tea\n• coffee", want: "• tea\n• coffee"},
		{name: "heading gets blank line", in: "Menu:\n- tea", want: "Menu:\n\n• tea"},
		{name: "blank lines collapse", in: "a\n\n\n\nb", want: "a\nb"},
		{name: "crlf", in: "a\r\nb\rc", want: "a\nb\nc"},
		{name: "repeated blanks", in: "a    b\t\tc", want: "a b c"},
		{name: "unterminated bold", in: "**open", want: "**open"},
		{name: "trim", in: "  \n hi \n ", want: "hi"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := FormatHTML(tc.in); got != tc.want {
				t.Fatalf("FormatHTML(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
