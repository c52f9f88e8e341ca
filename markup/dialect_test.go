package markup

import (
	"errors"
	"testing"
)

func TestParseDialect(t *testing.T) {
	tests := []struct {
		in   string
		want Dialect
	}{
		{"", DialectHTML},
		{"html", DialectHTML},
		{" HTML ", DialectHTML},
		{"MarkdownV2", DialectMarkdownV2},
		{"markdown_v2", DialectMarkdownV2},
	}
	for _, tc := range tests {
		got, err := ParseDialect(tc.in)
		if err != nil {
			t.Fatalf("ParseDialect(%q) error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseDialect(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseDialect_Unknown(t *testing.T) {
	_, err := ParseDialect("markdown")
	if !errors.Is(err, ErrUnknownDialect) {
		t.Fatalf("got %v, want ErrUnknownDialect", err)
	}
}

func TestEscapeHTML(t *testing.T) {
	got := EscapeHTML(`a < b && c > "d"`)
	want := `a &lt; b &amp;&amp; c &gt; "d"`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEscapeMarkdownV2_PlainText(t *testing.T) {
	got := EscapeMarkdownV2("hello world")
	if got != "hello world" {
		t.Errorf("got %q, want %q", got, "hello world")
	}
}

func TestEscapeMarkdownV2_Empty(t *testing.T) {
	if got := EscapeMarkdownV2(""); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestEscapeMarkdownV2_SpecialChars(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"_", "\\_"},
		{"*", "\\*"},
		{"[", "\\["},
		{"]", "\\]"},
		{"(", "\\("},
		{")", "\\)"},
		{"~", "\\~"},
		{"`", "\\`"},
		{">", "\\>"},
		{"#", "\\#"},
		{"+", "\\+"},
		{"-", "\\-"},
		{"=", "\\="},
		{"|", "\\|"},
		{"{", "\\{"},
		{"}", "\\}"},
		{".", "\\."},
		{"!", "\\!"},
		{`\`, `\\`},
	}
	for _, tc := range tests {
		got := EscapeMarkdownV2(tc.in)
		if got != tc.want {
			t.Errorf("EscapeMarkdownV2(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEscapeMarkdownV2_MixedText(t *testing.T) {
	got := EscapeMarkdownV2("hello_world! version 2.0")
	want := `hello\_world\! version 2\.0`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEscapeMarkdownV2_NumberedList(t *testing.T) {
	got := EscapeMarkdownV2("1. first\n2. second")
	want := "1\\. first\n2\\. second"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
