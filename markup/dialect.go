package markup

import (
	"errors"
	"fmt"
	"strings"
)

// Dialect is the rich-text flavor a deployment renders into. A deployment
// commits to exactly one dialect; the escaping rules of the two are never
// mixed on one output.
type Dialect string

const (
	DialectHTML       Dialect = "html"
	DialectMarkdownV2 Dialect = "markdownv2"
)

var ErrUnknownDialect = errors.New("unknown markup dialect")

const bulletGlyph = "• "

// ParseDialect maps a configuration value onto a Dialect. The empty string
// selects HTML.
func ParseDialect(value string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "html":
		return DialectHTML, nil
	case "markdownv2", "markdown_v2", "mdv2":
		return DialectMarkdownV2, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDialect, value)
	}
}

// syntax is the tag set and escaping rules of one dialect.
type syntax struct {
	openPre, closePre   string
	openCode, closeCode string
	openBold, closeBold string

	escapeText func(r rune) string
	escapeCode func(r rune) string
}

func syntaxFor(d Dialect) (*syntax, error) {
	switch d {
	case DialectHTML:
		return htmlSyntax, nil
	case DialectMarkdownV2:
		return markdownV2Syntax, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, string(d))
	}
}

var htmlSyntax = &syntax{
	openPre:    "<pre>",
	closePre:   "</pre>",
	openCode:   "<code>",
	closeCode:  "</code>",
	openBold:   "<b>",
	closeBold:  "</b>",
	escapeText: escapeHTMLRune,
	escapeCode: escapeHTMLRune,
}

var markdownV2Syntax = &syntax{
	openPre:    "```\n",
	closePre:   "```",
	openCode:   "`",
	closeCode:  "`",
	openBold:   "*",
	closeBold:  "*",
	escapeText: escapeMarkdownV2Rune,
	escapeCode: escapeMarkdownV2CodeRune,
}

func escapeHTMLRune(r rune) string {
	switch r {
	case '&':
		return "&amp;"
	case '<':
		return "&lt;"
	case '>':
		return "&gt;"
	}
	return string(r)
}

func escapeMarkdownV2Rune(r rune) string {
	switch r {
	case '\\', '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
		return "\\" + string(r)
	}
	return string(r)
}

// Inside pre and code entities only the backtick and backslash are reserved.
func escapeMarkdownV2CodeRune(r rune) string {
	if r == '`' || r == '\\' {
		return "\\" + string(r)
	}
	return string(r)
}

// EscapeHTML escapes the characters reserved by Telegram's HTML parse mode.
func EscapeHTML(text string) string {
	return escapeWith(text, escapeHTMLRune)
}

// EscapeMarkdownV2 escapes every character reserved by Telegram's MarkdownV2
// parse mode, for text outside of entities.
func EscapeMarkdownV2(text string) string {
	return escapeWith(text, escapeMarkdownV2Rune)
}

func escapeWith(text string, esc func(rune) string) string {
	var b strings.Builder
	b.Grow(len(text) + 8)
	for _, r := range text {
		b.WriteString(esc(r))
	}
	return b.String()
}
