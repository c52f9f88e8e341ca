package markup

import "strings"

// piece is an atom of rendered output: a tag, an escape sequence or a single
// rune. Chunks are only ever cut between pieces.
type piece struct {
	text string

	// closer is set on pieces that open an element and holds the markup
	// that closes it.
	closer string
	// close marks the piece that closes the innermost open element.
	close bool
}

func render(tokens []Token, sx *syntax) []piece {
	var out []piece
	for _, tok := range tokens {
		out = renderToken(out, tok, sx)
	}
	return out
}

func renderToken(out []piece, tok Token, sx *syntax) []piece {
	switch tok.Kind {
	case KindPre:
		out = append(out, piece{text: sx.openPre, closer: sx.closePre})
		out = appendRunes(out, tok.Text, sx.escapeCode)
		out = append(out, piece{text: sx.closePre, close: true})
	case KindCode:
		out = append(out, piece{text: sx.openCode, closer: sx.closeCode})
		out = appendRunes(out, tok.Text, sx.escapeCode)
		out = append(out, piece{text: sx.closeCode, close: true})
	case KindBold:
		out = append(out, piece{text: sx.openBold, closer: sx.closeBold})
		for _, child := range tok.Children {
			out = renderToken(out, child, sx)
		}
		out = append(out, piece{text: sx.closeBold, close: true})
	case KindBullet:
		out = appendRunes(out, bulletGlyph, sx.escapeText)
	default:
		out = appendRunes(out, preserveBlankLines(tok.Text), sx.escapeText)
	}
	return out
}

func appendRunes(out []piece, text string, esc func(rune) string) []piece {
	for _, r := range text {
		out = append(out, piece{text: esc(r)})
	}
	return out
}

// preserveBlankLines puts a space-only line into every empty line, since
// Telegram clients collapse runs of newlines. Applying it twice is a no-op.
func preserveBlankLines(text string) string {
	if !strings.Contains(text, "\n\n") {
		return text
	}

	var b strings.Builder
	b.Grow(len(text) + 8)
	var prev rune
	for _, r := range text {
		if r == '\n' && prev == '\n' {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

func join(pieces []piece) string {
	var b strings.Builder
	for _, p := range pieces {
		b.WriteString(p.text)
	}
	return b.String()
}
