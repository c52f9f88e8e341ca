package markup

import "strings"

const (
	fenceMarker = "```"
	boldMarker  = "**"
)

type state int

const (
	stateText state = iota
	stateFence
	stateInlineCode
	stateBold
)

// scanner walks markdown-like model output once, left to right.
// A marker only leaves stateText when its closing marker is known to exist,
// so unterminated constructs stay literal text.
type scanner struct {
	src   string
	pos   int
	state state

	// bounds of the construct being entered, set when leaving stateText
	contentStart int
	contentEnd   int
	next         int

	text strings.Builder
	out  []Token
}

// Scan splits src into tokens. At a single position a fence wins over inline
// code, which wins over bold. Content consumed by a code span is never
// re-scanned. CRLF line endings are read as "\n".
func Scan(src string) []Token {
	s := &scanner{src: strings.ReplaceAll(src, "\r\n", "\n")}
	s.run()
	return s.out
}

func (s *scanner) run() {
	for s.pos < len(s.src) {
		switch s.state {
		case stateText:
			s.scanText()
		case stateFence:
			s.emit(Token{Kind: KindPre, Text: s.content()})
		case stateInlineCode:
			s.emit(Token{Kind: KindCode, Text: s.content()})
		case stateBold:
			s.emit(Token{Kind: KindBold, Children: scanInline(s.content())})
		}
	}
	s.flush()
}

func (s *scanner) scanText() {
	src := s.src
	i := s.pos

	if strings.HasPrefix(src[i:], fenceMarker) {
		if start, end, ok := matchFence(src, i); ok {
			s.enter(stateFence, start, end, end+len(fenceMarker))
			return
		}
		// An unterminated fence stays literal as a whole run, so none of
		// its backticks can open an inline code span.
		run := backtickRun(src, i)
		s.text.WriteString(src[i : i+run])
		s.pos += run
		return
	}

	if src[i] == '`' {
		if end, ok := matchInlineCode(src, i); ok {
			s.enter(stateInlineCode, i+1, end, end+1)
			return
		}
	}

	if strings.HasPrefix(src[i:], boldMarker) {
		if end, ok := matchBold(src, i); ok {
			s.enter(stateBold, i+len(boldMarker), end, end+len(boldMarker))
			return
		}
	}

	if src[i] == '*' && (i == 0 || src[i-1] == '\n') {
		if next, ok := matchBullet(src, i); ok {
			s.flush()
			s.out = append(s.out, Token{Kind: KindBullet})
			s.pos = next
			return
		}
	}

	s.text.WriteByte(src[i])
	s.pos++
}

func (s *scanner) enter(st state, start, end, next int) {
	s.flush()
	s.state = st
	s.contentStart = start
	s.contentEnd = end
	s.next = next
}

func (s *scanner) content() string {
	return s.src[s.contentStart:s.contentEnd]
}

func (s *scanner) emit(tok Token) {
	s.out = append(s.out, tok)
	s.pos = s.next
	s.state = stateText
}

func (s *scanner) flush() {
	if s.text.Len() == 0 {
		return
	}
	s.out = append(s.out, Token{Kind: KindText, Text: s.text.String()})
	s.text.Reset()
}

// scanInline tokenizes bold content, where only inline code is recognized.
func scanInline(src string) []Token {
	var (
		out  []Token
		text strings.Builder
	)
	for i := 0; i < len(src); {
		if src[i] == '`' {
			if end, ok := matchInlineCode(src, i); ok {
				if text.Len() > 0 {
					out = append(out, Token{Kind: KindText, Text: text.String()})
					text.Reset()
				}
				out = append(out, Token{Kind: KindCode, Text: src[i+1 : end]})
				i = end + 1
				continue
			}
		}
		text.WriteByte(src[i])
		i++
	}
	if text.Len() > 0 {
		out = append(out, Token{Kind: KindText, Text: text.String()})
	}
	return out
}

// matchFence reports the content bounds of a fenced block opening at i.
// A language word directly followed by a newline is dropped from the content.
// The content may be empty.
func matchFence(src string, i int) (start, end int, ok bool) {
	start = i + len(fenceMarker)
	j := start
	for j < len(src) && isWordByte(src[j]) {
		j++
	}
	if j < len(src) && src[j] == '\n' {
		start = j + 1
	}

	k := strings.Index(src[start:], fenceMarker)
	if k < 0 {
		return 0, 0, false
	}
	return start, start + k, true
}

// matchInlineCode returns the index of the backtick closing the span at i.
func matchInlineCode(src string, i int) (int, bool) {
	k := strings.IndexByte(src[i+1:], '`')
	if k <= 0 {
		return 0, false
	}
	return i + 1 + k, true
}

// matchBold returns the index of the "**" closing the span at i. Bold stays on
// one line, never crosses a fence and skips over inline code.
func matchBold(src string, i int) (int, bool) {
	start := i + len(boldMarker)
	for j := start; j < len(src); {
		switch {
		case src[j] == '\n':
			return 0, false
		case strings.HasPrefix(src[j:], fenceMarker):
			return 0, false
		case src[j] == '`':
			if end, ok := matchInlineCode(src, j); ok && !strings.Contains(src[j:end], "\n") {
				j = end + 1
				continue
			}
		case strings.HasPrefix(src[j:], boldMarker) && j > start:
			return j, true
		}
		j++
	}
	return 0, false
}

func backtickRun(src string, i int) int {
	n := 0
	for i+n < len(src) && src[i+n] == '`' {
		n++
	}
	return n
}

// matchBullet returns where the item text of a "* item" line begins.
func matchBullet(src string, i int) (int, bool) {
	j := i + 1
	for j < len(src) && (src[j] == ' ' || src[j] == '\t') {
		j++
	}
	if j == i+1 || j >= len(src) || src[j] == '\n' || src[j] == '\r' {
		return 0, false
	}
	return j, true
}

func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}
