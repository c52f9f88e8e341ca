package markup

import "unicode/utf16"

// Split points, best first.
const (
	cutTopNewline = iota
	cutTopSpace
	cutTop
	cutNestedNewline
	cutNested
	cutClasses
)

// split cuts rendered pieces into chunks of at most limit UTF-16 code units,
// the unit Telegram measures message length in.
//
// Cuts are made between elements whenever possible, so concatenating the
// chunks gives back the rendered text. An element that cannot fit into one
// chunk is closed at the end of a chunk and reopened at the start of the next.
func split(pieces []piece, limit int) []string {
	if len(pieces) == 0 {
		return nil
	}

	open := openElements(pieces)

	var chunks []string
	for start := 0; start < len(pieces); {
		prefix := openers(pieces, open[start])
		size := Width(prefix)

		var best, bestSize [cutClasses]int
		for i := range best {
			best[i] = -1
		}

		end := start
		for end < len(pieces) {
			next := size + Width(pieces[end].text)
			if next+Width(closers(pieces, open[end+1])) > limit {
				break
			}
			size = next
			end++
			if class, ok := classify(pieces, open, end); ok {
				best[class] = end
				bestSize[class] = size
			}
		}

		if end == len(pieces) {
			chunks = append(chunks, prefix+join(pieces[start:end]))
			break
		}

		cut := chooseCut(best, bestSize, limit)
		if cut <= start {
			// a single piece wider than the limit
			cut = start + 1
		}
		chunks = append(chunks, prefix+join(pieces[start:cut])+closers(pieces, open[cut]))
		start = cut
	}
	return chunks
}

// Width is the length of s in UTF-16 code units.
func Width(s string) int {
	n := 0
	for _, r := range s {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}

// openElements returns, for every cut position i, the indexes of the opening
// pieces of the elements still open before pieces[i].
func openElements(pieces []piece) [][]int {
	open := make([][]int, len(pieces)+1)
	var stack []int
	for i, p := range pieces {
		open[i] = stack
		switch {
		case p.closer != "":
			next := make([]int, len(stack), len(stack)+1)
			copy(next, stack)
			stack = append(next, i)
		case p.close && len(stack) > 0:
			stack = stack[:len(stack)-1:len(stack)-1]
		}
	}
	open[len(pieces)] = stack
	return open
}

func openers(pieces []piece, open []int) string {
	var s string
	for _, i := range open {
		s += pieces[i].text
	}
	return s
}

func closers(pieces []piece, open []int) string {
	var s string
	for i := len(open) - 1; i >= 0; i-- {
		s += pieces[open[i]].closer
	}
	return s
}

// classify rates cutting right before pieces[cut].
func classify(pieces []piece, open [][]int, cut int) (int, bool) {
	last := pieces[cut-1]
	if len(open[cut]) == 0 {
		switch last.text {
		case "\n":
			return cutTopNewline, true
		case " ":
			return cutTopSpace, true
		}
		return cutTop, true
	}

	// Inside an element only cut between two content pieces so that no
	// empty element is produced on either side.
	if last.closer != "" || last.close || cut >= len(pieces) {
		return 0, false
	}
	if next := pieces[cut]; next.closer != "" || next.close {
		return 0, false
	}
	if last.text == "\n" {
		return cutNestedNewline, true
	}
	return cutNested, true
}

func chooseCut(best, size [cutClasses]int, limit int) int {
	half := limit / 2
	for _, class := range []int{cutTopNewline, cutTopSpace} {
		if best[class] >= 0 && size[class] >= half {
			return best[class]
		}
	}
	if top := max(best[cutTopNewline], best[cutTopSpace], best[cutTop]); top >= 0 {
		return top
	}
	if best[cutNestedNewline] >= 0 && size[cutNestedNewline] >= half {
		return best[cutNestedNewline]
	}
	return max(best[cutNestedNewline], best[cutNested])
}
