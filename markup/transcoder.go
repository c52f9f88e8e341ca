// Package markup converts markdown-like model output into one of Telegram's
// rich-text dialects and cuts the result into message-sized chunks.
package markup

import (
	"fmt"
	"strings"
)

// DefaultLimit is Telegram's maximum message length.
const DefaultLimit = 4096

// MinLimit leaves room for the longest reopen/close tag pair plus content.
const MinLimit = 64

type Transcoder struct {
	dialect Dialect
	syntax  *syntax
	limit   int

	tags *strings.Replacer
}

// NewTranscoder builds a transcoder for one dialect. A non-positive limit
// selects DefaultLimit.
func NewTranscoder(dialect Dialect, limit int) (*Transcoder, error) {
	sx, err := syntaxFor(dialect)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit < MinLimit {
		return nil, fmt.Errorf("chunk limit %d is below the minimum of %d", limit, MinLimit)
	}

	return &Transcoder{
		dialect: dialect,
		syntax:  sx,
		limit:   limit,
		tags: strings.NewReplacer(
			sx.openPre, "", sx.closePre, "",
			sx.openCode, "", sx.closeCode, "",
			sx.openBold, "", sx.closeBold, "",
		),
	}, nil
}

func (t *Transcoder) Dialect() Dialect {
	return t.dialect
}

func (t *Transcoder) Limit() int {
	return t.limit
}

// Render converts raw into the transcoder's dialect without chunking.
func (t *Transcoder) Render(raw string) string {
	return join(render(Scan(raw), t.syntax))
}

// Transcode converts raw and splits it into chunks of at most Limit UTF-16
// code units.
// Empty input yields no chunks.
func (t *Transcoder) Transcode(raw string) []string {
	return split(render(Scan(raw), t.syntax), t.limit)
}

// Blank reports whether chunk shows nothing but whitespace once its markup
// is removed, as a cut inside a code block can produce.
func (t *Transcoder) Blank(chunk string) bool {
	return strings.TrimSpace(t.tags.Replace(chunk)) == ""
}
