// Package chunker splits markdown text into overlapping, bounded segments.
//
// Text is split recursively on the first separator that occurs in it
// (headings, code fences, rules, blank lines, newlines, spaces, and finally
// single characters). Each separator is kept at the start of the piece it
// introduces. Pieces that fit are merged greedily up to the target size, and
// each emitted segment hands its trailing pieces, up to the overlap, to the
// next one. Lengths are counted in runes.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

// markdownSeparators are tried in order; the empty separator splits runes
var markdownSeparators = []string{
	"\n# ",
	"\n## ",
	"\n### ",
	"\n#### ",
	"\n##### ",
	"\n###### ",
	"```\n",
	"\n***\n",
	"\n---\n",
	"\n___\n",
	"\n\n",
	"\n",
	" ",
	"",
}

// Splitter holds the split parameters
type Splitter struct {
	size     int
	overlap  int
	splitter textsplitter.RecursiveCharacter
}

// New validates the parameters and returns a markdown-aware splitter
func New(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	if overlap < 0 || overlap >= size {
		return nil, ErrInvalidOverlap
	}
	return &Splitter{
		size:    size,
		overlap: overlap,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithSeparators(markdownSeparators),
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithLenFunc(utf8.RuneCountInString),
			textsplitter.WithKeepSeparator(true),
		),
	}, nil
}

// Split is shorthand for New(size, overlap) followed by SplitText
func Split(text string, size, overlap int) ([]string, error) {
	s, err := New(size, overlap)
	if err != nil {
		return nil, err
	}
	return s.SplitText(text)
}

// SplitText returns the segments of text. Blank input yields none.
func (s *Splitter) SplitText(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	chunks, err := s.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}

	out := chunks[:0]
	for _, c := range chunks {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out, nil
}
