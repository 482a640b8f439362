package match

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hazyhaar/pagefind/segment"
)

// DefaultContextLength and MaxContextLength bound the context carried with
// each match.
const (
	DefaultContextLength = 30
	MaxContextLength     = 100
)

// Find runs re over every text segment and returns the local matches in
// coordinate order. Empty matches are not recorded.
func Find(re *regexp.Regexp, segs []*segment.Segment, frameID string, contextLen int) []*Match {
	var out []*Match
	for _, s := range segs {
		if s.Kind != segment.Text {
			continue
		}
		// Byte indexes grow monotonically; convert to runes incrementally.
		runeAt, byteAt := 0, 0
		for _, loc := range re.FindAllStringIndex(s.Text, -1) {
			if loc[1] == loc[0] {
				continue
			}
			runeAt += utf8.RuneCountInString(s.Text[byteAt:loc[0]])
			byteAt = loc[0]
			text := s.Text[loc[0]:loc[1]]
			start := runeAt
			end := start + utf8.RuneCountInString(text)
			m := &Match{
				Coordinates: []int{s.Index, start},
				Text:        text,
				Kind:        Local,
				FrameID:     frameID,
				Index:       len(out),
				Start:       start,
				End:         end,
			}
			m.ContextBefore, m.ContextAfter = Context(s, start, end, contextLen)
			out = append(out, m)
		}
	}
	return out
}

// Context returns up to n characters on each side of [start, end) in s,
// with outer whitespace trimmed.
func Context(s *segment.Segment, start, end, n int) (before, after string) {
	if n <= 0 {
		return "", ""
	}
	before = strings.TrimLeftFunc(s.Slice(start-n, start), unicode.IsSpace)
	after = strings.TrimRightFunc(s.Slice(end, end+n), unicode.IsSpace)
	return before, after
}
