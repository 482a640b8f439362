// Package match holds the coordinate model of find results: integer paths
// that order matches across frame boundaries.
package match

import (
	"slices"

	"golang.org/x/net/html"
)

// Kind tells whether a match lives in the frame holding the list.
type Kind string

const (
	Local  Kind = "local"
	Remote Kind = "remote"
)

// Match is one occurrence of the search term.
//
// Coordinates are [segmentIndex, offset] in the owning frame, reprojected
// with the root path of that frame once merged into a remote list. Index is
// the match's position in the owning frame's local list, the handle used to
// address it there.
type Match struct {
	Coordinates   []int  `json:"coordinates"`
	Text          string `json:"text"`
	Kind          Kind   `json:"kind"`
	FrameID       string `json:"frameId,omitempty"`
	Index         int    `json:"index"`
	Start         int    `json:"start"`
	End           int    `json:"end"`
	ContextBefore string `json:"contextBefore,omitempty"`
	ContextAfter  string `json:"contextAfter,omitempty"`

	// Set by the highlighter in the owning frame only.
	Highlights []*html.Node `json:"-"`
	Revealers  []*html.Node `json:"-"`
}

// Compare orders coordinate paths lexicographically; on a shared prefix the
// shorter path comes first.
func Compare(a, b []int) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// Sort orders ms by coordinates. Equal paths keep their input order, so
// callers that append local matches before remote ones get local first.
func Sort(ms []*Match) {
	slices.SortStableFunc(ms, func(a, b *Match) int {
		return Compare(a.Coordinates, b.Coordinates)
	})
}

// Reproject prefixes local coordinates with a frame's root path.
func Reproject(path, local []int) []int {
	out := make([]int, 0, len(path)+len(local))
	out = append(out, path...)
	return append(out, local...)
}

// Strip removes prefix from coords. It reports false when coords does not
// start with prefix.
func Strip(prefix, coords []int) ([]int, bool) {
	if len(coords) < len(prefix) || !slices.Equal(prefix, coords[:len(prefix)]) {
		return nil, false
	}
	return slices.Clone(coords[len(prefix):]), true
}

// Identifier names a match stably across updates.
type Identifier struct {
	Index       int    `json:"index"`
	Coordinates []int  `json:"coordinates"`
	Text        string `json:"text"`
}

// ID returns the identifier of m at position i of its list.
func (m *Match) ID(i int) Identifier {
	return Identifier{Index: i, Coordinates: slices.Clone(m.Coordinates), Text: m.Text}
}

// Lookup returns the position of the match with id's coordinates and text,
// or -1. The index in id is not trusted.
func Lookup(ms []*Match, id Identifier) int {
	for i, m := range ms {
		if m.Text == id.Text && slices.Equal(m.Coordinates, id.Coordinates) {
			return i
		}
	}
	return -1
}

// StartIndex returns the first match at or after coordinates at, wrapping to
// 0 when every match precedes it.
func StartIndex(ms []*Match, at []int) int {
	for i, m := range ms {
		if Compare(m.Coordinates, at) >= 0 {
			return i
		}
	}
	return 0
}
