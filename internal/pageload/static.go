package pageload

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/pagefind/horosafe"
)

// LoadFile reads the page at path. Iframe src values are resolved as
// files relative to their embedding document and may not leave the
// directory of path; srcdoc
// documents are used inline. Missing or unsafe targets become unloaded
// iframes.
func LoadFile(path string, logger *slog.Logger) (*Document, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("pageload: %w", err)
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("pageload: read %s: %w", path, err)
	}
	s := &static{base: filepath.Dir(abs), logger: logger}
	return s.build("file://"+abs, s.base, raw, 0)
}

// FromHTML builds a tree from an in-memory page whose iframes only use
// srcdoc. Iframes with src stay unloaded.
func FromHTML(raw []byte) (*Document, error) {
	s := &static{logger: slog.Default()}
	return s.build("about:srcdoc", "", raw, 0)
}

type static struct {
	base   string
	logger *slog.Logger
}

func (s *static) build(name, dir string, raw []byte, depth int) (*Document, error) {
	d := &Document{URL: name, HTML: raw}
	if depth >= MaxDepth {
		return d, nil
	}
	refs, err := iframes(raw)
	if err != nil {
		return nil, fmt.Errorf("pageload: parse %s: %w", name, err)
	}
	d.Children = make([]*Document, len(refs))
	for i, ref := range refs {
		if ref.inline {
			if d.Children[i], err = s.build("about:srcdoc", dir, []byte(ref.srcdoc), depth+1); err != nil {
				return nil, err
			}
			continue
		}
		child, ok := s.open(dir, ref.src)
		if !ok {
			continue
		}
		if d.Children[i], err = s.build("file://"+child.path, filepath.Dir(child.path), child.raw, depth+1); err != nil {
			return nil, err
		}
	}
	return d, nil
}

type file struct {
	path string
	raw  []byte
}

func (s *static) open(dir, src string) (file, bool) {
	if s.base == "" || src == "" || strings.Contains(src, "://") {
		return file{}, false
	}
	rel, err := filepath.Rel(s.base, filepath.Join(dir, src))
	if err != nil {
		return file{}, false
	}
	p, err := horosafe.SafePath(s.base, rel)
	if err != nil {
		s.logger.Warn("pageload: iframe src rejected", "src", src, "error", err)
		return file{}, false
	}
	raw, err := os.ReadFile(p)
	if err != nil {
		s.logger.Debug("pageload: iframe src missing", "src", src, "error", err)
		return file{}, false
	}
	return file{path: p, raw: raw}, true
}
