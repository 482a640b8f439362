package sink

import (
	"context"
	"html"

	"github.com/hazyhaar/pagefind/find"
	"github.com/microcosm-cc/bluemonday"
)

// Sanitize wraps next so that page-derived text leaves the process with
// every tag stripped. Contexts, selections and the search term are
// cleaned; counts and identifiers pass through.
func Sanitize(next find.Sink) find.Sink {
	p := bluemonday.StrictPolicy()
	clean := func(s string) string {
		if s == "" {
			return s
		}
		// StrictPolicy escapes what it keeps; the payload is JSON, not HTML.
		return html.UnescapeString(p.Sanitize(s))
	}
	return find.SinkFunc(func(ctx context.Context, u find.Update) error {
		u.SearchTerm = clean(u.SearchTerm)
		if len(u.Contexts) > 0 {
			cs := make([]find.MatchContext, len(u.Contexts))
			for i, c := range u.Contexts {
				cs[i] = find.MatchContext{ContextBefore: clean(c.ContextBefore), ContextAfter: clean(c.ContextAfter)}
			}
			u.Contexts = cs
		}
		if u.Selection != nil {
			sel := *u.Selection
			sel.Text = clean(sel.Text)
			u.Selection = &sel
		}
		return next.Publish(ctx, u)
	})
}
