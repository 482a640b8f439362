package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// Style returns the value of CSS property prop from the inline style
// attribute, lower-cased and trimmed. Later declarations win.
func Style(n *html.Node, prop string) string {
	val := ""
	for _, decl := range strings.Split(Attr(n, "style"), ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(k), prop) {
			v = strings.TrimSpace(v)
			v = strings.TrimSuffix(v, "!important")
			val = strings.ToLower(strings.TrimSpace(v))
		}
	}
	return val
}

// SetStyle sets (or, with an empty value, removes) one inline property while
// preserving the others in order.
func SetStyle(n *html.Node, prop, val string) {
	var out []string
	found := false
	for _, decl := range strings.Split(Attr(n, "style"), ";") {
		if strings.TrimSpace(decl) == "" {
			continue
		}
		k, _, ok := strings.Cut(decl, ":")
		if ok && strings.EqualFold(strings.TrimSpace(k), prop) {
			if !found && val != "" {
				out = append(out, prop+": "+val)
			}
			found = true
			continue
		}
		out = append(out, strings.TrimSpace(decl))
	}
	if !found && val != "" {
		out = append(out, prop+": "+val)
	}
	if len(out) == 0 {
		RemoveAttr(n, "style")
		return
	}
	SetAttr(n, "style", strings.Join(out, "; "))
}
