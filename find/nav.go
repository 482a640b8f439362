// CLAUDE:SUMMARY Keyboard navigation mode: shortcut labels over visible matches and key dispatch.
package find

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/hazyhaar/pagefind/horosafe"
)

// KeyEscape leaves navigation mode.
const KeyEscape = "Escape"

// navState is an active set of navigation shortcuts.
type navState struct {
	action  string
	prefix  string
	entries []navEntry
}

type navEntry struct {
	label string
	text  string
}

// Labels returns count shortcut labels, none a prefix of another: "1" to
// "9", then fixed-width A-Z strings just wide enough for the rest.
func Labels(count int) []string {
	out := make([]string, 0, max(count, 0))
	for i := 0; i < min(count, 9); i++ {
		out = append(out, strconv.Itoa(i+1))
	}
	rest := count - 9
	if rest <= 0 {
		return out
	}
	digits, card := 1, 26
	for card < rest {
		digits++
		card *= 26
	}
	buf := make([]byte, digits)
	for r := 0; r < rest; r++ {
		v := r
		for d := digits - 1; d >= 0; d-- {
			buf[d] = byte('A' + v%26)
			v /= 26
		}
		out = append(out, string(buf))
	}
	return out
}

func (n *navState) exact(s string) (navEntry, bool) {
	for _, e := range n.entries {
		if strings.EqualFold(e.label, s) {
			return e, true
		}
	}
	return navEntry{}, false
}

func (n *navState) isPrefix(s string) bool {
	s = strings.ToUpper(s)
	for _, e := range n.entries {
		if strings.HasPrefix(strings.ToUpper(e.label), s) {
			return true
		}
	}
	return false
}

// startNav labels every match and places a bubble over each visible one in
// its owning frame.
func (i *instance) startNav(ctx context.Context, action string) {
	i.clearNav(ctx)
	if len(i.matches) == 0 {
		i.agent.logger.Debug("navigation shortcuts without matches", "instance", i.id)
		return
	}
	labels := Labels(len(i.matches))
	nav := &navState{action: action, entries: make([]navEntry, len(i.matches))}
	placed := 0
	for k, m := range i.matches {
		nav.entries[k] = navEntry{label: labels[k], text: m.Text}
		p := i.params()
		p.Index, p.Label = m.Index, labels[k]
		raw, err := i.agent.frame.EvaluateInFrame(ctx, m.FrameID, procBubble, p)
		var res okResult
		if err == nil && json.Unmarshal(raw, &res) == nil && res.OK {
			placed++
		}
	}
	i.nav = nav
	i.agent.logger.Debug("navigation shortcuts", "instance", i.id, "labels", len(labels), "placed", placed)
}

func (i *instance) clearNav(ctx context.Context) {
	if i.nav == nil {
		return
	}
	i.nav = nil
	i.agent.frame.EvaluateInAll(ctx, procBubbleClear, i.params())
}

// key feeds one key press to navigation mode. It reports whether the key
// was consumed.
func (i *instance) key(ctx context.Context, key string) bool {
	nav := i.nav
	if nav == nil || key == "" {
		return false
	}
	if key == KeyEscape {
		i.clearNav(ctx)
		return true
	}
	ch := strings.ToUpper(key)
	candidate := nav.prefix + ch
	if e, ok := nav.exact(candidate); ok {
		i.selectEntry(ctx, e)
		return true
	}
	if e, ok := nav.exact(ch); ok {
		i.selectEntry(ctx, e)
		return true
	}
	if nav.isPrefix(candidate) {
		nav.prefix = candidate
		p := i.params()
		p.Prefix = candidate
		i.agent.frame.EvaluateInAll(ctx, procBubblePrefix, p)
		return true
	}
	return false
}

func (i *instance) selectEntry(ctx context.Context, e navEntry) {
	action := i.nav.action
	i.clearNav(ctx)
	i.agent.publish(ctx, Update{
		Action:        ActionNavigationSelected,
		InstanceID:    i.id,
		SearchTerm:    i.term,
		TotalMatches:  len(i.matches),
		CurrentMatch:  i.current + 1,
		HiddenSkipped: i.hidden,
		OpToken:       i.token,
		Selection:     &Selection{Label: e.label, Text: e.text, Action: action},
	})
}

// Key delivers a key press to the navigation shortcuts of instance
// instanceID. It reports whether the key was consumed.
func (a *Agent) Key(ctx context.Context, instanceID, secret, key string) (bool, error) {
	if !horosafe.SecretEqual(a.secret, secret) {
		return false, ErrBadSecret
	}
	inst, err := a.instance(horosafe.SanitizeIdentifier(instanceID, MaxInstanceIDLen, DefaultInstance), false)
	if err != nil {
		return false, err
	}
	var consumed bool
	err = inst.do(ctx, func(ctx context.Context) error {
		consumed = inst.key(ctx, horosafe.SanitizeText(key, 16))
		return nil
	})
	return consumed, err
}
