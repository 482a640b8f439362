package framebus

import (
	"time"

	"github.com/hazyhaar/pagefind/dom"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type topologyOp int

const (
	opInsert topologyOp = iota
	opRemove
)

// topologyRecord is one iframe insertion or removal.
type topologyRecord struct {
	op     topologyOp
	iframe *html.Node
}

// debouncer collects records and flushes them once no new record arrived
// for the window.
type debouncer struct {
	window  time.Duration
	records []topologyRecord
	timer   *time.Timer
	timerCh <-chan time.Time
	flushFn func([]topologyRecord)
}

func newDebouncer(window time.Duration, flushFn func([]topologyRecord)) *debouncer {
	if window <= 0 {
		window = 100 * time.Millisecond
	}
	return &debouncer{window: window, flushFn: flushFn}
}

func (d *debouncer) add(rec topologyRecord) {
	d.records = append(d.records, rec)
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.NewTimer(d.window)
	d.timerCh = d.timer.C
}

// timerC fires when the window expires; nil while idle.
func (d *debouncer) timerC() <-chan time.Time {
	return d.timerCh
}

func (d *debouncer) flush() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
		d.timerCh = nil
	}
	if len(d.records) == 0 {
		return
	}
	compressed := compress(d.records)
	d.records = d.records[:0]
	if len(compressed) > 0 {
		d.flushFn(compressed)
	}
}

// compress drops insert/remove pairs of the same iframe, in either order:
// an element that came and went within one window left the topology as it
// was.
func compress(records []topologyRecord) []topologyRecord {
	net := make(map[*html.Node]int, len(records))
	for _, r := range records {
		if r.op == opInsert {
			net[r.iframe]++
		} else {
			net[r.iframe]--
		}
	}
	out := make([]topologyRecord, 0, len(records))
	seen := make(map[*html.Node]bool, len(records))
	for _, r := range records {
		if seen[r.iframe] || net[r.iframe] == 0 {
			continue
		}
		seen[r.iframe] = true
		op := opInsert
		if net[r.iframe] < 0 {
			op = opRemove
		}
		out = append(out, topologyRecord{op: op, iframe: r.iframe})
	}
	return out
}

// observer diffs the set of iframe elements of a document between scans.
type observer struct {
	primed bool
	known  map[*html.Node]bool
	deb    *debouncer
}

func newObserver(window time.Duration, changed func()) *observer {
	return &observer{
		known: make(map[*html.Node]bool),
		deb:   newDebouncer(window, func([]topologyRecord) { changed() }),
	}
}

// scan records iframes added or removed since the previous scan. The first
// scan only primes the set.
func (o *observer) scan(doc *html.Node) {
	current := make(map[*html.Node]bool)
	for _, el := range dom.ByTag(doc, atom.Iframe) {
		current[el] = true
		if o.primed && !o.known[el] {
			o.deb.add(topologyRecord{op: opInsert, iframe: el})
		}
	}
	if o.primed {
		for el := range o.known {
			if !current[el] {
				o.deb.add(topologyRecord{op: opRemove, iframe: el})
			}
		}
	}
	o.known = current
	o.primed = true
}

func (o *observer) timerC() <-chan time.Time { return o.deb.timerC() }

func (o *observer) flush() { o.deb.flush() }
