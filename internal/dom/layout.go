package dom

import (
	"strconv"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	hydra "github.com/collective/volto-hydra"
)

// defaultBlockHeight is the height assigned to leaf elements without an
// explicit data-height. The layout model only has to be deterministic, not
// faithful: stacked containers sum child heights, row containers split the
// width and take the tallest child.
const defaultBlockHeight = 40.0

// Layout recomputes every element rectangle and fires geometry observers
// whose block moved or resized since the last pass. One call is one
// observation tick. Observers are resolved by uid during the pass, so an
// element replaced since they were attached is picked up fresh.
func (d *Document) Layout() {
	d.mu.Lock()
	d.rects = make(map[*html.Node]hydra.Rect)
	if body := findBody(d.root); body != nil {
		d.layoutNode(body, 0, 0, d.viewport)
	}

	type firing struct {
		fn   func(hydra.Rect)
		rect hydra.Rect
	}
	var fires []firing
	for _, obs := range d.observers {
		n, ok := d.elementByUID(obs.uid)
		if !ok {
			continue
		}
		rect, ok := d.rects[n]
		if !ok {
			continue
		}
		if last, seen := d.lastRects[obs.uid]; !seen || last != rect {
			d.lastRects[obs.uid] = rect
			fires = append(fires, firing{obs.fn, rect})
		}
	}
	d.mu.Unlock()

	// Callbacks run outside the lock; they are allowed to read the
	// document again.
	for _, f := range fires {
		f.fn(f.rect)
	}
}

func findBody(root *html.Node) *html.Node {
	var body *html.Node
	walk(root, func(n *html.Node) bool {
		if n.DataAtom == atom.Body {
			body = n
			return false
		}
		return true
	})
	return body
}

// layoutNode assigns n's rectangle and returns its height.
func (d *Document) layoutNode(n *html.Node, x, y, w float64) float64 {
	if IsHidden(n) {
		d.rects[n] = hydra.Rect{Top: y, Left: x}
		return 0
	}

	var children []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			children = append(children, c)
		}
	}

	var h float64
	switch {
	case len(children) == 0:
		h = leafHeight(n)
	case Attr(n, AttrLayout) == "row":
		cw := w / float64(len(children))
		cx := x
		for _, c := range children {
			ch := d.layoutNode(c, cx, y, cw)
			if ch > h {
				h = ch
			}
			cx += cw
		}
	default:
		cy := y
		for _, c := range children {
			cy += d.layoutNode(c, x, cy, w)
		}
		h = cy - y
	}

	d.rects[n] = hydra.Rect{Top: y, Left: x, Width: w, Height: h}
	return h
}

func leafHeight(n *html.Node) float64 {
	if v := Attr(n, AttrHeight); v != "" {
		if h, err := strconv.ParseFloat(v, 64); err == nil {
			return h
		}
	}
	return defaultBlockHeight
}

// RectOf returns the rect computed for a block in the last layout pass.
func (d *Document) RectOf(uid string) (hydra.Rect, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.elementByUID(uid)
	if !ok {
		return hydra.Rect{}, false
	}
	rect, ok := d.rects[n]
	return rect, ok
}

// ObserveGeometry registers fn for the block's geometry changes. The
// returned cancel detaches it. Attach-on-mount, detach-on-unmount: the
// observer holds the uid, never the element, and is re-evaluated every
// layout pass.
func (d *Document) ObserveGeometry(uid string, fn func(hydra.Rect)) (cancel func()) {
	d.mu.Lock()
	id := d.nextObs
	d.nextObs++
	d.observers[id] = &geometryObserver{uid: uid, fn: fn}
	delete(d.lastRects, uid)
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.observers, id)
		d.mu.Unlock()
	}
}
