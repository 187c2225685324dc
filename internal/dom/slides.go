package dom

import (
	"golang.org/x/net/html"
)

// Slide describes one child of a single-visible-child container.
type Slide struct {
	UID    string
	Hidden bool
}

// Slides returns the slide blocks of a container in document order. A slide
// is any direct child subtree containing a block uid; its hidden state is
// the wrapper's, since renderers hide the wrapper, not the block.
func (d *Document) Slides(containerUID string) ([]Slide, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	container, ok := d.elementByUID(containerUID)
	if !ok {
		return nil, errNotFound("dom.slides", containerUID)
	}
	var slides []Slide
	for c := container.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if Attr(c, AttrBlockSelector) != "" {
			continue // navigation controls, not slides
		}
		uid := firstBlockUID(c)
		if uid == "" {
			continue
		}
		slides = append(slides, Slide{UID: uid, Hidden: IsHidden(c)})
	}
	return slides, nil
}

// firstBlockUID finds the block uid on n or its first carrying descendant.
func firstBlockUID(n *html.Node) string {
	var uid string
	walk(n, func(el *html.Node) bool {
		if v := Attr(el, AttrBlockUID); v != "" {
			uid = v
			return false
		}
		return true
	})
	return uid
}

// VisibleByUID reports whether the block exists and no ancestor hides it.
func (d *Document) VisibleByUID(uid string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.elementByUID(uid)
	if !ok {
		return false
	}
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type == html.ElementNode && IsHidden(cur) {
			return false
		}
	}
	return true
}

// SelectorTarget returns the data-block-selector value of a control
// element resolved by its position inside a container.
func (d *Document) SelectorTarget(containerUID string, index int) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	container, ok := d.elementByUID(containerUID)
	if !ok {
		return "", errNotFound("dom.selector", containerUID)
	}
	i := 0
	var val string
	walk(container, func(el *html.Node) bool {
		if v := Attr(el, AttrBlockSelector); v != "" {
			if i == index {
				val = v
				return false
			}
			i++
		}
		return true
	})
	if val == "" {
		return "", errNotFound("dom.selector", containerUID)
	}
	return val, nil
}
