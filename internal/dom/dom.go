// Package dom maintains the frame bridge's mirror of the rendered page. It
// wraps an x/net/html tree with the lookups the bridge needs (blocks by
// data-block-uid, fields by data-editable-field, rich-text nodes by
// data-node-id), a deterministic layout pass producing per-block geometry,
// and geometry observers that are re-resolved by uid on every pass so a
// re-render that replaces the underlying node never silences them.
package dom

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	hydra "github.com/collective/volto-hydra"
)

// Data attributes of the renderer contract.
const (
	AttrBlockUID      = "data-block-uid"
	AttrEditableField = "data-editable-field"
	AttrNodeID        = "data-node-id"
	AttrMediaField    = "data-media-field"
	AttrLinkableField = "data-linkable-field"
	AttrBlockAdd      = "data-block-add"
	AttrBlockSelector = "data-block-selector"
	AttrBlockField    = "data-block-field"
	AttrLayout        = "data-layout"
	AttrHidden        = "data-hidden"
	AttrHeight        = "data-height"

	AttrContentEditable = "contenteditable"
)

// Document is the frame's live DOM mirror. All access goes through the
// document so the single-writer rule of the edit session holds.
type Document struct {
	mu       sync.RWMutex
	root     *html.Node
	viewport float64

	rects     map[*html.Node]hydra.Rect
	lastRects map[string]hydra.Rect

	observers map[int]*geometryObserver
	nextObs   int
}

type geometryObserver struct {
	uid string
	fn  func(hydra.Rect)
}

// Parse builds a document from rendered HTML. viewport is the layout width.
func Parse(src string, viewport float64) (*Document, error) {
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	return &Document{
		root:      root,
		viewport:  viewport,
		rects:     make(map[*html.Node]hydra.Rect),
		lastRects: make(map[string]hydra.Rect),
		observers: make(map[int]*geometryObserver),
	}, nil
}

// SetHTML replaces the whole tree, as a full re-render does. Every element
// gets a new identity; observers survive because they are keyed by uid.
func (d *Document) SetHTML(src string) error {
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return fmt.Errorf("dom: parse: %w", err)
	}
	d.mu.Lock()
	d.root = root
	d.rects = make(map[*html.Node]hydra.Rect)
	d.mu.Unlock()
	return nil
}

func errNotFound(op, uid string) error {
	return hydra.Errf(hydra.KindTargetNotFound, op, "block %q", uid)
}

// Attr returns the value of an attribute, or "".
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// SetAttr sets or replaces an attribute.
func SetAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr deletes an attribute if present.
func RemoveAttr(n *html.Node, key string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// walk visits every element node under n until fn returns false.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if n.Type == html.ElementNode {
		if !fn(n) {
			return false
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

func (d *Document) find(match func(*html.Node) bool) (*html.Node, bool) {
	var found *html.Node
	walk(d.root, func(n *html.Node) bool {
		if match(n) {
			found = n
			return false
		}
		return true
	})
	return found, found != nil
}

// ElementByUID resolves a block's root element.
func (d *Document) ElementByUID(uid string) (*html.Node, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.elementByUID(uid)
}

func (d *Document) elementByUID(uid string) (*html.Node, bool) {
	return d.find(func(n *html.Node) bool { return Attr(n, AttrBlockUID) == uid })
}

// FieldElement resolves the editable element for a field within a block.
func (d *Document) FieldElement(uid, field string) (*html.Node, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	block, ok := d.elementByUID(uid)
	if !ok {
		return nil, false
	}
	var found *html.Node
	walk(block, func(n *html.Node) bool {
		if Attr(n, AttrEditableField) == field {
			found = n
			return false
		}
		return true
	})
	return found, found != nil
}

// NodeByID resolves a rich-text node by its data-node-id.
func (d *Document) NodeByID(nodeID string) (*html.Node, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.find(func(n *html.Node) bool { return Attr(n, AttrNodeID) == nodeID })
}

// InnerText returns the concatenated text content of n, with <br> elements
// contributing newlines.
func InnerText(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Br {
			b.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return b.String()
}

// IsHidden reports the hidden state used by single-visible-child containers.
func IsHidden(n *html.Node) bool {
	return Attr(n, AttrHidden) == "true"
}

// BlockChildren returns the block uids under each direct element child of
// container, in document order. Renderers may wrap child blocks in plain
// divs, so each child subtree is searched for its first uid.
func BlockChildren(container *html.Node) []string {
	var uids []string
	for c := container.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if uid := firstBlockUID(c); uid != "" {
			uids = append(uids, uid)
		}
	}
	return uids
}

// ContainerElement resolves a container uid to its element. The empty uid
// is the page root, the body element.
func (d *Document) ContainerElement(uid string) (*html.Node, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if uid == "" {
		body := findBody(d.root)
		return body, body != nil
	}
	return d.elementByUID(uid)
}

// PrevSiblingUID returns the uid of the block immediately before uid in
// its container, or "" when it is the first. Wrapper divs between the
// container and its blocks are transparent.
func (d *Document) PrevSiblingUID(uid string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.elementByUID(uid)
	if !ok {
		return "", hydra.Errf(hydra.KindTargetNotFound, "dom.prevSibling", "block %q", uid)
	}
	// Climb to the container's direct child holding this block.
	top := n
	for top.Parent != nil && top.Parent.Type == html.ElementNode &&
		Attr(top.Parent, AttrBlockUID) == "" && top.Parent.DataAtom != atom.Body {
		top = top.Parent
	}
	for s := top.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type != html.ElementNode {
			continue
		}
		if v := firstBlockUID(s); v != "" {
			return v, nil
		}
	}
	return "", nil
}

// ParentBlockUID returns the uid of the nearest ancestor block element.
func (d *Document) ParentBlockUID(uid string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.elementByUID(uid)
	if !ok {
		return "", hydra.Errf(hydra.KindTargetNotFound, "dom.parentBlock", "block %q", uid)
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && Attr(p, AttrBlockUID) != "" {
			return Attr(p, AttrBlockUID), nil
		}
	}
	return "", nil
}
