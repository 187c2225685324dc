package dom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	hydra "github.com/collective/volto-hydra"
)

// Mutations. While a field is in the editable state the inline edit
// controller is the only writer; these methods are the complete mutation
// surface it uses.

func parseFragment(src string) ([]*html.Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(src), ctx)
	if err != nil {
		return nil, fmt.Errorf("dom: parse fragment: %w", err)
	}
	return nodes, nil
}

// ReplaceBlock swaps a block's subtree for freshly rendered markup. The new
// elements have new identities, which is exactly what a reactive re-render
// does; anything holding the old nodes is now pointing at a detached tree.
func (d *Document) ReplaceBlock(uid, rendered string) error {
	nodes, err := parseFragment(rendered)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	old, ok := d.elementByUID(uid)
	if !ok {
		return hydra.Errf(hydra.KindTargetNotFound, "dom.replaceBlock", "block %q", uid)
	}
	parent := old.Parent
	for _, n := range nodes {
		parent.InsertBefore(n, old)
	}
	parent.RemoveChild(old)
	return nil
}

// SetFieldText replaces a field element's content with a single text node.
func (d *Document) SetFieldText(uid, field, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	block, ok := d.elementByUID(uid)
	if !ok {
		return hydra.Errf(hydra.KindTargetNotFound, "dom.setFieldText", "block %q", uid)
	}
	var elem *html.Node
	walk(block, func(n *html.Node) bool {
		if Attr(n, AttrEditableField) == field {
			elem = n
			return false
		}
		return true
	})
	if elem == nil {
		return hydra.Errf(hydra.KindTargetNotFound, "dom.setFieldText", "field %q of block %q", field, uid)
	}
	setText(elem, text)
	return nil
}

// SetNodeText replaces the text of a single rich-text node. This is the one
// optimistic local mutation the edit session permits.
func (d *Document) SetNodeText(nodeID, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.find(func(n *html.Node) bool { return Attr(n, AttrNodeID) == nodeID })
	if !ok {
		return hydra.Errf(hydra.KindTargetNotFound, "dom.setNodeText", "node %q", nodeID)
	}
	setText(n, text)
	return nil
}

func setText(elem *html.Node, text string) {
	for elem.FirstChild != nil {
		elem.RemoveChild(elem.FirstChild)
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if i > 0 {
			elem.AppendChild(&html.Node{Type: html.ElementNode, Data: "br", DataAtom: atom.Br})
		}
		elem.AppendChild(&html.Node{Type: html.TextNode, Data: line})
	}
}

// SetHidden flips the hidden state slider containers use for slides.
func (d *Document) SetHidden(uid string, hidden bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.elementByUID(uid)
	if !ok {
		return hydra.Errf(hydra.KindTargetNotFound, "dom.setHidden", "block %q", uid)
	}
	if hidden {
		SetAttr(n, AttrHidden, "true")
	} else {
		RemoveAttr(n, AttrHidden)
	}
	return nil
}

// SetEditable toggles contenteditable on the exact element carrying the
// field attribute. Ancestors are never made editable; nesting editable
// regions is how cursor handling goes wrong.
func (d *Document) SetEditable(uid, field string, editable bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	block, ok := d.elementByUID(uid)
	if !ok {
		return hydra.Errf(hydra.KindTargetNotFound, "dom.setEditable", "block %q", uid)
	}
	var elem *html.Node
	walk(block, func(n *html.Node) bool {
		if Attr(n, AttrEditableField) == field {
			elem = n
			return false
		}
		return true
	})
	if elem == nil {
		return hydra.Errf(hydra.KindTargetNotFound, "dom.setEditable", "field %q of block %q", field, uid)
	}
	if editable {
		SetAttr(elem, AttrContentEditable, "true")
	} else {
		RemoveAttr(elem, AttrContentEditable)
	}
	return nil
}
