package richtext

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"

	hydra "github.com/collective/volto-hydra"
)

// RenderHTML renders the document with the data-node-id attributes the
// frame's cursor mapping depends on.
func RenderHTML(d Doc) string {
	var b strings.Builder
	for _, n := range d.Nodes {
		fmt.Fprintf(&b, `<p data-node-id="%s">`, html.EscapeString(n.ID))
		for _, l := range n.Leaves {
			b.WriteString(renderLeaf(l))
		}
		b.WriteString("</p>")
	}
	return b.String()
}

var markTags = map[string]string{
	MarkBold:   "strong",
	MarkItalic: "em",
	MarkDel:    "del",
}

func renderLeaf(l Leaf) string {
	out := html.EscapeString(l.Text)
	for _, m := range l.Marks {
		tag, ok := markTags[m]
		if !ok {
			continue
		}
		out = "<" + tag + ">" + out + "</" + tag + ">"
	}
	return out
}

// Decode parses a document from its JSON wire form.
func Decode(raw json.RawMessage) (Doc, error) {
	var d Doc
	if err := json.Unmarshal(raw, &d); err != nil {
		return Doc{}, fmt.Errorf("richtext: decode doc: %w", err)
	}
	return d, nil
}

// Encode serializes a document to its JSON wire form.
func Encode(d Doc) (json.RawMessage, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("richtext: encode doc: %w", err)
	}
	return raw, nil
}

// ClampPoint adjusts a selection point to the document: the offset is
// clamped to the node's current length. The second return is false when the
// node no longer exists and the cursor cannot be restored there.
func ClampPoint(d Doc, p hydra.SelPoint) (hydra.SelPoint, bool) {
	n, err := d.Node(p.NodeID)
	if err != nil {
		return hydra.SelPoint{}, false
	}
	if p.Offset > n.Len() {
		p.Offset = n.Len()
	}
	return p, true
}
