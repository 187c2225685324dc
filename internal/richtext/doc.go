// Package richtext implements the document model behind richText fields and
// the transforms the admin controller runs on it. The model is deliberately
// small: a flat sequence of element nodes, each with a stable id and a run
// of formatted leaves. Node ids survive every transform that does not
// destroy the node, which is what lets the frame remap the cursor after a
// reconciliation.
package richtext

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Doc is a rich-text field value.
type Doc struct {
	Nodes []Node `json:"nodes"`
}

// Node is one block-level element of a document.
type Node struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Leaves []Leaf `json:"leaves"`
}

// Leaf is a run of text sharing one set of format marks.
type Leaf struct {
	Text  string   `json:"text"`
	Marks []string `json:"marks,omitempty"`
}

// Format mark names understood by the reference renderer.
const (
	MarkBold   = "bold"
	MarkItalic = "italic"
	MarkDel    = "del"
)

// NewDoc builds a single-paragraph document from plain text.
func NewDoc(text string) Doc {
	return Doc{Nodes: []Node{{
		ID:     NewNodeID(),
		Type:   "paragraph",
		Leaves: []Leaf{{Text: text}},
	}}}
}

// NewNodeID mints a fresh node id.
func NewNodeID() string {
	return "n-" + uuid.NewString()
}

// Text returns the node's concatenated text.
func (n Node) Text() string {
	var b strings.Builder
	for _, l := range n.Leaves {
		b.WriteString(l.Text)
	}
	return b.String()
}

// Len returns the node's text length in bytes.
func (n Node) Len() int {
	total := 0
	for _, l := range n.Leaves {
		total += len(l.Text)
	}
	return total
}

// PlainText returns the document's text with nodes joined by newlines.
func (d Doc) PlainText() string {
	parts := make([]string, len(d.Nodes))
	for i, n := range d.Nodes {
		parts[i] = n.Text()
	}
	return strings.Join(parts, "\n")
}

// NodeIndex returns the position of the node with the given id.
func (d Doc) NodeIndex(id string) (int, error) {
	for i, n := range d.Nodes {
		if n.ID == id {
			return i, nil
		}
	}
	return 0, fmt.Errorf("richtext: no node %q", id)
}

// Node returns the node with the given id.
func (d Doc) Node(id string) (Node, error) {
	i, err := d.NodeIndex(id)
	if err != nil {
		return Node{}, err
	}
	return d.Nodes[i], nil
}

// Clone deep-copies the document so transforms never alias the input.
func (d Doc) Clone() Doc {
	out := Doc{Nodes: make([]Node, len(d.Nodes))}
	for i, n := range d.Nodes {
		cp := n
		cp.Leaves = make([]Leaf, len(n.Leaves))
		for j, l := range n.Leaves {
			lc := l
			lc.Marks = slices.Clone(l.Marks)
			cp.Leaves[j] = lc
		}
		out.Nodes[i] = cp
	}
	return out
}

// normalize merges adjacent leaves with identical marks and drops empty
// leaves, keeping at least one leaf per node so empty paragraphs remain
// addressable.
func (n *Node) normalize() {
	merged := make([]Leaf, 0, len(n.Leaves))
	for _, l := range n.Leaves {
		if l.Text == "" {
			continue
		}
		if len(merged) > 0 && sameMarks(merged[len(merged)-1].Marks, l.Marks) {
			merged[len(merged)-1].Text += l.Text
			continue
		}
		merged = append(merged, l)
	}
	if len(merged) == 0 {
		merged = []Leaf{{Text: ""}}
	}
	n.Leaves = merged
}

func sameMarks(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for _, m := range a {
		if !slices.Contains(b, m) {
			return false
		}
	}
	return true
}
