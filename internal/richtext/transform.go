package richtext

import (
	"fmt"
	"slices"
	"unicode/utf8"

	hydra "github.com/collective/volto-hydra"
)

// Apply runs one transform operation against doc and returns the new
// document. The input document is never mutated. Node ids outside the
// affected range are preserved; a split keeps the original id on the first
// half, a merge keeps the surviving node's id.
func Apply(doc Doc, op hydra.TransformOp, sel hydra.Selection) (Doc, error) {
	out := doc.Clone()
	switch op.Kind {
	case hydra.OpFormat:
		if op.Format == "" {
			return Doc{}, fmt.Errorf("richtext: format op without format name")
		}
		return toggleFormat(out, sel, op.Format)
	case hydra.OpInsertText:
		return insertText(out, sel, op.Text)
	case hydra.OpSplit:
		return splitNode(out, sel)
	case hydra.OpMerge:
		return mergeNode(out, sel)
	default:
		return Doc{}, fmt.Errorf("richtext: unknown op kind %q", op.Kind)
	}
}

// ordered returns the selection endpoints in document order.
func ordered(doc Doc, sel hydra.Selection) (start, end hydra.SelPoint, err error) {
	ai, err := doc.NodeIndex(sel.Anchor.NodeID)
	if err != nil {
		return start, end, err
	}
	fi, err := doc.NodeIndex(sel.Focus.NodeID)
	if err != nil {
		return start, end, err
	}
	if ai < fi || (ai == fi && sel.Anchor.Offset <= sel.Focus.Offset) {
		return sel.Anchor, sel.Focus, nil
	}
	return sel.Focus, sel.Anchor, nil
}

func toggleFormat(doc Doc, sel hydra.Selection, mark string) (Doc, error) {
	start, end, err := ordered(doc, sel)
	if err != nil {
		return Doc{}, err
	}
	si, _ := doc.NodeIndex(start.NodeID)
	ei, _ := doc.NodeIndex(end.NodeID)

	// The toggle direction follows the whole range: only when every
	// selected character already carries the mark is it removed.
	everyMarked := true
	for i := si; i <= ei; i++ {
		from, to := rangeWithin(doc.Nodes[i], i, si, ei, start.Offset, end.Offset)
		if from == to {
			continue
		}
		if !nodeRangeMarked(doc.Nodes[i], from, to, mark) {
			everyMarked = false
			break
		}
	}

	for i := si; i <= ei; i++ {
		from, to := rangeWithin(doc.Nodes[i], i, si, ei, start.Offset, end.Offset)
		if from == to {
			continue
		}
		applyMarkRange(&doc.Nodes[i], from, to, mark, !everyMarked)
	}
	return doc, nil
}

// rangeWithin clamps the selection to the node at index i.
func rangeWithin(n Node, i, si, ei, startOff, endOff int) (int, int) {
	from, to := 0, n.Len()
	if i == si {
		from = min(startOff, n.Len())
	}
	if i == ei {
		to = min(endOff, n.Len())
	}
	if from > to {
		from = to
	}
	return from, to
}

func nodeRangeMarked(n Node, from, to int, mark string) bool {
	pos := 0
	for _, l := range n.Leaves {
		next := pos + len(l.Text)
		if next > from && pos < to && len(l.Text) > 0 {
			if !slices.Contains(l.Marks, mark) {
				return false
			}
		}
		pos = next
	}
	return true
}

func applyMarkRange(n *Node, from, to int, mark string, add bool) {
	var out []Leaf
	pos := 0
	for _, l := range n.Leaves {
		next := pos + len(l.Text)
		switch {
		case next <= from || pos >= to:
			out = append(out, l)
		default:
			lo := max(from, pos)
			hi := min(to, next)
			if lo > pos {
				out = append(out, Leaf{Text: l.Text[:lo-pos], Marks: slices.Clone(l.Marks)})
			}
			mid := Leaf{Text: l.Text[lo-pos : hi-pos], Marks: slices.Clone(l.Marks)}
			if add && !slices.Contains(mid.Marks, mark) {
				mid.Marks = append(mid.Marks, mark)
			}
			if !add {
				mid.Marks = slices.DeleteFunc(mid.Marks, func(m string) bool { return m == mark })
			}
			out = append(out, mid)
			if hi < next {
				out = append(out, Leaf{Text: l.Text[hi-pos:], Marks: slices.Clone(l.Marks)})
			}
		}
		pos = next
	}
	n.Leaves = out
	n.normalize()
}

func insertText(doc Doc, sel hydra.Selection, text string) (Doc, error) {
	if !sel.Collapsed() {
		return Doc{}, fmt.Errorf("richtext: insertText requires a collapsed selection")
	}
	i, err := doc.NodeIndex(sel.Anchor.NodeID)
	if err != nil {
		return Doc{}, err
	}
	n := &doc.Nodes[i]
	off := min(sel.Anchor.Offset, n.Len())
	pos := 0
	for li := range n.Leaves {
		l := &n.Leaves[li]
		next := pos + len(l.Text)
		if off <= next {
			at := off - pos
			l.Text = l.Text[:at] + text + l.Text[at:]
			n.normalize()
			return doc, nil
		}
		pos = next
	}
	// Empty node: single empty leaf.
	n.Leaves = []Leaf{{Text: text}}
	return doc, nil
}

// splitNode splits the cursor's node in two. The first half keeps the node
// id so remapped cursors in earlier text stay valid; the second half gets a
// fresh id.
func splitNode(doc Doc, sel hydra.Selection) (Doc, error) {
	if !sel.Collapsed() {
		return Doc{}, fmt.Errorf("richtext: split requires a collapsed selection")
	}
	i, err := doc.NodeIndex(sel.Anchor.NodeID)
	if err != nil {
		return Doc{}, err
	}
	n := doc.Nodes[i]
	off := min(sel.Anchor.Offset, n.Len())

	head := Node{ID: n.ID, Type: n.Type}
	tail := Node{ID: NewNodeID(), Type: n.Type}
	pos := 0
	for _, l := range n.Leaves {
		next := pos + len(l.Text)
		switch {
		case next <= off:
			head.Leaves = append(head.Leaves, l)
		case pos >= off:
			tail.Leaves = append(tail.Leaves, l)
		default:
			at := off - pos
			head.Leaves = append(head.Leaves, Leaf{Text: l.Text[:at], Marks: slices.Clone(l.Marks)})
			tail.Leaves = append(tail.Leaves, Leaf{Text: l.Text[at:], Marks: slices.Clone(l.Marks)})
		}
		pos = next
	}
	head.normalize()
	tail.normalize()

	doc.Nodes = slices.Insert(doc.Nodes, i+1, tail)
	doc.Nodes[i] = head
	return doc, nil
}

// mergeNode joins the cursor's node into its predecessor, as a Delete at
// the node boundary does. The predecessor keeps its id.
func mergeNode(doc Doc, sel hydra.Selection) (Doc, error) {
	i, err := doc.NodeIndex(sel.Anchor.NodeID)
	if err != nil {
		return Doc{}, err
	}
	if i == 0 {
		// Nothing before the first node; merging is a no-op.
		return doc, nil
	}
	prev := &doc.Nodes[i-1]
	prev.Leaves = append(prev.Leaves, doc.Nodes[i].Leaves...)
	prev.normalize()
	doc.Nodes = slices.Delete(doc.Nodes, i, i+1)
	return doc, nil
}

// DeleteBack removes the rune before a collapsed cursor inside a single
// node and returns its byte width so the caller can move the cursor. It
// never crosses a node boundary; a cursor at offset 0 is the merge case
// and belongs to the document engine.
func DeleteBack(doc Doc, sel hydra.Selection) (Doc, int, error) {
	if !sel.Collapsed() {
		return Doc{}, 0, fmt.Errorf("richtext: deleteBack requires a collapsed selection")
	}
	if sel.Anchor.Offset == 0 {
		return Doc{}, 0, fmt.Errorf("richtext: deleteBack at node start crosses a boundary")
	}
	out := doc.Clone()
	i, err := out.NodeIndex(sel.Anchor.NodeID)
	if err != nil {
		return Doc{}, 0, err
	}
	n := &out.Nodes[i]
	off := min(sel.Anchor.Offset, n.Len())
	pos := 0
	for li := range n.Leaves {
		l := &n.Leaves[li]
		next := pos + len(l.Text)
		if off <= next {
			at := off - pos
			_, width := utf8.DecodeLastRuneInString(l.Text[:at])
			l.Text = l.Text[:at-width] + l.Text[at:]
			n.normalize()
			return out, width, nil
		}
		pos = next
	}
	return out, 0, nil
}
