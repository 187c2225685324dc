package richtext

import (
	"testing"
	"unicode/utf8"

	hydra "github.com/collective/volto-hydra"
)

func sel(nodeID string, anchor, focus int) hydra.Selection {
	return hydra.Selection{
		Anchor: hydra.SelPoint{NodeID: nodeID, Offset: anchor},
		Focus:  hydra.SelPoint{NodeID: nodeID, Offset: focus},
	}
}

func caret(nodeID string, off int) hydra.Selection {
	return sel(nodeID, off, off)
}

func TestToggleFormatAddsAndRemoves(t *testing.T) {
	doc := NewDoc("hello world")
	id := doc.Nodes[0].ID

	bolded, err := Apply(doc, hydra.TransformOp{Kind: hydra.OpFormat, Format: MarkBold}, sel(id, 0, 5))
	if err != nil {
		t.Fatalf("Apply format: %v", err)
	}
	if got := bolded.Nodes[0].Leaves; len(got) != 2 {
		t.Fatalf("leaves = %d, want 2 (marked + unmarked)", len(got))
	}
	if bolded.Nodes[0].Leaves[0].Text != "hello" || len(bolded.Nodes[0].Leaves[0].Marks) != 1 {
		t.Errorf("first leaf = %+v, want bold %q", bolded.Nodes[0].Leaves[0], "hello")
	}
	if bolded.PlainText() != "hello world" {
		t.Errorf("text changed by formatting: %q", bolded.PlainText())
	}

	// Toggling the identical range again removes the mark and the leaves
	// merge back.
	plain, err := Apply(bolded, hydra.TransformOp{Kind: hydra.OpFormat, Format: MarkBold}, sel(id, 0, 5))
	if err != nil {
		t.Fatalf("Apply second toggle: %v", err)
	}
	if len(plain.Nodes[0].Leaves) != 1 || len(plain.Nodes[0].Leaves[0].Marks) != 0 {
		t.Errorf("after untoggle leaves = %+v, want one unmarked leaf", plain.Nodes[0].Leaves)
	}
}

func TestToggleFormatPartiallyMarkedRangeAdds(t *testing.T) {
	doc := NewDoc("abcdef")
	id := doc.Nodes[0].ID
	doc, err := Apply(doc, hydra.TransformOp{Kind: hydra.OpFormat, Format: MarkItalic}, sel(id, 0, 3))
	if err != nil {
		t.Fatalf("seed italic: %v", err)
	}

	// Range covers marked and unmarked text, so the toggle extends the mark.
	out, err := Apply(doc, hydra.TransformOp{Kind: hydra.OpFormat, Format: MarkItalic}, sel(id, 0, 6))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out.Nodes[0].Leaves) != 1 {
		t.Fatalf("leaves = %+v, want one fully italic leaf", out.Nodes[0].Leaves)
	}
	if out.Nodes[0].Leaves[0].Marks[0] != MarkItalic {
		t.Errorf("mark = %v, want italic", out.Nodes[0].Leaves[0].Marks)
	}
}

func TestToggleFormatReversedSelection(t *testing.T) {
	doc := NewDoc("hello")
	id := doc.Nodes[0].ID

	// Focus before anchor: the engine must order the endpoints itself.
	backwards := hydra.Selection{
		Anchor: hydra.SelPoint{NodeID: id, Offset: 5},
		Focus:  hydra.SelPoint{NodeID: id, Offset: 0},
	}
	out, err := Apply(doc, hydra.TransformOp{Kind: hydra.OpFormat, Format: MarkBold}, backwards)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out.Nodes[0].Leaves) != 1 || len(out.Nodes[0].Leaves[0].Marks) != 1 {
		t.Errorf("leaves = %+v, want one bold leaf", out.Nodes[0].Leaves)
	}
}

func TestInsertTextAtCursor(t *testing.T) {
	doc := NewDoc("helo")
	id := doc.Nodes[0].ID

	out, err := Apply(doc, hydra.TransformOp{Kind: hydra.OpInsertText, Text: "l"}, caret(id, 3))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.PlainText() != "hello" {
		t.Errorf("text = %q, want %q", out.PlainText(), "hello")
	}
	// The source document is untouched.
	if doc.PlainText() != "helo" {
		t.Errorf("input mutated: %q", doc.PlainText())
	}
}

func TestSplitKeepsOriginalIDOnFirstHalf(t *testing.T) {
	doc := NewDoc("hello world")
	id := doc.Nodes[0].ID

	out, err := Apply(doc, hydra.TransformOp{Kind: hydra.OpSplit}, caret(id, 5))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out.Nodes) != 2 {
		t.Fatalf("nodes = %d, want 2", len(out.Nodes))
	}
	if out.Nodes[0].ID != id {
		t.Errorf("first half id = %s, want original %s", out.Nodes[0].ID, id)
	}
	if out.Nodes[1].ID == id || out.Nodes[1].ID == "" {
		t.Errorf("second half id = %q, want a fresh id", out.Nodes[1].ID)
	}
	if out.Nodes[0].Text() != "hello" || out.Nodes[1].Text() != " world" {
		t.Errorf("split texts = %q / %q", out.Nodes[0].Text(), out.Nodes[1].Text())
	}
}

func TestMergeKeepsSurvivorID(t *testing.T) {
	doc := NewDoc("hello world")
	doc, _ = Apply(doc, hydra.TransformOp{Kind: hydra.OpSplit}, caret(doc.Nodes[0].ID, 5))
	first, second := doc.Nodes[0].ID, doc.Nodes[1].ID

	out, err := Apply(doc, hydra.TransformOp{Kind: hydra.OpMerge}, caret(second, 0))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out.Nodes) != 1 {
		t.Fatalf("nodes = %d, want 1", len(out.Nodes))
	}
	if out.Nodes[0].ID != first {
		t.Errorf("survivor id = %s, want %s", out.Nodes[0].ID, first)
	}
	if out.Nodes[0].Text() != "hello world" {
		t.Errorf("merged text = %q", out.Nodes[0].Text())
	}
}

func TestMergeAtFirstNodeIsNoOp(t *testing.T) {
	doc := NewDoc("only")
	id := doc.Nodes[0].ID
	out, err := Apply(doc, hydra.TransformOp{Kind: hydra.OpMerge}, caret(id, 0))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out.Nodes) != 1 || out.Nodes[0].Text() != "only" {
		t.Errorf("merge at document start changed the document: %+v", out.Nodes)
	}
}

func TestApplyErrors(t *testing.T) {
	doc := NewDoc("hello")
	id := doc.Nodes[0].ID

	tests := []struct {
		name string
		op   hydra.TransformOp
		sel  hydra.Selection
	}{
		{"format without name", hydra.TransformOp{Kind: hydra.OpFormat}, sel(id, 0, 3)},
		{"unknown kind", hydra.TransformOp{Kind: "explode"}, caret(id, 0)},
		{"unknown node", hydra.TransformOp{Kind: hydra.OpSplit}, caret("n-missing", 0)},
		{"split with range", hydra.TransformOp{Kind: hydra.OpSplit}, sel(id, 0, 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Apply(doc, tt.op, tt.sel); err == nil {
				t.Errorf("Apply succeeded, want error")
			}
		})
	}
}

func TestDeleteBack(t *testing.T) {
	doc := NewDoc("hxello")
	id := doc.Nodes[0].ID

	out, width, err := DeleteBack(doc, caret(id, 2))
	if err != nil {
		t.Fatalf("DeleteBack: %v", err)
	}
	if out.PlainText() != "hello" {
		t.Errorf("text = %q, want %q", out.PlainText(), "hello")
	}
	if width != 1 {
		t.Errorf("width = %d, want 1", width)
	}

	// Offset 0 crosses the node boundary; that is the engine's merge case.
	if _, _, err := DeleteBack(doc, caret(id, 0)); err == nil {
		t.Errorf("DeleteBack at offset 0 succeeded, want error")
	}
}

func TestDeleteBackRemovesWholeRune(t *testing.T) {
	doc := NewDoc("café")
	id := doc.Nodes[0].ID

	out, width, err := DeleteBack(doc, caret(id, len("café")))
	if err != nil {
		t.Fatalf("DeleteBack: %v", err)
	}
	if out.PlainText() != "caf" {
		t.Errorf("text = %q, want %q", out.PlainText(), "caf")
	}
	if width != len("é") {
		t.Errorf("width = %d, want %d", width, len("é"))
	}
	if !utf8.ValidString(out.PlainText()) {
		t.Errorf("text %q is not valid UTF-8", out.PlainText())
	}
}

func TestNormalizeMergesSameMarkLeaves(t *testing.T) {
	doc := NewDoc("abcd")
	id := doc.Nodes[0].ID

	// Bold bc, then bold remove over the same range leaves abcd as a single
	// leaf again; repeated splits must not accumulate fragments.
	step1, _ := Apply(doc, hydra.TransformOp{Kind: hydra.OpFormat, Format: MarkBold}, sel(id, 1, 3))
	step2, _ := Apply(step1, hydra.TransformOp{Kind: hydra.OpFormat, Format: MarkBold}, sel(id, 1, 3))
	if len(step2.Nodes[0].Leaves) != 1 {
		t.Errorf("leaves = %+v, want 1 after round trip", step2.Nodes[0].Leaves)
	}
}
