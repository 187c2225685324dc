package frame

import (
	"testing"

	"github.com/stretchr/testify/require"

	hydra "github.com/collective/volto-hydra"
	"github.com/collective/volto-hydra/internal/dom"
)

// structurePage has a stacked root, a row container without explicit add
// hints, and one block carrying an explicit hint that contradicts its
// container.
const structurePage = `<html><body>
<div data-block-uid="b0">first</div>
<div data-block-uid="c1" data-layout="row">
  <div><div data-block-uid="b1">left</div></div>
  <div><div data-block-uid="b2">right</div></div>
</div>
<div data-block-add="right"><div data-block-uid="b3">hinted</div></div>
<div data-block-uid="b4">last</div>
</body></html>`

func newStructure(t *testing.T) (*Structure, *adminStub, *hydra.Loopback) {
	t.Helper()
	router, stub, lb := newFrameRouter(t)
	doc, err := dom.Parse(structurePage, 1000)
	require.NoError(t, err)
	doc.Layout()

	s := NewStructure(doc, router, false)
	s.SetPathMap(hydra.BlockPathMap{
		"b0": {ContainerField: "blocks_layout"},
		"c1": {ContainerField: "blocks_layout"},
		"b3": {ContainerField: "blocks_layout"},
		"b4": {ContainerField: "blocks_layout"},
		"b1": {ParentUID: "c1", ContainerField: "columns"},
		"b2": {ParentUID: "c1", ContainerField: "columns"},
	})
	return s, stub, lb
}

func TestInferDirection(t *testing.T) {
	s, _, _ := newStructure(t)

	tests := []struct {
		name   string
		target string
		want   hydra.AddDirection
	}{
		{"stacked container", "b0", hydra.AddBottom},
		{"row container, no explicit hint", "b1", hydra.AddRight},
		{"explicit hint on wrapper wins", "b3", hydra.AddRight},
		{"row container itself sits in the stacked root", "c1", hydra.AddBottom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.InferDirection(tt.target)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	_, err := s.InferDirection("ghost")
	require.True(t, hydra.IsKind(err, hydra.KindTargetNotFound))
}

func TestAddAfterSendsInferredDirection(t *testing.T) {
	s, stub, lb := newStructure(t)

	newUID, err := s.AddAfter("b1", "text")
	require.NoError(t, err)
	require.NotEmpty(t, newUID)
	lb.Settle()

	m, ok := stub.last(hydra.TypeAddBlock)
	require.True(t, ok)
	var add hydra.AddBlock
	require.NoError(t, m.Decode(&add))
	require.Equal(t, "b1", add.TargetUID)
	require.Equal(t, newUID, add.NewUID)
	require.Equal(t, hydra.AddRight, add.Direction, "sibling of a row child goes right")
}

func TestDeleteReturnsSelectionTarget(t *testing.T) {
	s, stub, lb := newStructure(t)

	// Root block with a previous sibling.
	next, err := s.Delete("b4")
	require.NoError(t, err)
	require.Equal(t, "b3", next)

	// First child of a container falls back to the container.
	next, err = s.Delete("b1")
	require.NoError(t, err)
	require.Equal(t, "c1", next)

	// First root block with no parent: nothing to select.
	next, err = s.Delete("b0")
	require.NoError(t, err)
	require.Equal(t, "", next)

	lb.Settle()
	require.Equal(t, 3, stub.count(hydra.TypeDeleteBlock))
}

func TestDragReorderSendsFullOrder(t *testing.T) {
	s, stub, lb := newStructure(t)

	require.NoError(t, s.StartDrag("b1"))

	// Hover after the second column: indicator lands past b2.
	require.NoError(t, s.HoverOver("b2", true))
	idx, ok := s.IndicatorIndex()
	require.True(t, ok)
	require.Equal(t, 2, idx)

	require.NoError(t, s.Drop())
	lb.Settle()

	m, ok := stub.last(hydra.TypeMoveBlock)
	require.True(t, ok)
	var mv hydra.MoveBlock
	require.NoError(t, m.Decode(&mv))
	require.Equal(t, "c1", mv.ParentUID)
	require.Equal(t, "columns", mv.ContainerField)
	require.Equal(t, []string{"b2", "b1"}, mv.Order, "the message carries the complete order, not a diff")
}

func TestCancelDragSendsNothing(t *testing.T) {
	s, stub, lb := newStructure(t)

	require.NoError(t, s.StartDrag("b2"))
	require.NoError(t, s.HoverOver("b1", false))
	s.CancelDrag()
	lb.Settle()

	require.Equal(t, 0, stub.count(hydra.TypeMoveBlock))
	require.Error(t, s.Drop(), "drop after cancel has no drag to finish")
}
