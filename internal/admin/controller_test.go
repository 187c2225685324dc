package admin

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	hydra "github.com/collective/volto-hydra"
	"github.com/collective/volto-hydra/internal/richtext"
)

const (
	adminOrigin = "https://admin.example.com"
	frameOrigin = "https://frontend.example.com"
)

// frameStub stands in for the frame bridge: it records everything the
// controller sends, grouped by type.
type frameStub struct {
	end *hydra.LoopbackEnd

	mu   sync.Mutex
	msgs map[hydra.MessageType][]hydra.Message
}

func newFrameStub(end *hydra.LoopbackEnd) *frameStub {
	s := &frameStub{end: end, msgs: make(map[hydra.MessageType][]hydra.Message)}
	end.SetReceiver(func(d hydra.Delivery) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.msgs[d.Message.Type] = append(s.msgs[d.Message.Type], d.Message)
	})
	return s
}

func (s *frameStub) send(t *testing.T, typ hydra.MessageType, payload any) {
	t.Helper()
	m, err := hydra.NewMessage(typ, payload)
	require.NoError(t, err)
	require.NoError(t, s.end.Send(m))
}

func (s *frameStub) last(typ hydra.MessageType) (hydra.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms := s.msgs[typ]
	if len(ms) == 0 {
		return hydra.Message{}, false
	}
	return ms[len(ms)-1], true
}

func (s *frameStub) count(typ hydra.MessageType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs[typ])
}

func (s *frameStub) lastSnapshot(t *testing.T) hydra.FormData {
	t.Helper()
	m, ok := s.last(hydra.TypeFormData)
	require.True(t, ok, "no FORM_DATA received")
	var snap hydra.FormData
	require.NoError(t, m.Decode(&snap))
	return snap
}

func newTestController(t *testing.T) (*Controller, *frameStub, *hydra.Loopback) {
	t.Helper()
	lb := hydra.NewLoopback(adminOrigin, frameOrigin)
	t.Cleanup(lb.Close)

	c := NewController(lb.A, frameOrigin, NewTokenIssuer([]byte("test-secret"), 0), false)
	c.Start()
	stub := newFrameStub(lb.B)

	require.NoError(t, c.Load(map[string]hydra.Block{
		"b0": {UID: "b0", Type: "title", Data: map[string]any{"title": "Hi"}},
		"b1": {UID: "b1", Type: "text", Data: map[string]any{"value": richtext.NewDoc("hello")}},
		"c1": {UID: "c1", Type: "columns", Data: map[string]any{"columns": []string{"b2", "b3"}}},
		"b2": {UID: "b2", Type: "text", Data: map[string]any{"value": richtext.NewDoc("left")}},
		"b3": {UID: "b3", Type: "text", Data: map[string]any{"value": richtext.NewDoc("right")}},
	}, []string{"b0", "b1", "c1"}))
	lb.Settle()
	return c, stub, lb
}

func TestLoadPushesSnapshotWithPathMap(t *testing.T) {
	_, stub, _ := newTestController(t)

	snap := stub.lastSnapshot(t)
	require.Equal(t, []string{"b0", "b1", "c1"}, snap.Layout)

	// Root blocks carry the page layout as container; nested blocks name
	// their parent and field.
	require.Equal(t, hydra.PathEntry{ContainerField: "blocks_layout"}, snap.PathMap["b0"])
	require.Equal(t, hydra.PathEntry{ParentUID: "c1", ContainerField: "columns"}, snap.PathMap["b2"])
}

func TestAddBlockInsertsAndSelects(t *testing.T) {
	_, stub, lb := newTestController(t)

	stub.send(t, hydra.TypeAddBlock, hydra.AddBlock{
		TargetUID: "b2", NewUID: "b9", BlockType: "text", Direction: hydra.AddRight,
	})
	lb.Settle()

	snap := stub.lastSnapshot(t)
	require.Contains(t, snap.Blocks, "b9")
	require.Equal(t, []string{"b2", "b9", "b3"}, snap.Blocks["c1"].ChildIDs("columns"))

	sel, ok := stub.last(hydra.TypeSelectBlock)
	require.True(t, ok, "new block was not selected")
	var s hydra.SelectBlock
	require.NoError(t, sel.Decode(&s))
	require.Equal(t, "b9", s.UID)
}

func TestDeleteBlockRemovesSubtree(t *testing.T) {
	_, stub, lb := newTestController(t)

	stub.send(t, hydra.TypeDeleteBlock, hydra.DeleteBlock{UID: "c1"})
	lb.Settle()

	snap := stub.lastSnapshot(t)
	require.Equal(t, []string{"b0", "b1"}, snap.Layout)
	require.NotContains(t, snap.Blocks, "c1")
	require.NotContains(t, snap.Blocks, "b2", "children of a deleted container must go too")
	require.NotContains(t, snap.Blocks, "b3")
}

func TestMoveBlockReplacesWholeOrder(t *testing.T) {
	_, stub, lb := newTestController(t)

	stub.send(t, hydra.TypeMoveBlock, hydra.MoveBlock{
		ParentUID: "c1", ContainerField: "columns", Order: []string{"b3", "b2"},
	})
	lb.Settle()

	snap := stub.lastSnapshot(t)
	require.Equal(t, []string{"b3", "b2"}, snap.Blocks["c1"].ChildIDs("columns"))
}

func TestMoveBlockRejectsMembershipDrift(t *testing.T) {
	_, stub, lb := newTestController(t)
	before := stub.count(hydra.TypeFormData)

	// An order that smuggles in a foreign uid is refused outright.
	stub.send(t, hydra.TypeMoveBlock, hydra.MoveBlock{
		ParentUID: "c1", ContainerField: "columns", Order: []string{"b3", "b999"},
	})
	lb.Settle()

	require.Equal(t, before, stub.count(hydra.TypeFormData), "rejected move must not push a snapshot")
}

func TestInlineEditCommitsPlainValue(t *testing.T) {
	_, stub, lb := newTestController(t)

	stub.send(t, hydra.TypeInlineEditData, hydra.InlineEditData{UID: "b0", Field: "title", Value: "New title"})
	lb.Settle()

	snap := stub.lastSnapshot(t)
	require.Equal(t, "New title", snap.Blocks["b0"].Data["title"])
}

func TestTransformRequestAppliesAndResponds(t *testing.T) {
	_, stub, lb := newTestController(t)

	doc := richtext.NewDoc("hello world")
	nodeID := doc.Nodes[0].ID
	raw, err := richtext.Encode(doc)
	require.NoError(t, err)

	stub.send(t, hydra.TypeTransformRequest, hydra.TransformRequest{
		ID: "req-1", UID: "b1", Field: "value",
		Op: hydra.TransformOp{Kind: hydra.OpFormat, Format: richtext.MarkBold},
		Selection: hydra.Selection{
			Anchor: hydra.SelPoint{NodeID: nodeID, Offset: 0},
			Focus:  hydra.SelPoint{NodeID: nodeID, Offset: 5},
		},
		Doc: raw,
	})
	lb.Settle()

	m, ok := stub.last(hydra.TypeTransformResponse)
	require.True(t, ok)
	var resp hydra.TransformResponse
	require.NoError(t, m.Decode(&resp))
	require.Equal(t, "req-1", resp.ID)
	require.Empty(t, resp.Error)

	out, err := richtext.Decode(resp.Doc)
	require.NoError(t, err)
	require.Equal(t, richtext.MarkBold, out.Nodes[0].Leaves[0].Marks[0])
}

func TestTransformFailureTravelsAsErrorResponse(t *testing.T) {
	_, stub, lb := newTestController(t)

	doc := richtext.NewDoc("hello")
	raw, err := richtext.Encode(doc)
	require.NoError(t, err)

	stub.send(t, hydra.TypeTransformRequest, hydra.TransformRequest{
		ID: "req-2", UID: "b1", Field: "value",
		Op: hydra.TransformOp{Kind: hydra.OpSplit},
		Selection: hydra.Selection{
			Anchor: hydra.SelPoint{NodeID: "n-gone", Offset: 0},
			Focus:  hydra.SelPoint{NodeID: "n-gone", Offset: 0},
		},
		Doc: raw,
	})
	lb.Settle()

	m, ok := stub.last(hydra.TypeTransformResponse)
	require.True(t, ok)
	var resp hydra.TransformResponse
	require.NoError(t, m.Decode(&resp))
	require.Equal(t, "req-2", resp.ID)
	require.NotEmpty(t, resp.Error, "engine failure must come back as an error response")
}

func TestGetTokenRoundTrip(t *testing.T) {
	c, stub, lb := newTestController(t)

	stub.send(t, hydra.TypeGetToken, nil)
	lb.Settle()

	m, ok := stub.last(hydra.TypeGetTokenResponse)
	require.True(t, ok)
	var tok hydra.TokenResponse
	require.NoError(t, m.Decode(&tok))
	require.NoError(t, c.tokens.Verify(tok.Token))
}

func TestSelectSlideSteps(t *testing.T) {
	c, stub, lb := newTestController(t)

	stub.send(t, hydra.TypeAddBlock, hydra.AddBlock{TargetUID: "c1", NewUID: "s1", BlockType: "slider", Direction: hydra.AddBottom})
	lb.Settle()

	// Wire the slider's children directly through the tree.
	c.mu.Lock()
	blk := c.blocks["s1"]
	blk.Data = map[string]any{"slides": []string{"b1", "b0"}}
	c.blocks["s1"] = blk
	c.mu.Unlock()

	stub.send(t, hydra.TypeSelectSlide, hydra.SelectSlide{ContainerUID: "s1", Step: 1})
	lb.Settle()
	snap := stub.lastSnapshot(t)
	require.Equal(t, "b0", snap.Blocks["s1"].Data["active"], "step +1 from the first slide")

	stub.send(t, hydra.TypeSelectSlide, hydra.SelectSlide{ContainerUID: "s1", Step: 1})
	lb.Settle()
	snap = stub.lastSnapshot(t)
	require.Equal(t, "b1", snap.Blocks["s1"].Data["active"], "step wraps around")

	stub.send(t, hydra.TypeSelectSlide, hydra.SelectSlide{ContainerUID: "s1", SlideUID: "b0"})
	lb.Settle()
	snap = stub.lastSnapshot(t)
	require.Equal(t, "b0", snap.Blocks["s1"].Data["active"], "direct slide selection")
}

func TestObjectBrowserRoundTrip(t *testing.T) {
	c, stub, lb := newTestController(t)
	c.SetPicker(PickerFunc(func(mode string) (string, bool) {
		require.Equal(t, "image", mode)
		return "/images/cat.png", true
	}))

	stub.send(t, hydra.TypeOpenObjectBrowser, hydra.OpenObjectBrowser{Mode: "image"})
	lb.Settle()

	m, ok := stub.last(hydra.TypeObjectSelected)
	require.True(t, ok)
	var obj hydra.ObjectSelected
	require.NoError(t, m.Decode(&obj))
	require.Equal(t, "/images/cat.png", obj.Path)
}
