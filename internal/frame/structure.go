package frame

import (
	"log"
	"slices"
	"sync"

	"github.com/google/uuid"

	hydra "github.com/collective/volto-hydra"
	"github.com/collective/volto-hydra/internal/dom"
)

// Structure is the structural mutation handler: block insertion, deletion,
// and drag-reorder, including the add-direction inference that saves every
// renderer from declaring one.
type Structure struct {
	doc    *dom.Document
	router *hydra.Router
	debug  bool

	mu      sync.Mutex
	pathMap hydra.BlockPathMap
	drag    *dragState
}

// dragState tracks a reorder in progress. The indicator is purely local;
// only the drop emits a message, carrying the container's complete new
// order.
type dragState struct {
	uid       string
	parentUID string
	field     string
	order     []string
	insertAt  int
}

// NewStructure builds the handler. The path map arrives with every
// FORM_DATA snapshot via SetPathMap.
func NewStructure(doc *dom.Document, router *hydra.Router, debug bool) *Structure {
	return &Structure{doc: doc, router: router, debug: debug}
}

// SetPathMap installs the hierarchy pushed by the admin controller.
func (s *Structure) SetPathMap(m hydra.BlockPathMap) {
	s.mu.Lock()
	s.pathMap = m
	s.mu.Unlock()
}

// InferDirection decides where a sibling added to target goes. An explicit
// data-block-add on the target element wins; without one, the orientation
// of the parent container's layout decides (row ⇒ right, stacked ⇒ bottom).
func (s *Structure) InferDirection(targetUID string) (hydra.AddDirection, error) {
	n, ok := s.doc.ElementByUID(targetUID)
	if !ok {
		return "", hydra.Errf(hydra.KindTargetNotFound, "structure.direction", "block %q", targetUID)
	}
	for cur := n; cur != nil; cur = cur.Parent {
		switch dom.Attr(cur, dom.AttrBlockAdd) {
		case string(hydra.AddRight):
			return hydra.AddRight, nil
		case string(hydra.AddBottom):
			return hydra.AddBottom, nil
		}
		// Stop climbing at the next block boundary: the hint belongs to
		// this block's wrappers, not some outer container's.
		if cur != n && dom.Attr(cur, dom.AttrBlockUID) != "" {
			break
		}
		if cur.Parent != nil && dom.Attr(cur.Parent, dom.AttrLayout) == "row" {
			return hydra.AddRight, nil
		}
	}
	return hydra.AddBottom, nil
}

// AddAfter requests insertion of a new block of blockType next to
// targetUID, in the inferred direction. Returns the new block's uid; the
// block itself only exists once the admin controller applies the mutation
// and the next snapshot arrives.
func (s *Structure) AddAfter(targetUID, blockType string) (string, error) {
	dir, err := s.InferDirection(targetUID)
	if err != nil {
		return "", err
	}
	newUID := uuid.NewString()
	err = s.router.Send(hydra.TypeAddBlock, hydra.AddBlock{
		TargetUID: targetUID,
		NewUID:    newUID,
		BlockType: blockType,
		Direction: dir,
	})
	if err != nil {
		return "", err
	}
	if s.debug {
		log.Printf("[Structure] add %s %s of %s (new %s)", blockType, dir, targetUID, newUID)
	}
	return newUID, nil
}

// Delete requests removal of a block and returns the uid the selection
// should move to: the previous sibling, or the parent when the block was
// first in its container, or "" for a lone root block.
func (s *Structure) Delete(uid string) (nextSelect string, err error) {
	prev, err := s.doc.PrevSiblingUID(uid)
	if err != nil {
		return "", err
	}
	if prev == "" {
		s.mu.Lock()
		if entry, ok := s.pathMap[uid]; ok {
			prev = entry.ParentUID
		}
		s.mu.Unlock()
	}
	if err := s.router.Send(hydra.TypeDeleteBlock, hydra.DeleteBlock{UID: uid}); err != nil {
		return "", err
	}
	return prev, nil
}

// StartDrag begins a reorder of uid within its container.
func (s *Structure) StartDrag(uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.pathMap[uid]
	if !ok {
		return hydra.Errf(hydra.KindTargetNotFound, "structure.drag", "block %q not in path map", uid)
	}
	containerUID := entry.ParentUID
	container, ok := s.doc.ContainerElement(containerUID)
	if !ok {
		return hydra.Errf(hydra.KindTargetNotFound, "structure.drag", "container %q", containerUID)
	}
	// Sibling order comes from the rendered DOM; for root-level blocks the
	// container is the body element.
	order := dom.BlockChildren(container)
	s.drag = &dragState{
		uid:       uid,
		parentUID: containerUID,
		field:     entry.ContainerField,
		order:     order,
		insertAt:  slices.Index(order, uid),
	}
	return nil
}

// HoverOver moves the live insertion indicator next to a sibling. after
// selects which edge of the sibling the indicator sits on.
func (s *Structure) HoverOver(siblingUID string, after bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drag == nil {
		return hydra.Errf(hydra.KindTargetNotFound, "structure.hover", "no drag in progress")
	}
	i := slices.Index(s.drag.order, siblingUID)
	if i < 0 {
		return hydra.Errf(hydra.KindTargetNotFound, "structure.hover", "sibling %q", siblingUID)
	}
	if after {
		i++
	}
	s.drag.insertAt = i
	return nil
}

// IndicatorIndex reports where the drop would insert, for indicator chrome.
func (s *Structure) IndicatorIndex() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drag == nil {
		return 0, false
	}
	return s.drag.insertAt, true
}

// Drop finalizes the drag with a single reorder message carrying the
// container's complete new child-id list. The admin controller replaces the
// whole list; there is no diff to merge and no ambiguity to resolve.
func (s *Structure) Drop() error {
	s.mu.Lock()
	d := s.drag
	s.drag = nil
	s.mu.Unlock()
	if d == nil {
		return hydra.Errf(hydra.KindTargetNotFound, "structure.drop", "no drag in progress")
	}

	from := slices.Index(d.order, d.uid)
	order := slices.Delete(slices.Clone(d.order), from, from+1)
	at := d.insertAt
	if from < at {
		at--
	}
	at = max(0, min(at, len(order)))
	order = slices.Insert(order, at, d.uid)

	return s.router.Send(hydra.TypeMoveBlock, hydra.MoveBlock{
		ParentUID:      d.parentUID,
		ContainerField: d.field,
		Order:          order,
	})
}

// CancelDrag abandons the reorder without emitting anything.
func (s *Structure) CancelDrag() {
	s.mu.Lock()
	s.drag = nil
	s.mu.Unlock()
}
