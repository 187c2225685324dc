package frame

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"

	hydra "github.com/collective/volto-hydra"
)

type fieldKey struct {
	uid   string
	field string
}

func keyOf(ref hydra.EditableField) fieldKey {
	return fieldKey{uid: ref.BlockUID, field: ref.Field}
}

// pendingTransform is one in-flight request to the admin's document engine.
// At most one exists per field; everything the user does while it is
// outstanding lands in buffered, in order.
type pendingTransform struct {
	id        string
	ref       hydra.EditableField
	selection hydra.Selection
	buffered  []InputEvent
}

// Queue serializes field-local mutations that need the admin controller's
// document engine. It owns the correlation ids: a response whose id is not
// in the table is stale and ignored.
type Queue struct {
	router *hydra.Router
	debug  bool

	mu      sync.Mutex
	pending map[fieldKey]*pendingTransform
	byID    map[string]fieldKey
}

// NewQueue builds the transform queue on top of a router.
func NewQueue(router *hydra.Router, debug bool) *Queue {
	return &Queue{
		router:  router,
		debug:   debug,
		pending: make(map[fieldKey]*pendingTransform),
		byID:    make(map[string]fieldKey),
	}
}

// Pending reports whether a transform is in flight for the field.
func (q *Queue) Pending(ref hydra.EditableField) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pending[keyOf(ref)]
	return ok
}

// Request sends a transform intent for the field. The caller must have
// checked Pending first; a request while one is outstanding is refused so
// the at-most-one invariant cannot be broken by a coding mistake upstream.
func (q *Queue) Request(ref hydra.EditableField, op hydra.TransformOp, sel hydra.Selection, doc json.RawMessage) error {
	q.mu.Lock()
	key := keyOf(ref)
	if _, exists := q.pending[key]; exists {
		q.mu.Unlock()
		return hydra.Errf(hydra.KindTransformFailed, "queue.request",
			"transform already in flight for %s.%s", ref.BlockUID, ref.Field)
	}
	p := &pendingTransform{
		id:        uuid.NewString(),
		ref:       ref,
		selection: sel,
	}
	q.pending[key] = p
	q.byID[p.id] = key
	q.mu.Unlock()

	err := q.router.Send(hydra.TypeTransformRequest, hydra.TransformRequest{
		ID:        p.id,
		UID:       ref.BlockUID,
		Field:     ref.Field,
		Op:        op,
		Selection: sel,
		Doc:       doc,
	})
	if err != nil {
		q.mu.Lock()
		delete(q.pending, key)
		delete(q.byID, p.id)
		q.mu.Unlock()
		return err
	}
	if q.debug {
		log.Printf("[Queue] sent transform %s (%s) for %s.%s", p.id, op.Kind, ref.BlockUID, ref.Field)
	}
	return nil
}

// Buffer appends an input event to the field's in-flight transform. Events
// arriving with nothing pending are the caller's to handle directly.
func (q *Queue) Buffer(ref hydra.EditableField, ev InputEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, ok := q.pending[keyOf(ref)]
	if !ok {
		return false
	}
	p.buffered = append(p.buffered, ev)
	return true
}

// Take claims the pending transform for a response id, removing it from the
// table before any of the response is applied. A miss means the transform
// was cancelled or never existed; the response must be treated as a no-op.
func (q *Queue) Take(id string) (hydra.EditableField, hydra.Selection, []InputEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	key, ok := q.byID[id]
	if !ok {
		if q.debug {
			log.Printf("[Queue] stale transform response %s", id)
		}
		return hydra.EditableField{}, hydra.Selection{}, nil, false
	}
	p := q.pending[key]
	delete(q.byID, id)
	delete(q.pending, key)
	return p.ref, p.selection, p.buffered, true
}

// Cancel abandons the field's pending transform. Buffered input is
// discarded; the late response, if it comes, will miss in Take.
func (q *Queue) Cancel(ref hydra.EditableField) {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := keyOf(ref)
	if p, ok := q.pending[key]; ok {
		delete(q.byID, p.id)
		delete(q.pending, key)
		if q.debug {
			log.Printf("[Queue] cancelled transform %s for %s.%s", p.id, ref.BlockUID, ref.Field)
		}
	}
}

// CancelAll abandons every pending transform, as navigation and edit
// session teardown do.
func (q *Queue) CancelAll() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for key, p := range q.pending {
		delete(q.byID, p.id)
		delete(q.pending, key)
	}
}

// PendingCount is used by tests asserting the at-most-one invariant.
func (q *Queue) PendingCount(ref hydra.EditableField) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[keyOf(ref)]; ok {
		return 1
	}
	return 0
}
