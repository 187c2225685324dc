package frame

import (
	"log"
	"sync"

	hydra "github.com/collective/volto-hydra"
	"github.com/collective/volto-hydra/internal/dom"
)

// Overlay tracks which block is selected and keeps the admin side supplied
// with its on-screen rectangle so selection chrome drawn in the parent
// document lines up with content it cannot touch.
type Overlay struct {
	doc    *dom.Document
	router *hydra.Router
	debug  bool

	mu        sync.Mutex
	frameRect hydra.Rect
	selected  string
	cancelObs func()
}

// NewOverlay builds the overlay engine. frameRect is the content frame
// element's own rectangle within the parent document; every reported rect
// is translated by it.
func NewOverlay(doc *dom.Document, router *hydra.Router, frameRect hydra.Rect, debug bool) *Overlay {
	return &Overlay{doc: doc, router: router, frameRect: frameRect, debug: debug}
}

// Select marks a block selected, reports its rect, and attaches a geometry
// observer so later layout shifts (image loads, reflow, re-renders) keep
// the report live. Selecting a uid absent from the DOM is target-not-found;
// the admin state may simply be ahead of the frame DOM, so callers tolerate
// it and retry on the next snapshot.
func (o *Overlay) Select(uid string) error {
	o.doc.Layout()
	rect, ok := o.doc.RectOf(uid)
	if !ok {
		return hydra.Errf(hydra.KindTargetNotFound, "overlay.select", "block %q", uid)
	}

	o.mu.Lock()
	if o.cancelObs != nil {
		o.cancelObs()
		o.cancelObs = nil
	}
	o.selected = uid
	frameRect := o.frameRect
	o.cancelObs = o.doc.ObserveGeometry(uid, func(r hydra.Rect) {
		o.report(uid, r)
	})
	o.mu.Unlock()

	o.send(uid, rect.Translate(frameRect))
	return nil
}

// Selected returns the selected block uid, or "".
func (o *Overlay) Selected() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.selected
}

// Deselect drops the selection and its observer.
func (o *Overlay) Deselect() {
	o.mu.Lock()
	if o.cancelObs != nil {
		o.cancelObs()
		o.cancelObs = nil
	}
	o.selected = ""
	o.mu.Unlock()
}

// SetFrameRect updates the frame element's position, e.g. after the admin
// layout around the frame changes.
func (o *Overlay) SetFrameRect(r hydra.Rect) {
	o.mu.Lock()
	o.frameRect = r
	o.mu.Unlock()
}

func (o *Overlay) report(uid string, rect hydra.Rect) {
	o.mu.Lock()
	if o.selected != uid {
		o.mu.Unlock()
		return
	}
	frameRect := o.frameRect
	o.mu.Unlock()
	o.send(uid, rect.Translate(frameRect))
}

func (o *Overlay) send(uid string, rect hydra.Rect) {
	if err := o.router.Send(hydra.TypeBlockSelected, hydra.BlockSelected{UID: uid, Rect: rect}); err != nil && o.debug {
		log.Printf("[Overlay] send rect for %s: %v", uid, err)
	}
}
