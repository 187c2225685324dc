// Package frame is the content-side half of the editing bridge: it owns the
// rendered DOM mirror, turns user intent into protocol messages, and
// reconciles the DOM after every message from the admin controller. All
// state lives in an explicit Session torn down on deselect or navigation;
// nothing leaks across frame reloads.
package frame

import (
	"encoding/json"
	"log"
	"sync"

	hydra "github.com/collective/volto-hydra"
	"github.com/collective/volto-hydra/internal/dom"
	"github.com/collective/volto-hydra/internal/render"
	"github.com/collective/volto-hydra/internal/richtext"
)

// Config carries the session's environment.
type Config struct {
	// FrameRect is the content frame element's rectangle within the admin
	// document; all reported geometry is translated by it.
	FrameRect hydra.Rect
	// Viewport is the layout width of the content frame.
	Viewport float64
	Debug    bool
}

// Session is one edit session of the frame bridge. It is the only writer
// of the DOM mirror while fields are editable.
type Session struct {
	router    *hydra.Router
	doc       *dom.Document
	renderer  *render.Renderer
	overlay   *Overlay
	editor    *Editor
	queue     *Queue
	structure *Structure
	carousel  *Carousel
	debug     bool

	mu            sync.Mutex
	snap          hydra.FormData
	url           string
	token         string
	pendingSelect string
	assetTarget   *hydra.EditableField
}

// NewSession builds a session over a channel endpoint. adminOrigin is the
// only origin whose messages are accepted.
func NewSession(ch hydra.Channel, adminOrigin string, cfg Config) (*Session, error) {
	doc, err := dom.Parse("<html><head></head><body></body></html>", cfg.Viewport)
	if err != nil {
		return nil, err
	}

	router := hydra.NewRouter(ch, adminOrigin, cfg.Debug)
	s := &Session{
		router:   router,
		doc:      doc,
		renderer: render.New(cfg.Debug),
		debug:    cfg.Debug,
	}
	s.overlay = NewOverlay(doc, router, cfg.FrameRect, cfg.Debug)
	s.queue = NewQueue(router, cfg.Debug)
	s.editor = NewEditor(doc, router, s.queue, s.renderFieldOverride, cfg.Debug)
	s.structure = NewStructure(doc, router, cfg.Debug)
	s.carousel = NewCarousel(doc, router, s.overlay, 0)

	router.Handle(hydra.TypeFormData, s.onFormData)
	router.Handle(hydra.TypeSelectBlock, s.onSelectBlock)
	router.Handle(hydra.TypeGetTokenResponse, s.onToken)
	router.Handle(hydra.TypeTransformResponse, s.onTransformResponse)
	router.Handle(hydra.TypeObjectSelected, s.onObjectSelected)
	router.Handle(hydra.TypeReload, s.onReload)
	return s, nil
}

// Start begins receiving messages.
func (s *Session) Start() {
	s.router.Start()
}

// Close tears the session down: outstanding transforms are abandoned,
// editable regions detached, the channel closed.
func (s *Session) Close() error {
	s.queue.CancelAll()
	s.editor.DeactivateAll()
	s.overlay.Deselect()
	return s.router.Close()
}

// Component accessors for the admin-driven test harness and embedding code.

func (s *Session) Overlay() *Overlay     { return s.overlay }
func (s *Session) Editor() *Editor       { return s.editor }
func (s *Session) Queue() *Queue         { return s.queue }
func (s *Session) Structure() *Structure { return s.structure }
func (s *Session) Carousel() *Carousel   { return s.carousel }
func (s *Session) DOM() *dom.Document    { return s.doc }
func (s *Session) Router() *hydra.Router { return s.router }

// Snapshot returns the last FORM_DATA received.
func (s *Session) Snapshot() hydra.FormData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Token returns the auth token delivered by the admin side, or "".
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// RequestToken asks the admin application for an auth token.
func (s *Session) RequestToken() error {
	return s.router.Send(hydra.TypeGetToken, nil)
}

// Navigate reports a frame navigation and tears the edit session state
// down: every pending transform is abandoned with its buffered input, all
// fields deactivate, the selection clears.
func (s *Session) Navigate(url string) error {
	s.queue.CancelAll()
	s.editor.DeactivateAll()
	s.overlay.Deselect()
	s.mu.Lock()
	s.url = url
	s.pendingSelect = ""
	s.assetTarget = nil
	s.mu.Unlock()
	return s.router.Send(hydra.TypeURLChange, hydra.URLChange{URL: url})
}

// SelectBlock is a frame-side selection (user clicked a block).
func (s *Session) SelectBlock(uid string) error {
	return s.overlay.Select(uid)
}

// DeleteBlock removes a block, remembering which uid the selection
// should land on once the controller's updated snapshot arrives.
func (s *Session) DeleteBlock(uid string) error {
	next, err := s.structure.Delete(uid)
	if err != nil {
		return err
	}
	if s.overlay.Selected() == uid {
		s.overlay.Deselect()
	}
	s.mu.Lock()
	s.pendingSelect = next
	s.mu.Unlock()
	return nil
}

// ActivateField begins inline editing of a field, seeding the editor with
// the field's committed value from the current snapshot.
func (s *Session) ActivateField(ref hydra.EditableField) error {
	s.mu.Lock()
	blk, ok := s.snap.Blocks[ref.BlockUID]
	s.mu.Unlock()
	if !ok {
		return hydra.Errf(hydra.KindTargetNotFound, "session.activate", "block %q", ref.BlockUID)
	}

	if ref.Kind == hydra.FieldRichText {
		d, err := fieldDoc(blk, ref.Field)
		if err != nil {
			return err
		}
		return s.editor.ActivateRich(ref, d)
	}
	value, _ := blk.Data[ref.Field].(string)
	return s.editor.ActivatePlain(ref, value)
}

// OpenObjectBrowser asks the admin app for its asset picker on behalf of a
// media or link field; the picked path is committed to that field.
func (s *Session) OpenObjectBrowser(ref hydra.EditableField, mode string) error {
	s.mu.Lock()
	s.assetTarget = &ref
	s.mu.Unlock()
	return s.router.Send(hydra.TypeOpenObjectBrowser, hydra.OpenObjectBrowser{Mode: mode})
}

// renderFieldOverride renders ref's block with the field's document
// replaced by the editor's working copy.
func (s *Session) renderFieldOverride(ref hydra.EditableField, d richtext.Doc) (string, error) {
	s.mu.Lock()
	snap := s.snap
	blk, ok := snap.Blocks[ref.BlockUID]
	s.mu.Unlock()
	if !ok {
		return "", hydra.Errf(hydra.KindTargetNotFound, "session.render", "block %q", ref.BlockUID)
	}
	data := make(map[string]any, len(blk.Data))
	for k, v := range blk.Data {
		data[k] = v
	}
	data[ref.Field] = d
	blk.Data = data

	override := snap
	override.Blocks = make(map[string]hydra.Block, len(snap.Blocks))
	for k, v := range snap.Blocks {
		override.Blocks[k] = v
	}
	override.Blocks[ref.BlockUID] = blk
	return s.renderer.RenderBlock(ref.BlockUID, override)
}

func (s *Session) onFormData(m hydra.Message) {
	var snap hydra.FormData
	if err := m.Decode(&snap); err != nil {
		if s.debug {
			log.Printf("[Frame] form data: %v", err)
		}
		return
	}
	s.mu.Lock()
	s.snap = snap
	pending := s.pendingSelect
	s.pendingSelect = ""
	s.mu.Unlock()

	s.structure.SetPathMap(snap.PathMap)

	page, err := s.renderer.RenderPage(snap)
	if err != nil {
		if s.debug {
			log.Printf("[Frame] render: %v", err)
		}
		return
	}
	if err := s.doc.SetHTML(page); err != nil {
		if s.debug {
			log.Printf("[Frame] set html: %v", err)
		}
		return
	}
	s.doc.Layout()

	// The re-render replaced every node; re-attach edit affordances for
	// fields still active.
	s.reattachEditable()

	switch {
	case pending != "":
		if _, ok := snap.Blocks[pending]; ok {
			if err := s.overlay.Select(pending); err != nil && s.debug {
				log.Printf("[Frame] reselect %s: %v", pending, err)
			}
		}
	case s.overlay.Selected() != "":
		uid := s.overlay.Selected()
		if _, ok := snap.Blocks[uid]; ok {
			if err := s.overlay.Select(uid); err != nil && s.debug {
				log.Printf("[Frame] refresh selection %s: %v", uid, err)
			}
		} else {
			s.overlay.Deselect()
		}
	}
}

func (s *Session) reattachEditable() {
	s.editor.mu.Lock()
	refs := make([]hydra.EditableField, 0, len(s.editor.fields))
	for _, f := range s.editor.fields {
		refs = append(refs, f.ref)
	}
	s.editor.mu.Unlock()
	for _, ref := range refs {
		if err := s.doc.SetEditable(ref.BlockUID, ref.Field, true); err != nil && s.debug {
			log.Printf("[Frame] reattach %s.%s: %v", ref.BlockUID, ref.Field, err)
		}
	}
}

func (s *Session) onSelectBlock(m hydra.Message) {
	var sel hydra.SelectBlock
	if err := m.Decode(&sel); err != nil {
		return
	}
	if err := s.overlay.Select(sel.UID); err != nil && s.debug {
		log.Printf("[Frame] select %s: %v", sel.UID, err)
	}
}

func (s *Session) onToken(m hydra.Message) {
	var tok hydra.TokenResponse
	if err := m.Decode(&tok); err != nil {
		return
	}
	s.mu.Lock()
	s.token = tok.Token
	s.mu.Unlock()
}

// onTransformResponse resolves a pending transform: apply the new document,
// restore the cursor, then replay everything the user typed during the
// round trip, in order. A replayed event that itself needs the document
// engine opens the next transform and the remaining events buffer into it.
func (s *Session) onTransformResponse(m hydra.Message) {
	var resp hydra.TransformResponse
	if err := m.Decode(&resp); err != nil {
		return
	}
	ref, _, buffered, ok := s.queue.Take(resp.ID)
	if !ok {
		// Stale correlation: cancelled or unknown id. Applying it would
		// resurrect an abandoned edit.
		return
	}

	if resp.Error != "" {
		if s.debug {
			log.Printf("[Frame] transform %s failed: %s", resp.ID, resp.Error)
		}
		if err := s.editor.revert(ref); err != nil && s.debug {
			log.Printf("[Frame] revert %s.%s: %v", ref.BlockUID, ref.Field, err)
		}
		return
	}

	if err := s.editor.applyResolved(ref, resp.Doc); err != nil {
		if s.debug {
			log.Printf("[Frame] apply transform %s: %v", resp.ID, err)
		}
		return
	}

	for _, ev := range buffered {
		if err := s.editor.HandleInput(ref, ev); err != nil && s.debug {
			log.Printf("[Frame] replay on %s.%s: %v", ref.BlockUID, ref.Field, err)
		}
	}
}

func (s *Session) onObjectSelected(m hydra.Message) {
	var obj hydra.ObjectSelected
	if err := m.Decode(&obj); err != nil {
		return
	}
	s.mu.Lock()
	target := s.assetTarget
	s.assetTarget = nil
	s.mu.Unlock()
	if target == nil {
		return
	}
	if err := s.router.Send(hydra.TypeInlineEditData, hydra.InlineEditData{
		UID:   target.BlockUID,
		Field: target.Field,
		Value: obj.Path,
	}); err != nil && s.debug {
		log.Printf("[Frame] commit asset: %v", err)
	}
}

func (s *Session) onReload(hydra.Message) {
	// Development-server reload: equivalent to a navigation to the same
	// URL. Edit state does not survive.
	s.queue.CancelAll()
	s.editor.DeactivateAll()
	s.overlay.Deselect()
}

// fieldDoc decodes a rich field's committed value from block data.
func fieldDoc(blk hydra.Block, field string) (richtext.Doc, error) {
	raw, ok := blk.Data[field]
	if !ok {
		return richtext.NewDoc(""), nil
	}
	if d, ok := raw.(richtext.Doc); ok {
		return d.Clone(), nil
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return richtext.Doc{}, err
	}
	return richtext.Decode(buf)
}
