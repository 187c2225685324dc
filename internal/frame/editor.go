package frame

import (
	"encoding/json"
	"log"
	"sync"
	"unicode/utf8"

	hydra "github.com/collective/volto-hydra"
	"github.com/collective/volto-hydra/internal/dom"
	"github.com/collective/volto-hydra/internal/richtext"
)

// EditState is the per-field state machine:
// inactive → editable → (typing | selecting) → (committing | transforming) → editable.
type EditState string

const (
	StateInactive     EditState = "inactive"
	StateEditable     EditState = "editable"
	StateTyping       EditState = "typing"
	StateSelecting    EditState = "selecting"
	StateCommitting   EditState = "committing"
	StateTransforming EditState = "transforming"
)

// fieldEdit holds one field's live editing state. It exists only between
// Activate and Deactivate.
type fieldEdit struct {
	ref   hydra.EditableField
	state EditState

	// plain / multiline
	text   string
	cursor int

	// rich
	doc      richtext.Doc
	lastGood richtext.Doc
	sel      hydra.Selection
}

// Editor is the inline edit controller: it attaches contenteditable,
// captures user input, routes boundary-crossing keystrokes through the
// transform queue, and reconciles re-renders without losing the cursor or
// in-flight keystrokes.
type Editor struct {
	doc    *dom.Document
	router *hydra.Router
	queue  *Queue
	debug  bool

	// renderField re-renders a block with one rich field's document
	// overridden, so the editor can rebuild its subtree after a resolved
	// transform without owning the snapshot.
	renderField func(ref hydra.EditableField, d richtext.Doc) (string, error)

	mu     sync.Mutex
	fields map[fieldKey]*fieldEdit
}

// NewEditor builds the inline edit controller.
func NewEditor(doc *dom.Document, router *hydra.Router, queue *Queue,
	renderField func(hydra.EditableField, richtext.Doc) (string, error), debug bool) *Editor {
	return &Editor{
		doc:         doc,
		router:      router,
		queue:       queue,
		renderField: renderField,
		debug:       debug,
		fields:      make(map[fieldKey]*fieldEdit),
	}
}

// State returns the field's current edit state.
func (e *Editor) State(ref hydra.EditableField) EditState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if f, ok := e.fields[keyOf(ref)]; ok {
		return f.state
	}
	return StateInactive
}

// ActivatePlain turns a plain or multiline field editable with its current
// committed value.
func (e *Editor) ActivatePlain(ref hydra.EditableField, value string) error {
	if ref.Kind != hydra.FieldPlainText && ref.Kind != hydra.FieldMultilineText {
		return hydra.Errf(hydra.KindTargetNotFound, "editor.activate", "field %s.%s is not plain", ref.BlockUID, ref.Field)
	}
	if err := e.doc.SetEditable(ref.BlockUID, ref.Field, true); err != nil {
		return err
	}
	e.mu.Lock()
	e.fields[keyOf(ref)] = &fieldEdit{
		ref:    ref,
		state:  StateEditable,
		text:   value,
		cursor: len(value),
	}
	e.mu.Unlock()
	return nil
}

// ActivateRich turns a rich field editable with its current document. The
// cursor starts collapsed at the end of the last node.
func (e *Editor) ActivateRich(ref hydra.EditableField, d richtext.Doc) error {
	if ref.Kind != hydra.FieldRichText {
		return hydra.Errf(hydra.KindTargetNotFound, "editor.activate", "field %s.%s is not rich", ref.BlockUID, ref.Field)
	}
	if err := e.doc.SetEditable(ref.BlockUID, ref.Field, true); err != nil {
		return err
	}
	sel := hydra.Selection{}
	if len(d.Nodes) > 0 {
		last := d.Nodes[len(d.Nodes)-1]
		p := hydra.SelPoint{NodeID: last.ID, Offset: last.Len()}
		sel = hydra.Selection{Anchor: p, Focus: p}
	}
	e.mu.Lock()
	e.fields[keyOf(ref)] = &fieldEdit{
		ref:      ref,
		state:    StateEditable,
		doc:      d.Clone(),
		lastGood: d.Clone(),
		sel:      sel,
	}
	e.mu.Unlock()
	return nil
}

// SetSelection records the DOM selection the user made, as node-id/offset
// pairs. Offsets are clamped against the current document.
func (e *Editor) SetSelection(ref hydra.EditableField, sel hydra.Selection) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.fields[keyOf(ref)]
	if !ok {
		return hydra.Errf(hydra.KindTargetNotFound, "editor.select", "field %s.%s not active", ref.BlockUID, ref.Field)
	}
	if ref.Kind == hydra.FieldRichText {
		if a, ok := richtext.ClampPoint(f.doc, sel.Anchor); ok {
			sel.Anchor = a
		}
		if fo, ok := richtext.ClampPoint(f.doc, sel.Focus); ok {
			sel.Focus = fo
		}
	}
	f.state = StateSelecting
	f.sel = sel
	f.state = StateEditable
	return nil
}

// Selection returns the field's current selection.
func (e *Editor) Selection(ref hydra.EditableField) hydra.Selection {
	e.mu.Lock()
	defer e.mu.Unlock()
	if f, ok := e.fields[keyOf(ref)]; ok {
		return f.sel
	}
	return hydra.Selection{}
}

// Doc returns the field's current document (rich fields).
func (e *Editor) Doc(ref hydra.EditableField) (richtext.Doc, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.fields[keyOf(ref)]
	if !ok {
		return richtext.Doc{}, false
	}
	return f.doc.Clone(), true
}

// Text returns the field's current text (plain fields).
func (e *Editor) Text(ref hydra.EditableField) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.fields[keyOf(ref)]
	if !ok {
		return "", false
	}
	return f.text, true
}

// HandleInput processes one user input event against an active field.
// While a transform is in flight for the field, every event is buffered in
// order; none is dropped and none becomes a competing request.
func (e *Editor) HandleInput(ref hydra.EditableField, ev InputEvent) error {
	e.mu.Lock()
	f, ok := e.fields[keyOf(ref)]
	e.mu.Unlock()
	if !ok {
		return hydra.Errf(hydra.KindTargetNotFound, "editor.input", "field %s.%s not active", ref.BlockUID, ref.Field)
	}

	if ref.Kind == hydra.FieldRichText {
		if e.queue.Buffer(ref, ev) {
			return nil
		}
		return e.richInput(f, ev)
	}
	return e.plainInput(f, ev)
}

func (e *Editor) plainInput(f *fieldEdit, ev InputEvent) error {
	f.state = StateTyping
	defer func() { f.state = StateEditable }()

	switch ev := ev.(type) {
	case TextInsert:
		f.text = f.text[:f.cursor] + ev.Text + f.text[f.cursor:]
		f.cursor += len(ev.Text)
	case KeyEvent:
		switch {
		case ev.Key == "Enter":
			if f.ref.Kind == hydra.FieldPlainText {
				// Single-line fields take no newline; the keystroke is
				// swallowed, not committed.
				return nil
			}
			f.text = f.text[:f.cursor] + "\n" + f.text[f.cursor:]
			f.cursor++
		case ev.Key == "Backspace":
			if f.cursor > 0 {
				// Whole runes only; the cursor is byte-addressed.
				_, width := utf8.DecodeLastRuneInString(f.text[:f.cursor])
				f.text = f.text[:f.cursor-width] + f.text[f.cursor:]
				f.cursor -= width
			}
		case len(ev.Key) == 1 && !ev.modifier():
			f.text = f.text[:f.cursor] + ev.Key + f.text[f.cursor:]
			f.cursor += len(ev.Key)
		default:
			return nil
		}
	}

	if err := e.doc.SetFieldText(f.ref.BlockUID, f.ref.Field, f.text); err != nil {
		return err
	}
	// Plain edits commit on the input cadence: one intent per input event,
	// carrying the field's whole current text.
	return e.router.Send(hydra.TypeInlineEditData, hydra.InlineEditData{
		UID:   f.ref.BlockUID,
		Field: f.ref.Field,
		Value: f.text,
	})
}

// richInput handles an event with no transform in flight. Boundary-crossing
// keystrokes become transform intents; a plain insertion inside one node is
// applied optimistically and reconciled by the next round-trip.
func (e *Editor) richInput(f *fieldEdit, ev InputEvent) error {
	switch ev := ev.(type) {
	case TextInsert:
		return e.optimisticInsert(f, ev.Text)
	case KeyEvent:
		if format := formatFor(ev); format != "" {
			return e.requestTransform(f, hydra.TransformOp{Kind: hydra.OpFormat, Format: format})
		}
		switch {
		case ev.Key == "Enter":
			return e.requestTransform(f, hydra.TransformOp{Kind: hydra.OpSplit})
		case ev.Key == "Backspace":
			if f.sel.Collapsed() && f.sel.Anchor.Offset == 0 {
				// Deleting across the node boundary reinterprets the
				// document; never applied locally.
				return e.requestTransform(f, hydra.TransformOp{Kind: hydra.OpMerge})
			}
			return e.optimisticDelete(f)
		case len(ev.Key) == 1 && !ev.modifier():
			return e.optimisticInsert(f, ev.Key)
		}
	}
	return nil
}

func (e *Editor) requestTransform(f *fieldEdit, op hydra.TransformOp) error {
	raw, err := richtext.Encode(f.doc)
	if err != nil {
		return err
	}
	f.state = StateTransforming
	if err := e.queue.Request(f.ref, op, f.sel, raw); err != nil {
		f.state = StateEditable
		return err
	}
	return nil
}

func (e *Editor) optimisticInsert(f *fieldEdit, text string) error {
	f.state = StateTyping
	defer func() { f.state = StateEditable }()

	next, err := richtext.Apply(f.doc, hydra.TransformOp{Kind: hydra.OpInsertText, Text: text}, f.sel)
	if err != nil {
		return err
	}
	f.doc = next
	f.sel.Anchor.Offset += len(text)
	f.sel.Focus = f.sel.Anchor
	return e.syncNodeText(f)
}

func (e *Editor) optimisticDelete(f *fieldEdit) error {
	if f.sel.Anchor.Offset == 0 {
		return nil
	}
	f.state = StateTyping
	defer func() { f.state = StateEditable }()

	next, width, err := richtext.DeleteBack(f.doc, f.sel)
	if err != nil {
		return err
	}
	f.doc = next
	f.sel.Anchor.Offset -= width
	f.sel.Focus = f.sel.Anchor
	return e.syncNodeText(f)
}

// syncNodeText pushes the cursor node's text into the DOM mirror.
func (e *Editor) syncNodeText(f *fieldEdit) error {
	n, err := f.doc.Node(f.sel.Anchor.NodeID)
	if err != nil {
		return hydra.Errf(hydra.KindTargetNotFound, "editor.sync", "node %q", f.sel.Anchor.NodeID)
	}
	return e.doc.SetNodeText(n.ID, n.Text())
}

// applyResolved installs a transform response: new document, re-rendered
// subtree, cursor remapped onto matching node ids with offsets clamped to
// the new node lengths.
func (e *Editor) applyResolved(ref hydra.EditableField, raw json.RawMessage) error {
	e.mu.Lock()
	f, ok := e.fields[keyOf(ref)]
	e.mu.Unlock()
	if !ok {
		return hydra.Errf(hydra.KindTargetNotFound, "editor.apply", "field %s.%s not active", ref.BlockUID, ref.Field)
	}

	next, err := richtext.Decode(raw)
	if err != nil {
		return err
	}
	f.doc = next
	f.lastGood = next.Clone()

	if err := e.rerender(f); err != nil {
		return err
	}

	// Restore the selection against the new document. A vanished node
	// (merged away) falls back to the nearest surviving position.
	if a, ok := richtext.ClampPoint(f.doc, f.sel.Anchor); ok {
		f.sel.Anchor = a
	} else {
		f.sel.Anchor = docStart(f.doc)
	}
	if fo, ok := richtext.ClampPoint(f.doc, f.sel.Focus); ok {
		f.sel.Focus = fo
	} else {
		f.sel.Focus = f.sel.Anchor
	}
	f.state = StateEditable
	return nil
}

// revert restores the last known-good document after a failed transform.
// No partial application: the field looks exactly as it did before the
// intent was sent.
func (e *Editor) revert(ref hydra.EditableField) error {
	e.mu.Lock()
	f, ok := e.fields[keyOf(ref)]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	f.doc = f.lastGood.Clone()
	if err := e.rerender(f); err != nil {
		return err
	}
	if a, ok := richtext.ClampPoint(f.doc, f.sel.Anchor); ok {
		f.sel.Anchor = a
		f.sel.Focus = a
	} else {
		f.sel.Anchor = docStart(f.doc)
		f.sel.Focus = f.sel.Anchor
	}
	f.state = StateEditable
	return nil
}

// rerender rebuilds the block's subtree from the editor's document and
// re-marks the field editable, since the replacement produced fresh nodes.
func (e *Editor) rerender(f *fieldEdit) error {
	rendered, err := e.renderField(f.ref, f.doc)
	if err != nil {
		return err
	}
	if err := e.doc.ReplaceBlock(f.ref.BlockUID, rendered); err != nil {
		return err
	}
	if err := e.doc.SetEditable(f.ref.BlockUID, f.ref.Field, true); err != nil {
		return err
	}
	e.doc.Layout()
	return nil
}

func docStart(d richtext.Doc) hydra.SelPoint {
	if len(d.Nodes) == 0 {
		return hydra.SelPoint{}
	}
	return hydra.SelPoint{NodeID: d.Nodes[0].ID}
}

// Deactivate ends the field's edit session. Rich fields commit their
// current document; any in-flight transform is abandoned with its buffer.
func (e *Editor) Deactivate(ref hydra.EditableField) error {
	e.mu.Lock()
	f, ok := e.fields[keyOf(ref)]
	if ok {
		delete(e.fields, keyOf(ref))
	}
	e.mu.Unlock()
	if !ok {
		return nil
	}

	f.state = StateCommitting
	e.queue.Cancel(ref)

	if err := e.doc.SetEditable(ref.BlockUID, ref.Field, false); err != nil && e.debug {
		log.Printf("[Editor] clear contenteditable on %s.%s: %v", ref.BlockUID, ref.Field, err)
	}

	if ref.Kind == hydra.FieldRichText {
		raw, err := richtext.Encode(f.doc)
		if err != nil {
			return err
		}
		return e.router.Send(hydra.TypeInlineEditData, hydra.InlineEditData{
			UID:   ref.BlockUID,
			Field: ref.Field,
			Value: string(raw),
		})
	}
	return nil
}

// DeactivateAll tears down every active field, as navigation does. Nothing
// is committed: the session is over.
func (e *Editor) DeactivateAll() {
	e.mu.Lock()
	refs := make([]hydra.EditableField, 0, len(e.fields))
	for _, f := range e.fields {
		refs = append(refs, f.ref)
	}
	e.fields = make(map[fieldKey]*fieldEdit)
	e.mu.Unlock()

	for _, ref := range refs {
		e.queue.Cancel(ref)
		if err := e.doc.SetEditable(ref.BlockUID, ref.Field, false); err != nil && e.debug {
			log.Printf("[Editor] teardown %s.%s: %v", ref.BlockUID, ref.Field, err)
		}
	}
}
