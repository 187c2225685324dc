// Package admin is the controller half of the editing bridge: it owns the
// authoritative content tree, applies every structural and inline mutation
// the frame reports, runs the rich-text document engine, and pushes the
// updated snapshot back after each change. The frame never mutates content
// on its own authority; everything round-trips through here.
package admin

import (
	"encoding/json"
	"log"
	"slices"
	"sync"

	hydra "github.com/collective/volto-hydra"
	"github.com/collective/volto-hydra/internal/richtext"
)

// ObjectPicker is the admin app's asset browser. Pick blocks until the
// user chose a path or dismissed the dialog.
type ObjectPicker interface {
	Pick(mode string) (path string, ok bool)
}

// PickerFunc adapts a function to the ObjectPicker interface.
type PickerFunc func(mode string) (path string, ok bool)

func (f PickerFunc) Pick(mode string) (string, bool) { return f(mode) }

// Controller drives the admin side of one edit session.
type Controller struct {
	router *hydra.Router
	tokens *TokenIssuer
	picker ObjectPicker
	debug  bool

	// transformDelay, when set, runs before each transform response is
	// sent. Tests use it to hold responses open while input arrives.
	transformDelay func()

	mu       sync.Mutex
	blocks   map[string]hydra.Block
	layout   []string
	frameURL string
	selected string
}

// NewController builds a controller over a channel endpoint. frameOrigin
// is the only origin whose messages are accepted.
func NewController(ch hydra.Channel, frameOrigin string, tokens *TokenIssuer, debug bool) *Controller {
	router := hydra.NewRouter(ch, frameOrigin, debug)
	c := &Controller{
		router: router,
		tokens: tokens,
		debug:  debug,
		blocks: make(map[string]hydra.Block),
	}
	router.Handle(hydra.TypeURLChange, c.onURLChange)
	router.Handle(hydra.TypeGetToken, c.onGetToken)
	router.Handle(hydra.TypeBlockSelected, c.onBlockSelected)
	router.Handle(hydra.TypeInlineEditData, c.onInlineEdit)
	router.Handle(hydra.TypeTransformRequest, c.onTransformRequest)
	router.Handle(hydra.TypeAddBlock, c.onAddBlock)
	router.Handle(hydra.TypeDeleteBlock, c.onDeleteBlock)
	router.Handle(hydra.TypeMoveBlock, c.onMoveBlock)
	router.Handle(hydra.TypeOpenObjectBrowser, c.onOpenObjectBrowser)
	router.Handle(hydra.TypeSelectSlide, c.onSelectSlide)
	return c
}

// Start begins receiving messages.
func (c *Controller) Start() {
	c.router.Start()
}

// Close shuts the controller's channel down.
func (c *Controller) Close() error {
	return c.router.Close()
}

// SetPicker installs the asset browser used for OPEN_OBJECT_BROWSER.
func (c *Controller) SetPicker(p ObjectPicker) {
	c.picker = p
}

// SetTransformDelay installs a hook run before each transform response.
func (c *Controller) SetTransformDelay(fn func()) {
	c.transformDelay = fn
}

// Load replaces the content tree and pushes the snapshot to the frame.
func (c *Controller) Load(blocks map[string]hydra.Block, layout []string) error {
	c.mu.Lock()
	c.blocks = make(map[string]hydra.Block, len(blocks))
	for k, v := range blocks {
		c.blocks[k] = v
	}
	c.layout = slices.Clone(layout)
	c.mu.Unlock()
	return c.PushFormData()
}

// Snapshot returns a copy of the authoritative tree.
func (c *Controller) Snapshot() hydra.FormData {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() hydra.FormData {
	blocks := make(map[string]hydra.Block, len(c.blocks))
	for k, v := range c.blocks {
		blocks[k] = v
	}
	layout := slices.Clone(c.layout)
	if layout == nil {
		layout = []string{}
	}
	return hydra.FormData{
		Blocks:  blocks,
		Layout:  layout,
		PathMap: c.pathMapLocked(),
	}
}

// pathMapLocked derives block locations from the tree. Root-level blocks
// carry the page layout field as their container so reorder messages can
// name it.
func (c *Controller) pathMapLocked() hydra.BlockPathMap {
	pm := make(hydra.BlockPathMap, len(c.blocks))
	for _, uid := range c.layout {
		pm[uid] = hydra.PathEntry{ContainerField: "blocks_layout"}
	}
	for uid, blk := range c.blocks {
		for _, field := range containerFields(blk) {
			for _, child := range blk.ChildIDs(field) {
				pm[child] = hydra.PathEntry{ParentUID: uid, ContainerField: field}
			}
		}
	}
	return pm
}

// containerFields lists the data keys of blk that hold child-uid lists.
func containerFields(blk hydra.Block) []string {
	var fields []string
	for key, v := range blk.Data {
		switch v.(type) {
		case []string:
			fields = append(fields, key)
		case []any:
			all := true
			for _, e := range v.([]any) {
				if _, ok := e.(string); !ok {
					all = false
					break
				}
			}
			if all && len(v.([]any)) > 0 {
				fields = append(fields, key)
			}
		}
	}
	slices.Sort(fields)
	return fields
}

// PushFormData sends the current snapshot to the frame.
func (c *Controller) PushFormData() error {
	return c.router.Send(hydra.TypeFormData, c.Snapshot())
}

// SelectBlock drives a sidebar-initiated selection into the frame.
func (c *Controller) SelectBlock(uid string) error {
	return c.router.Send(hydra.TypeSelectBlock, hydra.SelectBlock{UID: uid})
}

// Reload asks the frame to drop its edit state and start over.
func (c *Controller) Reload() error {
	return c.router.Send(hydra.TypeReload, nil)
}

// FrameURL returns the last URL the frame reported.
func (c *Controller) FrameURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frameURL
}

// Selected returns the uid the frame last reported selected.
func (c *Controller) Selected() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

func (c *Controller) onURLChange(m hydra.Message) {
	var u hydra.URLChange
	if err := m.Decode(&u); err != nil {
		return
	}
	c.mu.Lock()
	c.frameURL = u.URL
	c.selected = ""
	c.mu.Unlock()
	if c.debug {
		log.Printf("[Admin] frame navigated to %s", u.URL)
	}
}

func (c *Controller) onGetToken(hydra.Message) {
	if c.tokens == nil {
		return
	}
	token, err := c.tokens.Issue()
	if err != nil {
		if c.debug {
			log.Printf("[Admin] issue token: %v", err)
		}
		return
	}
	if err := c.router.Send(hydra.TypeGetTokenResponse, hydra.TokenResponse{Token: token}); err != nil && c.debug {
		log.Printf("[Admin] send token: %v", err)
	}
}

func (c *Controller) onBlockSelected(m hydra.Message) {
	var sel hydra.BlockSelected
	if err := m.Decode(&sel); err != nil {
		return
	}
	c.mu.Lock()
	c.selected = sel.UID
	c.mu.Unlock()
}

// onInlineEdit commits a field value. Rich fields arrive as the serialized
// document; everything else is the literal string.
func (c *Controller) onInlineEdit(m hydra.Message) {
	var edit hydra.InlineEditData
	if err := m.Decode(&edit); err != nil {
		return
	}
	c.mu.Lock()
	blk, ok := c.blocks[edit.UID]
	if !ok {
		c.mu.Unlock()
		if c.debug {
			log.Printf("[Admin] inline edit for unknown block %s", edit.UID)
		}
		return
	}
	data := cloneData(blk.Data)
	if d, err := richtext.Decode(json.RawMessage(edit.Value)); err == nil && len(d.Nodes) > 0 {
		data[edit.Field] = d
	} else {
		data[edit.Field] = edit.Value
	}
	blk.Data = data
	c.blocks[edit.UID] = blk
	c.mu.Unlock()

	if err := c.PushFormData(); err != nil && c.debug {
		log.Printf("[Admin] push after inline edit: %v", err)
	}
}

// onTransformRequest runs the document engine over the submitted document
// and answers with the result, correlated by the request id. Failures
// travel back as an error response so the frame can revert; nothing is
// retried.
func (c *Controller) onTransformRequest(m hydra.Message) {
	var req hydra.TransformRequest
	if err := m.Decode(&req); err != nil {
		return
	}
	if c.transformDelay != nil {
		c.transformDelay()
	}

	resp := hydra.TransformResponse{ID: req.ID}
	d, err := richtext.Decode(req.Doc)
	if err == nil {
		d, err = richtext.Apply(d, req.Op, req.Selection)
	}
	if err != nil {
		resp.Error = err.Error()
	} else {
		raw, encErr := richtext.Encode(d)
		if encErr != nil {
			resp.Error = encErr.Error()
		} else {
			resp.Doc = raw
			c.commitDoc(req.UID, req.Field, d)
		}
	}
	if err := c.router.Send(hydra.TypeTransformResponse, resp); err != nil && c.debug {
		log.Printf("[Admin] send transform response %s: %v", req.ID, err)
	}
}

func (c *Controller) commitDoc(uid, field string, d richtext.Doc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	blk, ok := c.blocks[uid]
	if !ok {
		return
	}
	data := cloneData(blk.Data)
	data[field] = d
	blk.Data = data
	c.blocks[uid] = blk
}

// onAddBlock inserts a new empty block next to the target, honoring the
// direction the frame inferred from layout.
func (c *Controller) onAddBlock(m hydra.Message) {
	var add hydra.AddBlock
	if err := m.Decode(&add); err != nil {
		return
	}
	c.mu.Lock()
	entry, ok := c.pathMapLocked()[add.TargetUID]
	if !ok {
		c.mu.Unlock()
		if c.debug {
			log.Printf("[Admin] add next to unknown block %s", add.TargetUID)
		}
		return
	}

	newBlock := hydra.Block{UID: add.NewUID, Type: add.BlockType, Data: map[string]any{}}
	if add.BlockType == "text" || add.BlockType == "slate" {
		newBlock.Data["value"] = richtext.NewDoc("")
	}
	c.blocks[add.NewUID] = newBlock

	if entry.ParentUID == "" {
		c.layout = insertAfter(c.layout, add.TargetUID, add.NewUID)
	} else if parent, ok := c.blocks[entry.ParentUID]; ok {
		data := cloneData(parent.Data)
		data[entry.ContainerField] = insertAfter(parent.ChildIDs(entry.ContainerField), add.TargetUID, add.NewUID)
		parent.Data = data
		c.blocks[entry.ParentUID] = parent
	}
	c.mu.Unlock()

	if err := c.PushFormData(); err != nil && c.debug {
		log.Printf("[Admin] push after add: %v", err)
	}
	if err := c.SelectBlock(add.NewUID); err != nil && c.debug {
		log.Printf("[Admin] select new block: %v", err)
	}
}

func insertAfter(order []string, target, uid string) []string {
	out := slices.Clone(order)
	i := slices.Index(out, target)
	if i < 0 {
		return append(out, uid)
	}
	return slices.Insert(out, i+1, uid)
}

// onDeleteBlock removes a block and its entire subtree.
func (c *Controller) onDeleteBlock(m hydra.Message) {
	var del hydra.DeleteBlock
	if err := m.Decode(&del); err != nil {
		return
	}
	c.mu.Lock()
	entry := c.pathMapLocked()[del.UID]
	c.removeSubtreeLocked(del.UID)
	if entry.ParentUID == "" {
		c.layout = removeUID(c.layout, del.UID)
	} else if parent, ok := c.blocks[entry.ParentUID]; ok {
		data := cloneData(parent.Data)
		data[entry.ContainerField] = removeUID(parent.ChildIDs(entry.ContainerField), del.UID)
		parent.Data = data
		c.blocks[entry.ParentUID] = parent
	}
	if c.selected == del.UID {
		c.selected = ""
	}
	c.mu.Unlock()

	if err := c.PushFormData(); err != nil && c.debug {
		log.Printf("[Admin] push after delete: %v", err)
	}
}

func (c *Controller) removeSubtreeLocked(uid string) {
	blk, ok := c.blocks[uid]
	if !ok {
		return
	}
	for _, field := range containerFields(blk) {
		for _, child := range blk.ChildIDs(field) {
			c.removeSubtreeLocked(child)
		}
	}
	delete(c.blocks, uid)
}

func removeUID(order []string, uid string) []string {
	out := slices.Clone(order)
	if i := slices.Index(out, uid); i >= 0 {
		out = slices.Delete(out, i, i+1)
	}
	return out
}

// onMoveBlock replaces a container's child order wholesale. The message
// carries the complete list, so reordering is idempotent and cannot drift
// from partial diffs.
func (c *Controller) onMoveBlock(m hydra.Message) {
	var mv hydra.MoveBlock
	if err := m.Decode(&mv); err != nil {
		return
	}
	c.mu.Lock()
	if mv.ParentUID == "" {
		if !sameMembers(c.layout, mv.Order) {
			c.mu.Unlock()
			if c.debug {
				log.Printf("[Admin] move rejected: order members differ from layout")
			}
			return
		}
		c.layout = slices.Clone(mv.Order)
	} else {
		parent, ok := c.blocks[mv.ParentUID]
		if !ok {
			c.mu.Unlock()
			return
		}
		if !sameMembers(parent.ChildIDs(mv.ContainerField), mv.Order) {
			c.mu.Unlock()
			if c.debug {
				log.Printf("[Admin] move rejected: order members differ in %s.%s", mv.ParentUID, mv.ContainerField)
			}
			return
		}
		data := cloneData(parent.Data)
		data[mv.ContainerField] = slices.Clone(mv.Order)
		parent.Data = data
		c.blocks[mv.ParentUID] = parent
	}
	c.mu.Unlock()

	if err := c.PushFormData(); err != nil && c.debug {
		log.Printf("[Admin] push after move: %v", err)
	}
}

func sameMembers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as, bs := slices.Clone(a), slices.Clone(b)
	slices.Sort(as)
	slices.Sort(bs)
	return slices.Equal(as, bs)
}

func (c *Controller) onOpenObjectBrowser(m hydra.Message) {
	var open hydra.OpenObjectBrowser
	if err := m.Decode(&open); err != nil {
		return
	}
	if c.picker == nil {
		return
	}
	path, ok := c.picker.Pick(open.Mode)
	if !ok {
		return
	}
	if err := c.router.Send(hydra.TypeObjectSelected, hydra.ObjectSelected{Path: path}); err != nil && c.debug {
		log.Printf("[Admin] send object selection: %v", err)
	}
}

// onSelectSlide updates which child of a single-visible-child container is
// active and pushes the snapshot; the frame re-renders and confirms
// visibility on its side.
func (c *Controller) onSelectSlide(m hydra.Message) {
	var sel hydra.SelectSlide
	if err := m.Decode(&sel); err != nil {
		return
	}
	c.mu.Lock()
	blk, ok := c.blocks[sel.ContainerUID]
	if !ok {
		c.mu.Unlock()
		return
	}
	slides := blk.ChildIDs("slides")
	if len(slides) == 0 {
		c.mu.Unlock()
		return
	}
	active, _ := blk.Data["active"].(string)
	var next string
	if sel.SlideUID != "" {
		if !slices.Contains(slides, sel.SlideUID) {
			c.mu.Unlock()
			return
		}
		next = sel.SlideUID
	} else {
		i := slices.Index(slides, active)
		if i < 0 {
			i = 0
		}
		n := len(slides)
		next = slides[((i+sel.Step)%n+n)%n]
	}
	data := cloneData(blk.Data)
	data["active"] = next
	blk.Data = data
	c.blocks[sel.ContainerUID] = blk
	c.mu.Unlock()

	if err := c.PushFormData(); err != nil && c.debug {
		log.Printf("[Admin] push after slide change: %v", err)
	}
}

func cloneData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
