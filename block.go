package hydra

// Block is one node of the authoritative content tree. Identity is UID,
// stable across re-renders. The admin controller owns blocks; the frame
// bridge only mirrors them through data-block-uid DOM attributes.
type Block struct {
	UID            string         `json:"uid"`
	Type           string         `json:"@type"`
	Data           map[string]any `json:"data,omitempty"`
	ParentUID      string         `json:"parentUid,omitempty"`
	ContainerField string         `json:"containerField,omitempty"`
}

// ChildIDs returns the ordered child uid list stored under the given
// container field, or nil when the block has no such container.
func (b Block) ChildIDs(field string) []string {
	raw, ok := b.Data[field]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		ids := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				ids = append(ids, s)
			}
		}
		return ids
	}
	return nil
}

// FieldKind classifies how an editable field is edited.
type FieldKind string

const (
	FieldPlainText     FieldKind = "plainText"
	FieldMultilineText FieldKind = "multilineText"
	FieldRichText      FieldKind = "richText"

	// Media and link fields are not typed into; their value is a path
	// committed by the admin app's asset browser.
	FieldMedia FieldKind = "media"
	FieldLink  FieldKind = "link"
)

// EditableField references one editable field of a block. It exists only
// while the owning block is selected and the frame has attached edit
// affordances.
type EditableField struct {
	BlockUID string    `json:"blockUid"`
	Field    string    `json:"field"`
	Kind     FieldKind `json:"kind"`
}

// PathEntry locates a block within the tree.
type PathEntry struct {
	ParentUID      string   `json:"parentUid"`
	ContainerField string   `json:"containerField"`
	AllowedTypes   []string `json:"allowedTypes,omitempty"`
	Path           []string `json:"path"`
}

// BlockPathMap maps uid to its position in the block tree. The admin
// controller rebuilds it after every structural change and pushes it to the
// frame inside FORM_DATA. Every non-root entry's ParentUID resolves to an
// existing block; root blocks have ParentUID "".
type BlockPathMap map[string]PathEntry

// Parent returns the path entry for uid, reporting whether it exists.
func (m BlockPathMap) Parent(uid string) (PathEntry, bool) {
	e, ok := m[uid]
	return e, ok
}

// Rect is a block's bounding rectangle in the parent document's coordinate
// space: the content-frame rectangle translated by the frame element's own
// position within the admin page.
type Rect struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Translate returns r shifted by the top-left corner of offset.
func (r Rect) Translate(offset Rect) Rect {
	r.Top += offset.Top
	r.Left += offset.Left
	return r
}

// SelPoint is one end of a text selection, addressed by the stable
// data-node-id rendered into the DOM rather than by DOM paths, which do not
// survive reconciliation.
type SelPoint struct {
	NodeID string `json:"nodeId"`
	Offset int    `json:"offset"`
}

// Selection is a captured DOM selection, anchor and focus.
type Selection struct {
	Anchor SelPoint `json:"anchor"`
	Focus  SelPoint `json:"focus"`
}

// Collapsed reports whether the selection is a bare cursor.
func (s Selection) Collapsed() bool {
	return s.Anchor == s.Focus
}
