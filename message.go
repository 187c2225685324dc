package hydra

import (
	"encoding/json"
	"fmt"
)

// MessageType identifies one message of the bridge protocol. The set is
// closed: the router drops anything it does not know.
type MessageType string

const (
	// Frame to admin.
	TypeURLChange         MessageType = "URL_CHANGE"
	TypeGetToken          MessageType = "GET_TOKEN"
	TypeBlockSelected     MessageType = "BLOCK_SELECTED"
	TypeInlineEditData    MessageType = "INLINE_EDIT_DATA"
	TypeTransformRequest  MessageType = "SLATE_TRANSFORM_REQUEST"
	TypeAddBlock          MessageType = "ADD_BLOCK"
	TypeDeleteBlock       MessageType = "DELETE_BLOCK"
	TypeMoveBlock         MessageType = "MOVE_BLOCK"
	TypeOpenObjectBrowser MessageType = "OPEN_OBJECT_BROWSER"
	TypeSelectSlide       MessageType = "SELECT_SLIDE"

	// Admin to frame.
	TypeGetTokenResponse  MessageType = "GET_TOKEN_RESPONSE"
	TypeFormData          MessageType = "FORM_DATA"
	TypeSelectBlock       MessageType = "SELECT_BLOCK"
	TypeTransformResponse MessageType = "SLATE_TRANSFORM_RESPONSE"
	TypeObjectSelected    MessageType = "OBJECT_SELECTED"
	TypeReload            MessageType = "RELOAD"
)

// Message is the wire envelope: a type tag plus the raw payload.
type Message struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewMessage marshals payload into a Message envelope.
func NewMessage(t MessageType, payload any) (Message, error) {
	if payload == nil {
		return Message{Type: t}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Message{Type: t, Data: data}, nil
}

// Decode unmarshals the message payload into out.
func (m Message) Decode(out any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("decode %s: empty payload", m.Type)
	}
	if err := json.Unmarshal(m.Data, out); err != nil {
		return fmt.Errorf("decode %s: %w", m.Type, err)
	}
	return nil
}

// Delivery is a message as received from the channel, stamped with the
// origin of the sending runtime.
type Delivery struct {
	Origin  string  `json:"origin"`
	Message Message `json:"message"`
}

// URLChange reports that the content frame navigated.
type URLChange struct {
	URL string `json:"url"`
}

// TokenResponse delivers an auth token to the frame.
type TokenResponse struct {
	Token string `json:"token"`
}

// FormData is the authoritative content snapshot pushed by the admin
// controller after every change it applies. The frame treats it as a
// read-mostly mirror and re-renders from it.
type FormData struct {
	Blocks  map[string]Block `json:"blocks"`
	Layout  []string         `json:"blocks_layout"`
	PathMap BlockPathMap     `json:"pathMap"`
}

// BlockSelected carries a selection and its current on-screen geometry.
type BlockSelected struct {
	UID  string `json:"uid"`
	Rect Rect   `json:"rect"`
}

// SelectBlock is a parent-initiated selection.
type SelectBlock struct {
	UID string `json:"uid"`
}

// InlineEditData commits a plain or multiline field edit.
type InlineEditData struct {
	UID   string `json:"uid"`
	Field string `json:"field"`
	Value string `json:"value"`
}

// TransformOp names a document-level operation the admin's rich-text engine
// must compute. OpKind is the closed tag; Format is set for format toggles.
type TransformOp struct {
	Kind   OpKind `json:"kind"`
	Format string `json:"format,omitempty"`
	Text   string `json:"text,omitempty"`
}

// OpKind tags a TransformOp.
type OpKind string

const (
	OpFormat     OpKind = "format"
	OpSplit      OpKind = "split"
	OpMerge      OpKind = "merge"
	OpInsertText OpKind = "insertText"
)

// TransformRequest asks the admin controller to reinterpret a rich-text
// field. Doc is the field's current document value; the response is
// correlated by ID.
type TransformRequest struct {
	ID        string          `json:"id"`
	UID       string          `json:"uid"`
	Field     string          `json:"field"`
	Op        TransformOp     `json:"op"`
	Selection Selection       `json:"selection"`
	Doc       json.RawMessage `json:"doc"`
}

// TransformResponse carries the resolved document, or Error when the
// document engine failed. A response whose ID matches no pending transform
// is a no-op on the frame side.
type TransformResponse struct {
	ID    string          `json:"id"`
	Doc   json.RawMessage `json:"doc,omitempty"`
	Error string          `json:"error,omitempty"`
}

// AddDirection says where a new block goes relative to its target sibling.
type AddDirection string

const (
	AddRight  AddDirection = "right"
	AddBottom AddDirection = "bottom"
)

// AddBlock requests insertion of a new block next to TargetUID.
type AddBlock struct {
	TargetUID string       `json:"targetUid"`
	NewUID    string       `json:"newUid"`
	BlockType string       `json:"@type"`
	Direction AddDirection `json:"direction"`
}

// DeleteBlock requests removal of a block from the tree.
type DeleteBlock struct {
	UID string `json:"uid"`
}

// MoveBlock finalizes a drag-reorder. Order is the complete new child-id
// list of the affected container, not a diff; the controller treats it as
// authoritative.
type MoveBlock struct {
	ParentUID      string   `json:"parentUid"`
	ContainerField string   `json:"containerField"`
	Order          []string `json:"order"`
}

// OpenObjectBrowser asks the admin app to show its asset picker.
type OpenObjectBrowser struct {
	Mode string `json:"mode"`
}

// ObjectSelected delivers the asset picker result.
type ObjectSelected struct {
	Path string `json:"path"`
}

// SelectSlide asks the admin controller to reveal a different child of a
// single-visible-child container. Either Step (+1/-1 relative to the
// visible child) or SlideUID is set.
type SelectSlide struct {
	ContainerUID string `json:"containerUid"`
	Step         int    `json:"step,omitempty"`
	SlideUID     string `json:"slideUid,omitempty"`
}
