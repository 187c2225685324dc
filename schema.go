package hydra

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Payload schemas, one per message type. A message whose payload does not
// validate is dropped whole; it is never partially applied.

const rectSchema = `{
	"type": "object",
	"required": ["top", "left", "width", "height"],
	"properties": {
		"top": {"type": "number"},
		"left": {"type": "number"},
		"width": {"type": "number"},
		"height": {"type": "number"}
	}
}`

const pointSchema = `{
	"type": "object",
	"required": ["nodeId", "offset"],
	"properties": {
		"nodeId": {"type": "string", "minLength": 1},
		"offset": {"type": "integer", "minimum": 0}
	}
}`

const selectionSchema = `{
	"type": "object",
	"required": ["anchor", "focus"],
	"properties": {
		"anchor": ` + pointSchema + `,
		"focus": ` + pointSchema + `
	}
}`

var payloadSchemas = map[MessageType]*jsonschema.Schema{
	TypeURLChange: mustCompile("url_change.json", `{
		"type": "object",
		"required": ["url"],
		"properties": {"url": {"type": "string", "minLength": 1}}
	}`),
	TypeGetToken: nil,
	TypeGetTokenResponse: mustCompile("get_token_response.json", `{
		"type": "object",
		"required": ["token"],
		"properties": {"token": {"type": "string", "minLength": 1}}
	}`),
	TypeFormData: mustCompile("form_data.json", `{
		"type": "object",
		"required": ["blocks", "blocks_layout"],
		"properties": {
			"blocks": {"type": "object"},
			"blocks_layout": {"type": "array", "items": {"type": "string"}},
			"pathMap": {"type": "object"}
		}
	}`),
	TypeBlockSelected: mustCompile("block_selected.json", `{
		"type": "object",
		"required": ["uid", "rect"],
		"properties": {
			"uid": {"type": "string", "minLength": 1},
			"rect": `+rectSchema+`
		}
	}`),
	TypeSelectBlock: mustCompile("select_block.json", `{
		"type": "object",
		"required": ["uid"],
		"properties": {"uid": {"type": "string", "minLength": 1}}
	}`),
	TypeInlineEditData: mustCompile("inline_edit_data.json", `{
		"type": "object",
		"required": ["uid", "field", "value"],
		"properties": {
			"uid": {"type": "string", "minLength": 1},
			"field": {"type": "string", "minLength": 1},
			"value": {"type": "string"}
		}
	}`),
	TypeTransformRequest: mustCompile("transform_request.json", `{
		"type": "object",
		"required": ["id", "uid", "field", "op", "selection", "doc"],
		"properties": {
			"id": {"type": "string", "minLength": 1},
			"uid": {"type": "string", "minLength": 1},
			"field": {"type": "string", "minLength": 1},
			"op": {
				"type": "object",
				"required": ["kind"],
				"properties": {
					"kind": {"enum": ["format", "split", "merge", "insertText"]},
					"format": {"type": "string"},
					"text": {"type": "string"}
				}
			},
			"selection": `+selectionSchema+`,
			"doc": {}
		}
	}`),
	TypeTransformResponse: mustCompile("transform_response.json", `{
		"type": "object",
		"required": ["id"],
		"properties": {
			"id": {"type": "string", "minLength": 1},
			"doc": {},
			"error": {"type": "string"}
		}
	}`),
	TypeAddBlock: mustCompile("add_block.json", `{
		"type": "object",
		"required": ["targetUid", "newUid", "@type", "direction"],
		"properties": {
			"targetUid": {"type": "string", "minLength": 1},
			"newUid": {"type": "string", "minLength": 1},
			"@type": {"type": "string", "minLength": 1},
			"direction": {"enum": ["right", "bottom"]}
		}
	}`),
	TypeDeleteBlock: mustCompile("delete_block.json", `{
		"type": "object",
		"required": ["uid"],
		"properties": {"uid": {"type": "string", "minLength": 1}}
	}`),
	TypeMoveBlock: mustCompile("move_block.json", `{
		"type": "object",
		"required": ["parentUid", "containerField", "order"],
		"properties": {
			"parentUid": {"type": "string"},
			"containerField": {"type": "string", "minLength": 1},
			"order": {"type": "array", "items": {"type": "string", "minLength": 1}}
		}
	}`),
	TypeOpenObjectBrowser: mustCompile("open_object_browser.json", `{
		"type": "object",
		"required": ["mode"],
		"properties": {"mode": {"enum": ["image", "link"]}}
	}`),
	TypeObjectSelected: mustCompile("object_selected.json", `{
		"type": "object",
		"required": ["path"],
		"properties": {"path": {"type": "string", "minLength": 1}}
	}`),
	TypeSelectSlide: mustCompile("select_slide.json", `{
		"type": "object",
		"required": ["containerUid"],
		"properties": {
			"containerUid": {"type": "string", "minLength": 1},
			"step": {"type": "integer"},
			"slideUid": {"type": "string"}
		}
	}`),
	TypeReload: nil,
}

func mustCompile(name, src string) *jsonschema.Schema {
	return jsonschema.MustCompileString(name, src)
}

// ValidateMessage checks a message payload against its type's schema. A nil
// schema means the type carries no payload and anything present is ignored.
// Unknown types are schema-invalid.
func ValidateMessage(m Message) error {
	schema, known := payloadSchemas[m.Type]
	if !known {
		return Errf(KindSchemaInvalid, "validate", "unknown message type %q", m.Type)
	}
	if schema == nil {
		return nil
	}
	if len(m.Data) == 0 {
		return Errf(KindSchemaInvalid, "validate", "%s: missing payload", m.Type)
	}
	var instance any
	if err := json.Unmarshal(m.Data, &instance); err != nil {
		return &BridgeError{
			Kind: KindSchemaInvalid,
			Op:   "validate",
			Err:  fmt.Errorf("%s: %w", m.Type, err),
		}
	}
	if err := schema.Validate(instance); err != nil {
		return &BridgeError{
			Kind: KindSchemaInvalid,
			Op:   "validate",
			Err:  fmt.Errorf("%s: %w", m.Type, err),
		}
	}
	return nil
}
