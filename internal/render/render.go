// Package render is the reference renderer: it turns a FORM_DATA snapshot
// into HTML carrying the full data-attribute contract the frame bridge
// consumes. Real deployments swap in their own frontends; the bridge only
// ever sees the attributes.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"log"
	"slices"
	"strings"

	"github.com/yuin/goldmark"

	hydra "github.com/collective/volto-hydra"
	"github.com/collective/volto-hydra/internal/richtext"
)

// HandlerFunc renders one block. Handlers for container types call back
// into the renderer for their children.
type HandlerFunc func(r *Renderer, b hydra.Block, snap hydra.FormData) (string, error)

// Renderer dispatches on block type through a closed handler table. Unknown
// types hit an explicit fallback instead of an implicit default branch.
type Renderer struct {
	handlers map[string]HandlerFunc
	md       goldmark.Markdown
	debug    bool
}

// New builds a renderer with the built-in block handlers.
func New(debug bool) *Renderer {
	r := &Renderer{
		md:    goldmark.New(),
		debug: debug,
	}
	r.handlers = map[string]HandlerFunc{
		"title":       renderTitle,
		"text":        renderText,
		"description": renderDescription,
		"image":       renderImage,
		"teaser":      renderTeaser,
		"columns":     renderColumns,
		"slider":      renderSlider,
	}
	return r
}

// Register adds or replaces a block handler.
func (r *Renderer) Register(blockType string, fn HandlerFunc) {
	r.handlers[blockType] = fn
}

// RenderPage renders the full page for a snapshot.
func (r *Renderer) RenderPage(snap hydra.FormData) (string, error) {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head></head><body>")
	for _, uid := range snap.Layout {
		out, err := r.RenderBlock(uid, snap)
		if err != nil {
			return "", err
		}
		b.WriteString(out)
	}
	b.WriteString("</body></html>")
	return b.String(), nil
}

// RenderBlock renders one block subtree.
func (r *Renderer) RenderBlock(uid string, snap hydra.FormData) (string, error) {
	blk, ok := snap.Blocks[uid]
	if !ok {
		return "", hydra.Errf(hydra.KindTargetNotFound, "render", "block %q", uid)
	}
	h, ok := r.handlers[blk.Type]
	if !ok {
		if r.debug {
			log.Printf("[Render] unknown block type %q for %s", blk.Type, uid)
		}
		return renderUnknown(r, blk, snap)
	}
	return h(r, blk, snap)
}

func stringData(b hydra.Block, key string) string {
	if v, ok := b.Data[key].(string); ok {
		return v
	}
	return ""
}

// docData recovers a richtext document from block data. Snapshots that
// crossed the wire hold it as a generic map, so it goes through JSON once
// more to get its type back.
func docData(b hydra.Block, key string) (richtext.Doc, error) {
	raw, ok := b.Data[key]
	if !ok {
		return richtext.NewDoc(""), nil
	}
	if d, ok := raw.(richtext.Doc); ok {
		return d, nil
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return richtext.Doc{}, fmt.Errorf("render: block %s field %s: %w", b.UID, key, err)
	}
	return richtext.Decode(buf)
}

func renderTitle(_ *Renderer, b hydra.Block, _ hydra.FormData) (string, error) {
	return fmt.Sprintf(
		`<h1 data-block-uid="%s"><span data-editable-field="title">%s</span></h1>`,
		html.EscapeString(b.UID), html.EscapeString(stringData(b, "title")),
	), nil
}

func renderText(_ *Renderer, b hydra.Block, _ hydra.FormData) (string, error) {
	doc, err := docData(b, "value")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		`<div data-block-uid="%s"><div data-editable-field="value">%s</div></div>`,
		html.EscapeString(b.UID), richtext.RenderHTML(doc),
	), nil
}

func renderDescription(r *Renderer, b hydra.Block, _ hydra.FormData) (string, error) {
	src := stringData(b, "text")
	var preview bytes.Buffer
	if err := r.md.Convert([]byte(src), &preview); err != nil {
		return "", fmt.Errorf("render: markdown for %s: %w", b.UID, err)
	}
	return fmt.Sprintf(
		`<div data-block-uid="%s"><div data-editable-field="text" data-height="48">%s</div><div class="md-preview">%s</div></div>`,
		html.EscapeString(b.UID), html.EscapeString(src), preview.String(),
	), nil
}

func renderImage(_ *Renderer, b hydra.Block, _ hydra.FormData) (string, error) {
	return fmt.Sprintf(
		`<figure data-block-uid="%s" data-height="120"><img data-media-field="url" src="%s" alt="%s"></figure>`,
		html.EscapeString(b.UID), html.EscapeString(stringData(b, "url")),
		html.EscapeString(stringData(b, "alt")),
	), nil
}

func renderTeaser(_ *Renderer, b hydra.Block, _ hydra.FormData) (string, error) {
	return fmt.Sprintf(
		`<div data-block-uid="%s"><a data-linkable-field="href" href="%s"><span data-editable-field="title">%s</span></a></div>`,
		html.EscapeString(b.UID), html.EscapeString(stringData(b, "href")),
		html.EscapeString(stringData(b, "title")),
	), nil
}

func renderColumns(r *Renderer, b hydra.Block, snap hydra.FormData) (string, error) {
	var cols strings.Builder
	for _, child := range b.ChildIDs("columns") {
		out, err := r.RenderBlock(child, snap)
		if err != nil {
			return "", err
		}
		// The add-direction hint rides on the child wrapper: siblings of
		// a column go to the right.
		cols.WriteString(fmt.Sprintf(`<div class="column" data-block-add="right">%s</div>`, out))
	}
	return fmt.Sprintf(
		`<div data-block-uid="%s" data-block-field="columns" data-layout="row">%s</div>`,
		html.EscapeString(b.UID), cols.String(),
	), nil
}

func renderSlider(r *Renderer, b hydra.Block, snap hydra.FormData) (string, error) {
	slides := b.ChildIDs("slides")
	// active is either a child uid or a numeric index.
	active := 0
	switch v := b.Data["active"].(type) {
	case string:
		if i := slices.Index(slides, v); i >= 0 {
			active = i
		}
	case float64:
		active = int(v)
	case int:
		active = v
	}
	if active < 0 || active >= len(slides) {
		active = 0
	}

	var body strings.Builder
	for i, child := range slides {
		out, err := r.RenderBlock(child, snap)
		if err != nil {
			return "", err
		}
		if i == active {
			body.WriteString(out)
			continue
		}
		// Hidden slides stay in the DOM so navigation can find them.
		body.WriteString(fmt.Sprintf(`<div data-hidden="true">%s</div>`, out))
	}
	body.WriteString(`<button data-block-selector="-1">Prev</button><button data-block-selector="+1">Next</button>`)
	for _, child := range slides {
		body.WriteString(fmt.Sprintf(`<button data-block-selector="%s"></button>`, html.EscapeString(child)))
	}
	return fmt.Sprintf(
		`<div data-block-uid="%s" data-block-field="slides">%s</div>`,
		html.EscapeString(b.UID), body.String(),
	), nil
}

func renderUnknown(_ *Renderer, b hydra.Block, _ hydra.FormData) (string, error) {
	return fmt.Sprintf(
		`<div data-block-uid="%s" class="unknown-block">Unknown block type: %s</div>`,
		html.EscapeString(b.UID), html.EscapeString(b.Type),
	), nil
}
