package render

import (
	"strings"
	"testing"

	hydra "github.com/collective/volto-hydra"
	"github.com/collective/volto-hydra/internal/dom"
	"github.com/collective/volto-hydra/internal/richtext"
)

func snapshot() hydra.FormData {
	return hydra.FormData{
		Blocks: map[string]hydra.Block{
			"t1": {UID: "t1", Type: "title", Data: map[string]any{"title": "Welcome"}},
			"x1": {UID: "x1", Type: "text", Data: map[string]any{"value": richtext.NewDoc("hello")}},
			"d1": {UID: "d1", Type: "description", Data: map[string]any{"text": "some **bold** words"}},
			"c1": {UID: "c1", Type: "columns", Data: map[string]any{"columns": []string{"x2", "x3"}}},
			"x2": {UID: "x2", Type: "text", Data: map[string]any{"value": richtext.NewDoc("left")}},
			"x3": {UID: "x3", Type: "text", Data: map[string]any{"value": richtext.NewDoc("right")}},
			"s1": {UID: "s1", Type: "slider", Data: map[string]any{"slides": []string{"x4", "x5"}, "active": "x5"}},
			"x4": {UID: "x4", Type: "text", Data: map[string]any{"value": richtext.NewDoc("slide one")}},
			"x5": {UID: "x5", Type: "text", Data: map[string]any{"value": richtext.NewDoc("slide two")}},
			"z1": {UID: "z1", Type: "hologram", Data: map[string]any{}},
		},
		Layout: []string{"t1", "x1", "d1", "c1", "s1", "z1"},
	}
}

func TestRenderPageIsParseable(t *testing.T) {
	out, err := New(false).RenderPage(snapshot())
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	d, err := dom.Parse(out, 1000)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	for _, uid := range []string{"t1", "x1", "c1", "x2", "x3", "s1", "x4", "x5", "z1"} {
		if _, ok := d.ElementByUID(uid); !ok {
			t.Errorf("rendered page missing block %s", uid)
		}
	}
}

func TestRenderTextCarriesEditableContract(t *testing.T) {
	out, err := New(false).RenderBlock("x1", snapshot())
	if err != nil {
		t.Fatalf("RenderBlock: %v", err)
	}
	for _, want := range []string{`data-block-uid="x1"`, `data-editable-field="value"`, `data-node-id="`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s: %s", want, out)
		}
	}
}

func TestRenderColumnsLayoutAndDirectionHints(t *testing.T) {
	out, err := New(false).RenderBlock("c1", snapshot())
	if err != nil {
		t.Fatalf("RenderBlock: %v", err)
	}
	if !strings.Contains(out, `data-layout="row"`) {
		t.Errorf("columns wrapper missing row layout: %s", out)
	}
	if strings.Count(out, `data-block-add="right"`) != 2 {
		t.Errorf("column wrappers missing add-direction hints: %s", out)
	}
}

func TestRenderSliderHidesInactive(t *testing.T) {
	out, err := New(false).RenderBlock("s1", snapshot())
	if err != nil {
		t.Fatalf("RenderBlock: %v", err)
	}
	d, err := dom.Parse("<html><body>"+out+"</body></html>", 800)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if d.VisibleByUID("x4") {
		t.Errorf("inactive slide x4 is visible")
	}
	if !d.VisibleByUID("x5") {
		t.Errorf("active slide x5 is hidden")
	}
	slides, err := d.Slides("s1")
	if err != nil || len(slides) != 2 {
		t.Errorf("Slides = %+v, %v, want both slides present", slides, err)
	}
}

func TestRenderDescriptionKeepsSourceEditable(t *testing.T) {
	out, err := New(false).RenderBlock("d1", snapshot())
	if err != nil {
		t.Fatalf("RenderBlock: %v", err)
	}
	if !strings.Contains(out, "some **bold** words") {
		t.Errorf("raw source not present for editing: %s", out)
	}
	if !strings.Contains(out, "<strong>bold</strong>") {
		t.Errorf("markdown preview not rendered: %s", out)
	}
}

func TestRenderUnknownTypeFallsBack(t *testing.T) {
	out, err := New(false).RenderBlock("z1", snapshot())
	if err != nil {
		t.Fatalf("RenderBlock: %v", err)
	}
	if !strings.Contains(out, "hologram") || !strings.Contains(out, `data-block-uid="z1"`) {
		t.Errorf("unknown-type fallback output: %s", out)
	}
}

func TestRenderMissingBlockErrors(t *testing.T) {
	_, err := New(false).RenderBlock("nope", snapshot())
	if !hydra.IsKind(err, hydra.KindTargetNotFound) {
		t.Errorf("err = %v, want target-not-found", err)
	}
}

func TestRegisterOverridesHandler(t *testing.T) {
	r := New(false)
	r.Register("title", func(_ *Renderer, b hydra.Block, _ hydra.FormData) (string, error) {
		return `<div data-block-uid="` + b.UID + `">custom</div>`, nil
	})
	out, err := r.RenderBlock("t1", snapshot())
	if err != nil {
		t.Fatalf("RenderBlock: %v", err)
	}
	if !strings.Contains(out, "custom") {
		t.Errorf("custom handler not used: %s", out)
	}
}
