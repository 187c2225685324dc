package frame

import (
	"context"
	"fmt"
	"strconv"
	"time"

	hydra "github.com/collective/volto-hydra"
	"github.com/collective/volto-hydra/internal/dom"
)

// Carousel drives single-visible-child containers. A control element
// carries either a relative step ("+1"/"-1" from the currently visible
// slide) or a direct child id; the visibility change that follows is the
// renderer's to make and may be animated, so it is awaited, never assumed.
type Carousel struct {
	doc      *dom.Document
	router   *hydra.Router
	overlay  *Overlay
	interval time.Duration
}

// NewCarousel builds the navigator. interval is the poll cadence while
// waiting for the renderer to reveal the target slide.
func NewCarousel(doc *dom.Document, router *hydra.Router, overlay *Overlay, interval time.Duration) *Carousel {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	return &Carousel{doc: doc, router: router, overlay: overlay, interval: interval}
}

// resolveTarget turns a selector value into a slide uid, scanning siblings
// for the one without a hidden state to anchor relative steps.
func (c *Carousel) resolveTarget(containerUID, selector string) (string, error) {
	slides, err := c.doc.Slides(containerUID)
	if err != nil {
		return "", err
	}
	if len(slides) == 0 {
		return "", hydra.Errf(hydra.KindTargetNotFound, "carousel.resolve", "container %q has no slides", containerUID)
	}

	step, stepErr := strconv.Atoi(selector)
	if stepErr != nil {
		// Direct child id.
		for _, s := range slides {
			if s.UID == selector {
				return s.UID, nil
			}
		}
		return "", hydra.Errf(hydra.KindTargetNotFound, "carousel.resolve", "slide %q", selector)
	}

	visible := 0
	for i, s := range slides {
		if !s.Hidden {
			visible = i
			break
		}
	}
	target := ((visible+step)%len(slides) + len(slides)) % len(slides)
	return slides[target].UID, nil
}

// Navigate activates a navigation control, asks the admin controller to
// switch the visible slide, waits for the renderer to actually reveal it,
// and only then moves the selection onto it. The wait is what keeps a
// follow-up selection from measuring a still-hidden slide.
func (c *Carousel) Navigate(ctx context.Context, containerUID, selector string) error {
	target, err := c.resolveTarget(containerUID, selector)
	if err != nil {
		return err
	}

	payload := hydra.SelectSlide{ContainerUID: containerUID}
	if step, err := strconv.Atoi(selector); err == nil {
		payload.Step = step
	} else {
		payload.SlideUID = target
	}
	if err := c.router.Send(hydra.TypeSelectSlide, payload); err != nil {
		return err
	}

	if err := c.AwaitVisible(ctx, target); err != nil {
		return err
	}
	return c.overlay.Select(target)
}

// AwaitVisible polls until the block is present and unhidden, or the
// context expires.
func (c *Carousel) AwaitVisible(ctx context.Context, uid string) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		if c.doc.VisibleByUID(uid) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("carousel: waiting for slide %s: %w", uid, ctx.Err())
		case <-ticker.C:
		}
	}
}
