package frame

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	hydra "github.com/collective/volto-hydra"
	"github.com/collective/volto-hydra/internal/dom"
)

const carouselPage = `<html><body>
<div data-block-uid="c1" data-block-field="slides">
  <button data-block-selector="-1">Prev</button>
  <div><div data-block-uid="s1">one</div></div>
  <div data-hidden="true"><div data-block-uid="s2">two</div></div>
  <div data-hidden="true"><div data-block-uid="s3">three</div></div>
  <button data-block-selector="+1">Next</button>
</div>
</body></html>`

// carouselPageSecond is the same slider after the renderer revealed s2.
const carouselPageSecond = `<html><body>
<div data-block-uid="c1" data-block-field="slides">
  <button data-block-selector="-1">Prev</button>
  <div data-hidden="true"><div data-block-uid="s1">one</div></div>
  <div><div data-block-uid="s2">two</div></div>
  <div data-hidden="true"><div data-block-uid="s3">three</div></div>
  <button data-block-selector="+1">Next</button>
</div>
</body></html>`

func newCarouselHarness(t *testing.T) (*Carousel, *dom.Document, *adminStub, *hydra.Loopback) {
	t.Helper()
	router, stub, lb := newFrameRouter(t)
	d, err := dom.Parse(carouselPage, 800)
	require.NoError(t, err)
	d.Layout()
	overlay := NewOverlay(d, router, hydra.Rect{}, false)
	return NewCarousel(d, router, overlay, time.Millisecond), d, stub, lb
}

func TestResolveTarget(t *testing.T) {
	c, _, _, _ := newCarouselHarness(t)

	tests := []struct {
		name     string
		selector string
		want     string
	}{
		{"step forward", "+1", "s2"},
		{"step back wraps", "-1", "s3"},
		{"two forward", "2", "s3"},
		{"direct id", "s3", "s3"},
		{"zero stays", "0", "s1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.resolveTarget("c1", tt.selector)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestResolveTargetUnknownSlide(t *testing.T) {
	c, _, _, _ := newCarouselHarness(t)

	_, err := c.resolveTarget("c1", "s9")
	require.Error(t, err)
	require.True(t, hydra.IsKind(err, hydra.KindTargetNotFound))

	_, err = c.resolveTarget("nope", "+1")
	require.Error(t, err)
}

func TestNavigateWaitsForVisibilityThenSelects(t *testing.T) {
	c, d, stub, lb := newCarouselHarness(t)

	// Reveal the slide only after the admin controller has been asked,
	// the way a renderer driven by the next snapshot would.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for stub.count(hydra.TypeSelectSlide) == 0 {
			time.Sleep(time.Millisecond)
		}
		if err := d.SetHTML(carouselPageSecond); err != nil {
			t.Error(err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Navigate(ctx, "c1", "+1"))
	<-done
	lb.Settle()

	m, ok := stub.last(hydra.TypeSelectSlide)
	require.True(t, ok)
	var sel hydra.SelectSlide
	require.NoError(t, m.Decode(&sel))
	require.Equal(t, hydra.SelectSlide{ContainerUID: "c1", Step: 1}, sel)

	// Selection landed on the revealed slide, with a measured rect.
	require.Equal(t, "s2", c.overlay.Selected())
	got := lastSelected(t, stub)
	require.Equal(t, "s2", got.UID)
	require.NotZero(t, got.Rect.Height)
}

func TestNavigateSendsDirectSlideUID(t *testing.T) {
	c, d, stub, lb := newCarouselHarness(t)

	go func() {
		for stub.count(hydra.TypeSelectSlide) == 0 {
			time.Sleep(time.Millisecond)
		}
		_ = d.SetHTML(carouselPageSecond)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Navigate(ctx, "c1", "s2"))
	lb.Settle()

	m, _ := stub.last(hydra.TypeSelectSlide)
	var sel hydra.SelectSlide
	require.NoError(t, m.Decode(&sel))
	require.Equal(t, hydra.SelectSlide{ContainerUID: "c1", SlideUID: "s2"}, sel)
}

func TestNavigateTimesOutWhenSlideStaysHidden(t *testing.T) {
	c, _, _, lb := newCarouselHarness(t)

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()
	err := c.Navigate(ctx, "c1", "+1")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	lb.Settle()
	// No selection was moved onto the still-hidden slide.
	require.Equal(t, "", c.overlay.Selected())
}
