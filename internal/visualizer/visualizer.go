// Package visualizer turns prediction records into map markers, category
// counts and detail-panel content. It knows nothing about the widget that
// draws the markers: drawing goes through a Surface, details through a
// DetailPanel.
package visualizer

import (
	"errors"
	"fmt"

	"github.com/Zachdehooge/traffic-dashboard/internal/fetcher"
)

// ErrUnknownMarker is returned by Dispatch for an id outside the current pass.
var ErrUnknownMarker = errors.New("unknown marker")

// Handle identifies a marker on a Surface.
type Handle int

// Event is a pointer interaction with a marker.
type Event int

const (
	EventHover Event = iota
	EventLeave
	EventClick
)

func (e Event) String() string {
	switch e {
	case EventHover:
		return "hover"
	case EventLeave:
		return "leave"
	case EventClick:
		return "click"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// ParseEvent maps "hover", "leave" and "click" to their Event.
func ParseEvent(s string) (Event, error) {
	switch s {
	case "hover":
		return EventHover, nil
	case "leave":
		return EventLeave, nil
	case "click":
		return EventClick, nil
	}
	return 0, fmt.Errorf("unknown marker event %q", s)
}

// Marker is the derived visual state of one record.
type Marker struct {
	ID         int        `json:"id"`
	Coordinate Coordinate `json:"coordinate"`
	Style      Style      `json:"style"`
}

// Surface is the map widget markers are drawn on. The handler passed to
// PlaceMarker must be invoked with the marker's pointer events.
type Surface interface {
	PlaceMarker(m Marker, handler func(Event)) Handle
	RemoveMarker(h Handle)
	FitView(b Bounds, opts FitOptions)
	ShowPopup(h Handle, html string)
	HidePopup(h Handle)
}

// DetailPanel displays the detail view of a hovered or clicked marker.
type DetailPanel interface {
	ShowDetail(view DetailView)
}

// Recorder observes each completed render pass.
type Recorder interface {
	ObserveRender(markers int, stats Stats)
}

// RenderPlan is the outcome of one render pass.
type RenderPlan struct {
	Markers []Marker   `json:"markers"`
	Bounds  *Bounds    `json:"bounds"`
	Fit     FitOptions `json:"fit"`
	Stats   Stats      `json:"stats"`
}

type placedMarker struct {
	record fetcher.LocationRecord
	marker Marker
	handle Handle
}

// Visualizer owns the markers and stats of the latest render pass. It is not
// safe for concurrent use; callers serialize Render and Dispatch.
type Visualizer struct {
	surface  Surface
	panel    DetailPanel
	recorder Recorder
	fit      FitOptions
	popup    func(DetailView) string

	pass   uint64
	placed []placedMarker
	stats  Stats
	bounds *Bounds
}

type Option func(*Visualizer)

func WithFitOptions(opts FitOptions) Option {
	return func(v *Visualizer) { v.fit = opts }
}

func WithDetailPanel(p DetailPanel) Option {
	return func(v *Visualizer) {
		if p != nil {
			v.panel = p
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(v *Visualizer) { v.recorder = r }
}

// WithPopupRenderer replaces PopupHTML as the popup renderer.
func WithPopupRenderer(fn func(DetailView) string) Option {
	return func(v *Visualizer) {
		if fn != nil {
			v.popup = fn
		}
	}
}

// New returns a Visualizer drawing on surface. A nil surface discards all
// drawing calls.
func New(surface Surface, opts ...Option) *Visualizer {
	if surface == nil {
		surface = discardSurface{}
	}
	v := &Visualizer{
		surface: surface,
		panel:   discardPanel{},
		fit:     DefaultFitOptions(),
		popup:   PopupHTML,
		stats:   NewStats(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Render replaces the previous pass with records: old markers are removed,
// counters restart at zero, one marker is placed per record in input order
// and the view is fitted when at least one marker was placed.
func (v *Visualizer) Render(records []fetcher.LocationRecord) RenderPlan {
	for _, p := range v.placed {
		v.surface.RemoveMarker(p.handle)
	}
	v.pass++
	v.placed = make([]placedMarker, 0, len(records))
	v.stats = NewStats()
	v.bounds = nil

	bb := newBoundsBuilder()
	for i, rec := range records {
		m := Marker{
			ID:         i,
			Coordinate: Coordinate{Lat: rec.Latitude, Lng: rec.Longitude},
			Style:      StyleFor(rec.Predictions),
		}
		pass, id := v.pass, i
		h := v.surface.PlaceMarker(m, func(ev Event) { v.handle(pass, id, ev) })

		v.placed = append(v.placed, placedMarker{record: rec, marker: m, handle: h})
		v.stats.add(rec.Predictions)
		bb.add(m.Coordinate)
	}

	if b, ok := bb.bounds(); ok {
		v.bounds = &b
		v.surface.FitView(b, v.fit)
	}
	if v.recorder != nil {
		v.recorder.ObserveRender(len(v.placed), v.stats.Clone())
	}
	return v.Plan()
}

// Dispatch delivers ev to marker id of the current pass, as if the surface
// had fired the marker's handler.
func (v *Visualizer) Dispatch(id int, ev Event) error {
	if id < 0 || id >= len(v.placed) {
		return fmt.Errorf("%w: %d", ErrUnknownMarker, id)
	}
	v.handle(v.pass, id, ev)
	return nil
}

// Inspect returns the detail view of marker id without touching the surface.
func (v *Visualizer) Inspect(id int) (DetailView, error) {
	if id < 0 || id >= len(v.placed) {
		return DetailView{}, fmt.Errorf("%w: %d", ErrUnknownMarker, id)
	}
	return DescribeRecord(v.placed[id].record, id), nil
}

// handle ignores events from handlers registered by an earlier pass.
func (v *Visualizer) handle(pass uint64, id int, ev Event) {
	if pass != v.pass || id < 0 || id >= len(v.placed) {
		return
	}
	p := v.placed[id]

	switch ev {
	case EventHover:
		view := DescribeRecord(p.record, id)
		v.surface.ShowPopup(p.handle, v.popup(view))
		v.panel.ShowDetail(view)
	case EventLeave:
		v.surface.HidePopup(p.handle)
	case EventClick:
		v.panel.ShowDetail(DescribeRecord(p.record, id))
	}
}

// Plan returns the current pass as a RenderPlan.
func (v *Visualizer) Plan() RenderPlan {
	plan := RenderPlan{
		Markers: v.Markers(),
		Fit:     v.fit,
		Stats:   v.stats.Clone(),
	}
	if v.bounds != nil {
		b := *v.bounds
		plan.Bounds = &b
	}
	return plan
}

// Markers returns the markers of the current pass in input order.
func (v *Visualizer) Markers() []Marker {
	out := make([]Marker, len(v.placed))
	for i, p := range v.placed {
		out[i] = p.marker
	}
	return out
}

// Stats returns a copy of the current counters.
func (v *Visualizer) Stats() Stats { return v.stats.Clone() }

// Records returns the records of the current pass in input order.
func (v *Visualizer) Records() []fetcher.LocationRecord {
	out := make([]fetcher.LocationRecord, len(v.placed))
	for i, p := range v.placed {
		out[i] = p.record
	}
	return out
}

type discardSurface struct{}

func (discardSurface) PlaceMarker(m Marker, _ func(Event)) Handle { return Handle(m.ID) }
func (discardSurface) RemoveMarker(Handle)                        {}
func (discardSurface) FitView(Bounds, FitOptions)                 {}
func (discardSurface) ShowPopup(Handle, string)                   {}
func (discardSurface) HidePopup(Handle)                           {}

type discardPanel struct{}

func (discardPanel) ShowDetail(DetailView) {}
