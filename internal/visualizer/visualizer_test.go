package visualizer

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/Zachdehooge/traffic-dashboard/internal/fetcher"
)

type fitCall struct {
	bounds Bounds
	opts   FitOptions
}

type fakeSurface struct {
	next     Handle
	active   map[Handle]Marker
	handlers map[Handle]func(Event)
	removed  []Handle
	fits     []fitCall
	popups   map[Handle]string
	hidden   []Handle
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{
		active:   make(map[Handle]Marker),
		handlers: make(map[Handle]func(Event)),
		popups:   make(map[Handle]string),
	}
}

func (s *fakeSurface) PlaceMarker(m Marker, handler func(Event)) Handle {
	s.next++
	s.active[s.next] = m
	s.handlers[s.next] = handler
	return s.next
}

func (s *fakeSurface) RemoveMarker(h Handle) {
	delete(s.active, h)
	s.removed = append(s.removed, h)
}

func (s *fakeSurface) FitView(b Bounds, opts FitOptions) { s.fits = append(s.fits, fitCall{b, opts}) }
func (s *fakeSurface) ShowPopup(h Handle, html string)   { s.popups[h] = html }
func (s *fakeSurface) HidePopup(h Handle)                { s.hidden = append(s.hidden, h) }

type fakePanel struct {
	views []DetailView
}

func (p *fakePanel) ShowDetail(v DetailView) { p.views = append(p.views, v) }

type fakeRecorder struct {
	markers []int
	stats   []Stats
}

func (r *fakeRecorder) ObserveRender(markers int, stats Stats) {
	r.markers = append(r.markers, markers)
	r.stats = append(r.stats, stats)
}

func pred(c fetcher.Congestion, i fetcher.Incident, d fetcher.Disruption) *fetcher.Prediction {
	return &fetcher.Prediction{Congestion: c, Incident: i, Disruption: d}
}

// the backend's five demo cities
func sampleRecords() []fetcher.LocationRecord {
	return []fetcher.LocationRecord{
		{Latitude: 40.7128, Longitude: -74.0060, Predictions: pred("High", "No", "Heavy")},
		{Latitude: 34.0522, Longitude: -118.2437, Predictions: pred("Medium", "Yes", "Heavy")},
		{Latitude: 41.8781, Longitude: -87.6298, Predictions: pred("Low", "No", "Normal")},
		{Latitude: 51.5074, Longitude: -0.1278, Predictions: pred("High", "No", "Heavy")},
		{Latitude: 48.8566, Longitude: 2.3522, Predictions: pred("Medium", "No", "Normal")},
	}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestRenderOneMarkerPerRecordInOrder(t *testing.T) {
	surface := newFakeSurface()
	v := New(surface)

	records := append(sampleRecords(), fetcher.LocationRecord{Latitude: 1, Longitude: 2})
	plan := v.Render(records)

	if len(plan.Markers) != len(records) {
		t.Fatalf("markers: got %d, want %d", len(plan.Markers), len(records))
	}
	for i, m := range plan.Markers {
		if m.ID != i {
			t.Errorf("marker %d: id %d", i, m.ID)
		}
		if m.Coordinate.Lat != records[i].Latitude || m.Coordinate.Lng != records[i].Longitude {
			t.Errorf("marker %d: coordinate %+v", i, m.Coordinate)
		}
	}
	if len(surface.active) != len(records) {
		t.Errorf("surface markers: got %d, want %d", len(surface.active), len(records))
	}
}

func TestStyleFor(t *testing.T) {
	tests := []struct {
		name string
		p    *fetcher.Prediction
		want Style
	}{
		{"absent", nil, Style{Color: ColorBlue}},
		{"high", pred("High", "", ""), Style{Color: ColorRed}},
		{"medium incident", pred("Medium", "Yes", ""), Style{Color: ColorOrange, IncidentBorder: true}},
		{"low heavy", pred("Low", "No", "Heavy"), Style{Color: ColorGreen, Pulsing: true}},
		{"no congestion", pred("", "Yes", "Heavy"), Style{Color: ColorBlue, IncidentBorder: true, Pulsing: true}},
		{"unrecognised", pred("Error: model failed", "", "Normal"), Style{Color: ColorBlue}},
	}

	for _, tt := range tests {
		if got := StyleFor(tt.p); got != tt.want {
			t.Errorf("%s: got %+v, want %+v", tt.name, got, tt.want)
		}
	}
}

func TestColorHex(t *testing.T) {
	want := map[Color]string{
		ColorRed:    "#e74c3c",
		ColorOrange: "#f39c12",
		ColorGreen:  "#2ecc71",
		ColorBlue:   "#3498db",
	}
	for c, hex := range want {
		if got := c.Hex(); got != hex {
			t.Errorf("%s.Hex(): got %s, want %s", c, got, hex)
		}
	}
}

func TestRenderStats(t *testing.T) {
	v := New(nil)
	records := append(sampleRecords(),
		fetcher.LocationRecord{Latitude: 0, Longitude: 0},
		fetcher.LocationRecord{Latitude: 0, Longitude: 0, Predictions: pred("", "Yes", "")},
		fetcher.LocationRecord{Latitude: 0, Longitude: 0, Predictions: pred("Unknown", "", "")},
	)
	stats := v.Render(records).Stats

	wantCongestion := map[fetcher.Congestion]int{"High": 2, "Medium": 2, "Low": 1}
	for k, n := range wantCongestion {
		if stats.Congestion[k] != n {
			t.Errorf("congestion %s: got %d, want %d", k, stats.Congestion[k], n)
		}
	}
	if len(stats.Congestion) != 3 {
		t.Errorf("unrecognised congestion must not create a bucket: %v", stats.Congestion)
	}
	if stats.Incident["Yes"] != 2 || stats.Incident["No"] != 4 {
		t.Errorf("incident: got %v", stats.Incident)
	}
	if stats.Disruption["Heavy"] != 3 || stats.Disruption["Normal"] != 2 {
		t.Errorf("disruption: got %v", stats.Disruption)
	}
}

func TestStatsNeverExceedPresentFields(t *testing.T) {
	records := []fetcher.LocationRecord{
		{Predictions: pred("High", "", "")},
		{Predictions: pred("", "No", "")},
		{Predictions: pred("", "", "Normal")},
		{Predictions: &fetcher.Prediction{}},
		{},
	}
	stats := New(nil).Render(records).Stats

	sum := func(m map[string]int) int {
		n := 0
		for _, v := range m {
			n += v
		}
		return n
	}
	congestion := map[string]int{}
	for k, v := range stats.Congestion {
		congestion[string(k)] = v
	}
	incident := map[string]int{}
	for k, v := range stats.Incident {
		incident[string(k)] = v
	}
	disruption := map[string]int{}
	for k, v := range stats.Disruption {
		disruption[string(k)] = v
	}

	if sum(congestion) != 1 || sum(incident) != 1 || sum(disruption) != 1 {
		t.Errorf("each category should count exactly its one present field: %v %v %v", congestion, incident, disruption)
	}
}

func TestRenderReplacesPreviousPass(t *testing.T) {
	surface := newFakeSurface()
	rec := &fakeRecorder{}
	v := New(surface, WithRecorder(rec))

	v.Render(sampleRecords())
	plan := v.Render([]fetcher.LocationRecord{{Latitude: 10, Longitude: 20, Predictions: pred("Low", "No", "Normal")}})

	if len(surface.removed) != 5 {
		t.Errorf("removed: got %d, want 5", len(surface.removed))
	}
	if len(surface.active) != 1 {
		t.Errorf("active markers: got %d, want 1", len(surface.active))
	}
	if plan.Stats.Congestion["High"] != 0 || plan.Stats.Congestion["Low"] != 1 {
		t.Errorf("stats were merged instead of reset: %v", plan.Stats.Congestion)
	}
	if len(rec.markers) != 2 || rec.markers[0] != 5 || rec.markers[1] != 1 {
		t.Errorf("recorder: got %v", rec.markers)
	}
}

func TestRenderEmpty(t *testing.T) {
	surface := newFakeSurface()
	v := New(surface)
	v.Render(sampleRecords())
	surface.fits = nil

	plan := v.Render(nil)

	if len(plan.Markers) != 0 {
		t.Errorf("markers: got %d", len(plan.Markers))
	}
	if plan.Bounds != nil {
		t.Errorf("bounds: got %+v, want nil", plan.Bounds)
	}
	if len(surface.fits) != 0 {
		t.Errorf("FitView must not be called for an empty pass, got %d calls", len(surface.fits))
	}
	for _, c := range plan.Stats.Counts() {
		if c.Count != 0 {
			t.Errorf("%s/%s: got %d, want 0", c.Category, c.Value, c.Count)
		}
	}
}

func TestRenderFitsView(t *testing.T) {
	surface := newFakeSurface()
	v := New(surface, WithFitOptions(FitOptions{Padding: 30, MaxZoom: 12}))
	plan := v.Render(sampleRecords())

	if len(surface.fits) != 1 {
		t.Fatalf("FitView calls: got %d, want 1", len(surface.fits))
	}
	fit := surface.fits[0]
	if fit.opts != (FitOptions{Padding: 30, MaxZoom: 12}) {
		t.Errorf("fit options: got %+v", fit.opts)
	}
	b := fit.bounds
	if !approx(b.South, 34.0522) || !approx(b.North, 51.5074) {
		t.Errorf("latitude span: got %v..%v", b.South, b.North)
	}
	if !approx(b.West, -118.2437) || !approx(b.East, 2.3522) {
		t.Errorf("longitude span: got %v..%v", b.West, b.East)
	}
	if plan.Bounds == nil || *plan.Bounds != b {
		t.Errorf("plan bounds: got %+v, want %+v", plan.Bounds, b)
	}
}

func TestBoundsAcrossAntimeridian(t *testing.T) {
	bb := newBoundsBuilder()
	bb.add(Coordinate{Lat: -18.1, Lng: 178.4})
	bb.add(Coordinate{Lat: -13.8, Lng: -171.8})

	b, ok := bb.bounds()
	if !ok {
		t.Fatal("expected bounds")
	}
	if !approx(b.West, 178.4) || !approx(b.East, 188.2) {
		t.Errorf("got west=%v east=%v, want 178.4 / 188.2", b.West, b.East)
	}
	if c := b.Center(); !approx(c.Lng, -176.7) {
		t.Errorf("center lng: got %v, want -176.7", c.Lng)
	}
}

func TestBoundsSinglePoint(t *testing.T) {
	bb := newBoundsBuilder()
	if _, ok := bb.bounds(); ok {
		t.Fatal("empty builder must not report bounds")
	}
	bb.add(Coordinate{Lat: 40.7128, Lng: -74.0060})
	b, _ := bb.bounds()
	if !approx(b.South, b.North) || !approx(b.West, -74.0060) || !approx(b.East, -74.0060) {
		t.Errorf("single point bounds: got %+v", b)
	}
	corners := b.Corners()
	if !approx(corners[0][0], 40.7128) || !approx(corners[1][1], -74.0060) {
		t.Errorf("corners: got %v", corners)
	}
}

func TestHoverLeaveClick(t *testing.T) {
	surface := newFakeSurface()
	panel := &fakePanel{}
	v := New(surface, WithDetailPanel(panel))
	v.Render(sampleRecords())

	h := Handle(2) // second marker placed
	surface.handlers[h](EventHover)

	popup, ok := surface.popups[h]
	if !ok {
		t.Fatal("hover should open a popup")
	}
	if !strings.Contains(popup, "Medium") || !strings.Contains(popup, "Lat: 34.052200") {
		t.Errorf("popup content: %s", popup)
	}
	if len(panel.views) != 1 || panel.views[0].ID != 1 {
		t.Fatalf("detail panel: got %+v", panel.views)
	}

	surface.handlers[h](EventLeave)
	if len(surface.hidden) != 1 || surface.hidden[0] != h {
		t.Errorf("leave should hide the popup, hidden=%v", surface.hidden)
	}

	surface.handlers[h](EventClick)
	if len(panel.views) != 2 || panel.views[1].Title != "Location #1" {
		t.Errorf("click should show the detail panel, got %+v", panel.views)
	}
}

func TestStaleHandlerIgnored(t *testing.T) {
	surface := newFakeSurface()
	panel := &fakePanel{}
	v := New(surface, WithDetailPanel(panel))

	v.Render(sampleRecords())
	stale := surface.handlers[Handle(1)]
	v.Render(sampleRecords()[:1])

	stale(EventClick)
	if len(panel.views) != 0 {
		t.Errorf("handler from a previous pass must be ignored, got %+v", panel.views)
	}
}

func TestDispatch(t *testing.T) {
	panel := &fakePanel{}
	v := New(nil, WithDetailPanel(panel))
	v.Render(sampleRecords())

	if err := v.Dispatch(4, EventClick); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(panel.views) != 1 || panel.views[0].ID != 4 {
		t.Errorf("panel: got %+v", panel.views)
	}
	if err := v.Dispatch(5, EventClick); !errors.Is(err, ErrUnknownMarker) {
		t.Errorf("out of range: got %v", err)
	}
	if _, err := v.Inspect(-1); !errors.Is(err, ErrUnknownMarker) {
		t.Errorf("negative id: got %v", err)
	}
}

func TestParseEvent(t *testing.T) {
	for _, ev := range []Event{EventHover, EventLeave, EventClick} {
		got, err := ParseEvent(ev.String())
		if err != nil || got != ev {
			t.Errorf("ParseEvent(%q) = %v, %v", ev.String(), got, err)
		}
	}
	if _, err := ParseEvent("drag"); err == nil {
		t.Error("expected error for unknown event")
	}
}

func TestRenderDeterministic(t *testing.T) {
	a := New(nil).Render(sampleRecords())
	b := New(nil).Render(sampleRecords())

	for i := range a.Markers {
		if a.Markers[i] != b.Markers[i] {
			t.Errorf("marker %d differs: %+v vs %+v", i, a.Markers[i], b.Markers[i])
		}
	}
	if *a.Bounds != *b.Bounds {
		t.Errorf("bounds differ: %+v vs %+v", a.Bounds, b.Bounds)
	}
}
