package generator

import (
	"sync"

	"github.com/Zachdehooge/traffic-dashboard/internal/visualizer"
)

// Page is a visualizer.Surface and visualizer.DetailPanel that records what
// the visualizer draws so it can be serialised into the dashboard page.
type Page struct {
	mu sync.Mutex

	next     visualizer.Handle
	order    []visualizer.Handle
	placed   map[visualizer.Handle]*pageMarker
	details  map[int]visualizer.DetailView
	selected *visualizer.DetailView
	fit      *FitJSON
}

type pageMarker struct {
	marker  visualizer.Marker
	handler func(visualizer.Event)
	popup   string
	open    bool
}

// NewPage returns an empty page.
func NewPage() *Page {
	return &Page{
		placed:  make(map[visualizer.Handle]*pageMarker),
		details: make(map[int]visualizer.DetailView),
	}
}

func (p *Page) PlaceMarker(m visualizer.Marker, handler func(visualizer.Event)) visualizer.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.next++
	p.placed[p.next] = &pageMarker{marker: m, handler: handler}
	p.order = append(p.order, p.next)
	return p.next
}

func (p *Page) RemoveMarker(h visualizer.Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pm, ok := p.placed[h]
	if !ok {
		return
	}
	delete(p.placed, h)
	delete(p.details, pm.marker.ID)
	for i, o := range p.order {
		if o == h {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	if p.selected != nil && p.selected.ID == pm.marker.ID {
		p.selected = nil
	}
	// an emptied map keeps no stale view
	if len(p.placed) == 0 {
		p.fit = nil
	}
}

func (p *Page) FitView(b visualizer.Bounds, opts visualizer.FitOptions) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.fit = &FitJSON{Bounds: b.Corners(), Padding: opts.Padding, MaxZoom: opts.MaxZoom}
}

func (p *Page) ShowPopup(h visualizer.Handle, html string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pm, ok := p.placed[h]; ok {
		pm.popup = html
		pm.open = true
	}
}

func (p *Page) HidePopup(h visualizer.Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pm, ok := p.placed[h]; ok {
		pm.open = false
	}
}

func (p *Page) ShowDetail(view visualizer.DetailView) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.details[view.ID] = view
	v := view
	p.selected = &v
}

// Prerender fires Hover then Leave on every marker so each popup and detail
// view is captured. The selection is left as it was.
func (p *Page) Prerender() {
	p.mu.Lock()
	handlers := make([]func(visualizer.Event), 0, len(p.order))
	for _, h := range p.order {
		handlers = append(handlers, p.placed[h].handler)
	}
	var selected *visualizer.DetailView
	if p.selected != nil {
		v := *p.selected
		selected = &v
	}
	p.mu.Unlock()

	for _, fn := range handlers {
		if fn == nil {
			continue
		}
		fn(visualizer.EventHover)
		fn(visualizer.EventLeave)
	}

	p.mu.Lock()
	p.selected = selected
	p.mu.Unlock()
}

// Len returns the number of markers on the page.
func (p *Page) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}

// Fit returns the last fitted view, nil when the page has no markers.
func (p *Page) Fit() *FitJSON {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fit == nil {
		return nil
	}
	f := *p.fit
	return &f
}

// Selected returns the detail view last shown in the side panel.
func (p *Page) Selected() (visualizer.DetailView, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.selected == nil {
		return visualizer.DetailView{}, false
	}
	return *p.selected, true
}

// Popup returns the popup HTML of marker id and whether it is currently open.
func (p *Page) Popup(id int) (html string, open bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range p.order {
		if pm := p.placed[h]; pm.marker.ID == id {
			return pm.popup, pm.open
		}
	}
	return "", false
}

// Markers returns the page's markers in placement order, with whatever popup
// and detail content has been captured for them.
func (p *Page) Markers() []MarkerJSON {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]MarkerJSON, 0, len(p.order))
	for _, h := range p.order {
		pm := p.placed[h]
		m := pm.marker
		mj := MarkerJSON{
			ID:             m.ID,
			Lat:            m.Coordinate.Lat,
			Lng:            m.Coordinate.Lng,
			Color:          m.Style.Color.Hex(),
			Level:          string(m.Style.Color),
			IncidentBorder: m.Style.IncidentBorder,
			Pulsing:        m.Style.Pulsing,
			Popup:          pm.popup,
		}
		if view, ok := p.details[m.ID]; ok {
			mj.Detail = DetailHTML(view)
		}
		out = append(out, mj)
	}
	return out
}
