package visualizer

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/Zachdehooge/traffic-dashboard/internal/fetcher"
)

// NoDataMessage is shown for records the backend returned no predictions for.
const NoDataMessage = "No prediction data available"

// DetailLine pairs a display label with a prediction's literal value.
type DetailLine struct {
	Label string `json:"label"`
	Short string `json:"short"`
	Value string `json:"value"`
	Class string `json:"class"`
}

// DetailView is the content of the detail panel for one location.
type DetailView struct {
	ID         int          `json:"id"`
	Title      string       `json:"title"`
	Coordinate *Coordinate  `json:"coordinate,omitempty"`
	NoData     bool         `json:"noData"`
	Message    string       `json:"message,omitempty"`
	Lines      []DetailLine `json:"lines"`
	Analysis   string       `json:"analysis"`
}

// Describe builds the detail view for a prediction. Fields absent from the
// prediction are left out of Lines.
func Describe(p *fetcher.Prediction, id int) DetailView {
	view := DetailView{
		ID:    id,
		Title: fmt.Sprintf("Location #%d", id),
		Lines: []DetailLine{},
	}
	if p == nil {
		view.NoData = true
		view.Message = NoDataMessage
		return view
	}

	if p.Congestion != "" {
		view.Lines = append(view.Lines, line("Congestion Level", "Congestion", string(p.Congestion)))
	}
	if p.Incident != "" {
		view.Lines = append(view.Lines, line("Incident Detected", "Incident", string(p.Incident)))
	}
	if p.Disruption != "" {
		view.Lines = append(view.Lines, line("Traffic Disruption", "Disruption", string(p.Disruption)))
	}
	view.Analysis = Analysis(*p)
	return view
}

// DescribeRecord is Describe plus the record's coordinate.
func DescribeRecord(r fetcher.LocationRecord, id int) DetailView {
	view := Describe(r.Predictions, id)
	if !view.NoData {
		view.Coordinate = &Coordinate{Lat: r.Latitude, Lng: r.Longitude}
	}
	return view
}

func line(label, short, value string) DetailLine {
	return DetailLine{Label: label, Short: short, Value: value, Class: strings.ToLower(value)}
}

var popupTemplate = template.Must(template.New("popup").Parse(
	`<div class="marker-popup">` +
		`{{if .NoData}}<h3>{{.Title}}</h3><p>{{.Message}}</p>` +
		`{{else}}<h3>Traffic Conditions</h3>` +
		`{{range .Lines}}<div class="prediction-item"><span class="prediction-label">{{.Short}}:</span> <span class="prediction-value {{.Class}}">{{.Value}}</span></div>{{end}}` +
		`{{with .Coordinate}}<p class="popup-coordinates">Lat: {{printf "%.6f" .Lat}}, Lng: {{printf "%.6f" .Lng}}</p>{{end}}` +
		`{{end}}</div>`))

// PopupHTML renders the floating popup shown while a marker is hovered.
func PopupHTML(view DetailView) string {
	var buf bytes.Buffer
	if err := popupTemplate.Execute(&buf, view); err != nil {
		return template.HTMLEscapeString(view.Title)
	}
	return buf.String()
}
