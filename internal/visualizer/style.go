package visualizer

import "github.com/Zachdehooge/traffic-dashboard/internal/fetcher"

// Color is the marker fill, driven only by the congestion level.
type Color string

const (
	ColorRed    Color = "Red"
	ColorOrange Color = "Orange"
	ColorGreen  Color = "Green"
	ColorBlue   Color = "Blue"
)

// Hex returns the page colour for c.
func (c Color) Hex() string {
	switch c {
	case ColorRed:
		return "#e74c3c"
	case ColorOrange:
		return "#f39c12"
	case ColorGreen:
		return "#2ecc71"
	default:
		return "#3498db"
	}
}

// IncidentBorderColor outlines markers with a reported incident.
const IncidentBorderColor = "#9b59b6"

// Style is the derived look of one marker.
type Style struct {
	Color          Color `json:"color"`
	IncidentBorder bool  `json:"incidentBorder"`
	Pulsing        bool  `json:"pulsing"`
}

// StyleFor derives the marker style for a record's predictions. A nil
// prediction yields Blue with no border and no pulse.
func StyleFor(p *fetcher.Prediction) Style {
	s := Style{Color: ColorBlue}
	if p == nil {
		return s
	}

	switch p.Congestion {
	case fetcher.CongestionHigh:
		s.Color = ColorRed
	case fetcher.CongestionMedium:
		s.Color = ColorOrange
	case fetcher.CongestionLow:
		s.Color = ColorGreen
	}
	s.IncidentBorder = p.Incident == fetcher.IncidentYes
	s.Pulsing = p.Disruption == fetcher.DisruptionHeavy
	return s
}
