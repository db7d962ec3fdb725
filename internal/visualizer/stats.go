package visualizer

import "github.com/Zachdehooge/traffic-dashboard/internal/fetcher"

// Stats holds the per-category counts of one render pass. Every known enum
// value is always present, starting at zero.
type Stats struct {
	Congestion map[fetcher.Congestion]int `json:"congestion"`
	Incident   map[fetcher.Incident]int   `json:"incident"`
	Disruption map[fetcher.Disruption]int `json:"disruption"`
}

// NewStats returns all-zero counters.
func NewStats() Stats {
	return Stats{
		Congestion: map[fetcher.Congestion]int{
			fetcher.CongestionHigh:   0,
			fetcher.CongestionMedium: 0,
			fetcher.CongestionLow:    0,
		},
		Incident: map[fetcher.Incident]int{
			fetcher.IncidentYes: 0,
			fetcher.IncidentNo:  0,
		},
		Disruption: map[fetcher.Disruption]int{
			fetcher.DisruptionHeavy:  0,
			fetcher.DisruptionNormal: 0,
		},
	}
}

// add counts each present, recognised field of p once. Absent and
// unrecognised values leave every bucket untouched.
func (s Stats) add(p *fetcher.Prediction) {
	if p == nil {
		return
	}
	if p.Congestion.Known() {
		s.Congestion[p.Congestion]++
	}
	if p.Incident.Known() {
		s.Incident[p.Incident]++
	}
	if p.Disruption.Known() {
		s.Disruption[p.Disruption]++
	}
}

// Clone returns an independent copy.
func (s Stats) Clone() Stats {
	c := NewStats()
	for k, v := range s.Congestion {
		c.Congestion[k] = v
	}
	for k, v := range s.Incident {
		c.Incident[k] = v
	}
	for k, v := range s.Disruption {
		c.Disruption[k] = v
	}
	return c
}

// CategoryCount is one bucket of Stats in display form.
type CategoryCount struct {
	Category  string `json:"category"`
	Value     string `json:"value"`
	Count     int    `json:"count"`
	ElementID string `json:"elementId"`
}

// Counts flattens s in fixed display order: congestion High, Medium, Low;
// incident Yes, No; disruption Heavy, Normal.
func (s Stats) Counts() []CategoryCount {
	return []CategoryCount{
		{"congestion", string(fetcher.CongestionHigh), s.Congestion[fetcher.CongestionHigh], "highCongestion"},
		{"congestion", string(fetcher.CongestionMedium), s.Congestion[fetcher.CongestionMedium], "mediumCongestion"},
		{"congestion", string(fetcher.CongestionLow), s.Congestion[fetcher.CongestionLow], "lowCongestion"},
		{"incident", string(fetcher.IncidentYes), s.Incident[fetcher.IncidentYes], "yesIncident"},
		{"incident", string(fetcher.IncidentNo), s.Incident[fetcher.IncidentNo], "noIncident"},
		{"disruption", string(fetcher.DisruptionHeavy), s.Disruption[fetcher.DisruptionHeavy], "heavyDisruption"},
		{"disruption", string(fetcher.DisruptionNormal), s.Disruption[fetcher.DisruptionNormal], "normalDisruption"},
	}
}
