package fetcher

// Congestion is the predicted traffic density level. The empty string means
// the model produced no congestion output for the row.
type Congestion string

const (
	CongestionHigh   Congestion = "High"
	CongestionMedium Congestion = "Medium"
	CongestionLow    Congestion = "Low"
)

// Known reports whether c is one of the three congestion levels.
func (c Congestion) Known() bool {
	return c == CongestionHigh || c == CongestionMedium || c == CongestionLow
}

// Incident flags a reported traffic incident.
type Incident string

const (
	IncidentYes Incident = "Yes"
	IncidentNo  Incident = "No"
)

func (i Incident) Known() bool { return i == IncidentYes || i == IncidentNo }

// Disruption is the severity of deviation from normal flow.
type Disruption string

const (
	DisruptionHeavy  Disruption = "Heavy"
	DisruptionNormal Disruption = "Normal"
)

func (d Disruption) Known() bool { return d == DisruptionHeavy || d == DisruptionNormal }

// Prediction is the model output for one location. Each field is optional on
// its own.
type Prediction struct {
	Congestion Congestion `json:"congestion,omitempty"`
	Incident   Incident   `json:"incident,omitempty"`
	Disruption Disruption `json:"disruption,omitempty"`
}

// LocationRecord is one row returned by /upload-csv or /sample-predict.
// Predictions is nil when the backend returned no model output for the row.
type LocationRecord struct {
	LocationID  *int        `json:"location_id,omitempty"`
	Latitude    float64     `json:"latitude"`
	Longitude   float64     `json:"longitude"`
	Predictions *Prediction `json:"predictions,omitempty"`
}

// Status is the backend readiness report served at GET /.
type Status struct {
	Status       string   `json:"status"`
	ModelsLoaded []string `json:"models_loaded"`
}

// Ready reports whether the backend announced itself as running.
func (s *Status) Ready() bool {
	return s != nil && s.Status == readyStatus
}
