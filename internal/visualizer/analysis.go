package visualizer

import "github.com/Zachdehooge/traffic-dashboard/internal/fetcher"

const (
	severeLead       = "Severe traffic conditions detected. Expect significant delays. "
	severeIncident   = "Incident reported in this area is contributing to the disruption."
	severeNoIncident = "No incidents reported, but heavy congestion is causing major delays."

	moderateLead      = "Moderate traffic conditions. "
	moderateDisrupted = "Traffic flow is disrupted and may cause delays."
	moderateSteady    = "Traffic is flowing steadily with minor slowdowns."

	smoothLead       = "Traffic is flowing smoothly. "
	smoothIncident   = "There is an incident reported, but it's not significantly affecting traffic flow."
	smoothDisruption = "Despite low congestion, there is some disruption to normal traffic patterns."
	smoothClear      = "No issues detected."
)

// Analysis summarises a prediction in one or two sentences. The first
// matching branch wins. High congestion without heavy disruption, and any
// prediction without a recognised congestion level, yield "".
func Analysis(p fetcher.Prediction) string {
	switch {
	case p.Congestion == fetcher.CongestionHigh && p.Disruption == fetcher.DisruptionHeavy:
		if p.Incident == fetcher.IncidentYes {
			return severeLead + severeIncident
		}
		return severeLead + severeNoIncident

	case p.Congestion == fetcher.CongestionMedium:
		if p.Disruption == fetcher.DisruptionHeavy {
			return moderateLead + moderateDisrupted
		}
		return moderateLead + moderateSteady

	case p.Congestion == fetcher.CongestionLow:
		// incident outranks disruption for low congestion
		switch {
		case p.Incident == fetcher.IncidentYes:
			return smoothLead + smoothIncident
		case p.Disruption == fetcher.DisruptionHeavy:
			return smoothLead + smoothDisruption
		default:
			return smoothLead + smoothClear
		}
	}
	return ""
}
