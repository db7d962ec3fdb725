package visualizer

import (
	"strconv"
	"strings"
	"testing"

	"github.com/Zachdehooge/traffic-dashboard/internal/fetcher"
)

func TestAnalysis(t *testing.T) {
	tests := []struct {
		name string
		p    fetcher.Prediction
		want string
	}{
		{
			"high heavy incident",
			fetcher.Prediction{Congestion: "High", Disruption: "Heavy", Incident: "Yes"},
			"Severe traffic conditions detected. Expect significant delays. Incident reported in this area is contributing to the disruption.",
		},
		{
			"high heavy no incident",
			fetcher.Prediction{Congestion: "High", Disruption: "Heavy", Incident: "No"},
			"Severe traffic conditions detected. Expect significant delays. No incidents reported, but heavy congestion is causing major delays.",
		},
		{
			"high heavy incident absent",
			fetcher.Prediction{Congestion: "High", Disruption: "Heavy"},
			"Severe traffic conditions detected. Expect significant delays. No incidents reported, but heavy congestion is causing major delays.",
		},
		{"high normal", fetcher.Prediction{Congestion: "High", Disruption: "Normal"}, ""},
		{"high disruption absent", fetcher.Prediction{Congestion: "High", Incident: "Yes"}, ""},
		{
			"medium heavy",
			fetcher.Prediction{Congestion: "Medium", Disruption: "Heavy"},
			"Moderate traffic conditions. Traffic flow is disrupted and may cause delays.",
		},
		{
			"medium normal",
			fetcher.Prediction{Congestion: "Medium", Disruption: "Normal", Incident: "Yes"},
			"Moderate traffic conditions. Traffic is flowing steadily with minor slowdowns.",
		},
		{
			"low heavy incident",
			fetcher.Prediction{Congestion: "Low", Disruption: "Heavy", Incident: "Yes"},
			"Traffic is flowing smoothly. There is an incident reported, but it's not significantly affecting traffic flow.",
		},
		{
			"low heavy no incident",
			fetcher.Prediction{Congestion: "Low", Disruption: "Heavy", Incident: "No"},
			"Traffic is flowing smoothly. Despite low congestion, there is some disruption to normal traffic patterns.",
		},
		{
			"low normal",
			fetcher.Prediction{Congestion: "Low", Disruption: "Normal"},
			"Traffic is flowing smoothly. No issues detected.",
		},
		{"congestion absent", fetcher.Prediction{Disruption: "Heavy", Incident: "Yes"}, ""},
		{"congestion unrecognised", fetcher.Prediction{Congestion: "Severe"}, ""},
	}

	for _, tt := range tests {
		if got := Analysis(tt.p); got != tt.want {
			t.Errorf("%s:\n got  %q\n want %q", tt.name, got, tt.want)
		}
	}
}

func TestDescribeNoData(t *testing.T) {
	for _, id := range []int{0, 7, 120} {
		view := Describe(nil, id)
		if !view.NoData || view.Message != NoDataMessage {
			t.Errorf("id %d: got %+v", id, view)
		}
		if view.ID != id || view.Title != "Location #"+strconv.Itoa(id) {
			t.Errorf("id %d: title %q", id, view.Title)
		}
		if len(view.Lines) != 0 || view.Analysis != "" {
			t.Errorf("id %d: no-data view must have no lines or analysis", id)
		}
	}
}

func TestDescribeOmitsAbsentFields(t *testing.T) {
	view := Describe(&fetcher.Prediction{Congestion: "Low", Disruption: "Heavy"}, 3)

	if view.NoData {
		t.Fatal("expected data view")
	}
	if len(view.Lines) != 2 {
		t.Fatalf("lines: got %+v", view.Lines)
	}
	if view.Lines[0] != (DetailLine{Label: "Congestion Level", Short: "Congestion", Value: "Low", Class: "low"}) {
		t.Errorf("line 0: got %+v", view.Lines[0])
	}
	if view.Lines[1].Label != "Traffic Disruption" || view.Lines[1].Value != "Heavy" {
		t.Errorf("line 1: got %+v", view.Lines[1])
	}
	if view.Analysis != "Traffic is flowing smoothly. Despite low congestion, there is some disruption to normal traffic patterns." {
		t.Errorf("analysis: got %q", view.Analysis)
	}
}

func TestDescribeRecordCoordinate(t *testing.T) {
	rec := fetcher.LocationRecord{Latitude: 48.8566, Longitude: 2.3522, Predictions: pred("Medium", "No", "Normal")}
	view := DescribeRecord(rec, 4)
	if view.Coordinate == nil || view.Coordinate.Lat != 48.8566 {
		t.Errorf("coordinate: got %+v", view.Coordinate)
	}

	empty := DescribeRecord(fetcher.LocationRecord{Latitude: 1, Longitude: 2}, 5)
	if empty.Coordinate != nil {
		t.Errorf("no-data view should not carry a coordinate")
	}
}

func TestPopupHTML(t *testing.T) {
	html := PopupHTML(Describe(nil, 9))
	if !strings.Contains(html, "Location #9") || !strings.Contains(html, NoDataMessage) {
		t.Errorf("no-data popup: %s", html)
	}

	rec := fetcher.LocationRecord{Latitude: 40.7128, Longitude: -74.006, Predictions: pred("High", "Yes", "Heavy")}
	html = PopupHTML(DescribeRecord(rec, 0))
	for _, want := range []string{"Traffic Conditions", "Congestion:", `prediction-value high`, "Lat: 40.712800, Lng: -74.006000"} {
		if !strings.Contains(html, want) {
			t.Errorf("popup missing %q: %s", want, html)
		}
	}

	html = PopupHTML(Describe(&fetcher.Prediction{Congestion: "<script>"}, 1))
	if strings.Contains(html, "<script>") {
		t.Errorf("popup must escape values: %s", html)
	}
}
