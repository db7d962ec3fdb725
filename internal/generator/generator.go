package generator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/Zachdehooge/traffic-dashboard/internal/fetcher"
	"github.com/Zachdehooge/traffic-dashboard/internal/visualizer"
	"github.com/natefinch/atomic"
)

const timeLayout = "Jan 2, 2006 at 15:04:05 UTC"

var now = time.Now

// MarkerJSON is the shape of one marker consumed by the browser JS.
type MarkerJSON struct {
	ID             int     `json:"id"`
	Lat            float64 `json:"lat"`
	Lng            float64 `json:"lng"`
	Color          string  `json:"color"`
	Level          string  `json:"level"`
	IncidentBorder bool    `json:"incidentBorder"`
	Pulsing        bool    `json:"pulsing"`
	Popup          string  `json:"popup"`
	Detail         string  `json:"detail"`
}

// FitJSON is a fitted view in the form Leaflet's fitBounds takes.
type FitJSON struct {
	Bounds  [2][2]float64 `json:"bounds"`
	Padding int           `json:"padding"`
	MaxZoom int           `json:"maxZoom"`
}

// Payload is everything the page needs to draw one render pass.
type Payload struct {
	Markers      []MarkerJSON               `json:"markers"`
	Fit          *FitJSON                   `json:"fit"`
	Counts       []visualizer.CategoryCount `json:"counts"`
	LastUpdated  string                     `json:"lastUpdated"`
	Counter      int                        `json:"counter"`
	UpdatedAtUTC int64                      `json:"updatedAtUTC"`
}

// NewPayload snapshots page together with the pass's stats.
func NewPayload(page *Page, stats visualizer.Stats) Payload {
	t := now().UTC()
	markers := page.Markers()
	return Payload{
		Markers:      markers,
		Fit:          page.Fit(),
		Counts:       stats.Counts(),
		LastUpdated:  t.Format(timeLayout),
		Counter:      len(markers),
		UpdatedAtUTC: t.Unix(),
	}
}

// PlanPayload is the structure written to the plan JSON file on every run.
type PlanPayload struct {
	visualizer.RenderPlan
	Counts       []visualizer.CategoryCount `json:"counts"`
	LastUpdated  string                     `json:"lastUpdated"`
	Counter      int                        `json:"counter"`
	UpdatedAtUTC int64                      `json:"updatedAtUTC"`
}

// WritePlanJSON atomically writes plan to outputPath.
func WritePlanJSON(plan visualizer.RenderPlan, outputPath string) error {
	t := now().UTC()
	payload := PlanPayload{
		RenderPlan:   plan,
		Counts:       plan.Stats.Counts(),
		LastUpdated:  t.Format(timeLayout),
		Counter:      len(plan.Markers),
		UpdatedAtUTC: t.Unix(),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return writeAtomic(outputPath, data)
}

// writeAtomic replaces path in one step so a browser polling the file never
// reads a partial write.
func writeAtomic(path string, data []byte) error {
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write %s failed: %w", path, err)
	}
	return nil
}

// PageOptions controls the map widget and page mode.
type PageOptions struct {
	Title       string
	Center      visualizer.Coordinate
	Zoom        int
	TileURL     string
	Attribution string
	// Live pages talk to the dashboard server's /api routes.
	Live bool
}

// DefaultPageOptions centres the map on New York.
func DefaultPageOptions() PageOptions {
	return PageOptions{
		Title:       "Traffic Prediction Dashboard",
		Center:      visualizer.Coordinate{Lat: 40.7128, Lng: -74.0060},
		Zoom:        13,
		TileURL:     "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
		Attribution: "&copy; OpenStreetMap contributors",
	}
}

type pageConfig struct {
	Center         [2]float64 `json:"center"`
	Zoom           int        `json:"zoom"`
	TileURL        string     `json:"tileUrl"`
	Attribution    string     `json:"attribution"`
	Live           bool       `json:"live"`
	IncidentBorder string     `json:"incidentBorder"`
	Unreachable    string     `json:"unreachable"`
}

type countGroup struct {
	Title  string
	Counts []visualizer.CategoryCount
}

type legendItem struct {
	Label string
	Color string
}

type dashboardData struct {
	Title       string
	Live        bool
	Groups      []countGroup
	Legend      []legendItem
	ModelTypes  []string
	Counter     int
	LastUpdated string
	Selected    template.HTML
	ConfigJSON  template.JS
	PayloadJSON template.JS
	BorderColor string
}

// GenerateDashboardHTML renders the dashboard for page and writes it to
// outputPath.
func GenerateDashboardHTML(page *Page, stats visualizer.Stats, opts PageOptions, outputPath string) error {
	var buf bytes.Buffer
	if err := RenderDashboard(&buf, page, stats, opts); err != nil {
		return err
	}
	return writeAtomic(outputPath, buf.Bytes())
}

// RenderDashboard writes the dashboard HTML for page to w.
func RenderDashboard(w io.Writer, page *Page, stats visualizer.Stats, opts PageOptions) error {
	payload := NewPayload(page, stats)
	payloadJSON, err := toJSON(payload)
	if err != nil {
		return err
	}
	configJSON, err := toJSON(pageConfig{
		Center:         [2]float64{opts.Center.Lat, opts.Center.Lng},
		Zoom:           opts.Zoom,
		TileURL:        opts.TileURL,
		Attribution:    opts.Attribution,
		Live:           opts.Live,
		IncidentBorder: visualizer.IncidentBorderColor,
		Unreachable:    fetcher.UnreachableMessage,
	})
	if err != nil {
		return err
	}

	data := dashboardData{
		Title:       opts.Title,
		Live:        opts.Live,
		Groups:      groupCounts(payload.Counts),
		Legend:      legend(),
		ModelTypes:  fetcher.ModelTypes,
		Counter:     payload.Counter,
		LastUpdated: payload.LastUpdated,
		ConfigJSON:  configJSON,
		PayloadJSON: payloadJSON,
		BorderColor: visualizer.IncidentBorderColor,
	}
	if view, ok := page.Selected(); ok {
		data.Selected = template.HTML(DetailHTML(view))
	}
	return dashboardTemplate.Execute(w, data)
}

func groupCounts(counts []visualizer.CategoryCount) []countGroup {
	titles := map[string]string{
		"congestion": "Congestion",
		"incident":   "Incidents",
		"disruption": "Disruption",
	}
	var groups []countGroup
	for _, c := range counts {
		if len(groups) == 0 || groups[len(groups)-1].Title != titles[c.Category] {
			groups = append(groups, countGroup{Title: titles[c.Category]})
		}
		g := &groups[len(groups)-1]
		g.Counts = append(g.Counts, c)
	}
	return groups
}

func legend() []legendItem {
	return []legendItem{
		{"High congestion", visualizer.ColorRed.Hex()},
		{"Medium congestion", visualizer.ColorOrange.Hex()},
		{"Low congestion", visualizer.ColorGreen.Hex()},
		{"No prediction", visualizer.ColorBlue.Hex()},
	}
}

var detailTemplate = template.Must(template.New("detail").Parse(
	`<h3>{{.Title}}</h3>` +
		`{{if .NoData}}<p>{{.Message}}</p>` +
		`{{else}}` +
		`{{with .Coordinate}}<p class="coordinates">Latitude: {{printf "%.6f" .Lat}}<br>Longitude: {{printf "%.6f" .Lng}}</p>{{end}}` +
		`<h4>Traffic Predictions:</h4><div class="prediction-details">` +
		`{{range .Lines}}<div class="detail-item"><span class="detail-label">{{.Label}}:</span> <span class="prediction-value {{.Class}}">{{.Value}}</span></div>{{end}}` +
		`</div><div class="analysis"><h4>Traffic Analysis</h4><p>{{.Analysis}}</p></div>` +
		`{{end}}`))

// DetailHTML renders the side panel content for view.
func DetailHTML(view visualizer.DetailView) string {
	var buf bytes.Buffer
	if err := detailTemplate.Execute(&buf, view); err != nil {
		return template.HTMLEscapeString(view.Title)
	}
	return buf.String()
}

func toJSON(v interface{}) (template.JS, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return template.JS(b), nil
}

var dashboardTemplate = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
   <meta charset="UTF-8"/>
   <title>{{ .Title }}</title>
   <link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css" />
   <script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
   <style>
      :root {
         --bg-color: #121212;
         --text-color: #e0e0e0;
         --card-bg: #1e1e1e;
         --card-border: #333;
         --summary-bg: #252525;
         --header-bg: #2d2d45;
         --header-border: #444466;
      }
      body {
         font-family: Arial, sans-serif;
         max-width: 1400px;
         margin: 0 auto;
         padding: 20px;
         background-color: var(--bg-color);
         color: var(--text-color);
         animation: fadeIn 0.3s ease-in;
      }
      @keyframes fadeIn { from { opacity: 0; } to { opacity: 1; } }
      html { background-color: #121212; }
      h1, h2, h3, h4 { color: var(--text-color); }
      .layout { display: grid; grid-template-columns: 1fr 340px; gap: 15px; }
      #map {
         height: 640px; width: 100%;
         border: 2px solid var(--card-border);
         border-radius: 5px;
      }
      .panel {
         background-color: var(--card-bg); padding: 10px 15px;
         border-radius: 5px; border: 1px solid var(--card-border);
         margin-bottom: 15px;
      }
      .stats { display: flex; flex-wrap: wrap; gap: 15px; background-color: var(--summary-bg); padding: 15px; border-radius: 5px; margin-bottom: 15px; }
      .stat-group h4 { margin: 0 0 5px 0; }
      .stat-item { margin-right: 10px; }
      .map-legend .legend-item { display: flex; align-items: center; margin: 5px 0; }
      .legend-color { width: 16px; height: 16px; border-radius: 50%; margin-right: 10px; border: 2px solid #fff; }
      .custom-marker { width: 16px; height: 16px; border-radius: 50%; box-sizing: border-box; cursor: pointer; }
      .custom-marker.pulsing { animation: pulse 1.5s infinite; }
      @keyframes pulse {
         0% { box-shadow: 0 0 0 0 rgba(231, 76, 60, 0.7); }
         70% { box-shadow: 0 0 0 12px rgba(231, 76, 60, 0); }
         100% { box-shadow: 0 0 0 0 rgba(231, 76, 60, 0); }
      }
      .marker-popup h3 { margin: 0 0 5px 0; font-size: 1em; color: #222; }
      .marker-popup { color: #222; }
      .popup-coordinates { font-size: 0.8em; color: #666; margin: 5px 0 0 0; }
      .prediction-value { font-weight: bold; }
      .prediction-value.high, .prediction-value.yes, .prediction-value.heavy { color: #e74c3c; }
      .prediction-value.medium { color: #f39c12; }
      .prediction-value.low, .prediction-value.no, .prediction-value.normal { color: #2ecc71; }
      .detail-item { margin: 4px 0; }
      .coordinates { font-size: 0.9em; color: #aaa; }
      .analysis { border-top: 1px solid var(--card-border); margin-top: 10px; }
      .controls button {
         padding: 6px 12px; margin-right: 8px; cursor: pointer;
         background-color: var(--header-bg); color: var(--text-color);
         border: 1px solid var(--header-border); border-radius: 3px;
      }
      .controls form { display: inline-block; margin-right: 12px; }
      #api-status { margin-left: 10px; font-size: 0.9em; color: #888; }
      @media (max-width: 900px) { .layout { grid-template-columns: 1fr; } }
   </style>
</head>
<body>
   <h1 style="text-align: center;">{{ .Title }}</h1>

   {{ if .Live }}
   <div class="panel controls">
      <button id="sampleDataBtn">Load Sample Data</button>
      <form id="csvForm">
         <input type="file" id="csvFile" accept=".csv"/>
         <button type="submit">Upload CSV</button>
      </form>
      <form id="modelForm">
         <select id="modelType">
            {{ range .ModelTypes }}<option value="{{ . }}">{{ . }}</option>{{ end }}
         </select>
         <input type="file" id="modelFile" accept=".pkl"/>
         <button type="submit">Upload Model</button>
      </form>
      <span id="api-status">Checking API...</span>
   </div>
   {{ end }}

   <div class="stats">
      {{ range .Groups }}
      <div class="stat-group">
         <h4>{{ .Title }}</h4>
         {{ range .Counts }}<span class="stat-item">{{ .Value }}: <span id="{{ .ElementID }}">{{ .Count }}</span></span>{{ end }}
      </div>
      {{ end }}
   </div>

   <h4>Locations: <span id="location-count">{{ .Counter }}</span></h4>
   <h4 id="last-updated">Last updated: <span id="last-updated-time">{{ .LastUpdated }}</span></h4>

   <div class="layout">
      <div id="map"></div>
      <div>
         <div class="panel" id="locationInfo">
            {{ if .Selected }}{{ .Selected }}{{ else }}<p>Hover over or click a marker to see details.</p>{{ end }}
         </div>
         <div class="panel map-legend">
            <h4>Legend</h4>
            {{ range .Legend }}<div class="legend-item"><span class="legend-color" style="background-color: {{ .Color }};"></span>{{ .Label }}</div>{{ end }}
            <div class="legend-item"><span class="legend-color" style="border: 3px solid {{ .BorderColor }};"></span>Incident reported</div>
            <div class="legend-item"><span class="legend-color custom-marker pulsing" style="background-color: #888;"></span>Heavy disruption</div>
         </div>
      </div>
   </div>

   <script>
      const config = {{ .ConfigJSON }};
      let payload = {{ .PayloadJSON }};
      let map;
      let markerLayers = [];

      function initMap() {
          map = L.map('map').setView(config.center, config.zoom);
          L.tileLayer(config.tileUrl, { attribution: config.attribution, maxZoom: 19 }).addTo(map);
      }

      function clearMarkers() {
          markerLayers.forEach(function (layer) { map.removeLayer(layer); });
          markerLayers = [];
      }

      function markerIcon(m) {
          const border = m.incidentBorder ? '3px solid ' + config.incidentBorder : '2px solid #ffffff';
          const cls = 'custom-marker' + (m.pulsing ? ' pulsing' : '');
          return L.divIcon({
              className: '',
              html: '<div class="' + cls + '" style="background-color:' + m.color + ';border:' + border + ';"></div>',
              iconSize: [16, 16],
              iconAnchor: [8, 8]
          });
      }

      function showDetails(html) {
          document.getElementById('locationInfo').innerHTML = html;
      }

      function addMarker(m) {
          const layer = L.marker([m.lat, m.lng], { icon: markerIcon(m) }).addTo(map);
          layer.bindPopup(m.popup, { closeButton: false, offset: [0, -8] });
          layer.on('mouseover', function () {
              layer.openPopup();
              showDetails(m.detail);
          });
          layer.on('mouseout', function () { layer.closePopup(); });
          layer.on('click', function () {
              if (config.live) {
                  loadDetail(m.id);
              } else {
                  showDetails(m.detail);
              }
          });
          markerLayers.push(layer);
      }

      function updateStats(p) {
          (p.counts || []).forEach(function (c) {
              const el = document.getElementById(c.elementId);
              if (el) el.textContent = c.count;
          });
          document.getElementById('location-count').textContent = p.counter;
          document.getElementById('last-updated-time').textContent = p.lastUpdated;
      }

      function applyPayload(p) {
          payload = p;
          clearMarkers();
          (p.markers || []).forEach(addMarker);
          updateStats(p);
          if (p.fit) {
              map.fitBounds(p.fit.bounds, { padding: [p.fit.padding, p.fit.padding], maxZoom: p.fit.maxZoom });
          } else {
              showDetails('<p>Hover over or click a marker to see details.</p>');
          }
      }

      async function callAPI(path, options) {
          let response;
          try {
              response = await fetch(path, options);
          } catch (error) {
              console.error('[api] ' + path + ' failed:', error);
              alert(config.unreachable);
              return null;
          }
          let result = {};
          try {
              result = await response.json();
          } catch (error) {
              result = { message: 'Error: ' + response.status };
          }
          if (!response.ok) {
              alert(result.message);
              return null;
          }
          return result.data;
      }

      async function loadDetail(id) {
          const data = await callAPI('/api/locations/' + id + '/events?event=click', { method: 'POST' });
          if (data) showDetails(data.detailHtml);
      }

      async function loadSampleData() {
          const data = await callAPI('/api/sample', { method: 'POST' });
          if (data) applyPayload(data);
      }

      async function handleCSVUpload(event) {
          event.preventDefault();
          const file = document.getElementById('csvFile').files[0];
          if (!file) {
              alert('Please select a CSV file');
              return;
          }
          const formData = new FormData();
          formData.append('file', file);
          const data = await callAPI('/api/upload-csv', { method: 'POST', body: formData });
          if (data) {
              applyPayload(data);
              document.getElementById('csvForm').reset();
          }
      }

      async function handleModelUpload(event) {
          event.preventDefault();
          const file = document.getElementById('modelFile').files[0];
          if (!file) {
              alert('Please select a model file (.pkl)');
              return;
          }
          const formData = new FormData();
          formData.append('model_type', document.getElementById('modelType').value);
          formData.append('model_file', file);
          const data = await callAPI('/api/upload-model', { method: 'POST', body: formData });
          if (data) {
              alert(data.message);
              document.getElementById('modelForm').reset();
              checkAPIStatus();
          }
      }

      async function checkAPIStatus() {
          const data = await callAPI('/api/status');
          const el = document.getElementById('api-status');
          if (!data) {
              el.textContent = 'API unavailable';
              return;
          }
          el.textContent = data.ready ? 'API ready' : 'API not ready';
          if (data.models_loaded && data.models_loaded.length) {
              el.textContent += ' (models: ' + data.models_loaded.join(', ') + ')';
          }
      }

      document.addEventListener('DOMContentLoaded', function () {
          initMap();
          applyPayload(payload);
          if (config.live) {
              document.getElementById('sampleDataBtn').addEventListener('click', loadSampleData);
              document.getElementById('csvForm').addEventListener('submit', handleCSVUpload);
              document.getElementById('modelForm').addEventListener('submit', handleModelUpload);
              checkAPIStatus();
          }
      });
   </script>
</body>
</html>
`))
