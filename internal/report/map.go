package report

import (
	"fmt"
	"html/template"
	"os"

	"roadsafety/internal/config"
	"roadsafety/internal/data"
)

// Point is one marker on the accident map.
type Point struct {
	Lat   float64
	Lon   float64
	Popup map[string]string
}

// MapPoints collects the rows with valid coordinates, in table order, up to
// the configured limit. Popup fields missing from the table are an error.
func MapPoints(t *data.Table, cfg config.MapConfig) ([]Point, error) {
	lat, err := t.Lookup("Map", cfg.Latitude)
	if err != nil {
		return nil, err
	}
	lon, err := t.Lookup("Map", cfg.Longitude)
	if err != nil {
		return nil, err
	}
	popup := make([]*data.Column, len(cfg.Popup))
	for i, name := range cfg.Popup {
		if popup[i], err = t.Lookup("Map", name); err != nil {
			return nil, err
		}
	}

	var points []Point
	for row := 0; row < t.NumRows(); row++ {
		if cfg.Limit > 0 && len(points) >= cfg.Limit {
			break
		}
		y, ok1 := lat.Float(row)
		x, ok2 := lon.Float(row)
		if !ok1 || !ok2 || y < -90 || y > 90 || x < -180 || x > 180 {
			continue
		}
		p := Point{Lat: y, Lon: x, Popup: make(map[string]string, len(popup))}
		for i, col := range popup {
			p.Popup[cfg.Popup[i]] = col.Text(row)
		}
		points = append(points, p)
	}
	return points, nil
}

var mapTemplate = template.Must(template.New("map").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css">
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
<style>html, body, #map { height: 100%; margin: 0; }</style>
</head>
<body>
<div id="map"></div>
<script>
var map = L.map('map').setView([{{.CenterLat}}, {{.CenterLon}}], {{.Zoom}});
L.tileLayer('https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png', {
  maxZoom: 18,
  attribution: '&copy; OpenStreetMap contributors'
}).addTo(map);
var points = {{.Points}};
function esc(s) {
  return String(s).replace(/[&<>"']/g, function (c) {
    return {'&': '&amp;', '<': '&lt;', '>': '&gt;', '"': '&quot;', "'": '&#39;'}[c];
  });
}
points.forEach(function (p) {
  var html = p.fields.map(function (f) { return '<b>' + esc(f[0]) + ':</b> ' + esc(f[1]); }).join('<br>');
  L.marker([p.lat, p.lon]).addTo(map).bindPopup(html);
});
</script>
</body>
</html>
`))

type mapMarker struct {
	Lat    float64     `json:"lat"`
	Lon    float64     `json:"lon"`
	Fields [][2]string `json:"fields"`
}

// WriteMap renders the points as a Leaflet page centered on their mean
// position. Popup fields keep the order of fields.
func WriteMap(path, title string, fields []string, points []Point) error {
	if len(points) == 0 {
		return fmt.Errorf("map: no rows with valid coordinates")
	}

	markers := make([]mapMarker, len(points))
	var sumLat, sumLon float64
	for i, p := range points {
		m := mapMarker{Lat: p.Lat, Lon: p.Lon, Fields: make([][2]string, 0, len(fields))}
		for _, f := range fields {
			m.Fields = append(m.Fields, [2]string{f, p.Popup[f]})
		}
		markers[i] = m
		sumLat += p.Lat
		sumLon += p.Lon
	}
	n := float64(len(points))

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("map: %w", err)
	}
	defer file.Close()

	return mapTemplate.Execute(file, map[string]any{
		"Title":     title,
		"CenterLat": sumLat / n,
		"CenterLon": sumLon / n,
		"Zoom":      4,
		"Points":    markers,
	})
}
