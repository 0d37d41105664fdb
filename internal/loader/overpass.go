// Package loader implements the Network Loader: fetching a road
// network graph centered at a coordinate from an upstream OSM-compatible
// data provider (an Overpass-API-style interpreter), then annotating every
// edge with a travel_time per the profile's speed rules.
//
// Way-to-edge conversion applies highway accessibility and oneway
// rules per profile, then annotates every edge with a travel time on
// load. Tags decoded off the wire are held as paulmach/osm's Tags type
// so the accessibility/direction rules read the same whether the tag
// source is this HTTP fetch or a PBF-decoded osm.Way.
package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/paulmach/osm"

	"geosvc/internal/geo"
	"geosvc/internal/graph"
	"geosvc/pkg/apperror"
)

// Config sizes and points the Network Loader at its upstream provider.
type Config struct {
	UpstreamURL    string
	RequestTimeout time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	MaxGraphNodes  int
}

// Loader fetches and annotates graphs from an Overpass-API-compatible
// upstream. It satisfies graphcache.Loader.
type Loader struct {
	cfg    Config
	client *http.Client
}

// New constructs a Loader. A nil *http.Client is replaced with one scoped
// to cfg.RequestTimeout.
func New(cfg Config, client *http.Client) *Loader {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 1
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	if cfg.MaxGraphNodes <= 0 {
		cfg.MaxGraphNodes = 200_000
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}
	return &Loader{cfg: cfg, client: client}
}

// Fetch retrieves the road network within radiusM meters of (lat, lon),
// builds a Graph for profile, and annotates every edge with a travel_time
// before returning.
func (l *Loader) Fetch(ctx context.Context, lat, lon, radiusM float64, profile geo.Profile) (*graph.Graph, error) {
	query := buildOverpassQuery(lat, lon, radiusM)

	body, err := l.fetchWithRetry(ctx, query)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeUpstreamUnavailable, "upstream OSM provider request failed")
	}

	doc, err := parseOverpassResponse(body)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeUpstreamUnavailable, "upstream OSM provider returned an unparseable response")
	}

	g, err := buildGraph(doc, profile)
	if err != nil {
		return nil, err
	}

	if g.NodeCount() == 0 {
		return nil, apperror.New(apperror.CodeUpstreamUnavailable, "upstream OSM provider returned an empty graph").
			WithDetails("reason", "EmptyGraph")
	}
	if g.NodeCount() > l.cfg.MaxGraphNodes {
		return nil, apperror.New(apperror.CodeUpstreamUnavailable, "graph exceeds configured node limit").
			WithDetails("reason", "Oversize").
			WithDetails("node_count", g.NodeCount()).
			WithDetails("limit", l.cfg.MaxGraphNodes)
	}

	AnnotateTravelTimes(g, profile)

	if errs := g.Validate(); len(errs) > 0 {
		return nil, apperror.New(apperror.CodeInternal, fmt.Sprintf("loaded graph failed validation: %v", errs[0]))
	}

	return g, nil
}

// fetchWithRetry performs the upstream request with one retry and
// exponential backoff: one retry, then fail.
func (l *Loader) fetchWithRetry(ctx context.Context, query string) ([]byte, error) {
	var lastErr error
	backoff := l.cfg.RetryBackoff

	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}

		reqCtx, cancel := context.WithTimeout(ctx, l.cfg.RequestTimeout)
		body, err := l.doFetch(reqCtx, query)
		cancel()
		if err == nil {
			return body, nil
		}
		lastErr = err
	}

	return nil, lastErr
}

func (l *Loader) doFetch(ctx context.Context, query string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.cfg.UpstreamURL, bytes.NewBufferString("data="+query))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}
	return data, nil
}

// buildOverpassQuery renders an Overpass QL request for the drivable/
// walkable/cyclable way network within radiusM meters of (lat, lon),
// including the nodes those ways reference ("(._;>;);out body;").
func buildOverpassQuery(lat, lon, radiusM float64) string {
	return fmt.Sprintf(
		`[out:json][timeout:25];way(around:%.1f,%.6f,%.6f)["highway"];(._;>;);out body;`,
		radiusM, lat, lon,
	)
}

// overpassElement mirrors one entry of an Overpass JSON interpreter
// response's "elements" array.
type overpassElement struct {
	Type  string            `json:"type"`
	ID    int64             `json:"id"`
	Lat   float64           `json:"lat"`
	Lon   float64           `json:"lon"`
	Nodes []int64           `json:"nodes"`
	Tags  map[string]string `json:"tags"`
}

type overpassDoc struct {
	Elements []overpassElement `json:"elements"`
}

func parseOverpassResponse(body []byte) (*overpassDoc, error) {
	var doc overpassDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode overpass response: %w", err)
	}
	return &doc, nil
}

// accessibleHighways maps profile to the set of OSM highway tag values
// its edges may use.
var accessibleHighways = map[geo.Profile]map[string]bool{
	geo.ProfileDriving: {
		"motorway": true, "motorway_link": true, "trunk": true, "trunk_link": true,
		"primary": true, "primary_link": true, "secondary": true, "secondary_link": true,
		"tertiary": true, "tertiary_link": true, "unclassified": true, "residential": true,
		"living_street": true, "service": true,
	},
	geo.ProfileWalking: {
		"footway": true, "path": true, "pedestrian": true, "living_street": true,
		"residential": true, "unclassified": true, "tertiary": true, "secondary": true,
		"primary": true, "steps": true, "track": true, "service": true,
	},
	geo.ProfileCycling: {
		"cycleway": true, "path": true, "living_street": true, "residential": true,
		"unclassified": true, "tertiary": true, "secondary": true, "primary": true,
		"track": true, "service": true,
	},
}

// tagsOf converts the Overpass JSON tag map to paulmach/osm's Tags type
// so the accessibility/direction rules below read exactly as they would
// against a PBF-sourced osm.Way.
func tagsOf(raw map[string]string) osm.Tags {
	tags := make(osm.Tags, 0, len(raw))
	for k, v := range raw {
		tags = append(tags, osm.Tag{Key: k, Value: v})
	}
	return tags
}

func isAccessible(profile geo.Profile, tags osm.Tags) bool {
	set := accessibleHighways[profile]
	if set == nil {
		set = accessibleHighways[geo.ProfileDriving]
	}
	if !set[tags.Find("highway")] {
		return false
	}
	if tags.Find("area") == "yes" {
		return false
	}
	access := tags.Find("access")
	if access == "no" || access == "private" {
		return false
	}
	if profile == geo.ProfileDriving && tags.Find("motor_vehicle") == "no" {
		return false
	}
	if profile == geo.ProfileWalking && tags.Find("foot") == "no" {
		return false
	}
	if profile == geo.ProfileCycling && tags.Find("bicycle") == "no" {
		return false
	}
	return true
}

// directionFlags returns (forward, backward) per the OSM oneway tagging
// rules; walking is never treated as oneway regardless of tagging, since
// pedestrians can traverse a carriageway-tagged oneway on foot.
func directionFlags(profile geo.Profile, tags osm.Tags) (forward, backward bool) {
	if profile == geo.ProfileWalking {
		return true, true
	}

	forward, backward = true, true
	hw := tags.Find("highway")
	if hw == "motorway" || hw == "motorway_link" || tags.Find("junction") == "roundabout" {
		backward = false
	}

	switch tags.Find("oneway") {
	case "yes", "true", "1":
		forward, backward = true, false
	case "-1", "reverse":
		forward, backward = false, true
	case "no":
		forward, backward = true, true
	case "reversible":
		forward, backward = false, false
	}
	return forward, backward
}

// buildGraph converts the parsed Overpass elements into a Graph, wiring
// bidirectional edges per directionFlags and leaving TravelTimeS at zero
// for AnnotateTravelTimes to fill in.
func buildGraph(doc *overpassDoc, profile geo.Profile) (*graph.Graph, error) {
	g := graph.New(profile)

	type nodeInfo struct{ lat, lon float64 }
	nodes := make(map[int64]nodeInfo)

	for _, el := range doc.Elements {
		if el.Type == "node" {
			nodes[el.ID] = nodeInfo{lat: el.Lat, lon: el.Lon}
		}
	}
	for id, n := range nodes {
		g.AddNode(&graph.Node{ID: graph.NodeID(id), Coord: geo.Coordinate{Lat: n.lat, Lng: n.lon}})
	}

	for _, el := range doc.Elements {
		if el.Type != "way" {
			continue
		}
		tags := tagsOf(el.Tags)
		if !isAccessible(profile, tags) {
			continue
		}
		if len(el.Nodes) < 2 {
			continue
		}

		fwd, bwd := directionFlags(profile, tags)
		if !fwd && !bwd {
			continue
		}

		highway := tags.Find("highway")
		maxSpeed := graph.ParseMaxSpeedKPH(tags.Find("maxspeed"))

		for i := 0; i < len(el.Nodes)-1; i++ {
			fromID, toID := el.Nodes[i], el.Nodes[i+1]
			from, fromOK := nodes[fromID]
			to, toOK := nodes[toID]
			if !fromOK || !toOK {
				continue
			}

			length := geo.Haversine(from.lat, from.lon, to.lat, to.lon)
			if length <= 0 {
				length = 1
			}

			if fwd {
				g.AddEdge(&graph.Edge{
					From: graph.NodeID(fromID), To: graph.NodeID(toID),
					Length: length, Highway: highway, MaxSpeedKPH: maxSpeed,
				})
			}
			if bwd {
				g.AddEdge(&graph.Edge{
					From: graph.NodeID(toID), To: graph.NodeID(fromID),
					Length: length, Highway: highway, MaxSpeedKPH: maxSpeed,
				})
			}
		}
	}

	return g, nil
}

// AnnotateTravelTimes fills in TravelTimeS (and SpeedKPH) for every edge in
// g: driving uses existing attributes then the highway-class
// table; walking and cycling use a uniform per-profile speed regardless of
// tagging.
func AnnotateTravelTimes(g *graph.Graph, profile geo.Profile) {
	for _, id := range g.NodeIDs() {
		for _, e := range g.Neighbors(id) {
			speed := resolveSpeedKPH(e, profile)
			e.SpeedKPH = speed
			e.TravelTimeS = e.Length / (speed * 1000 / 3600)
			if e.TravelTimeS <= 0 {
				e.TravelTimeS = 0.001
			}
		}
	}
}

func resolveSpeedKPH(e *graph.Edge, profile geo.Profile) float64 {
	switch profile {
	case geo.ProfileWalking:
		return geo.ProfileWalking.DefaultSpeedKPH()
	case geo.ProfileCycling:
		return geo.ProfileCycling.DefaultSpeedKPH()
	default:
		return graph.DrivingSpeedKPH(e)
	}
}
