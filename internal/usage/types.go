// Package usage implements the Usage Tracker: a request/response
// middleware that records a UsageRecord for every tracked endpoint and,
// for successful authenticated requests, an api_kind-specific
// AnalyticsRecord extracted from the request/response JSON bodies.
//
// The persistence contract is fixed: analytics are logged only when an
// identity is present and the status is below 400, and extraction
// failures must never fail the request. Extraction itself is explicit Go
// functions over map[string]any, keeping dynamic payload access confined
// to the one place in this service that genuinely must stay dynamic (the
// shape of another handler's JSON body).
package usage

import "time"

// APIKind is the api_kind an HTTP route is bound to at registration,
// selecting which analytics extraction rules apply.
type APIKind string

const (
	KindRouting   APIKind = "routing"
	KindMatrix    APIKind = "matrix"
	KindGeocoding APIKind = "geocoding"
	KindIsochrone APIKind = "isochrone"
)

// rawBlobLimit caps the size of any serialized JSON blob copied into an
// AnalyticsRecord field, matching the original's `[:2000]`/`[:500]`
// string-slice limits.
const rawBlobLimit = 2000

// UsageRecord is persisted for every tracked request.
type UsageRecord struct {
	User         string
	API          string
	Key          string
	Endpoint     string
	StatusCode   int
	ResponseTime time.Duration
	RequestSize  int
	ResponseSize int
	ClientIP     string
	UserAgent    string
	Timestamp    time.Time
}

// AnalyticsRecord extends a UsageRecord with typed, api_kind-specific
// fields. Fields left unextracted stay at their zero
// value; HasStart/HasEnd report whether the corresponding coordinate was
// actually populated, since (0,0) is a valid coordinate.
type AnalyticsRecord struct {
	UsageID int64
	User    string
	API     string

	StartLat, StartLng float64
	HasStart           bool
	EndLat, EndLng     float64
	HasEnd             bool

	DistanceM      float64
	DurationS      float64
	WaypointsCount int
	RouteType      string

	Address          string
	FormattedAddress string
	PlaceID          string
	LocationType     string
	RawPolyline      string
	RawRequestBlob   string

	Timestamp time.Time
}
