package usage

import (
	"context"

	"geosvc/pkg/database"
)

// Repository is the typed persistence port for UsageRecord/AnalyticsRecord.
// The schema itself is an external collaborator; this interface
// is the only thing the rest of the service depends on.
type Repository interface {
	SaveUsage(ctx context.Context, rec UsageRecord) (int64, error)
	SaveAnalytics(ctx context.Context, rec AnalyticsRecord) error
}

// PostgresRepository persists through pkg/database's jackc/pgx/v5-backed
// DB port.
type PostgresRepository struct {
	db database.DB
}

// NewPostgresRepository constructs a PostgresRepository over an existing
// connection pool.
func NewPostgresRepository(db database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const insertUsageSQL = `
INSERT INTO usage_records
	(user_id, api, api_key, endpoint, status_code, response_time_ms,
	 request_size, response_size, client_ip, user_agent, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id`

// SaveUsage inserts a UsageRecord and returns its generated id, which
// AnalyticsRecord.UsageID references.
func (r *PostgresRepository) SaveUsage(ctx context.Context, rec UsageRecord) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, insertUsageSQL,
		rec.User, rec.API, rec.Key, rec.Endpoint, rec.StatusCode,
		rec.ResponseTime.Milliseconds(), rec.RequestSize, rec.ResponseSize,
		rec.ClientIP, rec.UserAgent, rec.Timestamp,
	).Scan(&id)
	return id, err
}

const insertAnalyticsSQL = `
INSERT INTO analytics_records
	(usage_id, user_id, api,
	 start_latitude, start_longitude, has_start,
	 end_latitude, end_longitude, has_end,
	 distance_m, duration_s, waypoints_count, route_type,
	 address, formatted_address, place_id, location_type,
	 raw_polyline, raw_request_blob, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

// SaveAnalytics inserts an AnalyticsRecord. The Usage Tracker only calls
// this for requests that completed below 400 with an authenticated
// identity present.
func (r *PostgresRepository) SaveAnalytics(ctx context.Context, rec AnalyticsRecord) error {
	_, err := r.db.Exec(ctx, insertAnalyticsSQL,
		rec.UsageID, rec.User, rec.API,
		rec.StartLat, rec.StartLng, rec.HasStart,
		rec.EndLat, rec.EndLng, rec.HasEnd,
		rec.DistanceM, rec.DurationS, rec.WaypointsCount, rec.RouteType,
		rec.Address, rec.FormattedAddress, rec.PlaceID, rec.LocationType,
		rec.RawPolyline, rec.RawRequestBlob, rec.Timestamp,
	)
	return err
}
