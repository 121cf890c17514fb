package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	database "tarediiran-industries.com/transit-map/internal/db"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("not found")

type SQLStore struct {
	db *database.Database
}

func NewSQLStore(db *database.Database) *SQLStore {
	return &SQLStore{db: db}
}

// Open connects to dsn and makes sure the schema exists.
func Open(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := database.NewDatabaseConnection(ctx, dsn)
	if err != nil {
		return nil, err
	}

	store := NewSQLStore(db)
	if err := store.CreateTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (store *SQLStore) Close() error {
	return store.db.Close()
}

func (store *SQLStore) CreateTables(ctx context.Context) error {
	for _, statement := range schemaStatements {
		if _, err := store.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}

// ReplaceStatic swaps the agency's schedule tables for the given feed in a
// single transaction. A failed load leaves the previous schedule in place.
func (store *SQLStore) ReplaceStatic(ctx context.Context, agencyID string, feed StaticFeed) error {
	return store.db.WithBulkTx(ctx, func(tx database.BulkTx) error {
		for _, table := range []string{"agency", "routes", "stops", "trips", "stop_times"} {
			if err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE agency_id = $1", agencyID); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}

		_, err := tx.CopyFromSlice(ctx, "agency",
			[]string{"agency_id", "gtfs_agency_id", "agency_name", "agency_url", "agency_timezone", "agency_lang", "agency_phone"},
			len(feed.Agencies),
			func(i int) ([]any, error) {
				a := feed.Agencies[i]
				return []any{agencyID, a.AgencyID, a.Name, a.Url, a.Timezone, a.Lang, a.Phone}, nil
			})
		if err != nil {
			return err
		}

		_, err = tx.CopyFromSlice(ctx, "routes",
			[]string{"agency_id", "route_id", "route_short_name", "route_long_name", "route_type", "route_color", "route_text_color"},
			len(feed.Routes),
			func(i int) ([]any, error) {
				r := feed.Routes[i]
				if r.RouteID == "" {
					return nil, fmt.Errorf("routes row %d: missing route_id", i)
				}
				return []any{agencyID, r.RouteID, r.ShortName, r.LongName, r.RouteType, r.Color, r.TextColor}, nil
			})
		if err != nil {
			return err
		}

		_, err = tx.CopyFromSlice(ctx, "stops",
			[]string{"agency_id", "stop_id", "stop_name", "stop_lat", "stop_lon"},
			len(feed.Stops),
			func(i int) ([]any, error) {
				s := feed.Stops[i]
				if s.StopID == "" {
					return nil, fmt.Errorf("stops row %d: missing stop_id", i)
				}
				return []any{agencyID, s.StopID, s.Name, s.Latitude, s.Longitude}, nil
			})
		if err != nil {
			return err
		}

		_, err = tx.CopyFromSlice(ctx, "trips",
			[]string{"agency_id", "trip_id", "route_id", "service_id", "trip_headsign", "direction_id", "shape_id"},
			len(feed.Trips),
			func(i int) ([]any, error) {
				t := feed.Trips[i]
				if t.TripID == "" {
					return nil, fmt.Errorf("trips row %d: missing trip_id", i)
				}
				return []any{agencyID, t.TripID, t.RouteID, t.ServiceID, t.Headsign, t.DirectionID, t.ShapeID}, nil
			})
		if err != nil {
			return err
		}

		_, err = tx.CopyFromSlice(ctx, "stop_times",
			[]string{"agency_id", "trip_id", "stop_sequence", "stop_id", "arrival_time", "departure_time"},
			len(feed.StopTimes),
			func(i int) ([]any, error) {
				st := feed.StopTimes[i]
				if st.TripID == "" {
					return nil, fmt.Errorf("stop_times row %d: missing trip_id", i)
				}
				return []any{agencyID, st.TripID, st.StopSequence, st.StopID, st.ArrivalTime, st.DepartureTime}, nil
			})
		return err
	})
}

func (store *SQLStore) PutNetwork(ctx context.Context, agencyID string, network Network) error {
	if err := ValidateNetwork(network); err != nil {
		return err
	}

	_, err := store.db.ExecContext(ctx,
		`INSERT INTO networks (agency_id, network) VALUES ($1, $2)
		ON CONFLICT (agency_id) DO UPDATE SET network = excluded.network`,
		agencyID, string(network))
	if err != nil {
		return fmt.Errorf("put network: %w", err)
	}
	return nil
}

func (store *SQLStore) NetworkMap(ctx context.Context, agencyID string) (Network, error) {
	var raw string
	err := store.db.QueryRowContext(ctx, "SELECT network FROM networks WHERE agency_id = $1", agencyID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("network map: %w", err)
	}
	return Network(raw), nil
}

func (store *SQLStore) PutMapConfig(ctx context.Context, cfg MapConfig) error {
	_, err := store.db.ExecContext(ctx,
		`INSERT INTO map_config (agency_id, initial_latitude, initial_longitude, initial_zoom, max_zoom, upcoming_stops_to_show)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (agency_id) DO UPDATE SET
			initial_latitude = excluded.initial_latitude,
			initial_longitude = excluded.initial_longitude,
			initial_zoom = excluded.initial_zoom,
			max_zoom = excluded.max_zoom,
			upcoming_stops_to_show = excluded.upcoming_stops_to_show`,
		cfg.AgencyID, cfg.InitialLatitude, cfg.InitialLongitude, cfg.InitialZoom, cfg.MaxZoom, cfg.UpcomingStopsToShow)
	if err != nil {
		return fmt.Errorf("put map config: %w", err)
	}
	return nil
}

func (store *SQLStore) MapConfig(ctx context.Context, agencyID string) (MapConfig, error) {
	cfg := MapConfig{AgencyID: agencyID}
	err := store.db.QueryRowContext(ctx,
		`SELECT initial_latitude, initial_longitude, initial_zoom, max_zoom, upcoming_stops_to_show
		FROM map_config WHERE agency_id = $1`, agencyID,
	).Scan(&cfg.InitialLatitude, &cfg.InitialLongitude, &cfg.InitialZoom, &cfg.MaxZoom, &cfg.UpcomingStopsToShow)
	if errors.Is(err, sql.ErrNoRows) {
		return MapConfig{}, ErrNotFound
	}
	if err != nil {
		return MapConfig{}, fmt.Errorf("map config: %w", err)
	}
	return cfg, nil
}

func (store *SQLStore) Routes(ctx context.Context, agencyID string) ([]Route, error) {
	rows, err := store.db.QueryContext(ctx,
		`SELECT route_id, COALESCE(route_short_name, ''), COALESCE(route_long_name, ''), COALESCE(route_type, ''),
			COALESCE(route_color, ''), COALESCE(route_text_color, '')
		FROM routes WHERE agency_id = $1 ORDER BY route_id`, agencyID)
	if err != nil {
		return nil, fmt.Errorf("routes: %w", err)
	}
	defer rows.Close()

	routes := []Route{}
	for rows.Next() {
		var r Route
		if err := rows.Scan(&r.RouteID, &r.ShortName, &r.LongName, &r.RouteType, &r.Color, &r.TextColor); err != nil {
			return nil, err
		}
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

func (store *SQLStore) Stops(ctx context.Context, agencyID string) ([]Stop, error) {
	rows, err := store.db.QueryContext(ctx,
		`SELECT stop_id, COALESCE(stop_name, ''), COALESCE(stop_lat, 0), COALESCE(stop_lon, 0)
		FROM stops WHERE agency_id = $1 ORDER BY stop_id`, agencyID)
	if err != nil {
		return nil, fmt.Errorf("stops: %w", err)
	}
	defer rows.Close()

	stops := []Stop{}
	for rows.Next() {
		var s Stop
		if err := rows.Scan(&s.StopID, &s.Name, &s.Latitude, &s.Longitude); err != nil {
			return nil, err
		}
		stops = append(stops, s)
	}
	return stops, rows.Err()
}

// LatestFeedTimestamp returns the newest stored feed header timestamp for
// the agency and feed kind, or 0 when nothing has been stored.
func (store *SQLStore) LatestFeedTimestamp(ctx context.Context, agencyID string, kind FeedKind) (int64, error) {
	var table string
	switch kind {
	case FeedVehiclePositions:
		table = "vehicle_positions"
	case FeedTripUpdates:
		table = "trip_updates"
	default:
		return 0, fmt.Errorf("unknown feed kind %q", kind)
	}

	var latest sql.NullInt64
	err := store.db.QueryRowContext(ctx,
		"SELECT MAX(feed_timestamp) FROM "+table+" WHERE agency_id = $1", agencyID,
	).Scan(&latest)
	if err != nil {
		return 0, fmt.Errorf("latest %s timestamp: %w", kind, err)
	}
	return latest.Int64, nil
}

func (store *SQLStore) InsertVehiclePositions(ctx context.Context, agencyID string, positions []VehiclePosition) (int64, error) {
	return store.db.CopyFromSlice(ctx, "vehicle_positions",
		[]string{"id", "agency_id", "feed", "feed_timestamp", "vehicle_timestamp", "trip_id", "route_id", "vehicle_id",
			"vehicle_label", "license_plate", "latitude", "longitude", "current_stop_sequence", "stop_id"},
		len(positions),
		func(i int) ([]any, error) {
			p := positions[i]
			return []any{p.ID, agencyID, p.Feed, p.FeedTimestamp, p.VehicleTimestamp, p.TripID, p.RouteID, p.VehicleID,
				p.VehicleLabel, p.LicensePlate, p.Latitude, p.Longitude, p.CurrentStopSequence, p.StopID}, nil
		})
}

// LatestVehiclePositions returns, for every feed, the vehicles of its newest
// stored message.
func (store *SQLStore) LatestVehiclePositions(ctx context.Context, agencyID string) ([]VehiclePosition, error) {
	rows, err := store.db.QueryContext(ctx,
		`SELECT v.id, v.feed, v.feed_timestamp, COALESCE(v.vehicle_timestamp, 0), COALESCE(trip_id, ''), COALESCE(route_id, ''),
			COALESCE(vehicle_id, ''), COALESCE(vehicle_label, ''), COALESCE(license_plate, ''),
			COALESCE(latitude, 0), COALESCE(longitude, 0), COALESCE(current_stop_sequence, 0), COALESCE(stop_id, '')
		FROM vehicle_positions v
		WHERE v.agency_id = $1
			AND v.feed_timestamp = (
				SELECT MAX(l.feed_timestamp) FROM vehicle_positions l
				WHERE l.agency_id = v.agency_id AND l.feed = v.feed)
		ORDER BY v.feed, v.id`, agencyID)
	if err != nil {
		return nil, fmt.Errorf("latest vehicle positions: %w", err)
	}
	defer rows.Close()

	positions := []VehiclePosition{}
	for rows.Next() {
		var p VehiclePosition
		if err := rows.Scan(&p.ID, &p.Feed, &p.FeedTimestamp, &p.VehicleTimestamp, &p.TripID, &p.RouteID, &p.VehicleID,
			&p.VehicleLabel, &p.LicensePlate, &p.Latitude, &p.Longitude, &p.CurrentStopSequence, &p.StopID); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (store *SQLStore) InsertTripUpdates(ctx context.Context, agencyID string, updates []TripUpdate, stopTimes []StopTimeUpdate) (int64, error) {
	n, err := store.db.CopyFromSlice(ctx, "trip_updates",
		[]string{"id", "agency_id", "feed_timestamp", "trip_id", "route_id", "start_date", "start_time", "direction_id", "vehicle_id"},
		len(updates),
		func(i int) ([]any, error) {
			u := updates[i]
			return []any{u.ID, agencyID, u.FeedTimestamp, u.TripID, u.RouteID, u.StartDate, u.StartTime, u.DirectionID, u.VehicleID}, nil
		})
	if err != nil {
		return n, err
	}

	_, err = store.db.CopyFromSlice(ctx, "trip_update_stop_times",
		[]string{"trip_update_id", "agency_id", "feed_timestamp", "stop_sequence", "stop_id", "arrival_time", "departure_time"},
		len(stopTimes),
		func(i int) ([]any, error) {
			s := stopTimes[i]
			return []any{s.TripUpdateID, agencyID, s.FeedTimestamp, s.StopSequence, s.StopID, s.ArrivalTime, s.DepartureTime}, nil
		})
	return n, err
}

// UpcomingStops lists up to count scheduled stops of the trip after
// afterSequence, overlaid with predictions from the newest trip update.
// Trips missing from the schedule fall back to the trip update alone.
func (store *SQLStore) UpcomingStops(ctx context.Context, agencyID, tripID string, afterSequence, count int) ([]UpcomingStop, error) {
	rows, err := store.db.QueryContext(ctx,
		`SELECT st.stop_id, COALESCE(s.stop_name, ''), st.stop_sequence,
			COALESCE(st.arrival_time, ''), COALESCE(st.departure_time, '')
		FROM stop_times st
		LEFT JOIN stops s ON s.agency_id = st.agency_id AND s.stop_id = st.stop_id
		WHERE st.agency_id = $1 AND st.trip_id = $2 AND st.stop_sequence > $3
		ORDER BY st.stop_sequence
		LIMIT $4`, agencyID, tripID, afterSequence, count)
	if err != nil {
		return nil, fmt.Errorf("upcoming stops: %w", err)
	}
	defer rows.Close()

	stops := []UpcomingStop{}
	for rows.Next() {
		var u UpcomingStop
		if err := rows.Scan(&u.StopID, &u.StopName, &u.StopSequence, &u.ArrivalTime, &u.DepartureTime); err != nil {
			return nil, err
		}
		stops = append(stops, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	predictions, err := store.latestPredictions(ctx, agencyID, tripID)
	if err != nil {
		return nil, err
	}

	if len(stops) == 0 {
		for _, p := range predictions {
			if p.StopSequence > afterSequence && len(stops) < count {
				stops = append(stops, UpcomingStop{
					StopID:             p.StopID,
					StopSequence:       p.StopSequence,
					PredictedArrival:   p.ArrivalTime,
					PredictedDeparture: p.DepartureTime,
				})
			}
		}
		return store.fillStopNames(ctx, agencyID, stops)
	}

	for i := range stops {
		for _, p := range predictions {
			matches := (p.StopSequence != 0 && p.StopSequence == stops[i].StopSequence) ||
				(p.StopSequence == 0 && p.StopID == stops[i].StopID)
			if matches {
				stops[i].PredictedArrival = p.ArrivalTime
				stops[i].PredictedDeparture = p.DepartureTime
				break
			}
		}
	}
	return stops, nil
}

func (store *SQLStore) latestPredictions(ctx context.Context, agencyID, tripID string) ([]StopTimeUpdate, error) {
	rows, err := store.db.QueryContext(ctx,
		`SELECT trip_update_id, feed_timestamp, COALESCE(stop_sequence, 0), COALESCE(stop_id, ''),
			COALESCE(arrival_time, 0), COALESCE(departure_time, 0)
		FROM trip_update_stop_times
		WHERE agency_id = $1 AND trip_update_id = (
			SELECT id FROM trip_updates WHERE agency_id = $1 AND trip_id = $2
			ORDER BY feed_timestamp DESC LIMIT 1
		)
		ORDER BY stop_sequence`, agencyID, tripID)
	if err != nil {
		return nil, fmt.Errorf("trip predictions: %w", err)
	}
	defer rows.Close()

	var updates []StopTimeUpdate
	for rows.Next() {
		var u StopTimeUpdate
		if err := rows.Scan(&u.TripUpdateID, &u.FeedTimestamp, &u.StopSequence, &u.StopID, &u.ArrivalTime, &u.DepartureTime); err != nil {
			return nil, err
		}
		updates = append(updates, u)
	}
	return updates, rows.Err()
}

func (store *SQLStore) fillStopNames(ctx context.Context, agencyID string, stops []UpcomingStop) ([]UpcomingStop, error) {
	for i := range stops {
		var name string
		err := store.db.QueryRowContext(ctx,
			"SELECT COALESCE(stop_name, '') FROM stops WHERE agency_id = $1 AND stop_id = $2", agencyID, stops[i].StopID,
		).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("stop name: %w", err)
		}
		stops[i].StopName = name
	}
	return stops, nil
}

// PruneBefore deletes realtime rows whose feed timestamp is older than
// cutoff and reports how many rows went away.
func (store *SQLStore) PruneBefore(ctx context.Context, agencyID string, kind FeedKind, cutoff int64) (int64, error) {
	var statements []string
	switch kind {
	case FeedVehiclePositions:
		statements = []string{"DELETE FROM vehicle_positions WHERE agency_id = $1 AND feed_timestamp < $2"}
	case FeedTripUpdates:
		statements = []string{
			"DELETE FROM trip_update_stop_times WHERE agency_id = $1 AND feed_timestamp < $2",
			"DELETE FROM trip_updates WHERE agency_id = $1 AND feed_timestamp < $2",
		}
	default:
		return 0, fmt.Errorf("unknown feed kind %q", kind)
	}

	var deleted int64
	err := store.db.WithTx(ctx, func(tx database.DBTX) error {
		for _, statement := range statements {
			res, err := tx.ExecContext(ctx, statement, agencyID, cutoff)
			if err != nil {
				return fmt.Errorf("prune %s: %w", kind, err)
			}
			n, _ := res.RowsAffected()
			deleted += n
		}
		return nil
	})
	return deleted, err
}
