package store

// Statements run in order by CreateTables. They are written in the subset
// of SQL shared by Postgres and SQLite.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS agency (
		agency_id TEXT NOT NULL,
		gtfs_agency_id TEXT,
		agency_name TEXT,
		agency_url TEXT,
		agency_timezone TEXT,
		agency_lang TEXT,
		agency_phone TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS routes (
		agency_id TEXT NOT NULL,
		route_id TEXT NOT NULL,
		route_short_name TEXT,
		route_long_name TEXT,
		route_type TEXT,
		route_color TEXT,
		route_text_color TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS stops (
		agency_id TEXT NOT NULL,
		stop_id TEXT NOT NULL,
		stop_name TEXT,
		stop_lat DOUBLE PRECISION,
		stop_lon DOUBLE PRECISION
	)`,
	`CREATE TABLE IF NOT EXISTS trips (
		agency_id TEXT NOT NULL,
		trip_id TEXT NOT NULL,
		route_id TEXT,
		service_id TEXT,
		trip_headsign TEXT,
		direction_id INTEGER,
		shape_id TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS stop_times (
		agency_id TEXT NOT NULL,
		trip_id TEXT NOT NULL,
		stop_sequence INTEGER NOT NULL,
		stop_id TEXT,
		arrival_time TEXT,
		departure_time TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS stop_times_trip_idx ON stop_times (agency_id, trip_id, stop_sequence)`,
	`CREATE TABLE IF NOT EXISTS networks (
		agency_id TEXT PRIMARY KEY,
		network TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS map_config (
		agency_id TEXT PRIMARY KEY,
		initial_latitude DOUBLE PRECISION NOT NULL,
		initial_longitude DOUBLE PRECISION NOT NULL,
		initial_zoom INTEGER NOT NULL,
		max_zoom INTEGER NOT NULL,
		upcoming_stops_to_show INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS vehicle_positions (
		id TEXT NOT NULL,
		agency_id TEXT NOT NULL,
		feed TEXT NOT NULL DEFAULT '',
		feed_timestamp BIGINT NOT NULL,
		vehicle_timestamp BIGINT,
		trip_id TEXT,
		route_id TEXT,
		vehicle_id TEXT,
		vehicle_label TEXT,
		license_plate TEXT,
		latitude DOUBLE PRECISION,
		longitude DOUBLE PRECISION,
		current_stop_sequence INTEGER,
		stop_id TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS vehicle_positions_feed_idx ON vehicle_positions (agency_id, feed, feed_timestamp)`,
	`CREATE TABLE IF NOT EXISTS trip_updates (
		id TEXT NOT NULL,
		agency_id TEXT NOT NULL,
		feed_timestamp BIGINT NOT NULL,
		trip_id TEXT,
		route_id TEXT,
		start_date TEXT,
		start_time TEXT,
		direction_id INTEGER,
		vehicle_id TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS trip_updates_trip_idx ON trip_updates (agency_id, trip_id, feed_timestamp)`,
	`CREATE TABLE IF NOT EXISTS trip_update_stop_times (
		trip_update_id TEXT NOT NULL,
		agency_id TEXT NOT NULL,
		feed_timestamp BIGINT NOT NULL,
		stop_sequence INTEGER,
		stop_id TEXT,
		arrival_time BIGINT,
		departure_time BIGINT
	)`,
	`CREATE INDEX IF NOT EXISTS trip_update_stop_times_idx ON trip_update_stop_times (agency_id, trip_update_id)`,
}
