package postgres

// One table per channel plus the device registry. Every table is indexed by
// device id and time, descending, to serve the dashboard's recent-first
// queries.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS telemetry_data (
		id BIGSERIAL PRIMARY KEY,
		device_id VARCHAR(100) NOT NULL,
		device_type VARCHAR(50),
		channel VARCHAR(50),
		recipe VARCHAR(100),
		step VARCHAR(100),
		lot_number VARCHAR(100),
		wafer_id VARCHAR(100),
		pressure DECIMAL(10,3),
		temperature DECIMAL(10,3),
		rf_power DECIMAL(10,3),
		endpoint DECIMAL(10,3),
		gas JSONB,
		device_timestamp BIGINT,
		data_timestamp TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_telemetry_device_time
		ON telemetry_data(device_id, data_timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_telemetry_created
		ON telemetry_data(created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS alerts (
		id BIGSERIAL PRIMARY KEY,
		device_id VARCHAR(100),
		alert_type VARCHAR(100) NOT NULL,
		severity VARCHAR(20) NOT NULL,
		message TEXT NOT NULL,
		alert_data JSONB,
		data_timestamp TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		resolved_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_device_time
		ON alerts(device_id, data_timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_unresolved
		ON alerts(resolved_at) WHERE resolved_at IS NULL`,

	`CREATE TABLE IF NOT EXISTS device_events (
		id BIGSERIAL PRIMARY KEY,
		device_id VARCHAR(100) NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		event_data JSONB,
		severity VARCHAR(20) DEFAULT 'info',
		data_timestamp TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_device_time
		ON device_events(device_id, data_timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_events_type
		ON device_events(event_type)`,

	`CREATE TABLE IF NOT EXISTS error_logs (
		id BIGSERIAL PRIMARY KEY,
		device_id VARCHAR(100),
		error_type VARCHAR(100) NOT NULL,
		code VARCHAR(50),
		message TEXT NOT NULL,
		error_data JSONB,
		severity VARCHAR(20) DEFAULT 'error',
		data_timestamp TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_errors_device_time
		ON error_logs(device_id, data_timestamp DESC)`,

	`CREATE TABLE IF NOT EXISTS devices (
		device_id VARCHAR(100) PRIMARY KEY,
		device_type VARCHAR(50),
		vendor VARCHAR(100),
		first_seen TIMESTAMPTZ DEFAULT NOW(),
		last_seen TIMESTAMPTZ DEFAULT NOW(),
		description TEXT
	)`,
}
