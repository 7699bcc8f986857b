// Package postgres provides the relational store and the persistence
// service that drains bus channels into it in batches.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chipmonitor/ingest/internal/config"
	"github.com/chipmonitor/ingest/internal/event"
	"github.com/chipmonitor/ingest/internal/log"
)

// Store wraps the connection pool and the per-channel batch inserts.
type Store struct {
	pool *pgxpool.Pool
	log  *log.Logger
}

// NewStore connects the pool and verifies it with a ping.
func NewStore(ctx context.Context, cfg *config.PostgresConfig, logger *log.Logger) (*Store, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User), url.QueryEscape(cfg.Password),
		cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	poolCfg.MinConns = int32(cfg.MinConnections)
	poolCfg.MaxConns = int32(cfg.MaxConnections)
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: postgres ping failed: %v", event.ErrConnection, err)
	}

	logger.Info("Postgres connected: %s:%d/%s", cfg.Host, cfg.Port, cfg.Database)
	return &Store{pool: pool, log: logger}, nil
}

// InitSchema creates the tables and indexes when missing.
func (s *Store) InitSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema init failed: %w", err)
		}
	}
	s.log.Info("Database schema initialized")
	return nil
}

// Ping verifies pool health.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InsertBatch persists a homogeneous batch of messages from one channel.
// Telemetry and device events also upsert the device registry.
func (s *Store) InsertBatch(ctx context.Context, channel event.Channel, msgs []event.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i := range msgs {
		if err := queueInsert(batch, &msgs[i]); err != nil {
			s.log.Warn("Skipping unpersistable message on %s: %v", channel, err)
		}
	}
	if batch.Len() == 0 {
		return nil
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("%w: batch insert on %s: %v", event.ErrPersistence, channel, err)
		}
	}
	return nil
}

// queueInsert appends the INSERT (plus the registry upsert where relevant)
// for one message.
func queueInsert(batch *pgx.Batch, msg *event.Message) error {
	switch p := msg.Payload.(type) {
	case event.TelemetryEvent:
		gas, err := jsonOrNil(p.Sample.Gas)
		if err != nil {
			return err
		}
		batch.Queue(
			`INSERT INTO telemetry_data
				(device_id, device_type, channel, recipe, step, lot_number, wafer_id,
				 pressure, temperature, rf_power, endpoint, gas, device_timestamp, data_timestamp)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
			p.DeviceID, p.DeviceType, channelLabel(p.Sample.Channel),
			nilIfEmpty(p.Sample.Recipe), nilIfEmpty(p.Sample.Step),
			nilIfEmpty(p.Sample.LotNumber), nilIfEmpty(p.Sample.WaferID),
			p.Sample.Pressure, p.Sample.Temperature, p.Sample.RFPower, p.Sample.Endpoint,
			gas, nilIfZero(p.Sample.DeviceTimestamp), msg.Timestamp,
		)
		queueDeviceUpsert(batch, p.DeviceID, p.DeviceType, p.Vendor)

	case event.Alert:
		data, err := jsonOrNil(p.Data)
		if err != nil {
			return err
		}
		batch.Queue(
			`INSERT INTO alerts (device_id, alert_type, severity, message, alert_data, data_timestamp)
			 VALUES ($1,$2,$3,$4,$5,$6)`,
			p.DeviceID, p.AlertType, p.Severity, p.Message, data, msg.Timestamp,
		)

	case event.ErrorEvent:
		data, err := jsonOrNil(p.Data)
		if err != nil {
			return err
		}
		batch.Queue(
			`INSERT INTO error_logs (device_id, error_type, code, message, error_data, severity, data_timestamp)
			 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			p.DeviceID, p.ErrorType, nilIfEmpty(p.Code), p.Message, data, p.Severity, msg.Timestamp,
		)

	case event.DeviceEvent:
		data, err := jsonOrNil(p.Data)
		if err != nil {
			return err
		}
		batch.Queue(
			`INSERT INTO device_events (device_id, event_type, event_data, severity, data_timestamp)
			 VALUES ($1,$2,$3,$4,$5)`,
			p.DeviceID, p.EventType, data, p.Severity, msg.Timestamp,
		)
		queueDeviceUpsert(batch, p.DeviceID, p.DeviceType, p.Vendor)

	default:
		return fmt.Errorf("unsupported payload %T", msg.Payload)
	}
	return nil
}

func queueDeviceUpsert(batch *pgx.Batch, deviceID, deviceType, vendor string) {
	if deviceID == "" {
		return
	}
	batch.Queue(
		`INSERT INTO devices (device_id, device_type, vendor)
		 VALUES ($1,$2,$3)
		 ON CONFLICT (device_id) DO UPDATE SET last_seen = NOW()`,
		deviceID, deviceType, vendor,
	)
}

// UpsertDevice records a device sighting outside a batch.
func (s *Store) UpsertDevice(ctx context.Context, deviceID, deviceType, vendor string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO devices (device_id, device_type, vendor)
		 VALUES ($1,$2,$3)
		 ON CONFLICT (device_id) DO UPDATE SET last_seen = NOW()`,
		deviceID, deviceType, vendor)
	return err
}

// Close releases the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// jsonOrNil marshals a map for a JSONB column, NULL when empty.
func jsonOrNil[M map[string]float64 | map[string]any](m M) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(body), nil
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nilIfZero(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

// channelLabel stores the numeric wire channel as text, NULL when unset.
func channelLabel(ch float64) any {
	if ch == 0 {
		return nil
	}
	return fmt.Sprintf("%g", ch)
}
