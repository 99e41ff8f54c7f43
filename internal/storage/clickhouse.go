package storage

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"NetSentry/internal/config"
	"NetSentry/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const createAlertsTable = `
CREATE TABLE IF NOT EXISTS alerts (
    ID            String,
    CorrelationID String,
    Detector      String,
    Severity      String,
    Confidence    Float64,
    Description   String,
    SrcIP         String,
    DstIP         String,
    SrcPort       UInt16,
    DstPort       UInt16,
    Protocol      UInt8,
    CreatedAt     DateTime,
    LastSeen      DateTime,
    Count         UInt64
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(CreatedAt)
ORDER BY (Severity, CreatedAt);
`

const createStatsTable = `
CREATE TABLE IF NOT EXISTS traffic_stats (
    WindowStart       DateTime,
    WindowEnd         DateTime,
    Packets           UInt64,
    Bytes             UInt64,
    Dropped           UInt64,
    Detections        UInt64,
    ByProtocol        Map(String, UInt64),
    ActiveConnections UInt64
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(WindowStart)
ORDER BY WindowStart;
`

// HistoryStore is the append-only ClickHouse history of alerts and stats
// windows. Live alert state (resolution, recency) belongs to the Redis
// store; rows here are never updated after insert.
type HistoryStore struct {
	conn driver.Conn
}

// NewHistoryStore connects to ClickHouse and ensures both tables exist.
func NewHistoryStore(cfg config.ClickHouseConfig) (*HistoryStore, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	for _, stmt := range []string{createAlertsTable, createStatsTable} {
		if err := conn.Exec(context.Background(), stmt); err != nil {
			return nil, fmt.Errorf("failed to create table: %w", err)
		}
	}
	log.Println("Successfully connected to ClickHouse and ensured tables exist.")
	return &HistoryStore{conn: conn}, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

// SaveAlert appends one alert row.
func (s *HistoryStore) SaveAlert(ctx context.Context, a *model.Alert) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO alerts")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	err = batch.Append(
		a.ID,
		a.CorrelationID,
		string(a.Kind),
		a.Severity.String(),
		a.Confidence,
		a.Description,
		a.SrcIP,
		a.DstIP,
		a.SrcPort,
		a.DstPort,
		a.Protocol,
		a.CreatedAt,
		a.LastSeen,
		a.Count,
	)
	if err != nil {
		return fmt.Errorf("failed to append alert to batch: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// SaveSnapshot appends one traffic stats window.
func (s *HistoryStore) SaveSnapshot(ctx context.Context, snap *model.TrafficStatsSnapshot) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO traffic_stats")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	byProtocol := snap.ByProtocol
	if byProtocol == nil {
		byProtocol = map[string]uint64{}
	}
	err = batch.Append(
		snap.WindowStart,
		snap.WindowEnd,
		snap.Packets,
		snap.Bytes,
		snap.Dropped,
		snap.Detections,
		byProtocol,
		snap.ActiveConnections,
	)
	if err != nil {
		return fmt.Errorf("failed to append snapshot to batch: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// RecentAlerts returns the newest alerts, optionally filtered by severity
// and detector name, newest first.
func (s *HistoryStore) RecentAlerts(ctx context.Context, limit int, severity, detector string) ([]*model.Alert, error) {
	if limit <= 0 {
		limit = 100
	}

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		SELECT
			ID, CorrelationID, Detector, Severity, Confidence, Description,
			SrcIP, DstIP, SrcPort, DstPort, Protocol,
			CreatedAt, LastSeen, Count
		FROM alerts
	`)

	var whereClauses []string
	args := []interface{}{}
	if severity != "" {
		whereClauses = append(whereClauses, "Severity = ?")
		args = append(args, severity)
	}
	if detector != "" {
		whereClauses = append(whereClauses, "Detector = ?")
		args = append(args, detector)
	}
	if len(whereClauses) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(whereClauses, " AND "))
	}
	queryBuilder.WriteString(" ORDER BY CreatedAt DESC LIMIT ?")
	args = append(args, limit)

	rows, err := s.conn.Query(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var alerts []*model.Alert
	for rows.Next() {
		var (
			a        model.Alert
			kind     string
			severity string
		)
		if err := rows.Scan(
			&a.ID, &a.CorrelationID, &kind, &severity, &a.Confidence, &a.Description,
			&a.SrcIP, &a.DstIP, &a.SrcPort, &a.DstPort, &a.Protocol,
			&a.CreatedAt, &a.LastSeen, &a.Count,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		a.Kind = model.DetectorKind(kind)
		a.Severity = model.ParseSeverity(severity)
		alerts = append(alerts, &a)
	}
	return alerts, nil
}

// RecentSnapshots returns the stats windows that ended after since, oldest
// first so charts can append in order.
func (s *HistoryStore) RecentSnapshots(ctx context.Context, since time.Time, limit int) ([]*model.TrafficStatsSnapshot, error) {
	if limit <= 0 {
		limit = 120
	}

	rows, err := s.conn.Query(ctx, `
		SELECT
			WindowStart, WindowEnd, Packets, Bytes, Dropped, Detections,
			ByProtocol, ActiveConnections
		FROM traffic_stats
		WHERE WindowEnd > ?
		ORDER BY WindowStart ASC
		LIMIT ?
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var snapshots []*model.TrafficStatsSnapshot
	for rows.Next() {
		var snap model.TrafficStatsSnapshot
		if err := rows.Scan(
			&snap.WindowStart, &snap.WindowEnd, &snap.Packets, &snap.Bytes,
			&snap.Dropped, &snap.Detections, &snap.ByProtocol, &snap.ActiveConnections,
		); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		snapshots = append(snapshots, &snap)
	}
	return snapshots, nil
}

// Ping verifies the ClickHouse connection is still healthy.
func (s *HistoryStore) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close releases the connection pool.
func (s *HistoryStore) Close() error {
	return s.conn.Close()
}
