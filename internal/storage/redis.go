package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"NetSentry/internal/config"
	"NetSentry/internal/model"

	"github.com/redis/go-redis/v9"
)

const (
	activeAlertsKey = "netsentry:alerts:active"
	recentAlertsKey = "netsentry:alerts:recent"

	redisOpTimeout = 2 * time.Second
)

// ErrNotFound is returned when an alert ID has no active entry.
var ErrNotFound = errors.New("alert not found")

// LiveStore keeps the mutable alert state in Redis: a hash of unresolved
// alerts by ID and a capped time-ordered history. It implements
// model.Broadcaster so the alert sink can feed it directly; the ClickHouse
// history store stays append-only while resolution happens here.
type LiveStore struct {
	client    *redis.Client
	recentCap int64
}

// NewLiveStore connects to Redis and verifies the connection.
func NewLiveStore(cfg config.RedisConfig) (*LiveStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	recentCap := cfg.RecentCap
	if recentCap <= 0 {
		recentCap = 1000
	}
	return &LiveStore{client: client, recentCap: recentCap}, nil
}

// Broadcast records a new alert as active and appends it to the recent
// history, trimming the history to its cap.
func (s *LiveStore) Broadcast(alert *model.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, activeAlertsKey, alert.ID, string(data))
	pipe.ZAdd(ctx, recentAlertsKey, redis.Z{
		Score:  float64(alert.CreatedAt.Unix()),
		Member: string(data),
	})
	pipe.ZRemRangeByRank(ctx, recentAlertsKey, 0, -(s.recentCap + 1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record alert in Redis: %w", err)
	}
	return nil
}

// ActiveAlerts returns every unresolved alert. Entries that fail to decode
// are skipped with a warning instead of failing the whole listing.
func (s *LiveStore) ActiveAlerts(ctx context.Context) ([]*model.Alert, error) {
	entries, err := s.client.HGetAll(ctx, activeAlertsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read active alerts: %w", err)
	}
	alerts := make([]*model.Alert, 0, len(entries))
	for id, data := range entries {
		var alert model.Alert
		if err := json.Unmarshal([]byte(data), &alert); err != nil {
			log.Printf("Warning: skipping undecodable active alert %s: %v", id, err)
			continue
		}
		alerts = append(alerts, &alert)
	}
	return alerts, nil
}

// RecentAlerts returns up to limit alerts from the history, newest first.
func (s *LiveStore) RecentAlerts(ctx context.Context, limit int64) ([]*model.Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	entries, err := s.client.ZRevRange(ctx, recentAlertsKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read recent alerts: %w", err)
	}
	alerts := make([]*model.Alert, 0, len(entries))
	for _, data := range entries {
		var alert model.Alert
		if err := json.Unmarshal([]byte(data), &alert); err != nil {
			continue
		}
		alerts = append(alerts, &alert)
	}
	return alerts, nil
}

// Resolve marks an active alert resolved and removes it from the active
// hash. It returns the resolved alert, or an error if the ID is unknown.
func (s *LiveStore) Resolve(ctx context.Context, id string) (*model.Alert, error) {
	data, err := s.client.HGet(ctx, activeAlertsKey, id).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("no active alert with id %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read alert %s: %w", id, err)
	}

	var alert model.Alert
	if err := json.Unmarshal([]byte(data), &alert); err != nil {
		return nil, fmt.Errorf("failed to decode alert %s: %w", id, err)
	}
	alert.Resolved = true

	if err := s.client.HDel(ctx, activeAlertsKey, id).Err(); err != nil {
		return nil, fmt.Errorf("failed to remove alert %s from active set: %w", id, err)
	}
	return &alert, nil
}

// Ping verifies the Redis connection is still healthy.
func (s *LiveStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *LiveStore) Close() error {
	return s.client.Close()
}
