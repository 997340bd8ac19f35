package cache

import (
	"context"
	"strings"

	"github.com/eduplatform/gatekeeper/pkg/counterstore"
)

// infoFields are the store info entries exposed in a Snapshot.
var infoFields = []string{
	"redis_version",
	"redis_mode",
	"used_memory_human",
	"connected_clients",
	"keyspace_hits",
	"keyspace_misses",
	"uptime_in_seconds",
	"expired_keys",
}

// LevelStats describes one tier.
type LevelStats struct {
	KeyCount       int    `json:"key_count"`
	Prefix         string `json:"prefix"`
	TimeoutSeconds int64  `json:"timeout"`
}

// Snapshot is the operational view returned by Info.
type Snapshot struct {
	StoreInfo    map[string]string     `json:"redis_info"`
	LevelStats   map[string]LevelStats `json:"level_stats"`
	Performance  Stats                 `json:"performance_stats"`
	HealthStatus string                `json:"health_status"`
	Error        string                `json:"error,omitempty"`
}

// Health statuses reported in a Snapshot.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Info builds a Snapshot. Store failures mark it unhealthy and are reported
// in the Error field.
func (m *Manager) Info(ctx context.Context) Snapshot {
	snap := Snapshot{
		StoreInfo:    map[string]string{},
		LevelStats:   make(map[string]LevelStats, len(Levels)),
		Performance:  m.Stats(),
		HealthStatus: StatusHealthy,
	}

	if err := m.Healthcheck(ctx); err != nil {
		snap.HealthStatus = StatusUnhealthy
		snap.Error = err.Error()
		return snap
	}

	if p, ok := m.store.(counterstore.InfoProvider); ok {
		ictx, cancel := context.WithTimeout(ctx, m.config.OpTimeout)
		info, err := p.Info(ictx)
		cancel()
		if err != nil {
			m.storeError(ctx, "info", "", err)
		}
		for _, f := range infoFields {
			if v, ok := info[f]; ok {
				snap.StoreInfo[f] = v
			}
		}
	}

	for _, l := range Levels {
		sctx, cancel := context.WithTimeout(ctx, m.config.OpTimeout)
		keys, err := m.store.Scan(sctx, l.Prefix()+":*")
		cancel()
		if err != nil {
			m.storeError(ctx, "scan", l.Prefix(), err)
			snap.HealthStatus = StatusUnhealthy
			snap.Error = err.Error()
			continue
		}
		count := 0
		for _, k := range keys {
			if !strings.HasSuffix(k, ":meta") {
				count++
			}
		}
		snap.LevelStats[l.String()] = LevelStats{
			KeyCount:       count,
			Prefix:         l.Prefix(),
			TimeoutSeconds: int64(m.config.TTL(l).Seconds()),
		}
	}
	return snap
}
