package ctxstore

import (
	"context"
	"database/sql"
	"time"

	"petnet-coordinator/internal/db"
)

// MissionContext is the cross-job, per-mission-name key/value store with TTL.
type MissionContext struct {
	sqlDB *sql.DB
}

func NewMissionContext(sqlDB *sql.DB) *MissionContext {
	return &MissionContext{sqlDB: sqlDB}
}

// Get returns the value for (missionName, key), or ("", false) if missing or
// past expiry.
func (m *MissionContext) Get(ctx context.Context, missionName, key string) (string, bool, error) {
	return db.GetMissionContext(ctx, m.sqlDB, missionName, key)
}

// Set upserts (missionName, key) with a new expire_time = now+ttl. Returns
// false on stale-data; the caller decides whether to retry.
func (m *MissionContext) Set(ctx context.Context, missionName, key, value string, ttl time.Duration) (bool, error) {
	return db.SetMissionContext(ctx, m.sqlDB, missionName, key, value, ttl)
}
