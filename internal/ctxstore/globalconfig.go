// Package ctxstore implements the scoped accessors (GlobalConfig,
// MissionContext, JobContext) built on top of internal/db: nested-key
// read/write, deep-merge updates, and TTL expiry.
package ctxstore

import (
	"context"
	"database/sql"

	"petnet-coordinator/internal/db"
)

// GlobalConfig reads process-global, runtime-immutable key/value pairs.
type GlobalConfig struct {
	sqlDB *sql.DB
}

func NewGlobalConfig(sqlDB *sql.DB) *GlobalConfig {
	return &GlobalConfig{sqlDB: sqlDB}
}

// Get returns the value for key, or ("", false) if unset.
func (g *GlobalConfig) Get(ctx context.Context, key string) (string, bool, error) {
	return db.GetGlobalConfig(ctx, g.sqlDB, key)
}

// GetAll returns a mapping for keys; missing keys are absent from the result.
func (g *GlobalConfig) GetAll(ctx context.Context, keys []string) (map[string]string, error) {
	return db.GetGlobalConfigAll(ctx, g.sqlDB, keys)
}
