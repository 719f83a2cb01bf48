package db

import (
	"context"
	"database/sql"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Mission is an immutable DAG template, unique by (Name, Version).
type Mission struct {
	Name    string
	Version int64
	DAG     string // raw JSON: {"operators":[{name,party,class,class_path,args?,depends?}]}
}

// InsertMission persists a new mission version. Missions are never updated.
func InsertMission(ctx context.Context, sqlDB *sql.DB, m *Mission) error {
	_, err := sqlDB.ExecContext(ctx,
		`INSERT INTO missions(name, version, dag) VALUES(?,?,?)`,
		m.Name, m.Version, m.DAG)
	return err
}

// GetMission fetches a single mission by name and exact version.
func GetMission(ctx context.Context, sqlDB *sql.DB, name string, version int64) (*Mission, error) {
	row := sqlDB.QueryRowContext(ctx,
		`SELECT name, version, dag FROM missions WHERE name=? AND version=?`, name, version)
	var m Mission
	if err := row.Scan(&m.Name, &m.Version, &m.DAG); err != nil {
		return nil, err
	}
	return &m, nil
}

// LatestMissionVersion returns the highest integer version for name.
func LatestMissionVersion(ctx context.Context, sqlDB *sql.DB, name string) (int64, error) {
	row := sqlDB.QueryRowContext(ctx,
		`SELECT MAX(version) FROM missions WHERE name=?`, name)
	var v sql.NullInt64
	if err := row.Scan(&v); err != nil {
		return 0, err
	}
	if !v.Valid {
		return 0, sql.ErrNoRows
	}
	return v.Int64, nil
}

// missionResolveGroup dedups concurrent resolution of the same (name,
// version) pair; a Mission template never changes once persisted so the
// resolved value is cached for the process lifetime.
var (
	missionResolveGroup singleflight.Group
	missionCacheMu      sync.RWMutex
	missionCache        = make(map[string]*Mission)
)

// ResolveMission resolves name+version to a Mission row. version == "" or
// "latest" resolves to the highest integer version on record.
func ResolveMission(ctx context.Context, sqlDB *sql.DB, name, version string) (*Mission, error) {
	key := name + "@" + version
	missionCacheMu.RLock()
	if m, ok := missionCache[key]; ok {
		missionCacheMu.RUnlock()
		return m, nil
	}
	missionCacheMu.RUnlock()

	v, err, _ := missionResolveGroup.Do(key, func() (interface{}, error) {
		ver := int64(0)
		if version != "" && version != "latest" {
			parsed, perr := strconv.ParseInt(version, 10, 64)
			if perr != nil {
				return nil, perr
			}
			ver = parsed
		} else {
			latest, lerr := LatestMissionVersion(ctx, sqlDB, name)
			if lerr != nil {
				return nil, lerr
			}
			ver = latest
		}
		m, gerr := GetMission(ctx, sqlDB, name, ver)
		if gerr != nil {
			return nil, gerr
		}
		missionCacheMu.Lock()
		missionCache[key] = m
		missionCacheMu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Mission), nil
}
