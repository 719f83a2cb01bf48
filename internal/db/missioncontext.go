package db

import (
	"context"
	"database/sql"
	"time"
)

// MissionContextRow is a cross-job, per-mission-name key/value entry with TTL.
type MissionContextRow struct {
	MissionName string
	ConfigKey   string
	ConfigValue string
	ExpireTime  time.Time
	VersionID   int64
}

// GetMissionContext returns the value for (missionName, key), or ("", false)
// if missing or past expiry.
func GetMissionContext(ctx context.Context, sqlDB *sql.DB, missionName, key string) (string, bool, error) {
	row := sqlDB.QueryRowContext(ctx,
		`SELECT config_value, expire_time FROM mission_context WHERE mission_name=? AND config_key=?`,
		missionName, key)
	var value string
	var expire time.Time
	if err := row.Scan(&value, &expire); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	if expire.Before(time.Now()) {
		return "", false, nil
	}
	return value, true, nil
}

// SetMissionContext upserts (missionName, key) with a new expire_time =
// now+ttl. Returns false on stale-data; the caller decides whether to retry.
func SetMissionContext(ctx context.Context, sqlDB *sql.DB, missionName, key, value string, ttl time.Duration) (bool, error) {
	expire := time.Now().Add(ttl)

	var existingVersion int64
	err := sqlDB.QueryRowContext(ctx,
		`SELECT version_id FROM mission_context WHERE mission_name=? AND config_key=?`,
		missionName, key).Scan(&existingVersion)

	if err == sql.ErrNoRows {
		_, err := sqlDB.ExecContext(ctx, `
			INSERT INTO mission_context(mission_name, config_key, config_value, expire_time, version_id)
			VALUES(?,?,?,?,1)`,
			missionName, key, value, expire)
		if err != nil {
			return false, err
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}

	res, err := sqlDB.ExecContext(ctx, `
		UPDATE mission_context SET config_value=?, expire_time=?, version_id=version_id+1
		WHERE mission_name=? AND config_key=? AND version_id=?`,
		value, expire, missionName, key, existingVersion)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PurgeExpiredMissionContext deletes every mission_context row whose
// expire_time has passed, returning the number of rows removed.
func PurgeExpiredMissionContext(ctx context.Context, sqlDB *sql.DB) (int64, error) {
	res, err := sqlDB.ExecContext(ctx, `DELETE FROM mission_context WHERE expire_time < ?`, time.Now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
