package db

import (
	"context"
	"database/sql"
)

// GetGlobalConfig returns the value for key, or ("", false) if unset.
func GetGlobalConfig(ctx context.Context, sqlDB *sql.DB, key string) (string, bool, error) {
	row := sqlDB.QueryRowContext(ctx, `SELECT value FROM global_config WHERE key=?`, key)
	var v string
	if err := row.Scan(&v); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

// GetGlobalConfigAll returns values for every requested key; missing keys are
// simply absent from the result map, matching the null semantics of the
// single-key getter.
func GetGlobalConfigAll(ctx context.Context, sqlDB *sql.DB, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v, ok, err := GetGlobalConfig(ctx, sqlDB, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[k] = v
		}
	}
	return out, nil
}

// SetGlobalConfig upserts a key. GlobalConfig is process-global and not
// version-locked: each key has exactly one writer at setup time.
func SetGlobalConfig(ctx context.Context, sqlDB *sql.DB, key, value string) error {
	_, err := sqlDB.ExecContext(ctx,
		`INSERT INTO global_config(key, value) VALUES(?,?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value)
	return err
}
