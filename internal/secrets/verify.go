package secrets

import (
	"context"
	"database/sql"
	"fmt"
)

// VerifyAll attempts to decrypt every stored secret to ensure the master key
// in use matches the one each row was sealed under.
func VerifyAll(ctx context.Context, db *sql.DB, km KeyManager) error {
	rows, err := db.QueryContext(ctx, `SELECT name, value FROM secrets`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return err
		}
		nonce, ct, err := unpackEnvelope(value)
		if err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
		if _, err := km.Decrypt(nonce, ct); err != nil {
			return fmt.Errorf("decrypt %s: %w", name, err)
		}
	}
	return rows.Err()
}
