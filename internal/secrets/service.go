package secrets

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"sync"
	"time"
)

// Service stores party-local secrets — the outbound peer bearer token today,
// any future per-operator credential — encrypted at rest under a
// KeyManager, with a short-lived plaintext cache to avoid re-deriving on
// every read.
type Service struct {
	db  *sql.DB
	km  KeyManager
	ttl time.Duration
	mu  sync.Mutex

	cache map[string]cacheEntry
}

type cacheEntry struct {
	val []byte
	exp time.Time
}

type encryptor interface {
	Encrypt(plaintext []byte) (nonce, ciphertext []byte, err error)
}

var errEncryptUnsupported = errors.New("secrets: key manager does not support encryption")

// NewService creates a Service backed by db, encrypting values with km. In
// practice km is the *Manager returned by Load, which also implements the
// encryptor interface Set requires.
func NewService(db *sql.DB, km KeyManager) *Service {
	return &Service{db: db, km: km, ttl: 10 * time.Minute, cache: make(map[string]cacheEntry)}
}

// Set stores a secret for the given name, encrypting it at rest.
func (s *Service) Set(ctx context.Context, name string, plaintext []byte) error {
	if name == "" {
		return sql.ErrNoRows
	}
	enc, ok := s.km.(encryptor)
	if !ok {
		return errEncryptUnsupported
	}
	nonce, ct, err := enc.Encrypt(plaintext)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO secrets(name, value) VALUES(?,?)
       ON CONFLICT(name) DO UPDATE SET value=excluded.value, updated_at=CURRENT_TIMESTAMP`, name, packEnvelope(nonce, ct))
	s.mu.Lock()
	delete(s.cache, name)
	s.mu.Unlock()
	return err
}

// Exists returns whether a secret with the given name is stored.
func (s *Service) Exists(ctx context.Context, name string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM secrets WHERE name=?`, name).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Delete removes a stored secret of the given name.
func (s *Service) Delete(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM secrets WHERE name=?`, name)
	s.mu.Lock()
	delete(s.cache, name)
	s.mu.Unlock()
	return err
}

// DecryptForUse retrieves and decrypts the secret of the given name. A
// missing secret returns (nil, nil).
func (s *Service) DecryptForUse(ctx context.Context, name string) ([]byte, error) {
	now := time.Now()
	s.mu.Lock()
	if e, ok := s.cache[name]; ok && now.Before(e.exp) {
		v := append([]byte(nil), e.val...)
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	var env string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM secrets WHERE name=?`, name).Scan(&env)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	nonce, ct, err := unpackEnvelope(env)
	if err != nil {
		return nil, err
	}
	pt, err := s.km.Decrypt(nonce, ct)
	if err != nil {
		return nil, err
	}
	cached := append([]byte(nil), pt...)
	s.mu.Lock()
	s.cache[name] = cacheEntry{val: cached, exp: now.Add(s.ttl)}
	s.mu.Unlock()
	return append([]byte(nil), cached...), nil
}

// Status reports whether a secret exists, its last four characters (for
// display), and when it was last written. The plaintext is never logged.
func (s *Service) Status(ctx context.Context, name string) (exists bool, last4 string, updatedAt time.Time, err error) {
	var env string
	err = s.db.QueryRowContext(ctx, `SELECT value, updated_at FROM secrets WHERE name=?`, name).Scan(&env, &updatedAt)
	if err == sql.ErrNoRows {
		return false, "", time.Time{}, nil
	}
	if err != nil {
		return false, "", time.Time{}, err
	}
	exists = true
	nonce, ct, err := unpackEnvelope(env)
	if err != nil {
		return false, "", time.Time{}, err
	}
	pt, err := s.km.Decrypt(nonce, ct)
	if err != nil {
		return false, "", time.Time{}, err
	}
	str := string(pt)
	if n := len(str); n > 4 {
		last4 = str[n-4:]
	} else {
		last4 = str
	}
	return
}

// packEnvelope / unpackEnvelope store nonce||ciphertext as a single
// base64-encoded column value.
func packEnvelope(nonce, ciphertext []byte) string {
	buf := make([]byte, 0, len(nonce)+len(ciphertext)+1)
	buf = append(buf, byte(len(nonce)))
	buf = append(buf, nonce...)
	buf = append(buf, ciphertext...)
	return base64.StdEncoding.EncodeToString(buf)
}

func unpackEnvelope(encoded string) (nonce, ciphertext []byte, err error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, nil, err
	}
	if len(raw) < 1 {
		return nil, nil, errors.New("secrets: malformed envelope")
	}
	n := int(raw[0])
	if len(raw) < 1+n {
		return nil, nil, errors.New("secrets: malformed envelope")
	}
	return raw[1 : 1+n], raw[1+n:], nil
}
