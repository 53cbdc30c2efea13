package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/omnivault/omnivault/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS secured_wallets (
	id                 TEXT PRIMARY KEY,
	credential_id      TEXT NOT NULL,
	wrapped_master_key BLOB NOT NULL,
	mnemonic_iv        BLOB NOT NULL,
	encrypted_mnemonic BLOB NOT NULL,
	created_at         TEXT NOT NULL,
	updated_at         TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS credentials (
	id          TEXT PRIMARY KEY,
	public_key  BLOB NOT NULL,
	counter     INTEGER NOT NULL DEFAULT 0,
	device_type TEXT NOT NULL,
	backed_up   INTEGER NOT NULL DEFAULT 0,
	transports  TEXT NOT NULL DEFAULT '[]',
	created_at  TEXT NOT NULL
);
`

// SQLiteStore is the on-device Store implementation. WAL mode with a single
// writer connection; per-statement transactions give last-write-wins per record.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the store at dbPath. Use
// ":memory:" for an ephemeral store in tests.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// PutWallet stores or replaces a wallet record.
func (s *SQLiteStore) PutWallet(ctx context.Context, w *models.SecuredWallet) error {
	const query = `INSERT OR REPLACE INTO secured_wallets
		(id, credential_id, wrapped_master_key, mnemonic_iv, encrypted_mnemonic, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		w.ID, w.CredentialID, w.WrappedMasterKey, w.MnemonicIV, w.EncryptedMnemonic,
		w.CreatedAt.UTC().Format(time.RFC3339Nano), w.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put wallet %q: %w", w.ID, err)
	}
	return nil
}

// GetWallet returns the wallet with the given id, or nil if not found.
func (s *SQLiteStore) GetWallet(ctx context.Context, id string) (*models.SecuredWallet, error) {
	const query = `SELECT id, credential_id, wrapped_master_key, mnemonic_iv, encrypted_mnemonic, created_at, updated_at
		FROM secured_wallets WHERE id = ?`

	var w models.SecuredWallet
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&w.ID, &w.CredentialID, &w.WrappedMasterKey, &w.MnemonicIV, &w.EncryptedMnemonic,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet %q: %w", id, err)
	}

	if w.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at for wallet %q: %w", id, err)
	}
	if w.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at for wallet %q: %w", id, err)
	}
	return &w, nil
}

// DeleteWallet removes the wallet with the given id.
func (s *SQLiteStore) DeleteWallet(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM secured_wallets WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete wallet %q: %w", id, err)
	}
	return nil
}

// PutCredential stores or replaces a credential record.
func (s *SQLiteStore) PutCredential(ctx context.Context, c *models.BiometricCredential) error {
	transports, err := json.Marshal(c.Transports)
	if err != nil {
		return fmt.Errorf("marshal transports: %w", err)
	}

	const query = `INSERT OR REPLACE INTO credentials
		(id, public_key, counter, device_type, backed_up, transports, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		c.ID, c.PublicKey, c.Counter, c.DeviceType, boolToInt(c.BackedUp),
		string(transports), c.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put credential %q: %w", c.ID, err)
	}
	return nil
}

// GetCredential returns the credential with the given id, or nil if not found.
func (s *SQLiteStore) GetCredential(ctx context.Context, id string) (*models.BiometricCredential, error) {
	const query = `SELECT id, public_key, counter, device_type, backed_up, transports, created_at
		FROM credentials WHERE id = ?`

	row := s.db.QueryRowContext(ctx, query, id)
	c, err := scanCredential(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential %q: %w", id, err)
	}
	return c, nil
}

// ListCredentials returns all registered credentials ordered by creation time.
func (s *SQLiteStore) ListCredentials(ctx context.Context) ([]models.BiometricCredential, error) {
	const query = `SELECT id, public_key, counter, device_type, backed_up, transports, created_at
		FROM credentials ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var creds []models.BiometricCredential
	for rows.Next() {
		c, err := scanCredential(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return creds, nil
}

// DeleteCredential removes the credential with the given id.
func (s *SQLiteStore) DeleteCredential(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete credential %q: %w", id, err)
	}
	return nil
}

// Clear removes all records of both entity types.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM secured_wallets`); err != nil {
		return fmt.Errorf("clear wallets: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return tx.Commit()
}

// Stats returns record counts per entity type.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM secured_wallets`).Scan(&st.Wallets); err != nil {
		return Stats{}, fmt.Errorf("count wallets: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM credentials`).Scan(&st.Credentials); err != nil {
		return Stats{}, fmt.Errorf("count credentials: %w", err)
	}
	return st, nil
}

func scanCredential(scan func(dest ...any) error) (*models.BiometricCredential, error) {
	var c models.BiometricCredential
	var backedUp int
	var transports, createdAt string

	if err := scan(&c.ID, &c.PublicKey, &c.Counter, &c.DeviceType, &backedUp, &transports, &createdAt); err != nil {
		return nil, err
	}
	c.BackedUp = backedUp != 0
	if err := json.Unmarshal([]byte(transports), &c.Transports); err != nil {
		return nil, fmt.Errorf("unmarshal transports: %w", err)
	}
	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
