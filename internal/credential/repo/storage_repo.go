package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/client-session-go/internal/credential"
)

// NOTE: table layout (sqlite and postgres accept the same DDL):
// CREATE TABLE tab_credentials (
//   tab_id TEXT NOT NULL,
//   name   TEXT NOT NULL,
//   value  TEXT NOT NULL,
//   PRIMARY KEY (tab_id, name)
// );

// SQLStorage persists the credential pair for one tab. Rows of other tabs are
// never read or touched.
type SQLStorage struct {
	db    *sqlx.DB
	tabID string
}

var _ credential.Storage = (*SQLStorage)(nil)

func NewSQLStorage(db *sqlx.DB, tabID string) *SQLStorage {
	return &SQLStorage{db: db, tabID: tabID}
}

// TabID returns the tab this storage is scoped to.
func (r *SQLStorage) TabID() string { return r.tabID }

// EnsureTable creates the table if not exists (idempotent).
func (r *SQLStorage) EnsureTable(ctx context.Context) error {
	const ddl = `CREATE TABLE IF NOT EXISTS tab_credentials (
  tab_id TEXT NOT NULL,
  name TEXT NOT NULL,
  value TEXT NOT NULL,
  PRIMARY KEY (tab_id, name)
)`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

type row struct {
	Name  string `db:"name"`
	Value string `db:"value"`
}

func (r *SQLStorage) Load(ctx context.Context) (string, string, error) {
	q := r.db.Rebind(`SELECT name, value FROM tab_credentials WHERE tab_id = ? AND name IN (?, ?)`)
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, q, r.tabID, credential.KeyToken, credential.KeyUser); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", nil
		}
		return "", "", err
	}
	var token, user string
	for _, rw := range rows {
		switch rw.Name {
		case credential.KeyToken:
			token = rw.Value
		case credential.KeyUser:
			user = rw.Value
		}
	}
	if token == "" {
		// a user row without its token is not a reachable state; treat as empty
		return "", "", nil
	}
	return token, user, nil
}

// Store writes both keys in one transaction so they can never diverge.
func (r *SQLStorage) Store(ctx context.Context, token, user string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	upsert := tx.Rebind(`INSERT INTO tab_credentials (tab_id, name, value) VALUES (?, ?, ?)
		ON CONFLICT (tab_id, name) DO UPDATE SET value = excluded.value`)
	if _, err := tx.ExecContext(ctx, upsert, r.tabID, credential.KeyToken, token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsert, r.tabID, credential.KeyUser, user); err != nil {
		return fmt.Errorf("store user: %w", err)
	}
	return tx.Commit()
}

func (r *SQLStorage) Clear(ctx context.Context) error {
	q := r.db.Rebind(`DELETE FROM tab_credentials WHERE tab_id = ?`)
	_, err := r.db.ExecContext(ctx, q, r.tabID)
	return err
}
