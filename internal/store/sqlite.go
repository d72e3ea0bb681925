package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/courierdesk/courierdesk/internal/model"
)

// SQLiteStore is the durable record store. All mutations run inside a
// transaction so history and recycle bin can never be observed half-written.
type SQLiteStore struct {
	db      *sql.DB
	entropy *rand.Rand
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// NewID returns a fresh lexicographically sortable identity.
func (s *SQLiteStore) NewID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS manifests (
		id            TEXT PRIMARY KEY,
		manifest_no   TEXT NOT NULL,
		manifest_date TEXT NOT NULL,
		rows          TEXT NOT NULL,
		config        TEXT NOT NULL,
		total_amount  REAL NOT NULL DEFAULT 0,
		item_count    INTEGER NOT NULL DEFAULT 0,
		folder_id     TEXT,
		created_at    TEXT NOT NULL,
		deleted_at    TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_manifests_no ON manifests(manifest_no);
	CREATE INDEX IF NOT EXISTS idx_manifests_folder ON manifests(folder_id);
	CREATE INDEX IF NOT EXISTS idx_manifests_created ON manifests(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_manifests_deleted ON manifests(deleted_at);

	CREATE TABLE IF NOT EXISTS folders (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Add inserts a manifest at the head of active history. A missing id or
// creation time is filled in. ManifestNo uniqueness is deliberately not
// enforced here; callers surface duplicates before adding.
func (s *SQLiteStore) Add(ctx context.Context, m *model.Manifest) error {
	s.prepare(m)
	args, err := insertArgs(m)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, insertManifestSQL, args...); err != nil {
		return fmt.Errorf("insert manifest: %w", err)
	}
	return nil
}

// AddBatch inserts a set of manifests in one transaction, so a batch is
// either fully committed or not visible at all.
func (s *SQLiteStore) AddBatch(ctx context.Context, ms []*model.Manifest) error {
	if len(ms) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, m := range ms {
		s.prepare(m)
		args, err := insertArgs(m)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, insertManifestSQL, args...); err != nil {
			return fmt.Errorf("insert manifest %s: %w", m.ManifestNo, err)
		}
	}
	return tx.Commit()
}

// Replace updates the manifest identified by id in place, keeping its
// identity and position in history.
func (s *SQLiteStore) Replace(ctx context.Context, id string, m *model.Manifest) error {
	rowsJSON, cfgJSON, err := encodeManifest(m)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE manifests
		 SET manifest_no = ?, manifest_date = ?, rows = ?, config = ?,
		     total_amount = ?, item_count = ?, folder_id = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		m.ManifestNo, m.ManifestDate, rowsJSON, cfgJSON,
		m.TotalAmount, m.ItemCount, nullable(m.FolderID), id)
	if err != nil {
		return fmt.Errorf("replace manifest: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	m.ID = id
	return nil
}

// Override removes the existing record and inserts m in its place at the
// head of history, atomically. Used by conflict resolution.
func (s *SQLiteStore) Override(ctx context.Context, existingID string, m *model.Manifest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM manifests WHERE id = ? AND deleted_at IS NULL`, existingID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	s.prepare(m)
	args, err := insertArgs(m)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, insertManifestSQL, args...); err != nil {
		return fmt.Errorf("insert manifest: %w", err)
	}
	return tx.Commit()
}

// Get returns one manifest, active or recycled.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.Manifest, error) {
	row := s.db.QueryRowContext(ctx, selectManifestSQL+` WHERE id = ?`, id)
	m, err := scanManifest(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// List returns active manifests, most recent first.
func (s *SQLiteStore) List(ctx context.Context, p ListParams) ([]model.Manifest, error) {
	query := selectManifestSQL + ` WHERE deleted_at IS NULL`
	var args []interface{}
	switch {
	case p.All:
	case p.FolderID != "":
		query += ` AND folder_id = ?`
		args = append(args, p.FolderID)
	default:
		query += ` AND folder_id IS NULL`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if p.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, p.Limit)
	}
	return s.queryManifests(ctx, query, args...)
}

// FindByManifestNo scans active history for a manifest with the given
// business number. Returns nil without error when none exists.
func (s *SQLiteStore) FindByManifestNo(ctx context.Context, manifestNo string) (*model.Manifest, error) {
	row := s.db.QueryRowContext(ctx,
		selectManifestSQL+` WHERE manifest_no = ? AND deleted_at IS NULL
		 ORDER BY created_at DESC, id DESC LIMIT 1`, manifestNo)
	m, err := scanManifest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// SoftDelete moves an active manifest into the recycle bin.
func (s *SQLiteStore) SoftDelete(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`UPDATE manifests SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Restore moves a recycled manifest back into active history.
func (s *SQLiteStore) Restore(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE manifests SET deleted_at = NULL WHERE id = ? AND deleted_at IS NOT NULL`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotInRecycleBin
	}
	return nil
}

// Purge permanently destroys a recycled manifest. Active records are
// refused: only the recycle bin may be purged.
func (s *SQLiteStore) Purge(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM manifests WHERE id = ? AND deleted_at IS NOT NULL`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotInRecycleBin
	}
	return nil
}

// EmptyRecycleBin destroys every recycled manifest unconditionally.
func (s *SQLiteStore) EmptyRecycleBin(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM manifests WHERE deleted_at IS NOT NULL`)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ListRecycleBin returns recycled manifests, most recently deleted first.
func (s *SQLiteStore) ListRecycleBin(ctx context.Context) ([]model.Manifest, error) {
	return s.queryManifests(ctx,
		selectManifestSQL+` WHERE deleted_at IS NOT NULL ORDER BY deleted_at DESC, id DESC`)
}

// MoveToFolder attaches an active manifest to a folder, or detaches it when
// folderID is empty.
func (s *SQLiteStore) MoveToFolder(ctx context.Context, id, folderID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE manifests SET folder_id = ? WHERE id = ? AND deleted_at IS NULL`,
		nullable(folderID), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) prepare(m *model.Manifest) {
	if m.ID == "" {
		m.ID = s.NewID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
}

const insertManifestSQL = `
	INSERT INTO manifests (id, manifest_no, manifest_date, rows, config,
	                       total_amount, item_count, folder_id, created_at, deleted_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`

const selectManifestSQL = `
	SELECT id, manifest_no, manifest_date, rows, config,
	       total_amount, item_count, folder_id, created_at, deleted_at
	FROM manifests`

func insertArgs(m *model.Manifest) ([]interface{}, error) {
	rowsJSON, cfgJSON, err := encodeManifest(m)
	if err != nil {
		return nil, err
	}
	return []interface{}{
		m.ID, m.ManifestNo, m.ManifestDate, rowsJSON, cfgJSON,
		m.TotalAmount, m.ItemCount, nullable(m.FolderID),
		m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

func encodeManifest(m *model.Manifest) (string, string, error) {
	rowsJSON, err := json.Marshal(m.Rows)
	if err != nil {
		return "", "", fmt.Errorf("encode rows: %w", err)
	}
	cfgJSON, err := json.Marshal(m.Config)
	if err != nil {
		return "", "", fmt.Errorf("encode config: %w", err)
	}
	return string(rowsJSON), string(cfgJSON), nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func (s *SQLiteStore) queryManifests(ctx context.Context, query string, args ...interface{}) ([]model.Manifest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Manifest
	for rows.Next() {
		m, err := scanManifest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanManifest(row scanner) (*model.Manifest, error) {
	var m model.Manifest
	var rowsJSON, cfgJSON, createdAt string
	var folderID, deletedAt sql.NullString

	err := row.Scan(&m.ID, &m.ManifestNo, &m.ManifestDate, &rowsJSON, &cfgJSON,
		&m.TotalAmount, &m.ItemCount, &folderID, &createdAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(rowsJSON), &m.Rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	if err := json.Unmarshal([]byte(cfgJSON), &m.Config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if folderID.Valid {
		m.FolderID = folderID.String
	}
	if deletedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, deletedAt.String)
		m.DeletedAt = &t
	}
	return &m, nil
}
