package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/courierdesk/courierdesk/internal/model"
)

// AddFolder creates a folder and returns it.
func (s *SQLiteStore) AddFolder(ctx context.Context, name string) (*model.Folder, error) {
	return s.AddFolderWithID(ctx, s.NewID(), name)
}

// AddFolderWithID creates a folder under a caller-chosen id. Bulk imports
// pre-generate the id so the folder can be created only after at least one
// manifest commits under it.
func (s *SQLiteStore) AddFolderWithID(ctx context.Context, id, name string) (*model.Folder, error) {
	f := &model.Folder{
		ID:        id,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO folders (id, name, created_at) VALUES (?, ?, ?)`,
		f.ID, f.Name, f.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	return f, nil
}

// GetFolder returns one folder by id.
func (s *SQLiteStore) GetFolder(ctx context.Context, id string) (*model.Folder, error) {
	var f model.Folder
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM folders WHERE id = ?`, id).
		Scan(&f.ID, &f.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	f.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &f, nil
}

// ListFolders returns all folders in creation order.
func (s *SQLiteStore) ListFolders(ctx context.Context) ([]model.Folder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at FROM folders ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Folder
	for rows.Next() {
		var f model.Folder
		var createdAt string
		if err := rows.Scan(&f.ID, &f.Name, &createdAt); err != nil {
			return nil, err
		}
		f.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, f)
	}
	return out, rows.Err()
}

// DeleteFolder removes a folder and detaches its manifests in the same
// transaction. The manifests themselves are kept.
func (s *SQLiteStore) DeleteFolder(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE manifests SET folder_id = NULL WHERE folder_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}
