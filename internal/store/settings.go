package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/courierdesk/courierdesk/internal/model"
)

func (s *SQLiteStore) getDocument(ctx context.Context, key string, v interface{}) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *SQLiteStore) putDocument(ctx context.Context, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, string(raw))
	return err
}

// RateConfig returns the global default rates, seeding the stock defaults
// on first use.
func (s *SQLiteStore) RateConfig(ctx context.Context) (model.RateConfig, error) {
	var cfg model.RateConfig
	ok, err := s.getDocument(ctx, keyRateConfig, &cfg)
	if err != nil {
		return cfg, err
	}
	if !ok {
		return model.DefaultRateConfig(), nil
	}
	return cfg, nil
}

// SetRateConfig replaces the global default rates.
func (s *SQLiteStore) SetRateConfig(ctx context.Context, cfg model.RateConfig) error {
	return s.putDocument(ctx, keyRateConfig, cfg)
}

// Preferences returns the user display settings.
func (s *SQLiteStore) Preferences(ctx context.Context) (model.Preferences, error) {
	var p model.Preferences
	ok, err := s.getDocument(ctx, keyPreferences, &p)
	if err != nil {
		return p, err
	}
	if !ok {
		return model.DefaultPreferences(), nil
	}
	return p, nil
}

// SetPreferences replaces the user display settings.
func (s *SQLiteStore) SetPreferences(ctx context.Context, p model.Preferences) error {
	return s.putDocument(ctx, keyPreferences, p)
}

// CaptureSession returns the single active capture session, or nil when
// none exists.
func (s *SQLiteStore) CaptureSession(ctx context.Context) (*model.CaptureSession, error) {
	var sess model.CaptureSession
	ok, err := s.getDocument(ctx, keyCaptureSession, &sess)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

// SaveCaptureSession persists the active capture session document.
func (s *SQLiteStore) SaveCaptureSession(ctx context.Context, sess *model.CaptureSession) error {
	return s.putDocument(ctx, keyCaptureSession, sess)
}

// ClearCaptureSession removes the active capture session document.
func (s *SQLiteStore) ClearCaptureSession(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, keyCaptureSession)
	return err
}
