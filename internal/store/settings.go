package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Setting keys used by the agent.
const (
	settingDeviceID = "device_id"
)

// Setting returns the value stored for key, or "" when unset.
func (s *Store) Setting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT value FROM settings WHERE key = ?`), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("setting %q: %w", key, err)
	}
	return value, nil
}

// SetSetting stores or replaces a setting.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`), key, value)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// DeviceID returns the persistent device identifier, generating and storing
// a random one on first use. All future events reuse the same token.
func (s *Store) DeviceID(ctx context.Context) (string, error) {
	id, err := s.Setting(ctx, settingDeviceID)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	id = uuid.NewString()
	// ON CONFLICT DO NOTHING keeps the first writer's token if two callers
	// race on first use.
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO NOTHING`), settingDeviceID, id)
	if err != nil {
		return "", fmt.Errorf("persist device id: %w", err)
	}
	return s.Setting(ctx, settingDeviceID)
}
