package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/randomparity/vpo/internal/domain"
)

// PluginRecord is one row of the plugins registry table. A plugin must be
// acknowledged by the operator before it may be enabled.
type PluginRecord struct {
	Name         string `db:"name" json:"name"`
	Enabled      bool   `db:"enabled" json:"enabled"`
	Acknowledged bool   `db:"acknowledged" json:"acknowledged"`
	Version      string `db:"version" json:"version,omitempty"`
	UpdatedAt    string `db:"updated_at" json:"updatedAt"`
}

// ListPlugins returns the registry in name order.
func (d *DB) ListPlugins(ctx context.Context) ([]PluginRecord, error) {
	var plugins []PluginRecord
	err := d.read.SelectContext(ctx, &plugins, `SELECT * FROM plugins ORDER BY name`)
	return plugins, err
}

// RegisterPlugin records a discovered plugin without enabling it.
func (d *DB) RegisterPlugin(ctx context.Context, name, version string) error {
	_, err := d.write.ExecContext(ctx, `
		INSERT INTO plugins (name, enabled, acknowledged, version, updated_at)
		VALUES (?, 0, 0, ?, ?)
		ON CONFLICT(name) DO UPDATE SET version = excluded.version, updated_at = excluded.updated_at`,
		name, version, NowUTC(),
	)
	return err
}

// AcknowledgePlugin marks a plugin as reviewed by the operator.
func (d *DB) AcknowledgePlugin(ctx context.Context, name string) error {
	return d.setPluginField(ctx, name, `acknowledged = 1`)
}

// EnablePlugin enables an acknowledged plugin.
func (d *DB) EnablePlugin(ctx context.Context, name string) error {
	res, err := d.write.ExecContext(ctx,
		`UPDATE plugins SET enabled = 1, updated_at = ? WHERE name = ? AND acknowledged = 1`,
		NowUTC(), name)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		if _, err := d.getPlugin(ctx, name); errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return errors.New("plugin must be acknowledged before it can be enabled")
	}
	return nil
}

// DisablePlugin disables a plugin.
func (d *DB) DisablePlugin(ctx context.Context, name string) error {
	return d.setPluginField(ctx, name, `enabled = 0`)
}

func (d *DB) setPluginField(ctx context.Context, name, assignment string) error {
	res, err := d.write.ExecContext(ctx,
		`UPDATE plugins SET `+assignment+`, updated_at = ? WHERE name = ?`, NowUTC(), name)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (d *DB) getPlugin(ctx context.Context, name string) (PluginRecord, error) {
	var p PluginRecord
	if err := d.read.GetContext(ctx, &p, `SELECT * FROM plugins WHERE name = ?`, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PluginRecord{}, domain.ErrNotFound
		}
		return PluginRecord{}, err
	}
	return p, nil
}
