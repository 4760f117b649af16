package strategy

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents a strategy configuration entry in YAML.
type Config struct {
	Name       string         `yaml:"name"`
	Type       string         `yaml:"type"`
	Symbols    []string       `yaml:"symbols"`
	Timeframe  string         `yaml:"timeframe"`
	Parameters map[string]any `yaml:"parameters"`
	IsActive   bool           `yaml:"is_active"`
}

// ConfigFile represents the top-level YAML structure.
type ConfigFile struct {
	Strategies []Config `yaml:"strategies"`
}

// LoadConfig reads strategy definitions from a YAML file.
func LoadConfig(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file ConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	return file.Strategies, nil
}

// SyncConfigToDB upserts strategy definitions into the journal so the
// API can serve them alongside run history.
func SyncConfigToDB(db *sql.DB, configs []Config) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO strategy_instances (name, strategy_type, symbols, timeframe, parameters, is_active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			strategy_type = excluded.strategy_type,
			symbols = excluded.symbols,
			timeframe = excluded.timeframe,
			parameters = excluded.parameters,
			is_active = excluded.is_active,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, cfg := range configs {
		paramsJSON, err := json.Marshal(cfg.Parameters)
		if err != nil {
			return fmt.Errorf("failed to marshal parameters for strategy %s: %w", cfg.Name, err)
		}

		_, err = stmt.Exec(
			cfg.Name,
			cfg.Type,
			strings.Join(cfg.Symbols, ","),
			cfg.Timeframe,
			string(paramsJSON),
			cfg.IsActive,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert strategy %s: %w", cfg.Name, err)
		}
	}

	return tx.Commit()
}
