// Package missionloader loads Mission DAG templates from YAML files at
// startup and persists them as immutable Mission rows, created out-of-band
// at init time and never mutated afterwards.
package missionloader

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"petnet-coordinator/internal/db"
)

// template is the on-disk YAML shape of a mission file.
type template struct {
	Name      string `yaml:"name"`
	Version   int64  `yaml:"version"`
	Operators []struct {
		Name      string         `yaml:"name" json:"name"`
		Party     string         `yaml:"party" json:"party"`
		Class     string         `yaml:"class" json:"class"`
		ClassPath string         `yaml:"class_path" json:"class_path"`
		Args      map[string]any `yaml:"args,omitempty" json:"args,omitempty"`
		Depends   []string       `yaml:"depends,omitempty" json:"depends,omitempty"`
	} `yaml:"operators"`
}

// LoadDir reads every *.yaml/*.yml file in dir and persists each as a
// Mission row, skipping any (name, version) pair already present.
func LoadDir(ctx context.Context, sqlDB *sql.DB, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("missionloader: read dir %s: %w", dir, err)
	}

	loaded := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		if err := loadFile(ctx, sqlDB, filepath.Join(dir, name)); err != nil {
			return loaded, fmt.Errorf("missionloader: %s: %w", name, err)
		}
		loaded++
	}
	return loaded, nil
}

func loadFile(ctx context.Context, sqlDB *sql.DB, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var tpl template
	if err := yaml.Unmarshal(b, &tpl); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	if tpl.Name == "" || tpl.Version == 0 {
		return fmt.Errorf("mission template missing name/version")
	}

	if _, err := db.GetMission(ctx, sqlDB, tpl.Name, tpl.Version); err == nil {
		return nil // already loaded
	}

	dagJSON, err := json.Marshal(struct {
		Operators any `json:"operators"`
	}{Operators: tpl.Operators})
	if err != nil {
		return err
	}

	return db.InsertMission(ctx, sqlDB, &db.Mission{Name: tpl.Name, Version: tpl.Version, DAG: string(dagJSON)})
}
