// Package syncconfig reads and rewrites .taskmaster/sync-config.json, the
// project-level mapping from tag to board. Unknown keys in the file are
// preserved across rewrites so other tooling can annotate the config freely.
package syncconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/5dlabs/taskmaster-sync/internal/types"
)

// FileName is the config file's name inside the taskmaster directory.
const FileName = "sync-config.json"

// supportedVersionPrefix gates the config schema. The loader refuses a
// version it does not understand rather than guessing at field meanings.
const supportedVersionPrefix = "1."

// ProjectMapping binds one tag to one board.
type ProjectMapping struct {
	ProjectNumber int    `json:"project_number"`
	ProjectID     string `json:"project_id,omitempty"`
	// Repository switches item creation from drafts to issue-backed items
	// in "owner/name" form.
	Repository  string            `json:"repository,omitempty"`
	SubtaskMode types.SubtaskMode `json:"subtask_mode,omitempty"`
	FieldMap    map[string]string `json:"field_mappings,omitempty"`
	LastSync    *time.Time        `json:"last_sync,omitempty"`
}

// Config is the known portion of sync-config.json.
type Config struct {
	Version      string                    `json:"version"`
	Organization string                    `json:"organization"`
	Mappings     map[string]ProjectMapping `json:"project_mappings"`

	// extra holds top-level keys this version does not understand; they
	// round-trip unchanged on Save.
	extra map[string]json.RawMessage
	path  string
}

// Default returns a fresh config for first-time setup.
func Default(path string) *Config {
	return &Config{
		Version:  "1.0.0",
		Mappings: make(map[string]ProjectMapping),
		path:     path,
	}
}

// PathIn returns the config path inside a taskmaster directory.
func PathIn(taskmasterDir string) string {
	return filepath.Join(taskmasterDir, FileName)
}

// Load reads the config file. A missing file yields a default config that
// Save will create.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 - controlled path from config
	if os.IsNotExist(err) {
		return Default(path), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", types.ErrConfig, path, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", types.ErrConfig, path, err)
	}

	cfg := &Config{Mappings: make(map[string]ProjectMapping), extra: make(map[string]json.RawMessage), path: path}
	for key, val := range raw {
		switch key {
		case "version":
			if err := json.Unmarshal(val, &cfg.Version); err != nil {
				return nil, fmt.Errorf("%w: bad version in %s: %v", types.ErrConfig, path, err)
			}
		case "organization":
			if err := json.Unmarshal(val, &cfg.Organization); err != nil {
				return nil, fmt.Errorf("%w: bad organization in %s: %v", types.ErrConfig, path, err)
			}
		case "project_mappings":
			if err := json.Unmarshal(val, &cfg.Mappings); err != nil {
				return nil, fmt.Errorf("%w: bad project_mappings in %s: %v", types.ErrConfig, path, err)
			}
		default:
			cfg.extra[key] = val
		}
	}

	if cfg.Version == "" || !strings.HasPrefix(cfg.Version, supportedVersionPrefix) {
		return nil, fmt.Errorf("%w: unsupported sync-config version %q (want %sx)",
			types.ErrConfig, cfg.Version, supportedVersionPrefix)
	}
	return cfg, nil
}

// Save rewrites the config file, merging unknown keys back in.
func (c *Config) Save() error {
	merged := make(map[string]json.RawMessage, len(c.extra)+3)
	for k, v := range c.extra {
		merged[k] = v
	}
	put := func(key string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		merged[key] = data
		return nil
	}
	if err := put("version", c.Version); err != nil {
		return fmt.Errorf("%w: encoding config: %v", types.ErrConfig, err)
	}
	if err := put("organization", c.Organization); err != nil {
		return fmt.Errorf("%w: encoding config: %v", types.ErrConfig, err)
	}
	if err := put("project_mappings", c.Mappings); err != nil {
		return fmt.Errorf("%w: encoding config: %v", types.ErrConfig, err)
	}

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding config: %v", types.ErrConfig, err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("%w: creating config directory: %v", types.ErrConfig, err)
	}
	if err := os.WriteFile(c.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("%w: writing %s: %v", types.ErrConfig, c.path, err)
	}
	return nil
}

// Mapping returns the project mapping for a tag.
func (c *Config) Mapping(tag string) (ProjectMapping, bool) {
	m, ok := c.Mappings[tag]
	return m, ok
}

// SetMapping inserts or replaces a tag's mapping.
func (c *Config) SetMapping(tag string, m ProjectMapping) {
	if c.Mappings == nil {
		c.Mappings = make(map[string]ProjectMapping)
	}
	c.Mappings[tag] = m
}

// TouchLastSync stamps a tag's last successful sync time.
func (c *Config) TouchLastSync(tag string, now time.Time) {
	if m, ok := c.Mappings[tag]; ok {
		m.LastSync = &now
		c.Mappings[tag] = m
	}
}
