package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
	"github.com/andrew-tomago/dotfiles/pkg/telemetry"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CONVERGE_"

// Settings is the tool configuration, as opposed to the catalog of units.
type Settings struct {
	// Catalogs are catalog files or directories. Empty selects the built-in
	// catalog for the platform.
	Catalogs []string `yaml:"catalogs" json:"catalogs,omitempty"`

	// Platform overrides the detected platform (e.g. "darwin", "ubuntu").
	Platform string `yaml:"platform" json:"platform,omitempty"`

	// StateDir holds the lock file and the history database.
	StateDir string `yaml:"state_dir" json:"state_dir,omitempty" validate:"required"`

	History HistorySettings `yaml:"history" json:"history"`

	Policy PolicySettings `yaml:"policy" json:"policy"`

	Watch WatchSettings `yaml:"watch" json:"watch"`

	Telemetry telemetry.Config `yaml:"telemetry" json:"telemetry"`
}

// HistorySettings configures the run history journal.
type HistorySettings struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path,omitempty" validate:"required_if=Enabled true"`

	// Keep is how many runs are retained; 0 keeps every run.
	Keep int `yaml:"keep" json:"keep,omitempty" validate:"gte=0"`
}

// PolicySettings configures catalog policy checks.
type PolicySettings struct {
	Enabled bool     `yaml:"enabled" json:"enabled"`
	Paths   []string `yaml:"paths" json:"paths,omitempty"`
}

// WatchSettings configures `converge watch`.
type WatchSettings struct {
	Debounce time.Duration `yaml:"debounce" json:"debounce,omitempty" validate:"gte=0"`
}

// DefaultSettings returns settings rooted at the XDG state directory.
func DefaultSettings() *Settings {
	stateDir := defaultStateDir()
	return &Settings{
		StateDir: stateDir,
		History: HistorySettings{
			Enabled: true,
			Keep:    200,
		},
		Policy: PolicySettings{
			Enabled: true,
		},
		Watch: WatchSettings{
			Debounce: 2 * time.Second,
		},
		Telemetry: *telemetry.DefaultConfig(),
	}
}

// DefaultSettingsPath returns $XDG_CONFIG_HOME/converge/config.yaml.
func DefaultSettingsPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		dir = engine.ExpandHome("~/.config")
	}
	return filepath.Join(dir, "converge", "config.yaml")
}

func defaultStateDir() string {
	dir := os.Getenv("XDG_STATE_HOME")
	if dir == "" {
		dir = engine.ExpandHome("~/.local/state")
	}
	return filepath.Join(dir, "converge")
}

// LoadSettings reads settings from path, applies .env files and CONVERGE_*
// overrides, and validates the result. An empty path reads the default
// location and tolerates it being absent.
func LoadSettings(path string) (*Settings, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultSettingsPath()
	}

	loadDotEnv(filepath.Dir(path))

	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := settings.decode(data); err != nil {
			return nil, engine.NewConfigurationError("invalid settings file", err).
				WithCode(engine.ErrCodeValidation).
				WithDetail("file", path)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, engine.NewConfigurationError("failed to read settings", err).
			WithCode(engine.ErrCodeValidation).
			WithDetail("file", path)
	}

	if err := settings.ApplyEnv(os.LookupEnv); err != nil {
		return nil, engine.NewConfigurationError("invalid environment override", err).
			WithCode(engine.ErrCodeValidation)
	}

	settings.resolve()

	if err := settings.Validate(); err != nil {
		return nil, engine.NewConfigurationError("invalid settings", err).
			WithCode(engine.ErrCodeValidation).
			WithDetail("file", path)
	}

	return settings, nil
}

// loadDotEnv loads .env from the working directory and from dir. Variables
// already set in the environment win.
func loadDotEnv(dir string) {
	for _, candidate := range []string{".env", filepath.Join(dir, ".env")} {
		if _, err := os.Stat(candidate); err == nil {
			_ = godotenv.Load(candidate)
		}
	}
}

func (s *Settings) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv applies CONVERGE_* overrides read through lookup.
func (s *Settings) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}

	if v, ok := get("CATALOGS"); ok {
		s.Catalogs = splitList(v)
	}
	if v, ok := get("PLATFORM"); ok {
		s.Platform = v
	}
	if v, ok := get("STATE_DIR"); ok {
		s.StateDir = v
	}
	if v, ok := get("HISTORY"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sHISTORY: %w", EnvPrefix, err)
		}
		s.History.Enabled = enabled
	}
	if v, ok := get("HISTORY_DB"); ok {
		s.History.Path = v
	}
	if v, ok := get("POLICY_PATHS"); ok {
		s.Policy.Paths = splitList(v)
	}
	if v, ok := get("LOG_LEVEL"); ok {
		s.Telemetry.Logging.Level = strings.ToLower(v)
	}
	if v, ok := get("LOG_FORMAT"); ok {
		s.Telemetry.Logging.Format = strings.ToLower(v)
	}
	if v, ok := get("METRICS_TEXTFILE"); ok {
		s.Telemetry.Metrics.Enabled = true
		s.Telemetry.Metrics.TextfilePath = v
	}
	if v, ok := get("OTLP_ENDPOINT"); ok {
		s.Telemetry.Tracing.Enabled = true
		s.Telemetry.Tracing.Exporter = "otlp"
		s.Telemetry.Tracing.Endpoint = v
	}
	if v, ok := get("WATCH_DEBOUNCE"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sWATCH_DEBOUNCE: %w", EnvPrefix, err)
		}
		s.Watch.Debounce = d
	}

	return nil
}

// resolve expands home-relative paths and fills paths derived from StateDir.
func (s *Settings) resolve() {
	s.StateDir = engine.ExpandHome(s.StateDir)
	for i, p := range s.Catalogs {
		s.Catalogs[i] = engine.ExpandHome(p)
	}
	for i, p := range s.Policy.Paths {
		s.Policy.Paths[i] = engine.ExpandHome(p)
	}
	if s.History.Path == "" && s.StateDir != "" {
		s.History.Path = filepath.Join(s.StateDir, "history.db")
	}
	s.History.Path = engine.ExpandHome(s.History.Path)
	s.Telemetry.Metrics.TextfilePath = engine.ExpandHome(s.Telemetry.Metrics.TextfilePath)
}

// Validate checks struct constraints, the CUE settings schema and the
// telemetry configuration.
func (s *Settings) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return err
	}
	if err := NewSchemaRegistry().Validate("settings", s); err != nil {
		return err
	}
	return s.Telemetry.Validate()
}

// LockPath returns the path of the run lock file.
func (s *Settings) LockPath() string {
	return filepath.Join(s.StateDir, "converge.lock")
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ':' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
