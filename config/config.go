// ABOUTME: Layered configuration for the roster engine and its CLI
// ABOUTME: Defaults, then JSONC files, then .env and ROSTER_ environment variables, then flags
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"

	"github.com/harperreed/roster/models"
	"github.com/harperreed/roster/namenorm"
	"github.com/harperreed/roster/provider"
)

const (
	AppName   = "roster"
	EnvPrefix = "ROSTER_"
	FileName  = "config.json"
)

// Config holds every tunable of the engine and the CLI around it.
type Config struct {
	DataDir              string   `json:"data_dir,omitempty"`
	ContactsDB           string   `json:"contacts_db,omitempty"`
	ProfileDB            string   `json:"profile_db,omitempty"`
	PhotoDir             string   `json:"photo_dir,omitempty"`
	Locale               string   `json:"locale,omitempty"`
	Debug                bool     `json:"debug,omitempty"`
	HumanLogs            bool     `json:"human_logs,omitempty"`
	BatchYieldThreshold  int      `json:"batch_yield_threshold,omitempty"`
	MaxSuggestions       int      `json:"max_suggestions,omitempty"`
	PhotoPriority        []string `json:"photo_priority,omitempty"`
	ReadOnlyAccountTypes []string `json:"read_only_account_types,omitempty"`
	GoogleAccountName    string   `json:"google_account_name,omitempty"`
}

// Sources records which files contributed to a loaded config.
type Sources struct {
	Global   string
	Explicit string
	DotEnv   string
}

func Default() Config {
	return Config{
		DataDir:             filepath.Join(xdg.DataHome, AppName),
		ContactsDB:          "contacts.db",
		ProfileDB:           "profile.db",
		PhotoDir:            "photos",
		Locale:              namenorm.DefaultLocale,
		BatchYieldThreshold: 50,
		MaxSuggestions:      5,
	}
}

// GlobalPath is $XDG_CONFIG_HOME/roster/config.json.
func GlobalPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, FileName)
}

// Load builds the config from defaults, the global file, an optional
// explicit file (which must exist), an optional .env file and the process
// environment. Flags are applied by the caller afterwards.
func Load(explicitPath, dotEnvPath string) (Config, Sources, error) {
	cfg := Default()
	var src Sources

	global, ok, err := readFile(GlobalPath(), false)
	if err != nil {
		return Config{}, Sources{}, err
	}
	if ok {
		cfg = merge(cfg, global)
		src.Global = GlobalPath()
	}

	if explicitPath != "" {
		explicit, _, err := readFile(explicitPath, true)
		if err != nil {
			return Config{}, Sources{}, err
		}
		cfg = merge(cfg, explicit)
		src.Explicit = explicitPath
	}

	env := environ()
	if dotEnvPath != "" {
		vars, err := godotenv.Read(dotEnvPath)
		switch {
		case err == nil:
			src.DotEnv = dotEnvPath
			for k, v := range vars {
				if env[k] == "" {
					env[k] = v
				}
			}
		case !errors.Is(err, os.ErrNotExist):
			return Config{}, Sources{}, fmt.Errorf("failed to read %s: %w", dotEnvPath, err)
		}
	}
	if err := applyEnv(&cfg, env); err != nil {
		return Config{}, Sources{}, err
	}
	return cfg, src, nil
}

func readFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !mustExist {
			return Config{}, false, nil
		}
		return Config{}, false, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, true, nil
}

// Parse reads JSON with comments and trailing commas.
func Parse(data []byte) (Config, error) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, models.ValidationErrorf("invalid JSONC: %v", err)
	}
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(std))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, models.ValidationErrorf("invalid config: %v", err)
	}
	return cfg, nil
}

// merge overlays the set fields of overlay onto base.
func merge(base, overlay Config) Config {
	if overlay.DataDir != "" {
		base.DataDir = overlay.DataDir
	}
	if overlay.ContactsDB != "" {
		base.ContactsDB = overlay.ContactsDB
	}
	if overlay.ProfileDB != "" {
		base.ProfileDB = overlay.ProfileDB
	}
	if overlay.PhotoDir != "" {
		base.PhotoDir = overlay.PhotoDir
	}
	if overlay.Locale != "" {
		base.Locale = overlay.Locale
	}
	base.Debug = base.Debug || overlay.Debug
	base.HumanLogs = base.HumanLogs || overlay.HumanLogs
	if overlay.BatchYieldThreshold != 0 {
		base.BatchYieldThreshold = overlay.BatchYieldThreshold
	}
	if overlay.MaxSuggestions != 0 {
		base.MaxSuggestions = overlay.MaxSuggestions
	}
	if overlay.PhotoPriority != nil {
		base.PhotoPriority = overlay.PhotoPriority
	}
	if overlay.ReadOnlyAccountTypes != nil {
		base.ReadOnlyAccountTypes = overlay.ReadOnlyAccountTypes
	}
	if overlay.GoogleAccountName != "" {
		base.GoogleAccountName = overlay.GoogleAccountName
	}
	return base
}

func environ() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, EnvPrefix) {
			out[k] = v
		}
	}
	return out
}

func applyEnv(cfg *Config, env map[string]string) error {
	str := func(key string, dst *string) {
		if v := env[EnvPrefix+key]; v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v := env[EnvPrefix+key]
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return models.ValidationErrorf("%s%s: %q is not a number", EnvPrefix, key, v)
		}
		*dst = n
		return nil
	}
	flag := func(key string, dst *bool) {
		if v := env[EnvPrefix+key]; v != "" {
			*dst = v == "1" || strings.EqualFold(v, "true")
		}
	}

	str("DATA_DIR", &cfg.DataDir)
	str("CONTACTS_DB", &cfg.ContactsDB)
	str("PROFILE_DB", &cfg.ProfileDB)
	str("PHOTO_DIR", &cfg.PhotoDir)
	str("LOCALE", &cfg.Locale)
	str("GOOGLE_ACCOUNT", &cfg.GoogleAccountName)
	flag("DEBUG", &cfg.Debug)
	flag("HUMAN_LOGS", &cfg.HumanLogs)
	if err := num("BATCH_YIELD_THRESHOLD", &cfg.BatchYieldThreshold); err != nil {
		return err
	}
	if err := num("MAX_SUGGESTIONS", &cfg.MaxSuggestions); err != nil {
		return err
	}
	if v := env[EnvPrefix+"READ_ONLY_ACCOUNT_TYPES"]; v != "" {
		cfg.ReadOnlyAccountTypes = strings.Split(v, ",")
	}
	if v := env[EnvPrefix+"PHOTO_PRIORITY"]; v != "" {
		cfg.PhotoPriority = strings.Split(v, ",")
	}
	return nil
}

func (c Config) Validate() error {
	switch {
	case c.DataDir == "":
		return models.ValidationError("data_dir is required")
	case c.ContactsDB == "" || c.ProfileDB == "":
		return models.ValidationError("contacts_db and profile_db are required")
	case c.ContactsDB == c.ProfileDB:
		return models.ValidationError("contacts_db and profile_db must differ")
	case c.BatchYieldThreshold < 0:
		return models.ValidationError("batch_yield_threshold must not be negative")
	case c.MaxSuggestions < 0:
		return models.ValidationError("max_suggestions must not be negative")
	}
	for _, typ := range c.PhotoPriority {
		if strings.TrimSpace(typ) == "" {
			return models.ValidationError("photo_priority entries must not be empty")
		}
	}
	return nil
}

// path resolves name against the data dir unless it is absolute.
func (c Config) path(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

func (c Config) ContactsPath() string { return c.path(c.ContactsDB) }
func (c Config) ProfilePath() string  { return c.path(c.ProfileDB) }
func (c Config) PhotoPath() string    { return c.path(c.PhotoDir) }

// ProviderOptions maps the config onto the engine's open options.
func (c Config) ProviderOptions() provider.Options {
	return provider.Options{
		ContactsPath:         c.ContactsPath(),
		ProfilePath:          c.ProfilePath(),
		PhotoDir:             c.PhotoPath(),
		Locale:               c.Locale,
		PhotoPriority:        c.PhotoPriority,
		ReadOnlyAccountTypes: c.ReadOnlyAccountTypes,
		BatchYieldThreshold:  c.BatchYieldThreshold,
		MaxSuggestions:       c.MaxSuggestions,
	}
}

// Save writes cfg to path atomically, creating the directory.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(append(data, '\n'))); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}
