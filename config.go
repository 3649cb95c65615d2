package keymerge

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jetkvm/keymerge/internal/kscan"
	"github.com/jetkvm/keymerge/internal/merge"
)

const defaultConfigPath = "/userdata/keymerge.json"

type MatrixConfig struct {
	Rows    uint32     `json:"rows"`
	Columns uint32     `json:"columns"`
	Map     []kscan.RC `json:"map,omitempty"`
}

// Config is read once at boot. Nothing in it changes while running.
type Config struct {
	// MergeMap is a flat <from to from to ...> list of positions.
	MergeMap []uint32     `json:"merge_map"`
	Matrix   MatrixConfig `json:"matrix"`
	// Keymap holds one encoded keycode per position; zero leaves a position unbound.
	Keymap []uint32 `json:"keymap"`

	QueueSize        int `json:"queue_size"`
	RegistryCapacity int `json:"registry_capacity"`

	SerialPort string `json:"serial_port"`
	SerialBaud int    `json:"serial_baud"`

	UinputEnabled bool   `json:"uinput_enabled"`
	DeviceName    string `json:"device_name"`

	ListenAddress        string `json:"listen_address"`
	StatsIntervalSeconds int    `json:"stats_interval_seconds"`
}

var defaultConfig = &Config{
	Matrix:               MatrixConfig{Rows: 4, Columns: 14},
	QueueSize:            kscan.DefaultQueueSize,
	SerialBaud:           115200,
	UinputEnabled:        true,
	DeviceName:           "keymerge",
	ListenAddress:        ":8088",
	StatsIntervalSeconds: 60,
}

func (c *Config) StatsInterval() time.Duration {
	return time.Duration(c.StatsIntervalSeconds) * time.Second
}

// MergeTable parses MergeMap.
func (c *Config) MergeTable() (merge.Table, error) {
	return merge.ParseMap(c.MergeMap)
}

// Transform builds the row/column to position transform.
func (c *Config) Transform() (*kscan.MatrixTransform, error) {
	return kscan.NewMatrixTransform(c.Matrix.Rows, c.Matrix.Columns, c.Matrix.Map)
}

func configPath() string {
	if p := strings.TrimSpace(os.Getenv("KEYMERGE_CONFIG")); p != "" {
		return p
	}
	return defaultConfigPath
}

// LoadConfig reads path on top of the defaults. A missing file is not an
// error. Environment overrides are applied last.
func LoadConfig(path string) (*Config, error) {
	cfg := *defaultConfig

	f, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		configLogger.Info().Str("path", path).Msg("config file not found, using defaults")
	case err != nil:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	default:
		defer f.Close()
		if err := json.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	configLogger.Info().
		Str("path", path).
		Int("merge_pairs", len(cfg.MergeMap)/2).
		Int("keymap", len(cfg.Keymap)).
		Int("queue_size", cfg.QueueSize).
		Msg("config loaded")
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if s := strings.TrimSpace(os.Getenv("KEYMERGE_SERIAL_PORT")); s != "" {
		cfg.SerialPort = s
	}
	if s := strings.TrimSpace(os.Getenv("KEYMERGE_LISTEN")); s != "" {
		cfg.ListenAddress = s
	}
	if s := strings.TrimSpace(os.Getenv("KEYMERGE_QUEUE_SIZE")); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			cfg.QueueSize = v
		} else {
			configLogger.Warn().Str("value", s).Msg("ignoring invalid KEYMERGE_QUEUE_SIZE")
		}
	}
	if s := strings.TrimSpace(os.Getenv("KEYMERGE_UINPUT")); s != "" {
		if v, err := strconv.ParseBool(s); err == nil {
			cfg.UinputEnabled = v
		} else {
			configLogger.Warn().Str("value", s).Msg("ignoring invalid KEYMERGE_UINPUT")
		}
	}
}

func (c *Config) validate() error {
	if _, err := c.MergeTable(); err != nil {
		return fmt.Errorf("invalid merge_map: %w", err)
	}
	if _, err := c.Transform(); err != nil {
		return fmt.Errorf("invalid matrix: %w", err)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("invalid queue_size %d", c.QueueSize)
	}
	if c.RegistryCapacity < 0 {
		return fmt.Errorf("invalid registry_capacity %d", c.RegistryCapacity)
	}
	if c.StatsIntervalSeconds < 0 {
		return fmt.Errorf("invalid stats_interval_seconds %d", c.StatsIntervalSeconds)
	}
	return nil
}
