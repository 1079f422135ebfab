// Package config holds the bridge process configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid value")

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "DIIBRIDGE_"

// Duration is a time.Duration that reads and writes as a string such as
// "100us" in JSON.
type Duration time.Duration

// MarshalJSON encodes d as a duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var ns int64
		if err := json.Unmarshal(b, &ns); err != nil {
			return fmt.Errorf("duration must be a string or integer: %w", err)
		}

		*d = Duration(ns)

		return nil
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}

	*d = Duration(v)

	return nil
}

// Config holds the settings of one bridge process.
type Config struct {
	// Port is the TCP port the test generator connects to. Default: 5000.
	Port int `json:"port"`

	// Verbosity is the log level; 0 logs only lifecycle events, 1 adds
	// per-trace events and 2 adds per-packet events. Default: 0.
	Verbosity int `json:"verbosity"`

	// MemBase is the first address of the data memory.
	// Default: 0x80000000.
	MemBase uint64 `json:"mem_base"`

	// MemSize is the size of the data memory in bytes. It must be a
	// nonzero multiple of 4. Default: 64 KiB.
	MemSize uint64 `json:"mem_size"`

	// BootAddr is where the core starts fetching after reset.
	// Default: 0x80000000.
	BootAddr uint64 `json:"boot_addr"`

	// ResetEdges is the number of clock edges in a reset pulse.
	// Default: 10.
	ResetEdges int `json:"reset_edges"`

	// ChunkSize is the number of execution packets per send. Default: 50.
	ChunkSize int `json:"chunk_size"`

	// PollInterval is the wait between receive attempts. Default: 100us.
	PollInterval Duration `json:"poll_interval"`

	// SignExtend widens 32-bit trace values by sign extension instead of
	// zero extension. Default: true.
	SignExtend bool `json:"sign_extend"`

	// Streaming starts stepping before a complete trace has arrived.
	// Default: false.
	Streaming bool `json:"streaming"`

	// ClockFreqMHz converts clock cycles to simulated time. Default: 100.
	ClockFreqMHz float64 `json:"clock_freq_mhz"`

	// RecordPath is the SQLite file retirements are recorded to. Empty
	// disables recording.
	RecordPath string `json:"record_path"`

	// MonitorPort serves the HTTP status API. 0 disables the monitor.
	MonitorPort int `json:"monitor_port"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Port:         5000,
		Verbosity:    0,
		MemBase:      0x80000000,
		MemSize:      64 * 1024,
		BootAddr:     0x80000000,
		ResetEdges:   10,
		ChunkSize:    50,
		PollInterval: Duration(100 * time.Microsecond),
		SignExtend:   true,
		ClockFreqMHz: 100,
	}
}

// Load loads a Config from a JSON file. Fields absent from the file keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// Save writes the Config to a JSON file.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks that every value is usable.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, c.Port)
	}
	if c.Verbosity < 0 {
		return fmt.Errorf("%w: verbosity must be >= 0", ErrInvalid)
	}
	if c.MemSize == 0 || c.MemSize%4 != 0 {
		return fmt.Errorf("%w: mem_size must be a nonzero multiple of 4", ErrInvalid)
	}
	if c.MemBase+c.MemSize < c.MemBase {
		return fmt.Errorf("%w: memory window overflows", ErrInvalid)
	}
	if c.ResetEdges <= 0 {
		return fmt.Errorf("%w: reset_edges must be > 0", ErrInvalid)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be > 0", ErrInvalid)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll_interval must be > 0", ErrInvalid)
	}
	if c.ClockFreqMHz <= 0 {
		return fmt.Errorf("%w: clock_freq_mhz must be > 0", ErrInvalid)
	}
	if c.MonitorPort < 0 || c.MonitorPort > 65535 {
		return fmt.Errorf("%w: monitor_port %d out of range", ErrInvalid, c.MonitorPort)
	}
	return nil
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// ApplyEnv overlays DIIBRIDGE_* environment variables on c. Variables are
// first loaded from the given .env files, or from ./.env when none is
// given; missing files are ignored. Variables already set in the process
// environment take precedence over the files.
func (c *Config) ApplyEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	fields := []struct {
		name  string
		apply func(string) error
	}{
		{"PORT", intField(&c.Port)},
		{"VERBOSITY", intField(&c.Verbosity)},
		{"MEM_BASE", uintField(&c.MemBase)},
		{"MEM_SIZE", uintField(&c.MemSize)},
		{"BOOT_ADDR", uintField(&c.BootAddr)},
		{"RESET_EDGES", intField(&c.ResetEdges)},
		{"CHUNK_SIZE", intField(&c.ChunkSize)},
		{"POLL_INTERVAL", durationField(&c.PollInterval)},
		{"SIGN_EXTEND", boolField(&c.SignExtend)},
		{"STREAMING", boolField(&c.Streaming)},
		{"CLOCK_FREQ_MHZ", floatField(&c.ClockFreqMHz)},
		{"RECORD_PATH", stringField(&c.RecordPath)},
		{"MONITOR_PORT", intField(&c.MonitorPort)},
	}

	for _, f := range fields {
		v, ok := os.LookupEnv(EnvPrefix + f.name)
		if !ok {
			continue
		}

		if err := f.apply(v); err != nil {
			return fmt.Errorf("%w: %s%s=%q: %v", ErrInvalid, EnvPrefix, f.name, v, err)
		}
	}

	return nil
}

func intField(dst *int) func(string) error {
	return func(s string) error {
		v, err := strconv.Atoi(s)
		if err == nil {
			*dst = v
		}
		return err
	}
}

// uintField accepts decimal, 0x-prefixed hex and 0o/0b-prefixed values.
func uintField(dst *uint64) func(string) error {
	return func(s string) error {
		v, err := strconv.ParseUint(s, 0, 64)
		if err == nil {
			*dst = v
		}
		return err
	}
}

func floatField(dst *float64) func(string) error {
	return func(s string) error {
		v, err := strconv.ParseFloat(s, 64)
		if err == nil {
			*dst = v
		}
		return err
	}
}

func boolField(dst *bool) func(string) error {
	return func(s string) error {
		v, err := strconv.ParseBool(s)
		if err == nil {
			*dst = v
		}
		return err
	}
}

func durationField(dst *Duration) func(string) error {
	return func(s string) error {
		v, err := time.ParseDuration(s)
		if err == nil {
			*dst = Duration(v)
		}
		return err
	}
}

func stringField(dst *string) func(string) error {
	return func(s string) error {
		*dst = s
		return nil
	}
}
