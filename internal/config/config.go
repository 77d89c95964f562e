package config

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nsap/bidsbatch/internal/constants"
)

// Config holds the settings shared by every driver invocation. Command-line
// flags override them.
type Config struct {
	// Dispatch settings
	Workers     int
	Queue       string
	Resources   []string // PBS "-l" requests
	GracePeriod time.Duration

	// Container settings
	Runtime string
	Image   string

	// Dataset conventions
	Marker        string
	SubjectPrefix string
	SessionPrefix string

	// Logging
	LogLevel string

	// Progress display: "bar", "jobs" or "none"
	Progress string

	// Warnings collects the problems found while loading, to be logged by
	// the caller.
	Warnings []string
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Workers:       constants.DefaultWorkers,
		Queue:         constants.DefaultClusterQueue,
		GracePeriod:   constants.KillGracePeriod,
		Runtime:       constants.DefaultContainerRuntime,
		Marker:        constants.DefaultSelectionMarker,
		SubjectPrefix: constants.DefaultSubjectPrefix,
		SessionPrefix: constants.DefaultSessionPrefix,
		LogLevel:      "info",
		Progress:      "bar",
	}
}

// LoadConfigCSV loads configuration from a CSV file
// CSV format: key,value pairs
func LoadConfigCSV(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // Return defaults if config doesn't exist
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.Comment = '#'
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read config CSV: %w", err)
	}

	for i, record := range records {
		if i == 0 {
			// Skip header row if it looks like a header
			if len(record) >= 2 && strings.ToLower(record[0]) == "key" {
				continue
			}
		}

		if len(record) < 2 {
			continue
		}

		key := strings.TrimSpace(strings.ToLower(record[0]))
		value := strings.TrimSpace(record[1])

		switch key {
		case "workers", "njobs":
			v, err := strconv.Atoi(value)
			if err != nil {
				cfg.warnf("line %d: invalid %s %q", i+1, key, value)
				continue
			}
			cfg.Workers = v
		case "queue":
			cfg.Queue = value
		case "resources":
			cfg.Resources = splitList(value)
		case "grace_period":
			d, err := time.ParseDuration(value)
			if err != nil {
				cfg.warnf("line %d: invalid grace_period %q", i+1, value)
				continue
			}
			cfg.GracePeriod = d
		case "runtime":
			cfg.Runtime = value
		case "simg", "image":
			cfg.Image = value
		case "marker":
			cfg.Marker = value
		case "subject_prefix":
			cfg.SubjectPrefix = value
		case "session_prefix":
			cfg.SessionPrefix = value
		case "log_level":
			cfg.LogLevel = strings.ToLower(value)
		case "progress":
			cfg.Progress = strings.ToLower(value)
		default:
			cfg.warnf("line %d: unknown key %q", i+1, key)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfigCSV saves configuration to a CSV file
// CSV format: key,value pairs
func SaveConfigCSV(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write([]string{"key", "value"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	records := [][]string{
		{"workers", strconv.Itoa(cfg.Workers)},
		{"queue", cfg.Queue},
		{"resources", strings.Join(cfg.Resources, ";")},
		{"grace_period", cfg.GracePeriod.String()},
		{"runtime", cfg.Runtime},
		{"simg", cfg.Image},
		{"marker", cfg.Marker},
		{"subject_prefix", cfg.SubjectPrefix},
		{"session_prefix", cfg.SessionPrefix},
		{"log_level", cfg.LogLevel},
		{"progress", cfg.Progress},
	}

	for _, record := range records {
		// Only write non-empty values to keep file clean
		if record[1] == "" {
			continue
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Workers < constants.MinWorkers || c.Workers > constants.MaxWorkers {
		return fmt.Errorf("workers must be between %d and %d, got %d",
			constants.MinWorkers, constants.MaxWorkers, c.Workers)
	}
	if c.SubjectPrefix == "" || c.SessionPrefix == "" {
		return fmt.Errorf("subject_prefix and session_prefix cannot be empty")
	}
	if c.GracePeriod < 0 {
		return fmt.Errorf("grace_period cannot be negative")
	}
	switch c.Progress {
	case "bar", "jobs", "none":
	default:
		return fmt.Errorf("progress must be bar, jobs or none, got %q", c.Progress)
	}
	return nil
}

func (c *Config) warnf(format string, args ...interface{}) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

// splitList parses a semicolon-separated value.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
