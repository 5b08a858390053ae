// Package config reads the run configuration used by the calibration
// reports: run lists per condition, the data path template and the
// per-detector amplitude thresholds.
//
// Two on-disk forms are accepted. The ".cmnd" form is a flat list of
// "key = value" lines with '#' comments and comma-separated integer lists.
// The YAML form carries the same keys, with lists written as YAML
// sequences. Both produce the same immutable Config.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/banshee-data/calibration.report/internal/fsutil"
)

// ErrConfiguration is the root of every configuration failure: unknown
// detector, unknown run type or a missing or malformed key.
var ErrConfiguration = errors.New("configuration error")

// ErrMissingKey is returned when a required key is absent.
var ErrMissingKey = fmt.Errorf("%w: missing key", ErrConfiguration)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config is an immutable key/value store loaded once per invocation and
// passed explicitly to the components that need it.
type Config struct {
	name   string
	values map[string]string
}

// New builds a Config from an in-memory key/value map. The map is copied.
func New(name string, values map[string]string) *Config {
	c := &Config{name: name, values: make(map[string]string, len(values))}
	for k, v := range values {
		c.values[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return c
}

// Load reads the configuration file at path from the OS filesystem.
func Load(path string) (*Config, error) {
	return LoadFS(fsutil.OSFileSystem{}, path)
}

// LoadFS reads the configuration file at path from fsys. The file must have
// a .cmnd, .yaml or .yml extension and be no larger than 1MB.
func LoadFS(fsys fsutil.FileSystem, path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".cmnd" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("%w: config file must have .cmnd, .yaml or .yml extension, got %q", ErrConfiguration, ext)
	}

	info, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to stat config file: %v", ErrConfiguration, err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("%w: config file too large: %d bytes (max %d)", ErrConfiguration, info.Size(), maxFileSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrConfiguration, err)
	}

	var values map[string]string
	if ext == ".cmnd" {
		values = parseCmnd(string(data))
	} else {
		values, err = parseYAML(data)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to parse %s: %v", ErrConfiguration, cleanPath, err)
		}
	}
	return New(cleanPath, values), nil
}

// Name returns the path or label the configuration was loaded from.
func (c *Config) Name() string { return c.name }

// Has reports whether key is present.
func (c *Config) Has(key string) bool {
	_, ok := c.values[key]
	return ok
}

// Keys returns the sorted list of keys.
func (c *Config) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns the raw value of key.
func (c *Config) String(key string) (string, error) {
	v, ok := c.values[key]
	if !ok {
		return "", fmt.Errorf("%w %q in %s", ErrMissingKey, key, c.name)
	}
	return v, nil
}

// Float returns key parsed as a float64.
func (c *Config) Float(key string) (float64, error) {
	s, err := c.String(key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: key %q: invalid float '%s'", ErrConfiguration, key, s)
	}
	return v, nil
}

// Int returns key parsed as an int.
func (c *Config) Int(key string) (int, error) {
	s, err := c.String(key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: key %q: invalid int '%s'", ErrConfiguration, key, s)
	}
	return v, nil
}

// IntSlice returns key parsed as a comma-separated list of ints. Empty
// items are skipped.
func (c *Config) IntSlice(key string) ([]int, error) {
	s, err := c.String(key)
	if err != nil {
		return nil, err
	}
	out, err := parseCSVInts(s)
	if err != nil {
		return nil, fmt.Errorf("%w: key %q: %v", ErrConfiguration, key, err)
	}
	return out, nil
}

// parseCmnd parses "key = value" lines. Blank lines and lines starting with
// '#' are ignored, as are lines without '='. Later keys override earlier
// ones.
func parseCmnd(text string) map[string]string {
	values := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || line[0] == '#' {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		values[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return values
}

func parseCSVInts(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid int '%s'", p)
		}
		out = append(out, v)
	}
	return out, nil
}
