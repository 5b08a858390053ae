package config

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// WriteCmnd writes c in the ".cmnd" form, one "key = value" line per key in
// sorted order.
func (c *Config) WriteCmnd(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "# %s\n", c.name); err != nil {
		return err
	}
	for _, k := range c.Keys() {
		if _, err := fmt.Fprintf(w, "%s = %s\n", k, c.values[k]); err != nil {
			return err
		}
	}
	return nil
}

// WriteYAML writes c as a flat YAML mapping. Comma-separated integer lists
// become sequences; everything else stays a string.
func (c *Config) WriteYAML(w io.Writer) error {
	doc := make(map[string]interface{}, len(c.values))
	for k, v := range c.values {
		if strings.Contains(v, ",") {
			if ints, err := parseCSVInts(v); err == nil {
				doc[k] = ints
				continue
			}
		}
		doc[k] = v
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode %s: %w", c.name, err)
	}
	return enc.Close()
}
