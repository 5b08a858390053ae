package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// parseYAML flattens a single-level YAML mapping into the same string form
// produced by parseCmnd. Sequences become comma-separated lists.
func parseYAML(data []byte) (map[string]string, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	values := make(map[string]string, len(raw))
	for key, v := range raw {
		s, err := yamlScalar(v)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		values[key] = s
	}
	return values, nil
}

func yamlScalar(v interface{}) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case int:
		return strconv.Itoa(val), nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			s, err := yamlScalar(item)
			if err != nil {
				return "", err
			}
			if _, nested := item.([]interface{}); nested {
				return "", fmt.Errorf("nested sequences are not supported")
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}
