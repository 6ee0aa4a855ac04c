package format

import (
	"encoding/json"
	"fmt"
)

// MarshalCapitalized renders the structured `-d {}` list output: a
// JSON array of objects whose keys are Capitalized user-facing names
// ("Hostname (key)", "IPAddress"), deliberately distinct from the
// internal lowerCamel field names. encoding/json sorts map keys, which
// keeps the output deterministic.
func MarshalCapitalized(records []map[string]any) (string, error) {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal records: %w", err)
	}
	return string(data), nil
}
