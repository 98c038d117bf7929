package provbatch

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
)

// Extractor pulls the artifact out of the final step's raw payload. A nil
// return error means the artifact is valid; any error marks the owning task
// as failed even though the provider reported success.
type Extractor func(payload string) (string, error)

// JSONFieldExtractor returns an Extractor that parses the payload as JSON
// and returns the named top-level string field. Missing field, non-string
// values, and unparseable payloads are all extraction failures.
func JSONFieldExtractor(field string) Extractor {
	return func(payload string) (string, error) {
		node, err := sonic.GetFromString(payload, field)
		if err != nil {
			return "", fmt.Errorf("field %q not found in payload: %w", field, err)
		}
		value, err := node.String()
		if err != nil {
			return "", fmt.Errorf("field %q is not a string: %w", field, err)
		}
		if value == "" {
			return "", fmt.Errorf("field %q is empty", field)
		}
		return value, nil
	}
}

// RawExtractor returns the trimmed payload unchanged, for providers that
// respond with the bare secret.
func RawExtractor() Extractor {
	return func(payload string) (string, error) {
		trimmed := strings.TrimSpace(payload)
		if trimmed == "" {
			return "", fmt.Errorf("empty payload")
		}
		return trimmed, nil
	}
}
