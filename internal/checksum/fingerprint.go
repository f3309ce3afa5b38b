package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Fingerprint returns the hex sha256 of the canonical JSON form of fields (object keys sorted at
// every depth), so equal content always yields the same checksum. A value that does not encode
// fails the whole fingerprint.
func Fingerprint(fields map[string]any) (string, error) {
	var builder strings.Builder
	if err := writeCanonical(&builder, fields); err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(builder.String()))
	return hex.EncodeToString(sum[:]), nil
}

func writeCanonical(builder *strings.Builder, value any) error {
	switch typed := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		builder.WriteByte('{')
		for index, key := range keys {
			if index > 0 {
				builder.WriteByte(',')
			}
			encodedKey, err := json.Marshal(key)
			if err != nil {
				return fmt.Errorf("checksum: encode key %q: %w", key, err)
			}
			builder.Write(encodedKey)
			builder.WriteByte(':')
			if err := writeCanonical(builder, typed[key]); err != nil {
				return err
			}
		}
		builder.WriteByte('}')
	case []any:
		builder.WriteByte('[')
		for index, item := range typed {
			if index > 0 {
				builder.WriteByte(',')
			}
			if err := writeCanonical(builder, item); err != nil {
				return err
			}
		}
		builder.WriteByte(']')
	case []string:
		items := make([]any, len(typed))
		for index, item := range typed {
			items[index] = item
		}
		return writeCanonical(builder, items)
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return fmt.Errorf("checksum: encode %T: %w", typed, err)
		}
		builder.Write(encoded)
	}
	return nil
}
