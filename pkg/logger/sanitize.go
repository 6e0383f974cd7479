package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const maskedValue = "***"

// sensitiveKeys are matched case-insensitively with '-' and '_' removed.
var sensitiveKeys = []string{
	"password",
	"token",
	"apikey",
	"secret",
	"authorization",
	"cookie",
}

// SanitizeFields masks the values of fields whose keys look like
// credentials, descending into maps and slices.
func SanitizeFields(fields []zap.Field) []zap.Field {
	if len(fields) == 0 {
		return fields
	}

	out := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		if IsSensitiveKey(field.Key) {
			out = append(out, zap.String(field.Key, maskedValue))
			continue
		}

		enc := zapcore.NewMapObjectEncoder()
		field.AddTo(enc)
		value, ok := enc.Fields[field.Key]
		if !ok {
			out = append(out, field)
			continue
		}
		if _, nested := value.(map[string]any); !nested {
			if _, list := value.([]any); !list {
				out = append(out, field)
				continue
			}
		}
		out = append(out, zap.Any(field.Key, mask(field.Key, value)))
	}
	return out
}

func IsSensitiveKey(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	if normalized == "" {
		return false
	}
	normalized = strings.NewReplacer("-", "", "_", "").Replace(normalized)

	for _, candidate := range sensitiveKeys {
		if strings.Contains(normalized, candidate) {
			return true
		}
	}
	return false
}

func mask(key string, value any) any {
	if IsSensitiveKey(key) {
		return maskedValue
	}

	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[k] = mask(k, v)
		}
		return out
	case []any:
		out := make([]any, 0, len(typed))
		for _, item := range typed {
			out = append(out, mask(key, item))
		}
		return out
	default:
		return value
	}
}
