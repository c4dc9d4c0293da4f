package observability

import (
	"encoding/json"
	"strings"
)

// Key fragments whose values never belong in a log line. Covers auth
// headers, provider API keys, and the DSN-style secrets in our config.
var sensitiveKeyFragments = []string{
	"api_key", "apikey", "x-api-key",
	"authorization", "auth", "token", "bearer",
	"password", "secret",
	"access_key", "connection_string", "dsn",
}

// RedactJSON replaces the values of sensitive keys anywhere in a JSON
// payload with a placeholder. Non-JSON input is returned unchanged.
func RedactJSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	b, err := json.Marshal(redactValue(v))
	if err != nil {
		return raw
	}
	return b
}

func redactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, vv := range val {
			if sensitiveKey(k) {
				val[k] = "[REDACTED]"
			} else {
				val[k] = redactValue(vv)
			}
		}
		return val
	case []any:
		for i := range val {
			val[i] = redactValue(val[i])
		}
		return val
	default:
		return v
	}
}

func sensitiveKey(k string) bool {
	low := strings.ToLower(k)
	for _, frag := range sensitiveKeyFragments {
		if strings.Contains(low, frag) {
			return true
		}
	}
	return false
}
