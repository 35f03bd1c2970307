package logger

import "strings"

const redacted = "[REDACTED]"

// credentialKeys are field-name fragments whose values are never logged.
var credentialKeys = []string{"token", "authorization", "secret", "password", "api_key", "apikey", "encryption_key"}

func isCredentialKey(key string) bool {
	key = strings.ToLower(key)
	for _, k := range credentialKeys {
		if strings.Contains(key, k) {
			return true
		}
	}
	return false
}

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}
