package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values in log output.
const RedactedValue = "[REDACTED]"

// allowlisted keys are always logged verbatim by MaskField.
var allowlisted = map[string]struct{}{
	"service": {}, "env": {}, "message": {}, "severity": {}, "timestamp": {},
	"error": {}, "reason": {}, "component": {}, "module": {}, "op": {},
	"pool": {}, "block": {}, "caller": {}, "method": {}, "requestid": {},
}

// sensitive key fragments are masked by the handler regardless of call site.
var sensitive = []string{"secret", "password", "passphrase", "token", "authorization", "dsn"}

// IsAllowlisted reports whether key is exempt from MaskField.
func IsAllowlisted(key string) bool {
	_, ok := allowlisted[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

func isSensitive(key string) bool {
	key = strings.ToLower(key)
	for _, fragment := range sensitive {
		if strings.Contains(key, fragment) {
			return true
		}
	}
	return false
}

// MaskValue hides non-empty values.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskBearer keeps the scheme of an Authorization header and hides the
// credential.
func MaskBearer(header string) string {
	scheme, credential, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || strings.TrimSpace(credential) == "" {
		return MaskValue(header)
	}
	return scheme + " " + RedactedValue
}

// MaskField builds an attribute whose value is hidden unless key is
// allowlisted.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// redact masks string attributes under sensitive keys. Values already masked
// at the call site pass through.
func redact(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() != slog.KindString || !isSensitive(attr.Key) {
		return attr
	}
	value := attr.Value.String()
	if value == "" || strings.HasSuffix(value, RedactedValue) {
		return attr
	}
	if strings.EqualFold(attr.Key, "authorization") {
		return slog.String(attr.Key, MaskBearer(value))
	}
	return slog.String(attr.Key, RedactedValue)
}
